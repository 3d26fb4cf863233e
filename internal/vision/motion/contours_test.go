package motion

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindComponents_Empty(t *testing.T) {
	t.Parallel()

	mask := image.NewGray(image.Rect(0, 0, 16, 16))
	assert.Empty(t, findComponents(mask))
}

func TestFindComponents_TwoBlobs(t *testing.T) {
	t.Parallel()

	mask := image.NewGray(image.Rect(0, 0, 32, 16))
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			mask.Pix[y*mask.Stride+x] = MaskForeground
		}
	}
	for y := 8; y < 12; y++ {
		for x := 20; x < 28; x++ {
			mask.Pix[y*mask.Stride+x] = MaskForeground
		}
	}

	comps := findComponents(mask)
	require.Len(t, comps, 2)

	assert.Equal(t, 16, comps[0].area)
	if diff := cmp.Diff(image.Rect(2, 2, 6, 6), comps[0].bbox); diff != "" {
		t.Errorf("first bbox mismatch (-want +got):\n%s", diff)
	}
	// 4 pixels per axis starting at 2: mean coordinate 3.5 truncates to 3
	assert.Equal(t, image.Point{X: 3, Y: 3}, comps[0].centroid())

	assert.Equal(t, 32, comps[1].area)
	if diff := cmp.Diff(image.Rect(20, 8, 28, 12), comps[1].bbox); diff != "" {
		t.Errorf("second bbox mismatch (-want +got):\n%s", diff)
	}
}

// TestFindComponents_DiagonalNotConnected verifies 4-connectivity: pixels
// touching only at corners are separate regions.
func TestFindComponents_DiagonalNotConnected(t *testing.T) {
	t.Parallel()

	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	mask.Pix[2*mask.Stride+2] = MaskForeground
	mask.Pix[3*mask.Stride+3] = MaskForeground

	assert.Len(t, findComponents(mask), 2)
}

func TestCentroid_LShapeMoments(t *testing.T) {
	t.Parallel()

	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	// L shape: (1,1), (1,2), (2,2)
	mask.Pix[1*mask.Stride+1] = MaskForeground
	mask.Pix[2*mask.Stride+1] = MaskForeground
	mask.Pix[2*mask.Stride+2] = MaskForeground

	comps := findComponents(mask)
	require.Len(t, comps, 1)
	require.Equal(t, 3, comps[0].area)

	// sumX=4, sumY=5: integer division gives (1, 1)
	assert.Equal(t, image.Point{X: 1, Y: 1}, comps[0].centroid())
}

func TestCentroid_ZeroAreaFallsBackToBoxCenter(t *testing.T) {
	t.Parallel()

	c := component{bbox: image.Rect(4, 6, 10, 14)}
	assert.Equal(t, image.Point{X: 7, Y: 10}, c.centroid())
}

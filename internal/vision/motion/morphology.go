package motion

import (
	"image"
	"math"
)

// ellipseKernel returns the neighbor offsets of a size×size elliptical
// structuring element. size must be odd. For size 5 the rows are
// 00100 / 11111 / 11111 / 11111 / 00100.
func ellipseKernel(size int) []image.Point {
	r := size / 2
	offsets := make([]image.Point, 0, size*size)
	for dy := -r; dy <= r; dy++ {
		span := int(math.Round(float64(r) * math.Sqrt(1-float64(dy*dy)/float64(r*r))))
		for dx := -span; dx <= span; dx++ {
			offsets = append(offsets, image.Point{X: dx, Y: dy})
		}
	}
	return offsets
}

// thresholdMask binarizes a mask in place: values at or above thresh become
// MaskForeground, everything else MaskBackground. Used to drop shadow pixels
// before morphology.
func thresholdMask(mask *image.Gray, thresh uint8) {
	for i, v := range mask.Pix {
		if v >= thresh {
			mask.Pix[i] = MaskForeground
		} else {
			mask.Pix[i] = MaskBackground
		}
	}
}

// dilate sets each pixel that has any foreground pixel under the kernel.
// Masks are zero-origin binary images (MaskBackground/MaskForeground).
func dilate(src *image.Gray, kernel []image.Point) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for _, off := range kernel {
				nx, ny := x+off.X, y+off.Y
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				if src.Pix[ny*src.Stride+nx] == MaskForeground {
					dst.Pix[y*dst.Stride+x] = MaskForeground
					break
				}
			}
		}
	}
	return dst
}

// erode keeps only the pixels whose entire in-bounds kernel neighborhood is
// foreground.
func erode(src *image.Gray, kernel []image.Point) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
	pixels:
		for x := 0; x < w; x++ {
			for _, off := range kernel {
				nx, ny := x+off.X, y+off.Y
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				if src.Pix[ny*src.Stride+nx] != MaskForeground {
					continue pixels
				}
			}
			dst.Pix[y*dst.Stride+x] = MaskForeground
		}
	}
	return dst
}

// closeMask merges fragmented blobs: dilate then erode.
func closeMask(src *image.Gray, kernel []image.Point) *image.Gray {
	return erode(dilate(src, kernel), kernel)
}

// openMask removes speckle noise: erode then dilate.
func openMask(src *image.Gray, kernel []image.Point) *image.Gray {
	return dilate(erode(src, kernel), kernel)
}

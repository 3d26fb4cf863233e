package motion

import (
	"image"
	"math"
)

// Mask pixel classifications emitted by the background model.
const (
	MaskBackground uint8 = 0
	MaskShadow     uint8 = 127
	MaskForeground uint8 = 255
)

// Constants for the per-pixel Gaussian mixture.
const (
	// DefaultHistoryFrames is the adaption horizon when none is configured.
	DefaultHistoryFrames = 500
	// DefaultVarThreshold is the default squared-deviation multiplier
	// separating foreground pixels from a matched component.
	DefaultVarThreshold = 16.0
	// maxComponents is the number of Gaussians tracked per pixel.
	maxComponents = 5
	// backgroundRatio is the cumulative weight that closes the background set.
	backgroundRatio = 0.9
	// initialVariance seeds new components (sigma 15). Variance is clamped
	// to [minVariance, maxVariance] to keep matching stable.
	initialVariance = 225.0
	minVariance     = 4.0
	maxVariance     = 5 * initialVariance
	// newComponentWeight is the starting weight of a freshly seeded component.
	newComponentWeight = 0.05
	// shadowRatio is the intensity fraction below which a darkened pixel no
	// longer counts as shadow.
	shadowRatio = 0.5
)

// ModelSettings configure the background model.
type ModelSettings struct {
	// HistoryFrames is the number of frames the model adapts over. The
	// learning rate is 1/min(framesSeen, HistoryFrames), so early frames
	// seed the background quickly and the model settles as history fills.
	HistoryFrames int

	// VarThreshold is the sensitivity: a pixel matches a component when its
	// squared deviation from the component mean is within
	// VarThreshold * variance.
	VarThreshold float64

	// DetectShadows marks darkened-background pixels as MaskShadow instead
	// of MaskForeground.
	DetectShadows bool
}

// BackgroundModel estimates each pixel's usual intensity with a small
// Gaussian mixture and classifies incoming pixels as background, foreground,
// or shadow. All per-pixel statistics are owned by the model; callers
// interact only through Apply and Reset.
type BackgroundModel struct {
	settings ModelSettings

	width, height int
	framesSeen    uint64

	// Per-pixel mixture state, maxComponents entries per pixel, ordered by
	// descending weight. nmodes holds the live component count per pixel.
	nmodes  []uint8
	weights []float32
	means   []float32
	vars    []float32

	// Classification counts from the most recent Apply call.
	lastForeground int
	lastShadow     int
	lastBackground int
}

// NewBackgroundModel creates a model with the given settings. Zero or
// negative settings fall back to the defaults.
func NewBackgroundModel(settings ModelSettings) *BackgroundModel {
	if settings.HistoryFrames <= 0 {
		settings.HistoryFrames = DefaultHistoryFrames
	}
	if settings.VarThreshold <= 0 {
		settings.VarThreshold = DefaultVarThreshold
	}
	return &BackgroundModel{settings: settings}
}

// Reset discards all per-pixel statistics. The next Apply call reseeds the
// model from its input frame.
func (m *BackgroundModel) Reset() {
	m.framesSeen = 0
	m.width = 0
	m.height = 0
	m.nmodes = nil
	m.weights = nil
	m.means = nil
	m.vars = nil
}

// FramesSeen returns the number of frames absorbed since the last reset.
func (m *BackgroundModel) FramesSeen() uint64 { return m.framesSeen }

// LastCounts returns the foreground/shadow/background pixel counts of the
// most recent Apply call.
func (m *BackgroundModel) LastCounts() (fg, shadow, bg int) {
	return m.lastForeground, m.lastShadow, m.lastBackground
}

func (m *BackgroundModel) resize(w, h int) {
	n := w * h * maxComponents
	m.width = w
	m.height = h
	m.framesSeen = 0
	m.nmodes = make([]uint8, w*h)
	m.weights = make([]float32, n)
	m.means = make([]float32, n)
	m.vars = make([]float32, n)
}

// Apply absorbs one grayscale frame and returns the foreground mask:
// MaskBackground, MaskForeground, or MaskShadow per pixel. The mask is a
// fresh zero-origin image of the same dimensions as src. A frame whose
// dimensions differ from the model's current geometry resets the model.
func (m *BackgroundModel) Apply(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w != m.width || h != m.height {
		m.resize(w, h)
	}

	m.framesSeen++
	denom := m.framesSeen
	if denom > uint64(m.settings.HistoryFrames) {
		denom = uint64(m.settings.HistoryFrames)
	}
	alpha := 1.0 / float64(denom)
	varThreshold := m.settings.VarThreshold

	mask := image.NewGray(image.Rect(0, 0, w, h))
	fgCount, shadowCount, bgCount := 0, 0, 0

	for y := 0; y < h; y++ {
		srcRow := src.PixOffset(b.Min.X, b.Min.Y+y)
		dstRow := y * mask.Stride
		for x := 0; x < w; x++ {
			v := float64(src.Pix[srcRow+x])
			pix := y*w + x
			base := pix * maxComponents
			n := int(m.nmodes[pix])

			// Background set: heaviest components until the cumulative
			// weight passes backgroundRatio.
			bgModes := 0
			cum := 0.0
			for k := 0; k < n; k++ {
				cum += float64(m.weights[base+k])
				bgModes++
				if cum > backgroundRatio {
					break
				}
			}

			matched := -1
			for k := 0; k < n; k++ {
				delta := v - float64(m.means[base+k])
				if delta*delta <= varThreshold*float64(m.vars[base+k]) {
					matched = k
					break
				}
			}

			var cls uint8
			if matched >= 0 {
				if matched < bgModes {
					cls = MaskBackground
				} else {
					cls = MaskForeground
				}

				// Weight update keeps the sum at 1: the matched component
				// gains alpha*(1-w), the rest decay by (1-alpha).
				for k := 0; k < n; k++ {
					wk := float64(m.weights[base+k])
					if k == matched {
						wk += alpha * (1 - wk)
					} else {
						wk *= 1 - alpha
					}
					m.weights[base+k] = float32(wk)
				}

				mean := float64(m.means[base+matched])
				variance := float64(m.vars[base+matched])
				delta := v - mean
				mean += alpha * delta
				variance += alpha * (delta*delta - variance)
				variance = math.Max(minVariance, math.Min(variance, maxVariance))
				m.means[base+matched] = float32(mean)
				m.vars[base+matched] = float32(variance)

				// Bubble the matched component toward the front to keep
				// descending weight order.
				for k := matched; k > 0 && m.weights[base+k] > m.weights[base+k-1]; k-- {
					m.weights[base+k], m.weights[base+k-1] = m.weights[base+k-1], m.weights[base+k]
					m.means[base+k], m.means[base+k-1] = m.means[base+k-1], m.means[base+k]
					m.vars[base+k], m.vars[base+k-1] = m.vars[base+k-1], m.vars[base+k]
				}
			} else {
				cls = MaskForeground

				slot := n
				if n < maxComponents {
					m.nmodes[pix] = uint8(n + 1)
					n++
				} else {
					slot = maxComponents - 1
				}

				if n == 1 {
					// First observation seeds the background directly.
					m.weights[base] = 1
					m.means[base] = float32(v)
					m.vars[base] = initialVariance
					cls = MaskBackground
				} else {
					m.means[base+slot] = float32(v)
					m.vars[base+slot] = initialVariance
					m.weights[base+slot] = newComponentWeight

					// Rescale the remaining components so weights sum to 1.
					sum := 0.0
					for k := 0; k < n; k++ {
						if k != slot {
							sum += float64(m.weights[base+k])
						}
					}
					if sum > 0 {
						scale := (1 - newComponentWeight) / sum
						for k := 0; k < n; k++ {
							if k != slot {
								m.weights[base+k] = float32(float64(m.weights[base+k]) * scale)
							}
						}
					}
				}
			}

			if cls == MaskForeground && m.settings.DetectShadows && bgModes > 0 {
				// Weighted mean of the background set; a pixel darker than
				// the background but above shadowRatio of it is shadow.
				sumW, sumM := 0.0, 0.0
				for k := 0; k < bgModes; k++ {
					sumW += float64(m.weights[base+k])
					sumM += float64(m.weights[base+k]) * float64(m.means[base+k])
				}
				if sumW > 0 {
					bgMean := sumM / sumW
					if v < bgMean && v >= shadowRatio*bgMean {
						cls = MaskShadow
					}
				}
			}

			switch cls {
			case MaskForeground:
				fgCount++
			case MaskShadow:
				shadowCount++
			default:
				bgCount++
			}
			mask.Pix[dstRow+x] = cls
		}
	}

	m.lastForeground = fgCount
	m.lastShadow = shadowCount
	m.lastBackground = bgCount
	return mask
}

// Package motion turns camera frames into discrete motion events using
// adaptive background subtraction.
package motion

import (
	"image"
	"image/draw"
	"math"
	"time"

	"github.com/anthonynsimon/bild/blur"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
)

const (
	// blurRadius yields the fixed 21x21 smoothing kernel applied before the
	// background model.
	blurRadius = 10.0

	// morphKernelSize is the elliptical structuring element size used to
	// clean the foreground mask.
	morphKernelSize = 5

	// shadowCutoff separates strong foreground from shadow pixels when
	// shadow detection is enabled.
	shadowCutoff = 200
)

// Event is one qualifying motion detection within a single frame. Events
// are immutable values; TrackID and Zone are annotation fields filled in by
// the tracker and zone classifier during the same processing cycle.
type Event struct {
	Timestamp  time.Time
	Centroid   image.Point
	Area       int
	BBox       image.Rectangle
	Confidence float64

	// TrackID is assigned by the tracker; zero means unassigned.
	TrackID int
	// Zone is assigned by the zone classifier; empty means no zone matched.
	Zone string
}

// DetectorSettings configure a Detector.
type DetectorSettings struct {
	// Sensitivity is the background-model variance threshold. Lower values
	// flag more pixels as foreground.
	Sensitivity float64

	// MinAreaPx and MaxAreaPx bound the pixel area of a qualifying region.
	MinAreaPx int
	MaxAreaPx int

	// HistoryFrames is the background-model adaption horizon.
	HistoryFrames int

	// DetectShadows drops darkened-background pixels from the mask instead
	// of counting them as motion.
	DetectShadows bool

	// MinConfidence discards events below this confidence.
	MinConfidence float64

	// ROI restricts processing to a sub-rectangle of the frame. Emitted
	// coordinates are always in full-frame space.
	ROI *image.Rectangle
}

// DetectorStats are the monotonic counters accumulated across a detector's
// lifetime. Reset does not clear them.
type DetectorStats struct {
	FramesProcessed uint64 `json:"frames_processed"`
	MotionsDetected uint64 `json:"motions_detected"`
}

// Detector converts one frame at a time into zero or more motion events.
// It owns a background model whose statistics evolve across calls, so a
// single detector serves exactly one camera feed.
type Detector struct {
	settings DetectorSettings
	clock    timeutil.Clock
	model    *BackgroundModel
	kernel   []image.Point

	framesProcessed uint64
	motionsDetected uint64

	warnedEmptyFrame bool
	warnedEmptyROI   bool
}

// NewDetector creates a detector. Zero or negative numeric settings fall
// back to the defaults; a nil clock falls back to the real clock.
func NewDetector(settings DetectorSettings, clock timeutil.Clock) *Detector {
	if settings.Sensitivity <= 0 {
		settings.Sensitivity = DefaultVarThreshold
	}
	if settings.MinAreaPx < 0 {
		settings.MinAreaPx = 0
	}
	if settings.MaxAreaPx <= 0 {
		settings.MaxAreaPx = 8000
	}
	if settings.HistoryFrames <= 0 {
		settings.HistoryFrames = DefaultHistoryFrames
	}
	if settings.MinConfidence < 0 {
		settings.MinConfidence = 0
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Detector{
		settings: settings,
		clock:    clock,
		model: NewBackgroundModel(ModelSettings{
			HistoryFrames: settings.HistoryFrames,
			VarThreshold:  settings.Sensitivity,
			DetectShadows: settings.DetectShadows,
		}),
		kernel: ellipseKernel(morphKernelSize),
	}
}

// DetectMotion processes one frame and returns the qualifying motion events,
// stamped with the current wall-clock time. A nil or zero-size frame yields
// no events and is logged once, not per frame.
func (d *Detector) DetectMotion(frame *frames.Frame) []Event {
	if frame == nil || frame.Gray == nil || frame.Gray.Bounds().Empty() {
		if !d.warnedEmptyFrame {
			monitoring.Logf("motion: ignoring empty frame input")
			d.warnedEmptyFrame = true
		}
		return nil
	}
	d.framesProcessed++

	img := frame.Gray
	var offset image.Point
	if d.settings.ROI != nil {
		r := d.settings.ROI.Intersect(img.Bounds())
		if r.Empty() {
			if !d.warnedEmptyROI {
				monitoring.Logf("motion: ROI %v does not intersect frame bounds %v", *d.settings.ROI, img.Bounds())
				d.warnedEmptyROI = true
			}
			return nil
		}
		offset = r.Min
		img = cropGray(img, r)
	}

	mask := d.model.Apply(smoothGray(img))
	if d.settings.DetectShadows {
		thresholdMask(mask, shadowCutoff)
	}
	mask = closeMask(mask, d.kernel)
	mask = openMask(mask, d.kernel)

	now := d.clock.Now()
	var events []Event
	for _, c := range findComponents(mask) {
		if c.area < d.settings.MinAreaPx || c.area > d.settings.MaxAreaPx {
			continue
		}
		confidence := math.Min(1.0, float64(c.area)/float64(d.settings.MaxAreaPx))
		if confidence < d.settings.MinConfidence {
			continue
		}
		events = append(events, Event{
			Timestamp:  now,
			Centroid:   c.centroid().Add(offset),
			Area:       c.area,
			BBox:       c.bbox.Add(offset),
			Confidence: confidence,
		})
	}

	d.motionsDetected += uint64(len(events))
	return events
}

// Reset reinitializes the background model from scratch, used after
// prolonged lighting changes. The stats counters are not cleared.
func (d *Detector) Reset() {
	d.model.Reset()
}

// Stats returns the detector's monotonic counters.
func (d *Detector) Stats() DetectorStats {
	return DetectorStats{
		FramesProcessed: d.framesProcessed,
		MotionsDetected: d.motionsDetected,
	}
}

// ModelFramesSeen reports how many frames the background model has absorbed
// since its last reset.
func (d *Detector) ModelFramesSeen() uint64 {
	return d.model.FramesSeen()
}

// cropGray copies the r sub-rectangle of src into a zero-origin image.
func cropGray(src *image.Gray, r image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// smoothGray applies the Gaussian smoothing blur and returns the result as a
// zero-origin grayscale image. The blur works in RGBA; a grayscale input
// keeps R==G==B, so the red channel carries the smoothed intensity.
func smoothGray(src *image.Gray) *image.Gray {
	blurred := blur.Gaussian(src, blurRadius)
	b := blurred.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := blurred.PixOffset(b.Min.X, b.Min.Y+y)
		dst := y * out.Stride
		for x := 0; x < b.Dx(); x++ {
			out.Pix[dst+x] = blurred.Pix[row+x*4]
		}
	}
	return out
}

package frames

import (
	"context"
	"image"
	"image/draw"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
)

// Source delivers frames from a camera stream or a directory of stills.
// Sources are single-consumer and not safe for concurrent use.
type Source interface {
	// Connect establishes the source. Implementations may also connect
	// lazily on the first Next call.
	Connect(ctx context.Context) error

	// Next blocks until a frame is available. It returns io.EOF when the
	// source is exhausted or permanently lost.
	Next(ctx context.Context) (*Frame, error)

	// Close releases the source. Next may be called again afterwards; the
	// source reconnects if it can.
	Close() error
}

// pacer throttles frame delivery to a target rate by sleeping off the
// remainder of each frame interval.
type pacer struct {
	clock    timeutil.Clock
	interval time.Duration
	last     time.Time
}

func newPacer(clock timeutil.Clock, fps float64) pacer {
	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return pacer{clock: clock, interval: interval, last: clock.Now()}
}

func (p *pacer) pace() {
	if p.interval > 0 {
		if elapsed := p.clock.Since(p.last); elapsed < p.interval {
			p.clock.Sleep(p.interval - elapsed)
		}
	}
	p.last = p.clock.Now()
}

// toGray converts any decoded image to 8-bit grayscale.
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	return gray
}

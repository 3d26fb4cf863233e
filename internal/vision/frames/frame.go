// Package frames supplies terrarium camera frames to the monitoring
// pipeline, either from a live MJPEG stream or from a directory of stills.
package frames

import (
	"image"
	"time"
)

// Frame is one decoded grayscale camera frame.
//
// A Frame is immutable once produced. The pipeline reads it during a single
// processing cycle and never retains it afterwards, so sources may not
// mutate a frame after handing it out.
type Frame struct {
	// Gray holds the decoded pixels at zero origin.
	Gray *image.Gray

	// Width and Height are fixed for the lifetime of a stream session.
	Width  int
	Height int

	// Timestamp is when the frame was acquired.
	Timestamp time.Time

	// Seq increases by one per frame delivered by the source.
	Seq uint64
}

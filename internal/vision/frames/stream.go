package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
)

// StreamSettings configure a StreamSource.
type StreamSettings struct {
	// URL of the MJPEG stream (multipart/x-mixed-replace over HTTP).
	URL string

	// Timeout bounds each connection attempt (dial + response headers),
	// not the lifetime of the stream.
	Timeout time.Duration

	// MaxRetries is the number of connection attempts before giving up or
	// engaging the fallback.
	MaxRetries int

	// RetryDelay is the pause between connection attempts.
	RetryDelay time.Duration

	// RetryForever retries indefinitely. It is mutually exclusive with the
	// fallback and forcibly disabled when FallbackEnabled is set.
	RetryForever bool

	// FallbackEnabled switches to serving stills from FallbackPath after
	// retries are exhausted.
	FallbackEnabled bool
	FallbackPath    string

	// FPSTarget limits delivery rate; zero disables pacing.
	FPSTarget float64
}

// StreamSource consumes an MJPEG camera stream frame by frame. After a
// failed connection run it can switch to a directory of fallback stills;
// once those are exhausted it tries the live stream again.
type StreamSource struct {
	settings StreamSettings
	clock    timeutil.Clock
	client   *http.Client

	resp     *http.Response
	parts    *multipart.Reader
	fallback *DirSource

	frameCount uint64
	pacer      pacer
}

// NewStreamSource builds a stream source. The clock is injected so tests
// can drive pacing and retry delays.
func NewStreamSource(settings StreamSettings, clock timeutil.Clock) *StreamSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StreamSource{
		settings: settings,
		clock:    clock,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: settings.Timeout}).DialContext,
				ResponseHeaderTimeout: settings.Timeout,
			},
		},
		pacer: newPacer(clock, settings.FPSTarget),
	}
}

// Connect attempts the stream up to MaxRetries times (or forever), then
// engages the fallback directory when configured.
func (s *StreamSource) Connect(ctx context.Context) error {
	forever := s.settings.RetryForever && !s.settings.FallbackEnabled
	if s.settings.RetryForever && s.settings.FallbackEnabled {
		monitoring.Logf("frames: retry_forever and fallback are both enabled; disabling retry_forever so the fallback can engage after %d attempts",
			s.settings.MaxRetries)
	}

	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		monitoring.Logf("frames: connecting to stream %s", s.settings.URL)
		err := s.open(ctx)
		if err == nil {
			monitoring.Logf("frames: connected to stream")
			return nil
		}

		retries++
		if forever {
			monitoring.Logf("frames: connection attempt %d failed: %v", retries, err)
		} else {
			monitoring.Logf("frames: connection attempt %d/%d failed: %v",
				retries, s.settings.MaxRetries, err)
		}
		s.Close()

		if forever || retries < s.settings.MaxRetries {
			monitoring.Logf("frames: retrying in %s", s.settings.RetryDelay)
			s.clock.Sleep(s.settings.RetryDelay)
			continue
		}
		break
	}

	if s.settings.FallbackEnabled && s.settings.FallbackPath != "" {
		monitoring.Logf("frames: stream connection failed, switching to fallback directory")
		fb := NewDirSource(DirSettings{Dir: s.settings.FallbackPath}, s.clock)
		if err := fb.Connect(ctx); err != nil {
			monitoring.Logf("frames: fallback connection failed: %v", err)
			return fmt.Errorf("stream and fallback unavailable: %w", err)
		}
		s.fallback = fb
		return nil
	}

	return errors.New("failed to connect to stream after all retries")
}

// open performs a single connection attempt and validates the stream by
// reading and discarding one frame.
func (s *StreamSource) open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.settings.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("not a multipart stream: %q", resp.Header.Get("Content-Type"))
	}
	boundary := params["boundary"]
	if boundary == "" {
		resp.Body.Close()
		return errors.New("multipart stream missing boundary")
	}

	parts := multipart.NewReader(resp.Body, boundary)
	if _, err := readGrayPart(parts); err != nil {
		resp.Body.Close()
		return fmt.Errorf("stream validation read: %w", err)
	}

	s.resp = resp
	s.parts = parts
	return nil
}

// Next returns the next frame, reconnecting as needed. It returns io.EOF
// once neither the stream nor the fallback can be re-established.
func (s *StreamSource) Next(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.parts == nil && s.fallback == nil {
			if err := s.Connect(ctx); err != nil {
				monitoring.Logf("frames: cannot get frames: not connected")
				return nil, io.EOF
			}
		}

		gray, err := s.read(ctx)
		if err != nil {
			monitoring.Logf("frames: failed to read frame, attempting to reconnect: %v", err)
			s.Close()
			if err := s.Connect(ctx); err != nil {
				return nil, io.EOF
			}
			continue
		}

		s.frameCount++
		s.pacer.pace()
		if s.frameCount%100 == 0 {
			monitoring.Logf("frames: processed %d frames", s.frameCount)
		}

		b := gray.Bounds()
		return &Frame{
			Gray:      gray,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Timestamp: s.clock.Now(),
			Seq:       s.frameCount,
		}, nil
	}
}

func (s *StreamSource) read(ctx context.Context) (*image.Gray, error) {
	if s.fallback != nil {
		frame, err := s.fallback.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		return frame.Gray, nil
	}
	return readGrayPart(s.parts)
}

func readGrayPart(parts *multipart.Reader) (*image.Gray, error) {
	part, err := parts.NextPart()
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decode jpeg part: %w", err)
	}
	return toGray(img), nil
}

// Close releases the stream or fallback. The frame counter survives so a
// later reconnect continues the sequence.
func (s *StreamSource) Close() error {
	if s.resp != nil {
		s.resp.Body.Close()
		s.resp = nil
		s.parts = nil
		monitoring.Logf("frames: stream connection closed")
	}
	if s.fallback != nil {
		s.fallback.Close()
		s.fallback = nil
	}
	return nil
}

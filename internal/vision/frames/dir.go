package frames

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
)

// DirSettings configure a DirSource.
type DirSettings struct {
	// Dir holds the stills, served in lexical filename order.
	Dir string

	// FPSTarget limits delivery rate; zero disables pacing.
	FPSTarget float64

	// Loop restarts from the first file instead of ending with io.EOF.
	Loop bool
}

// DirSource serves JPEG/PNG stills from a directory, for replay runs and
// as the stream fallback.
type DirSource struct {
	settings DirSettings
	clock    timeutil.Clock

	files      []string
	next       int
	frameCount uint64
	pacer      pacer
}

// NewDirSource builds a directory source over settings.Dir.
func NewDirSource(settings DirSettings, clock timeutil.Clock) *DirSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DirSource{
		settings: settings,
		clock:    clock,
		pacer:    newPacer(clock, settings.FPSTarget),
	}
}

// Connect scans the directory. It fails when the directory is missing or
// holds no image files.
func (d *DirSource) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(d.settings.Dir)
	if err != nil {
		return fmt.Errorf("open frame directory: %w", err)
	}

	d.files = d.files[:0]
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			d.files = append(d.files, filepath.Join(d.settings.Dir, e.Name()))
		}
	}
	sort.Strings(d.files)
	if len(d.files) == 0 {
		return fmt.Errorf("no image files in %s", d.settings.Dir)
	}

	d.next = 0
	monitoring.Logf("frames: directory source loaded %d stills from %s", len(d.files), d.settings.Dir)
	return nil
}

// Next returns the next still as a frame stamped with the current time.
// Unreadable files are skipped with a warning.
func (d *DirSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.files == nil {
		if err := d.Connect(ctx); err != nil {
			return nil, err
		}
	}

	skipped := 0
	for {
		if d.next >= len(d.files) {
			if !d.settings.Loop {
				return nil, io.EOF
			}
			d.next = 0
		}
		if skipped >= len(d.files) {
			return nil, fmt.Errorf("no readable image files in %s", d.settings.Dir)
		}

		path := d.files[d.next]
		d.next++

		img, err := imaging.Open(path)
		if err != nil {
			monitoring.Logf("frames: skipping unreadable still %s: %v", path, err)
			skipped++
			continue
		}

		gray := toGray(img)
		d.frameCount++
		d.pacer.pace()

		b := gray.Bounds()
		return &Frame{
			Gray:      gray,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Timestamp: d.clock.Now(),
			Seq:       d.frameCount,
		}, nil
	}
}

// Close resets the source; a later Next rescans the directory.
func (d *DirSource) Close() error {
	d.files = nil
	d.next = 0
	return nil
}

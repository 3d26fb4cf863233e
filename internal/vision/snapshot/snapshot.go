// Package snapshot writes annotated detection stills and their JSON
// sidecars, and answers queries over the snapshot directory.
package snapshot

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nocturnal-data/terrarium.report/internal/fsutil"
	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
	"github.com/nocturnal-data/terrarium.report/internal/vision/zones"
)

// filenameLayout names snapshots by capture time, so lexical filename
// order is chronological order.
const filenameLayout = "20060102_150405"

var (
	boxColor      = color.RGBA{G: 255, A: 255}
	centroidColor = color.RGBA{R: 255, A: 255}
	labelColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	zoneFallback  = color.RGBA{R: 255, G: 255, A: 255}
)

// Settings configure a Writer.
type Settings struct {
	// Dir is where snapshots and sidecars are written.
	Dir string

	// Interval is the minimum spacing between saved snapshots.
	Interval time.Duration

	// MaxFiles caps how many snapshots are kept; the oldest are removed.
	MaxFiles int

	// Quality is the JPEG encoding quality, 1-100.
	Quality int
}

// Detection is one annotated event as recorded in a snapshot sidecar.
type Detection struct {
	TrackID    int     `json:"track_id"`
	CentroidX  int     `json:"centroid_x"`
	CentroidY  int     `json:"centroid_y"`
	Area       int     `json:"area"`
	Confidence float64 `json:"confidence"`
	Zone       string  `json:"zone,omitempty"`
}

// Meta is a snapshot's JSON sidecar.
type Meta struct {
	Timestamp      time.Time   `json:"timestamp"`
	Filename       string      `json:"filename"`
	DetectionCount int         `json:"detection_count"`
	Detections     []Detection `json:"detections"`
}

// Writer saves at most one annotated still per interval, pruning the
// oldest snapshot/sidecar pairs beyond the file cap. It is driven from the
// pipeline goroutine and is not safe for concurrent captures.
type Writer struct {
	settings Settings
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	zones    []zones.Zone

	lastSaved time.Time
	saved     uint64
}

// NewWriter builds a Writer. Nil fs and clock fall back to the OS
// filesystem and real clock; non-positive settings fall back to the
// documented defaults.
func NewWriter(settings Settings, fs fsutil.FileSystem, clock timeutil.Clock, zs []zones.Zone) *Writer {
	if settings.Dir == "" {
		settings.Dir = "static/snapshots"
	}
	if settings.Interval <= 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.MaxFiles <= 0 {
		settings.MaxFiles = 100
	}
	if settings.Quality <= 0 || settings.Quality > 100 {
		settings.Quality = 85
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Writer{settings: settings, fs: fs, clock: clock, zones: zs}
}

// Capture saves an annotated snapshot of frame when events are present and
// the interval since the last save has elapsed. Failures are logged and
// swallowed; a missed snapshot never stalls the pipeline.
func (w *Writer) Capture(frame *frames.Frame, events []motion.Event, now time.Time) {
	if frame == nil || frame.Gray == nil || len(events) == 0 {
		return
	}
	if !w.lastSaved.IsZero() && now.Sub(w.lastSaved) < w.settings.Interval {
		return
	}

	if err := w.save(frame, events, now); err != nil {
		monitoring.Logf("snapshot: save failed: %v", err)
		return
	}
	w.lastSaved = now
	w.saved++

	if err := w.prune(); err != nil {
		monitoring.Logf("snapshot: prune failed: %v", err)
	}
}

// Saved reports how many snapshots this writer has stored.
func (w *Writer) Saved() uint64 {
	return w.saved
}

func (w *Writer) save(frame *frames.Frame, events []motion.Event, now time.Time) error {
	if err := w.fs.MkdirAll(w.settings.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	img := w.annotate(frame, events, now)

	name := fmt.Sprintf("detection_%s.jpg", now.Format(filenameLayout))
	path := filepath.Join(w.settings.Dir, name)

	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(w.settings.Quality)); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}

	meta := Meta{
		Timestamp:      now,
		Filename:       name,
		DetectionCount: len(events),
		Detections:     make([]Detection, 0, len(events)),
	}
	for _, e := range events {
		meta.Detections = append(meta.Detections, Detection{
			TrackID:    e.TrackID,
			CentroidX:  e.Centroid.X,
			CentroidY:  e.Centroid.Y,
			Area:       e.Area,
			Confidence: e.Confidence,
			Zone:       e.Zone,
		})
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := w.fs.WriteFile(path+".json", data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	monitoring.Logf("snapshot: saved %s (%d detections)", name, len(events))
	return nil
}

// annotate promotes the grayscale frame to RGBA and draws zones, bounding
// boxes, centroids, labels, and the header/footer text.
func (w *Writer) annotate(frame *frames.Frame, events []motion.Event, now time.Time) *image.RGBA {
	bounds := frame.Gray.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, frame.Gray, bounds.Min, draw.Src)

	for _, z := range w.zones {
		col := parseZoneColor(z.Color)
		drawCircle(img, z.Center, z.Radius, col)
		drawText(img, z.Center.X-len(z.Name)*3, z.Center.Y-z.Radius-4, z.Name, col)
	}

	for _, e := range events {
		drawRect(img, e.BBox, boxColor)
		fillCircle(img, e.Centroid, 5, centroidColor)
		label := fmt.Sprintf("#%d Area: %d", e.TrackID, e.Area)
		drawText(img, e.BBox.Min.X, e.BBox.Min.Y-4, label, boxColor)
	}

	drawText(img, 8, 16, fmt.Sprintf("Detections: %d", len(events)), labelColor)
	drawText(img, 8, bounds.Dy()-8, now.Format("2006-01-02 15:04:05"), labelColor)

	return img
}

// parseZoneColor reads the stored "[r, g, b]" form, falling back to yellow.
func parseZoneColor(s string) color.RGBA {
	trimmed := strings.Trim(strings.TrimSpace(s), "[]")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 3 {
		return zoneFallback
	}
	var rgb [3]uint8
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 || v > 255 {
			return zoneFallback
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
}

func setIfInside(img *image.RGBA, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, col)
	}
}

func drawRect(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	for x := r.Min.X; x <= r.Max.X; x++ {
		setIfInside(img, x, r.Min.Y, col)
		setIfInside(img, x, r.Max.Y, col)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		setIfInside(img, r.Min.X, y, col)
		setIfInside(img, r.Max.X, y, col)
	}
}

// drawCircle plots a one-pixel circle outline using the midpoint method.
func drawCircle(img *image.RGBA, c image.Point, radius int, col color.RGBA) {
	x, y, err := radius, 0, 1-radius
	for x >= y {
		for _, p := range [][2]int{
			{c.X + x, c.Y + y}, {c.X - x, c.Y + y},
			{c.X + x, c.Y - y}, {c.X - x, c.Y - y},
			{c.X + y, c.Y + x}, {c.X - y, c.Y + x},
			{c.X + y, c.Y - x}, {c.X - y, c.Y - x},
		} {
			setIfInside(img, p[0], p[1], col)
		}
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

func fillCircle(img *image.RGBA, c image.Point, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setIfInside(img, c.X+dx, c.Y+dy, col)
			}
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string, col color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// prune removes the oldest snapshot/sidecar pairs beyond the file cap.
func (w *Writer) prune() error {
	names, err := w.snapshotNames()
	if err != nil {
		return err
	}
	if len(names) <= w.settings.MaxFiles {
		return nil
	}

	for _, name := range names[:len(names)-w.settings.MaxFiles] {
		path := filepath.Join(w.settings.Dir, name)
		if err := w.fs.Remove(path); err != nil {
			return fmt.Errorf("remove old snapshot %s: %w", name, err)
		}
		if w.fs.Exists(path + ".json") {
			if err := w.fs.Remove(path + ".json"); err != nil {
				return fmt.Errorf("remove old sidecar %s: %w", name, err)
			}
		}
		monitoring.Logf("snapshot: pruned %s", name)
	}
	return nil
}

// snapshotNames lists the stored snapshot JPEGs oldest first.
func (w *Writer) snapshotNames() ([]string, error) {
	entries, err := w.fs.ReadDir(w.settings.Dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".jpg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

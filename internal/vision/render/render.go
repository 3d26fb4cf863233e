// Package render produces heatmap and activity-chart PNGs from stored
// motion events.
package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// DefaultGridPx is the heatmap cell size in frame pixels.
const DefaultGridPx = 50

// Renderer writes chart PNGs under a fixed output directory.
type Renderer struct {
	dir    string
	gridPx int
}

// NewRenderer builds a renderer saving under dir. A non-positive grid size
// falls back to DefaultGridPx.
func NewRenderer(dir string, gridPx int) *Renderer {
	if gridPx <= 0 {
		gridPx = DefaultGridPx
	}
	return &Renderer{dir: dir, gridPx: gridPx}
}

// HeatmapPath returns where date's heatmap PNG lives, whether or not it has
// been rendered yet. Callers treat an existing file as a cache hit.
func (r *Renderer) HeatmapPath(date string) string {
	return filepath.Join(r.dir, fmt.Sprintf("heatmap_%s.png", date))
}

// Heatmap renders a grid-binned heatmap of the given centroids and returns
// the saved file path. An empty point list is an error; callers decide
// whether that is a 404 or a skip.
func (r *Renderer) Heatmap(points []image.Point, date string) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("no points to render for %s", date)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create heatmap dir: %w", err)
	}

	grid := binPoints(points, r.gridPx)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Activity Heatmap - %s", date)
	p.X.Label.Text = "X Position (pixels)"
	p.Y.Label.Text = "Y Position (pixels)"

	hm := plotter.NewHeatMap(grid, newHeatPalette(12))
	p.Add(hm)

	path := r.HeatmapPath(date)
	if err := p.Save(10*vg.Inch, 8*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save heatmap: %w", err)
	}

	monitoring.Logf("render: heatmap saved to %s (%d points)", path, len(points))
	return path, nil
}

// HourlyActivity renders a 24-bin bar chart of per-hour event counts and
// returns the saved file path.
func (r *Renderer) HourlyActivity(counts map[int]int, date string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create chart dir: %w", err)
	}

	values := make(plotter.Values, 24)
	for h := 0; h < 24; h++ {
		values[h] = float64(counts[h])
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Hourly Activity Distribution - %s", date)
	p.X.Label.Text = "Hour of Day"
	p.Y.Label.Text = "Motion Events"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return "", fmt.Errorf("build bar chart: %w", err)
	}
	bars.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	p.Add(bars)

	labels := make([]string, 24)
	for h := range labels {
		labels[h] = fmt.Sprintf("%02d", h)
	}
	p.NominalX(labels...)

	path := filepath.Join(r.dir, fmt.Sprintf("hourly_%s.png", date))
	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save hourly chart: %w", err)
	}

	monitoring.Logf("render: hourly chart saved to %s", path)
	return path, nil
}

// countGrid is a binned occupancy grid implementing plotter.GridXYZ. Cell
// (c, r) covers the frame-pixel square at (c*cell, r*cell).
type countGrid struct {
	cols, rows int
	cell       int
	counts     []float64
}

// binPoints accumulates centroid counts into cell-sized bins sized to the
// points' extents.
func binPoints(points []image.Point, cell int) *countGrid {
	maxX, maxY := 0, 0
	for _, p := range points {
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	g := &countGrid{
		cols: maxX/cell + 1,
		rows: maxY/cell + 1,
		cell: cell,
	}
	g.counts = make([]float64, g.cols*g.rows)

	for _, p := range points {
		c := p.X / cell
		r := p.Y / cell
		if c < 0 || r < 0 || c >= g.cols || r >= g.rows {
			continue
		}
		g.counts[r*g.cols+c]++
	}
	return g
}

func (g *countGrid) Dims() (int, int)   { return g.cols, g.rows }
func (g *countGrid) Z(c, r int) float64 { return g.counts[r*g.cols+c] }
func (g *countGrid) X(c int) float64    { return float64(c*g.cell + g.cell/2) }
func (g *countGrid) Y(r int) float64    { return float64(r*g.cell + g.cell/2) }

// heatPalette builds an n-step dark-to-hot color ramp.
type heatPalette []color.Color

func (p heatPalette) Colors() []color.Color { return p }

func newHeatPalette(n int) heatPalette {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		// Sweep hue from deep blue toward red, brightening as it goes.
		t := float64(i) / float64(n-1)
		hue := (1 - t) * 2.0 / 3.0
		r, g, b := hslToRGB(hue, 0.9, 0.2+0.35*t)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL components in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nocturnal-data/terrarium.report/internal/httputil"
)

// viridisRamp colors the zone scatter by event area, low to high.
var viridisRamp = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// showHourlyChart renders a bar chart (HTML) of event counts per hour for
// the requested date.
func (s *Server) showHourlyChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	date, err := queryDate(r)
	if err != nil {
		httputil.BadRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}
	dateStr := date.Format(dateLayout)

	dist, err := s.db.HourlyDistribution(date)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query hourly distribution: %v", err))
		return
	}

	hours := make([]string, 0, 24)
	values := make([]opts.BarData, 0, 24)
	for h := 0; h < 24; h++ {
		hours = append(hours, fmt.Sprintf("%02d:00", h))
		values = append(values, opts.BarData{Value: dist[h]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hourly Activity", Theme: "dark", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Hourly Activity", Subtitle: dateStr}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Hour"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Events"}),
	)
	bar.SetXAxis(hours).
		AddSeries("events", values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showZoneChart renders event centroids for the requested date as a
// scatter plot over the enclosure plane, colored by blob area, with zone
// circles marked by their centers.
func (s *Server) showZoneChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	date, err := queryDate(r)
	if err != nil {
		httputil.BadRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}
	dateStr := date.Format(dateLayout)

	events, err := s.db.EventsByDate(date)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query events: %v", err))
		return
	}
	zones, err := s.db.Zones()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query zones: %v", err))
		return
	}

	pts := make([]opts.ScatterData, 0, len(events))
	maxArea := 1
	maxX, maxY := 0, 0
	for _, e := range events {
		if e.Area > maxArea {
			maxArea = e.Area
		}
		if e.CentroidX > maxX {
			maxX = e.CentroidX
		}
		if e.CentroidY > maxY {
			maxY = e.CentroidY
		}
		pts = append(pts, opts.ScatterData{Value: []interface{}{e.CentroidX, e.CentroidY, e.Area}})
	}

	zonePts := make([]opts.ScatterData, 0, len(zones))
	for _, z := range zones {
		if z.X > maxX {
			maxX = z.X
		}
		if z.Y > maxY {
			maxY = z.Y
		}
		zonePts = append(zonePts, opts.ScatterData{
			Name:       z.Name,
			Value:      []interface{}{z.X, z.Y, 0},
			Symbol:     "diamond",
			SymbolSize: 18,
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Zone Activity", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Zone Activity", Subtitle: fmt.Sprintf("%s events=%d", dateStr, len(pts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: maxX + 50, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxY + 50, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxArea),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)

	scatter.AddSeries("detections", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("zones", zonePts,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

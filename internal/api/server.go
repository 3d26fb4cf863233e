// Package api serves the monitoring HTTP surface: JSON queries over stored
// activity, chart pages, the live websocket feed, and the dashboard.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/db"
	"github.com/nocturnal-data/terrarium.report/internal/httputil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/gate"
	"github.com/nocturnal-data/terrarium.report/internal/vision/render"
	"github.com/nocturnal-data/terrarium.report/internal/vision/snapshot"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const dateLayout = "2006-01-02"

// rangeEventCap bounds the events returned by the range endpoint.
const rangeEventCap = 100

type Server struct {
	db        *db.DB
	renderer  *render.Renderer
	snapshots *snapshot.Writer
	hub       *LiveHub
	gate      *gate.PublishGate
	version   string
	staticDir string
}

func NewServer(store *db.DB, renderer *render.Renderer, snaps *snapshot.Writer, hub *LiveHub, g *gate.PublishGate, version string) *Server {
	return &Server{
		db:        store,
		renderer:  renderer,
		snapshots: snaps,
		hub:       hub,
		gate:      g,
		version:   version,
		staticDir: "static",
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.showDashboard)
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/activity/today", s.showTodayActivity)
	mux.HandleFunc("/api/activity/range", s.showActivityRange)
	mux.HandleFunc("/api/events/latest", s.listLatestEvents)
	mux.HandleFunc("/api/heatmap", s.serveHeatmap)
	mux.HandleFunc("/api/stats/weekly", s.showWeeklyStats)
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/database/stats", s.showDatabaseStats)
	mux.HandleFunc("/api/database/cleanup", s.runDatabaseCleanup)
	mux.HandleFunc("/api/snapshots/recent", s.listRecentSnapshots)
	mux.HandleFunc("/api/snapshots/range", s.listSnapshotRange)
	mux.HandleFunc("/api/snapshots/count", s.showSnapshotCount)
	mux.HandleFunc("/api/dashboard/summary", s.showDashboardSummary)
	mux.HandleFunc("/charts/hourly", s.showHourlyChart)
	mux.HandleFunc("/charts/zones", s.showZoneChart)
	mux.Handle("/static/", http.StripPrefix("/static/",
		http.FileServer(http.Dir(s.staticDir))))
	if s.hub != nil {
		mux.HandleFunc("/ws/live", s.hub.ServeLive)
	}
	return mux
}

// queryDate parses the "date" query parameter, defaulting to today.
// Dates name local calendar days, matching how the store windows them.
func queryDate(r *http.Request) (time.Time, error) {
	d := r.URL.Query().Get("date")
	if d == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation(dateLayout, d, time.Local)
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if err := s.db.Ping(); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	stats, err := s.db.Stats()
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	resp := map[string]interface{}{
		"status":   "healthy",
		"database": "connected",
		"version":  s.version,
		"stats":    stats,
	}
	if s.gate != nil {
		resp["publish_window"] = s.gate.Window()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showTodayActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	today := time.Now()
	summary, err := s.db.DailySummary(today)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to summarize activity: %v", err))
		return
	}
	hourly, err := s.db.HourlyDistribution(today)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query hourly distribution: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"summary":             summary,
		"hourly_distribution": hourly,
	})
}

func (s *Server) showActivityRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		httputil.BadRequest(w, "start and end dates are required")
		return
	}
	start, err := time.ParseInLocation(dateLayout, startStr, time.Local)
	if err != nil {
		httputil.BadRequest(w, "invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := time.ParseInLocation(dateLayout, endStr, time.Local)
	if err != nil {
		httputil.BadRequest(w, "invalid end date, expected YYYY-MM-DD")
		return
	}

	// The end date names a calendar day; include all of it.
	events, err := s.db.EventsByRange(start, end.AddDate(0, 0, 1))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query events: %v", err))
		return
	}

	total := len(events)
	if len(events) > rangeEventCap {
		events = events[:rangeEventCap]
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"start_date":   startStr,
		"end_date":     endStr,
		"total_events": total,
		"events":       events,
	})
}

func (s *Server) listLatestEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	events, err := s.db.LatestEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query events: %v", err))
		return
	}
	if events == nil {
		events = []db.EventRecord{}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) serveHeatmap(w http.ResponseWriter, r *http.Request) {
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

	// An already-rendered heatmap is served as-is; past days never gain
	// events retroactively.
	path := s.renderer.HeatmapPath(dateStr)
	if _, statErr := os.Stat(path); statErr == nil {
		http.ServeFile(w, r, path)
		return
	}

	points, err := s.db.HeatmapPoints(date)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query heatmap points: %v", err))
		return
	}
	if len(points) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no activity data for %s", dateStr))
		return
	}

	path, err = s.renderer.Heatmap(points, dateStr)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render heatmap: %v", err))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) showWeeklyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -6)

	daily := make([]*db.DaySummary, 0, 7)
	for d := 0; d < 7; d++ {
		summary, err := s.db.DailySummary(start.AddDate(0, 0, d))
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to summarize week: %v", err))
			return
		}
		daily = append(daily, summary)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"week_start":  start.Format(dateLayout),
		"week_end":    end.Format(dateLayout),
		"daily_stats": daily,
	})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listZones(w, r)
	case http.MethodPost:
		s.createZone(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listZones(w http.ResponseWriter, _ *http.Request) {
	zones, err := s.db.Zones()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query zones: %v", err))
		return
	}
	if zones == nil {
		zones = []db.ZoneRecord{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"count": len(zones),
		"zones": zones,
	})
}

func (s *Server) createZone(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		X      *int   `json:"x"`
		Y      *int   `json:"y"`
		Radius *int   `json:"radius"`
		Color  string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if body.Name == "" || body.X == nil || body.Y == nil || body.Radius == nil {
		httputil.BadRequest(w, "name, x, y, and radius are required")
		return
	}
	if *body.Radius <= 0 {
		httputil.BadRequest(w, "radius must be positive")
		return
	}

	id, err := s.db.UpsertZone(db.ZoneRecord{
		Name:   body.Name,
		X:      *body.X,
		Y:      *body.Y,
		Radius: *body.Radius,
		Color:  body.Color,
	})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to save zone: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Zone created successfully",
		"zone_id": id,
	})
}

func (s *Server) showDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	stats, err := s.db.Stats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query database stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) runDatabaseCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	body := struct {
		DaysToKeep int `json:"days_to_keep"`
	}{DaysToKeep: db.DefaultRetentionDays}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
	}
	if body.DaysToKeep < 1 {
		httputil.BadRequest(w, "days_to_keep must be at least 1")
		return
	}

	deleted, err := s.db.CleanupOldData(body.DaysToKeep, time.Now())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("cleanup failed: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"message":         "Cleanup successful",
		"records_deleted": deleted,
	})
}

// queryInt parses a positive integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return parsed, nil
}

func (s *Server) listRecentSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit < 1 {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	if limit > 500 {
		limit = 500
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.BadRequest(w, "invalid 'offset' parameter")
		return
	}

	metas, err := s.snapshots.Recent(limit, offset)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list snapshots: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"count":     len(metas),
		"offset":    offset,
		"limit":     limit,
		"snapshots": metas,
	})
}

func (s *Server) listSnapshotRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		httputil.BadRequest(w, "start and end dates are required")
		return
	}
	start, err := time.ParseInLocation(dateLayout, startStr, time.Local)
	if err != nil {
		httputil.BadRequest(w, "invalid start date, expected YYYY-MM-DD")
		return
	}
	end, err := time.ParseInLocation(dateLayout, endStr, time.Local)
	if err != nil {
		httputil.BadRequest(w, "invalid end date, expected YYYY-MM-DD")
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.BadRequest(w, "invalid 'offset' parameter")
		return
	}

	metas, total, err := s.snapshots.Range(start, end.AddDate(0, 0, 1).Add(-time.Second), limit, offset)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list snapshots: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"total":     total,
		"count":     len(metas),
		"offset":    offset,
		"limit":     limit,
		"start":     startStr,
		"end":       endStr,
		"snapshots": metas,
	})
}

func (s *Server) showSnapshotCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	count, err := s.snapshots.Count()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count snapshots: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"count": count})
}

func (s *Server) showDashboardSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	today := time.Now()
	summary, err := s.db.DailySummary(today)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to summarize activity: %v", err))
		return
	}
	hourly, err := s.db.HourlyDistribution(today)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query hourly distribution: %v", err))
		return
	}
	recent, err := s.snapshots.Recent(10, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list snapshots: %v", err))
		return
	}
	stats, err := s.db.Stats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query database stats: %v", err))
		return
	}
	zones, err := s.db.Zones()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query zones: %v", err))
		return
	}
	count, err := s.snapshots.Count()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count snapshots: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"daily_summary":       summary,
		"hourly_distribution": hourly,
		"recent_snapshots":    recent,
		"database_stats":      stats,
		"zones":               zones,
		"snapshot_count":      count,
	})
}

package db

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

// DefaultSessionGap is how long activity may pause before the current
// session is considered over.
const DefaultSessionGap = 300 * time.Second

// SessionTracker groups consecutive activity into stored sessions. A
// session opens on the first observed event, accumulates counts, areas,
// and zone names, and is finalized once the gap elapses with no activity
// or the tracker is closed.
type SessionTracker struct {
	db  *DB
	gap time.Duration

	mu        sync.Mutex
	key       string
	start     time.Time
	last      time.Time
	movements int
	areaSum   int64
	zones     map[string]struct{}
}

// NewSessionTracker builds a tracker writing to store. A non-positive
// gap falls back to DefaultSessionGap.
func NewSessionTracker(store *DB, gap time.Duration) *SessionTracker {
	if gap <= 0 {
		gap = DefaultSessionGap
	}
	return &SessionTracker{db: store, gap: gap}
}

// Observe feeds one cycle's published events into the tracker. A cycle
// with no events only ages the current session; once the gap elapses the
// session row is written.
func (s *SessionTracker) Observe(events []motion.Event, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != "" && now.Sub(s.last) > s.gap {
		if err := s.finalize(); err != nil {
			return err
		}
	}

	if len(events) == 0 {
		return nil
	}

	if s.key == "" {
		s.key = uuid.NewString()
		s.start = now
		s.zones = make(map[string]struct{})
		monitoring.Logf("db: activity session %s started", s.key)
	}

	s.last = now
	s.movements += len(events)
	for _, e := range events {
		s.areaSum += int64(e.Area)
		if e.Zone != "" {
			s.zones[e.Zone] = struct{}{}
		}
	}

	return nil
}

// Close finalizes any open session. Call at shutdown.
func (s *SessionTracker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == "" {
		return nil
	}
	return s.finalize()
}

// finalize writes the current session row and resets the tracker. Callers
// hold s.mu.
func (s *SessionTracker) finalize() error {
	names := make([]string, 0, len(s.zones))
	for name := range s.zones {
		names = append(names, name)
	}
	sort.Strings(names)
	zonesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode session zones: %w", err)
	}

	duration := int(s.last.Sub(s.start).Seconds())
	avgArea := round2(float64(s.areaSum) / float64(s.movements))

	_, err = s.db.DB.Exec(`
		INSERT INTO activity_sessions (
			session_key, start_time, end_time, duration_seconds,
			total_movements, avg_area, zones_visited
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.key, formatTime(s.start), formatTime(s.last), duration,
		s.movements, avgArea, string(zonesJSON))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	monitoring.Logf("db: activity session %s closed: %d movements over %ds",
		s.key, s.movements, duration)

	s.key = ""
	s.start = time.Time{}
	s.last = time.Time{}
	s.movements = 0
	s.areaSum = 0
	s.zones = nil

	return nil
}

// DailyStats is one computed row of the daily rollup table.
type DailyStats struct {
	Date            string   `json:"date"`
	TotalMovements  int      `json:"total_movements"`
	ActiveDurationS int      `json:"active_duration_seconds"`
	MostActiveHour  int      `json:"most_active_hour"`
	HotspotX        int      `json:"hotspot_x"`
	HotspotY        int      `json:"hotspot_y"`
	ZonesVisited    []string `json:"zones_visited"`
}

// RecomputeDailyStats rebuilds date's daily_stats row from its stored
// events: total count, active span first to last, the modal hour (ties
// resolve to the earliest), the mean-centroid hotspot, and the distinct
// zone names visited. A day with no events leaves the table untouched
// and returns nil stats.
func (db *DB) RecomputeDailyStats(date time.Time) (*DailyStats, error) {
	events, err := db.EventsByDate(date)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	activeDuration := int(events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Seconds())

	var hourCounts [24]int
	xs := make([]float64, len(events))
	ys := make([]float64, len(events))
	for i, e := range events {
		// Stored timestamps are UTC; the modal hour is a local-clock figure.
		hourCounts[e.Timestamp.In(date.Location()).Hour()]++
		xs[i] = float64(e.CentroidX)
		ys[i] = float64(e.CentroidY)
	}

	mostActive := 0
	for h, count := range hourCounts {
		if count > hourCounts[mostActive] {
			mostActive = h
		}
	}

	hotspotX := int(math.Round(stat.Mean(xs, nil)))
	hotspotY := int(math.Round(stat.Mean(ys, nil)))

	names, err := db.zoneNamesVisited(date)
	if err != nil {
		return nil, err
	}
	zonesJSON, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode daily zones: %w", err)
	}

	stats := &DailyStats{
		Date:            formatDate(date),
		TotalMovements:  len(events),
		ActiveDurationS: activeDuration,
		MostActiveHour:  mostActive,
		HotspotX:        hotspotX,
		HotspotY:        hotspotY,
		ZonesVisited:    names,
	}

	_, err = db.DB.Exec(`
		INSERT OR REPLACE INTO daily_stats (
			date, total_movements, active_duration_seconds,
			most_active_hour, hotspot_x, hotspot_y, zones_visited
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stats.Date, stats.TotalMovements, stats.ActiveDurationS,
		stats.MostActiveHour, stats.HotspotX, stats.HotspotY, string(zonesJSON))
	if err != nil {
		return nil, fmt.Errorf("upsert daily stats: %w", err)
	}

	monitoring.Logf("db: daily stats recomputed for %s: %d movements, hotspot (%d, %d)",
		stats.Date, stats.TotalMovements, stats.HotspotX, stats.HotspotY)

	return stats, nil
}

// zoneNamesVisited returns the sorted distinct zone names referenced by
// date's events.
func (db *DB) zoneNamesVisited(date time.Time) ([]string, error) {
	start, end := dayBounds(date)

	rows, err := db.DB.Query(`
		SELECT DISTINCT z.name
		FROM motion_events e
		JOIN zones z ON z.id = e.zone_id
		WHERE e.timestamp >= ? AND e.timestamp < ?
		ORDER BY z.name
	`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query visited zones: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan visited zone: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visited zones: %w", err)
	}

	return names, nil
}

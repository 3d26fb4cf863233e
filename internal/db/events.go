package db

import (
	"database/sql"
	"fmt"
	"image"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

// EventRecord is a stored motion event as read back from the database.
type EventRecord struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	CentroidX      int       `json:"centroid_x"`
	CentroidY      int       `json:"centroid_y"`
	Area           int       `json:"area"`
	BBoxX          int       `json:"bbox_x"`
	BBoxY          int       `json:"bbox_y"`
	BBoxW          int       `json:"bbox_w"`
	BBoxH          int       `json:"bbox_h"`
	Confidence     float64   `json:"confidence"`
	MovementVector *string   `json:"movement_vector"`
	ZoneID         *int64    `json:"zone_id"`
}

// ActivityCenter is the mean centroid of a day's events.
type ActivityCenter struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DaySummary aggregates one day of activity.
type DaySummary struct {
	Date        string          `json:"date"`
	TotalEvents int             `json:"total_events"`
	AvgArea     float64         `json:"avg_area,omitempty"`
	FirstEvent  *time.Time      `json:"first_event,omitempty"`
	LastEvent   *time.Time      `json:"last_event,omitempty"`
	Center      *ActivityCenter `json:"center_of_activity,omitempty"`
	Message     string          `json:"message,omitempty"`
}

const insertEventSQL = `
	INSERT INTO motion_events (
		timestamp, centroid_x, centroid_y, area,
		bbox_x, bbox_y, bbox_w, bbox_h, confidence, zone_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertEvent stores a single motion event and returns its row id. The
// event's zone name, when set and known, is resolved to a zone row.
func (db *DB) InsertEvent(e motion.Event) (int64, error) {
	result, err := db.DB.Exec(insertEventSQL, insertEventArgs(db, e)...)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert event id: %w", err)
	}

	return id, nil
}

// InsertEventBatch stores events inside one transaction and returns the
// number written. An empty batch is a no-op.
func (db *DB) InsertEventBatch(events []motion.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEventSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(insertEventArgs(db, e)...); err != nil {
			return 0, fmt.Errorf("insert batch event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return len(events), nil
}

func insertEventArgs(db *DB, e motion.Event) []interface{} {
	return []interface{}{
		formatTime(e.Timestamp),
		e.Centroid.X,
		e.Centroid.Y,
		e.Area,
		e.BBox.Min.X,
		e.BBox.Min.Y,
		e.BBox.Dx(),
		e.BBox.Dy(),
		e.Confidence,
		db.zoneIDFor(e.Zone),
	}
}

const selectEventSQL = `
	SELECT id, timestamp, centroid_x, centroid_y, area,
	       bbox_x, bbox_y, bbox_w, bbox_h, confidence,
	       movement_vector, zone_id
	FROM motion_events
`

// EventsByDate returns the events of date's calendar day (interpreted in
// date's location) in chronological order.
func (db *DB) EventsByDate(date time.Time) ([]EventRecord, error) {
	start, end := dayBounds(date)
	return db.EventsByRange(start, end)
}

// EventsByRange returns events with start <= timestamp < end in
// chronological order.
func (db *DB) EventsByRange(start, end time.Time) ([]EventRecord, error) {
	rows, err := db.DB.Query(
		selectEventSQL+` WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`,
		formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LatestEvents returns the most recent events, newest first. A
// non-positive limit falls back to 50.
func (db *DB) LatestEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.DB.Query(
		selectEventSQL+` ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	var events []EventRecord
	for rows.Next() {
		var rec EventRecord
		var ts string
		if err := rows.Scan(
			&rec.ID, &ts, &rec.CentroidX, &rec.CentroidY, &rec.Area,
			&rec.BBoxX, &rec.BBoxY, &rec.BBoxW, &rec.BBoxH, &rec.Confidence,
			&rec.MovementVector, &rec.ZoneID,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = t

		events = append(events, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// DailySummary aggregates date's events: count, rounded average area,
// mean centroid, and the first and last event times. A day with no
// events reports a zero total and an explanatory message.
func (db *DB) DailySummary(date time.Time) (*DaySummary, error) {
	start, end := dayBounds(date)

	var (
		total           int
		avgArea         sql.NullFloat64
		avgX, avgY      sql.NullFloat64
		firstTS, lastTS sql.NullString
	)
	err := db.DB.QueryRow(`
		SELECT COUNT(*), AVG(area), AVG(centroid_x), AVG(centroid_y),
		       MIN(timestamp), MAX(timestamp)
		FROM motion_events
		WHERE timestamp >= ? AND timestamp < ?
	`, formatTime(start), formatTime(end)).Scan(
		&total, &avgArea, &avgX, &avgY, &firstTS, &lastTS,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily summary: %w", err)
	}

	summary := &DaySummary{
		Date:        formatDate(date),
		TotalEvents: total,
	}
	if total == 0 {
		summary.Message = "No activity recorded"
		return summary, nil
	}

	summary.AvgArea = round2(avgArea.Float64)
	summary.Center = &ActivityCenter{
		X: round2(avgX.Float64),
		Y: round2(avgY.Float64),
	}

	if firstTS.Valid {
		t, err := parseTime(firstTS.String)
		if err != nil {
			return nil, err
		}
		summary.FirstEvent = &t
	}
	if lastTS.Valid {
		t, err := parseTime(lastTS.String)
		if err != nil {
			return nil, err
		}
		summary.LastEvent = &t
	}

	return summary, nil
}

// HourlyDistribution returns event counts per hour of date's day, with
// every hour 0..23 present. Timestamps are stored in UTC, so hours are
// bucketed after converting back to date's location; grouping in SQL
// would skew the chart by the UTC offset.
func (db *DB) HourlyDistribution(date time.Time) (map[int]int, error) {
	events, err := db.EventsByDate(date)
	if err != nil {
		return nil, err
	}

	dist := make(map[int]int, 24)
	for h := 0; h < 24; h++ {
		dist[h] = 0
	}
	for _, e := range events {
		dist[e.Timestamp.In(date.Location()).Hour()]++
	}

	return dist, nil
}

// ActivityHistogram buckets date's events by their offset from midnight.
// Non-positive bucketMinutes falls back to 60.
func (db *DB) ActivityHistogram(date time.Time, bucketMinutes int) ([]int, error) {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}
	bucketSeconds := bucketMinutes * 60

	start, end := dayBounds(date)
	totalSeconds := int(end.Sub(start).Seconds())
	bucketCount := totalSeconds/bucketSeconds + 1
	if bucketCount < 1 {
		bucketCount = 1
	}

	events, err := db.EventsByRange(start, end)
	if err != nil {
		return nil, err
	}

	buckets := make([]int, bucketCount)
	for _, e := range events {
		delta := int(e.Timestamp.Sub(start).Seconds())
		if delta < 0 {
			continue
		}
		idx := delta / bucketSeconds
		if idx >= bucketCount {
			continue
		}
		buckets[idx]++
	}

	return buckets, nil
}

// HeatmapPoints returns the raw centroids of date's events.
func (db *DB) HeatmapPoints(date time.Time) ([]image.Point, error) {
	start, end := dayBounds(date)

	rows, err := db.DB.Query(`
		SELECT centroid_x, centroid_y
		FROM motion_events
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query heatmap points: %w", err)
	}
	defer rows.Close()

	var points []image.Point
	for rows.Next() {
		var p image.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan heatmap point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heatmap points: %w", err)
	}

	return points, nil
}

package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// DefaultRetentionDays is the event retention applied when cleanup is
// asked for a non-positive window.
const DefaultRetentionDays = 30

// CleanupOldData deletes motion events recorded more than daysToKeep days
// before now, then compacts the database file. Returns the number of rows
// deleted.
func (db *DB) CleanupOldData(daysToKeep int, now time.Time) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}

	cutoff := now.AddDate(0, 0, -daysToKeep)

	result, err := db.DB.Exec(
		`DELETE FROM motion_events WHERE timestamp < ?`, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted events: %w", err)
	}

	if _, err := db.DB.Exec(`VACUUM`); err != nil {
		return deleted, fmt.Errorf("vacuum after cleanup: %w", err)
	}

	monitoring.Logf("db: cleaned up %d old records (older than %d days)", deleted, daysToKeep)
	return deleted, nil
}

// StoreStats summarizes what the store holds.
type StoreStats struct {
	TotalEvents    int        `json:"total_events"`
	TotalZones     int        `json:"total_zones"`
	FirstEvent     *time.Time `json:"first_event"`
	LastEvent      *time.Time `json:"last_event"`
	DatabaseSizeMB float64    `json:"database_size_mb"`
}

// Stats reports event and zone totals, the stored time span, and the
// database file size in megabytes.
func (db *DB) Stats() (*StoreStats, error) {
	stats := &StoreStats{}

	var firstTS, lastTS sql.NullString
	err := db.DB.QueryRow(`
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM motion_events
	`).Scan(&stats.TotalEvents, &firstTS, &lastTS)
	if err != nil {
		return nil, fmt.Errorf("query event stats: %w", err)
	}

	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM zones`).Scan(&stats.TotalZones); err != nil {
		return nil, fmt.Errorf("query zone count: %w", err)
	}

	if firstTS.Valid {
		t, err := parseTime(firstTS.String)
		if err != nil {
			return nil, err
		}
		stats.FirstEvent = &t
	}
	if lastTS.Valid {
		t, err := parseTime(lastTS.String)
		if err != nil {
			return nil, err
		}
		stats.LastEvent = &t
	}

	info, err := os.Stat(db.path)
	if err != nil {
		return nil, fmt.Errorf("stat database file: %w", err)
	}
	stats.DatabaseSizeMB = round2(float64(info.Size()) / 1024 / 1024)

	return stats, nil
}

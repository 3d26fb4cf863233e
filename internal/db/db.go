// Package db is the SQLite store for motion events, zones, activity
// sessions, and daily rollups.
package db

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// Timestamps are stored as UTC strings in a fixed-width layout so that
// string comparison, the timestamp index, and sqlite's strftime all agree.
const (
	timeLayout = "2006-01-02 15:04:05.000"
	dateLayout = "2006-01-02"
)

type DB struct {
	*sql.DB

	path string

	mu      sync.RWMutex
	zoneIDs map[string]int64
}

// Open opens (creating if needed) the database at path. The parent
// directory is created when missing. Schema setup is the migrations' job;
// callers run MigrateUp before first use.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Foreign keys stay unenforced: zone upserts are INSERT OR REPLACE,
	// which rewrites the zone row, and historical events keep the old id.
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	monitoring.Logf("db: database opened: %s", path)
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// dayBounds returns local midnight of date's day and the midnight after.
func dayBounds(date time.Time) (time.Time, time.Time) {
	year, month, day := date.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

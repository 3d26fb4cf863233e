package db

import (
	"database/sql"
	"fmt"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// DefaultZoneColor is the display color assigned to zones created
// without one, in "[r, g, b]" form.
const DefaultZoneColor = "[0, 255, 0]"

// ZoneRecord is a stored zone definition.
type ZoneRecord struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
	Color  string `json:"color"`
}

// UpsertZone creates or replaces the zone named rec.Name and returns its
// row id. An empty color falls back to DefaultZoneColor. Replacing a zone
// assigns it a fresh id.
func (db *DB) UpsertZone(rec ZoneRecord) (int64, error) {
	color := rec.Color
	if color == "" {
		color = DefaultZoneColor
	}

	result, err := db.DB.Exec(`
		INSERT OR REPLACE INTO zones (name, x, y, radius, color)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Name, rec.X, rec.Y, rec.Radius, color)
	if err != nil {
		return 0, fmt.Errorf("upsert zone %q: %w", rec.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("upsert zone id: %w", err)
	}

	if err := db.reloadZoneIDs(); err != nil {
		return 0, err
	}

	monitoring.Logf("db: zone %q saved (id %d)", rec.Name, id)
	return id, nil
}

// Zones returns all zones in creation order.
func (db *DB) Zones() ([]ZoneRecord, error) {
	rows, err := db.DB.Query(`
		SELECT id, name, x, y, radius, color FROM zones ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var records []ZoneRecord
	for rows.Next() {
		var rec ZoneRecord
		var color sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.X, &rec.Y, &rec.Radius, &color); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		rec.Color = color.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zones: %w", err)
	}

	return records, nil
}

// zoneIDFor resolves a zone name to its row id through a cached lookup.
// Returns nil for the empty name and for names with no zone row, which
// store as NULL.
func (db *DB) zoneIDFor(name string) *int64 {
	if name == "" {
		return nil
	}

	db.mu.RLock()
	ids := db.zoneIDs
	db.mu.RUnlock()

	if ids == nil {
		if err := db.reloadZoneIDs(); err != nil {
			monitoring.Logf("db: zone id lookup for %q failed: %v", name, err)
			return nil
		}
		db.mu.RLock()
		ids = db.zoneIDs
		db.mu.RUnlock()
	}

	if id, ok := ids[name]; ok {
		return &id
	}
	return nil
}

func (db *DB) reloadZoneIDs() error {
	rows, err := db.DB.Query(`SELECT id, name FROM zones`)
	if err != nil {
		return fmt.Errorf("load zone ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scan zone id: %w", err)
		}
		ids[name] = id
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate zone ids: %w", err)
	}

	db.mu.Lock()
	db.zoneIDs = ids
	db.mu.Unlock()

	return nil
}

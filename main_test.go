package main

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/config"
	"github.com/nocturnal-data/terrarium.report/internal/db"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

func openTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.MigrateUp(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestStoreSinkFlushesAtThreshold(t *testing.T) {
	store := openTestStore(t)
	sink := newStoreSink(store, nil, 3)

	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	event := motion.Event{Timestamp: now, Centroid: image.Pt(10, 20), Area: 500}

	sink.Persist([]motion.Event{event, event}, now)
	if sink.Pending() != 2 {
		t.Errorf("expected 2 pending events, got %d", sink.Pending())
	}

	events, err := store.LatestEvents(10)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no stored events before threshold, got %d", len(events))
	}

	sink.Persist([]motion.Event{event}, now)
	if sink.Pending() != 0 {
		t.Errorf("expected empty batch after flush, got %d pending", sink.Pending())
	}

	events, err = store.LatestEvents(10)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 stored events after flush, got %d", len(events))
	}
}

func TestStoreSinkFlushOnShutdown(t *testing.T) {
	store := openTestStore(t)
	sink := newStoreSink(store, nil, 100)

	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	sink.Persist([]motion.Event{{Timestamp: now, Centroid: image.Pt(5, 5), Area: 400}}, now)

	sink.Flush()

	events, err := store.LatestEvents(10)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 stored event after flush, got %d", len(events))
	}

	// Flushing an empty batch is a no-op.
	sink.Flush()
}

func TestStoreSinkEmptyCycleAgesSessions(t *testing.T) {
	store := openTestStore(t)
	sessions := db.NewSessionTracker(store, 60*time.Second)
	sink := newStoreSink(store, sessions, 100)

	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	sink.Persist([]motion.Event{{Timestamp: now, Centroid: image.Pt(5, 5), Area: 400}}, now)

	// Idle cycles past the gap close the open session.
	sink.Persist(nil, now.Add(2*time.Minute))

	var count int
	if err := store.QueryRow(`SELECT COUNT(*) FROM activity_sessions`).Scan(&count); err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 closed session, got %d", count)
	}
}

func TestOneShotFlagsRequested(t *testing.T) {
	tests := []struct {
		name  string
		flags oneShotFlags
		want  bool
	}{
		{"none", oneShotFlags{}, false},
		{"migrate", oneShotFlags{migrate: true}, true},
		{"migrate down", oneShotFlags{migrateDown: true}, true},
		{"cleanup", oneShotFlags{cleanupDays: 30}, true},
		{"heatmap", oneShotFlags{heatmapDate: "2026-03-01"}, true},
		{"seed zones", oneShotFlags{seedZones: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.requested(); got != tt.want {
				t.Errorf("expected requested=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestRunOneShotMigrate(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer store.Close()

	if err := runOneShot(store, config.EmptyTuningConfig(), oneShotFlags{migrate: true}); err != nil {
		t.Fatalf("migrate command failed: %v", err)
	}

	var count int
	if err := store.QueryRow(`SELECT COUNT(*) FROM motion_events`).Scan(&count); err != nil {
		t.Errorf("expected motion_events table after migrate: %v", err)
	}
}

func TestRunOneShotSeedZones(t *testing.T) {
	store := openTestStore(t)
	cfg := &config.TuningConfig{
		Zones: []config.ZoneSeed{
			{Name: "warm_hide", X: 100, Y: 200, Radius: 50, Color: "[255, 0, 0]"},
			{Name: "basking_rock", X: 300, Y: 100, Radius: 60},
		},
	}

	if err := runOneShot(store, cfg, oneShotFlags{seedZones: true}); err != nil {
		t.Fatalf("seed command failed: %v", err)
	}

	records, err := store.Zones()
	if err != nil {
		t.Fatalf("query zones: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(records))
	}
	if records[1].Color != db.DefaultZoneColor {
		t.Errorf("expected default color for unset seed, got %q", records[1].Color)
	}
}

func TestRunOneShotHeatmapInvalidDate(t *testing.T) {
	store := openTestStore(t)

	err := runOneShot(store, config.EmptyTuningConfig(), oneShotFlags{heatmapDate: "March 1"})
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestRunOneShotHeatmapRenders(t *testing.T) {
	store := openTestStore(t)

	// The -heatmap flag names a local calendar day; midday keeps the
	// events inside it in any zone.
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		if _, err := store.InsertEvent(motion.Event{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Centroid:  image.Pt(60+i*30, 90),
			Area:      700,
		}); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}

	dir := t.TempDir()
	cfg := &config.TuningConfig{HeatmapDir: &dir}
	if err := runOneShot(store, cfg, oneShotFlags{heatmapDate: "2026-03-01"}); err != nil {
		t.Fatalf("heatmap command failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "heatmap_2026-03-01.png")); err != nil {
		t.Errorf("expected rendered heatmap file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hourly_2026-03-01.png")); err != nil {
		t.Errorf("expected rendered hourly chart: %v", err)
	}
}

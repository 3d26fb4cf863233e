package db

import (
	"testing"
	"time"
)

func TestCleanupOldData(t *testing.T) {
	store := setupTestDB(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := testEvent(now.AddDate(0, 0, -45), 10, 10)
	recent := testEvent(now.AddDate(0, 0, -5), 20, 20)
	if _, err := store.InsertEvent(old); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if _, err := store.InsertEvent(recent); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}

	deleted, err := store.CleanupOldData(30, now)
	if err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	events, err := store.LatestEvents(10)
	if err != nil {
		t.Fatalf("LatestEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 surviving event, got %d", len(events))
	}
}

func TestCleanupOldDataDefaultRetention(t *testing.T) {
	store := setupTestDB(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.InsertEvent(testEvent(now.AddDate(0, 0, -DefaultRetentionDays-1), 10, 10)); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}

	deleted, err := store.CleanupOldData(0, now)
	if err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 under default retention", deleted)
	}
}

func TestStats(t *testing.T) {
	store := setupTestDB(t)

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 0 || stats.TotalZones != 0 {
		t.Errorf("empty store stats = %+v, want zeros", stats)
	}
	if stats.FirstEvent != nil || stats.LastEvent != nil {
		t.Error("expected nil event bounds on empty store")
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Errorf("DatabaseSizeMB = %v, want positive", stats.DatabaseSizeMB)
	}

	base := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	if _, err := store.InsertEvent(testEvent(base, 10, 10)); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if _, err := store.InsertEvent(testEvent(base.Add(time.Hour), 20, 20)); err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if _, err := store.UpsertZone(ZoneRecord{Name: "warm_hide", X: 100, Y: 100, Radius: 50}); err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}

	stats, err = store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", stats.TotalEvents)
	}
	if stats.TotalZones != 1 {
		t.Errorf("TotalZones = %d, want 1", stats.TotalZones)
	}
	if stats.FirstEvent == nil || !stats.FirstEvent.Equal(base) {
		t.Errorf("FirstEvent = %v, want %v", stats.FirstEvent, base)
	}
	if stats.LastEvent == nil || !stats.LastEvent.Equal(base.Add(time.Hour)) {
		t.Errorf("LastEvent = %v, want %v", stats.LastEvent, base.Add(time.Hour))
	}
}

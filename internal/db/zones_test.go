package db

import "testing"

func TestUpsertZoneAndList(t *testing.T) {
	store := setupTestDB(t)

	id, err := store.UpsertZone(ZoneRecord{
		Name: "warm_hide", X: 120, Y: 320, Radius: 70, Color: "[255, 80, 40]",
	})
	if err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero zone id")
	}

	zones, err := store.Zones()
	if err != nil {
		t.Fatalf("Zones failed: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected 1 zone, got %d", len(zones))
	}
	z := zones[0]
	if z.Name != "warm_hide" || z.X != 120 || z.Y != 320 || z.Radius != 70 {
		t.Errorf("unexpected zone record %+v", z)
	}
	if z.Color != "[255, 80, 40]" {
		t.Errorf("Color = %q, want configured color", z.Color)
	}
}

func TestUpsertZoneDefaultColor(t *testing.T) {
	store := setupTestDB(t)

	if _, err := store.UpsertZone(ZoneRecord{Name: "water_dish", X: 330, Y: 400, Radius: 45}); err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}

	zones, err := store.Zones()
	if err != nil {
		t.Fatalf("Zones failed: %v", err)
	}
	if zones[0].Color != DefaultZoneColor {
		t.Errorf("Color = %q, want %q", zones[0].Color, DefaultZoneColor)
	}
}

func TestUpsertZoneReplacesByName(t *testing.T) {
	store := setupTestDB(t)

	if _, err := store.UpsertZone(ZoneRecord{Name: "basking_ledge", X: 100, Y: 100, Radius: 50}); err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}
	if _, err := store.UpsertZone(ZoneRecord{Name: "basking_ledge", X: 320, Y: 120, Radius: 80}); err != nil {
		t.Fatalf("UpsertZone replace failed: %v", err)
	}

	zones, err := store.Zones()
	if err != nil {
		t.Fatalf("Zones failed: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected name collision to replace, got %d zones", len(zones))
	}
	if zones[0].X != 320 || zones[0].Radius != 80 {
		t.Errorf("expected replaced values, got %+v", zones[0])
	}
}

func TestZoneIDForRefreshesAfterUpsert(t *testing.T) {
	store := setupTestDB(t)

	if store.zoneIDFor("cool_hide") != nil {
		t.Error("expected nil id before zone exists")
	}

	id, err := store.UpsertZone(ZoneRecord{Name: "cool_hide", X: 520, Y: 330, Radius: 70})
	if err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}

	got := store.zoneIDFor("cool_hide")
	if got == nil || *got != id {
		t.Errorf("zoneIDFor = %v, want %d", got, id)
	}
	if store.zoneIDFor("") != nil {
		t.Error("expected nil id for empty name")
	}
}

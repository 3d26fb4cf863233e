package main

import (
	"fmt"
	"log"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/config"
	"github.com/nocturnal-data/terrarium.report/internal/db"
	"github.com/nocturnal-data/terrarium.report/internal/vision/render"
)

// oneShotFlags are the maintenance commands that run and exit instead of
// starting the daemon.
type oneShotFlags struct {
	migrate     bool
	migrateDown bool
	cleanupDays int
	heatmapDate string
	seedZones   bool
}

func (f oneShotFlags) requested() bool {
	return f.migrate || f.migrateDown || f.cleanupDays > 0 || f.heatmapDate != "" || f.seedZones
}

// runOneShot executes the requested maintenance command. Exactly one
// command runs per invocation, checked in a fixed order.
func runOneShot(store *db.DB, cfg *config.TuningConfig, flags oneShotFlags) error {
	switch {
	case flags.migrate:
		return store.MigrateUp()

	case flags.migrateDown:
		return store.MigrateDown()

	case flags.cleanupDays > 0:
		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrate before cleanup: %w", err)
		}
		deleted, err := store.CleanupOldData(flags.cleanupDays, time.Now())
		if err != nil {
			return err
		}
		log.Printf("deleted %d events older than %d days", deleted, flags.cleanupDays)
		return nil

	case flags.heatmapDate != "":
		// Dates name local calendar days, matching how queries window them.
		date, err := time.ParseInLocation("2006-01-02", flags.heatmapDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid -heatmap date %q, expected YYYY-MM-DD", flags.heatmapDate)
		}
		points, err := store.HeatmapPoints(date)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return fmt.Errorf("no events recorded on %s", flags.heatmapDate)
		}
		renderer := render.NewRenderer(cfg.GetHeatmapDir(), cfg.GetHeatmapGridPx())
		path, err := renderer.Heatmap(points, flags.heatmapDate)
		if err != nil {
			return err
		}
		log.Printf("heatmap saved to %s", path)

		counts, err := store.HourlyDistribution(date)
		if err != nil {
			return err
		}
		path, err = renderer.HourlyActivity(counts, flags.heatmapDate)
		if err != nil {
			return err
		}
		log.Printf("hourly chart saved to %s", path)
		return nil

	case flags.seedZones:
		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrate before zone seed: %w", err)
		}
		return seedZones(store, cfg)
	}
	return nil
}

// seedZones writes the configured zone definitions into the store.
func seedZones(store *db.DB, cfg *config.TuningConfig) error {
	if len(cfg.Zones) == 0 {
		log.Print("no zones configured, nothing to seed")
		return nil
	}
	for _, z := range cfg.Zones {
		id, err := store.UpsertZone(db.ZoneRecord{
			Name:   z.Name,
			X:      z.X,
			Y:      z.Y,
			Radius: z.Radius,
			Color:  z.Color,
		})
		if err != nil {
			return fmt.Errorf("seed zone %q: %w", z.Name, err)
		}
		log.Printf("seeded zone %q (id %d)", z.Name, id)
	}
	return nil
}

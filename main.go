// Command terrarium.report runs the nocturnal terrarium activity monitor:
// it pulls frames from a camera stream, detects and tracks motion, and
// serves the recorded activity over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/api"
	"github.com/nocturnal-data/terrarium.report/internal/config"
	"github.com/nocturnal-data/terrarium.report/internal/db"
	"github.com/nocturnal-data/terrarium.report/internal/fsutil"
	"github.com/nocturnal-data/terrarium.report/internal/notify"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/version"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
	"github.com/nocturnal-data/terrarium.report/internal/vision/gate"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
	"github.com/nocturnal-data/terrarium.report/internal/vision/pipeline"
	"github.com/nocturnal-data/terrarium.report/internal/vision/render"
	"github.com/nocturnal-data/terrarium.report/internal/vision/snapshot"
	"github.com/nocturnal-data/terrarium.report/internal/vision/track"
	"github.com/nocturnal-data/terrarium.report/internal/vision/zones"
)

var (
	configPath = flag.String("config", "", "Tuning config JSON (defaults to "+config.DefaultConfigPath+")")
	dbPath     = flag.String("db", "gecko_activity.db", "SQLite database path")
	port       = flag.Int("port", 5000, "HTTP listen port")
	streamURL  = flag.String("stream-url", "", "Override the configured camera stream URL")
	replayDir  = flag.String("replay-dir", "", "Process stills from a directory instead of the stream")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic pipeline logging")
	trace      = flag.Bool("trace", false, "Enable per-frame pipeline logging")

	migrateUp   = flag.Bool("migrate", false, "Apply pending migrations and exit")
	migrateDown = flag.Bool("migrate-down", false, "Roll back one migration and exit")
	cleanupDays = flag.Int("cleanup-days", 0, "Delete events older than N days and exit")
	heatmapDate = flag.String("heatmap", "", "Render the heatmap for a date (YYYY-MM-DD) and exit")
	zoneSeed    = flag.Bool("seed-zones", false, "Seed zones from the config and exit")
)

func main() {
	flag.Parse()

	var diagW, traceW io.Writer
	if *verbose || *trace {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagW, traceW)

	cfg := loadConfig()

	store, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	oneShot := oneShotFlags{
		migrate:     *migrateUp,
		migrateDown: *migrateDown,
		cleanupDays: *cleanupDays,
		heatmapDate: *heatmapDate,
		seedZones:   *zoneSeed,
	}
	if oneShot.requested() {
		if err := runOneShot(store, cfg, oneShot); err != nil {
			log.Fatalf("command failed: %v", err)
		}
		return
	}

	if err := run(store, cfg); err != nil {
		log.Fatalf("monitor failed: %v", err)
	}
}

func loadConfig() *config.TuningConfig {
	if *configPath == "" {
		return config.MustLoadDefaultConfig()
	}
	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}
	return cfg
}

func run(store *db.DB, cfg *config.TuningConfig) error {
	log.Printf("terrarium.report %s (%s) starting", version.Version, version.GitSHA)

	if err := store.MigrateUp(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	zoneList, err := loadZones(store, cfg)
	if err != nil {
		return err
	}

	detector := motion.NewDetector(detectorSettings(cfg), nil)
	tracker := track.NewTracker(track.TrackerSettings{
		MaxDistancePx:          cfg.GetTrackingMaxDistancePx(),
		StationaryThresholdMin: cfg.GetTrackingStationaryThresholdMin(),
	})
	publishGate := gate.NewPublishGate(gate.Settings{
		Enabled:     cfg.GetPublishFilterEnabled(),
		ActiveStart: cfg.GetPublishActiveStart(),
		ActiveEnd:   cfg.GetPublishActiveEnd(),
	})

	sessions := db.NewSessionTracker(store, cfg.GetSessionGap())
	sink := newStoreSink(store, sessions, defaultFlushThreshold)

	snaps := snapshot.NewWriter(snapshot.Settings{
		Dir:      cfg.GetSnapshotDir(),
		Interval: cfg.GetSnapshotInterval(),
		MaxFiles: cfg.GetSnapshotMaxFiles(),
		Quality:  cfg.GetSnapshotQuality(),
	}, fsutil.OSFileSystem{}, timeutil.RealClock{}, zoneList)

	renderer := render.NewRenderer(cfg.GetHeatmapDir(), cfg.GetHeatmapGridPx())
	hub := api.NewLiveHub()

	var notifier *notify.Notifier
	if cfg.GetNotifyEnabled() {
		notifier = notify.NewNotifier(notify.Settings{
			BaseURL:       cfg.GetNotifyURL(),
			Cooldown:      cfg.GetNotifyRateLimit(),
			TrackCooldown: cfg.GetNotifyTrackCooldown(),
			MinConfidence: cfg.GetNotifyMinConfidence(),
		}, nil, nil)
	}

	pl := pipeline.New(pipeline.Config{
		Detector:    detector,
		Tracker:     tracker,
		Classifier:  zones.NewClassifier(zoneList),
		Gate:        publishGate,
		Persistence: sink,
		Snapshots:   snaps,
		Live:        hub,
		Notify:      notifier,
	})

	source := frameSource(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(store, renderer, snaps, hub, publishGate, version.Version).ServeMux()
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", *port),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	// frame pull loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer source.Close()
		pullFrames(ctx, cfg, source, pl.NewFrameCallback())
	}()

	wg.Wait()

	shutdown(store, sink, sessions, renderer, pl)
	log.Print("graceful shutdown complete")
	return nil
}

// pullFrames drives the pipeline until the context is cancelled. Outside
// the monitoring schedule the loop idles instead of processing.
func pullFrames(ctx context.Context, cfg *config.TuningConfig, source frames.Source, callback func(*frames.Frame)) {
	schedule := gate.NewPublishGate(gate.Settings{
		Enabled:     cfg.GetMonitorScheduleEnabled(),
		ActiveStart: cfg.GetMonitorScheduleStart(),
		ActiveEnd:   cfg.GetMonitorScheduleEnd(),
	})

	if err := source.Connect(ctx); err != nil {
		log.Printf("frame source connect failed: %v", err)
		if ctx.Err() != nil {
			return
		}
	}

	skipped := 0
	for ctx.Err() == nil {
		now := time.Now()
		if !schedule.ShouldPublish(now) {
			skipped++
			if skipped%300 == 1 {
				log.Printf("outside monitoring window, next start %s",
					schedule.NextActiveTime(now).Format("15:04"))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		skipped = 0

		frame, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				log.Print("frame source exhausted")
				return
			}
			log.Printf("frame read failed: %v", err)
			continue
		}
		callback(frame)
	}
}

// shutdown flushes everything the pipeline still holds and renders the
// day's heatmap so the artifact survives a restart.
func shutdown(store *db.DB, sink *storeSink, sessions *db.SessionTracker, renderer *render.Renderer, pl *pipeline.Pipeline) {
	sink.Flush()
	if err := sessions.Close(); err != nil {
		log.Printf("session close failed: %v", err)
	}

	stats := pl.Stats()
	log.Printf("final stats: frames=%d detected=%d published=%d gated=%d",
		stats.FramesProcessed, stats.EventsDetected, stats.EventsPublished, stats.EventsGated)

	today := time.Now()
	if _, err := store.RecomputeDailyStats(today); err != nil {
		log.Printf("daily stats rollup failed: %v", err)
	}

	points, err := store.HeatmapPoints(today)
	if err != nil {
		log.Printf("heatmap query failed: %v", err)
		return
	}
	if len(points) == 0 {
		return
	}
	if _, err := renderer.Heatmap(points, today.Format("2006-01-02")); err != nil {
		log.Printf("heatmap render failed: %v", err)
	}
}

// loadZones reads zones from the store, seeding from the config on an
// empty table (first run).
func loadZones(store *db.DB, cfg *config.TuningConfig) ([]zones.Zone, error) {
	records, err := store.Zones()
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}
	if len(records) == 0 && len(cfg.Zones) > 0 {
		if err := seedZones(store, cfg); err != nil {
			return nil, err
		}
		if records, err = store.Zones(); err != nil {
			return nil, fmt.Errorf("reload zones: %w", err)
		}
	}

	zoneList := make([]zones.Zone, 0, len(records))
	for _, rec := range records {
		zoneList = append(zoneList, zones.Zone{
			Name:   rec.Name,
			Center: image.Pt(rec.X, rec.Y),
			Radius: rec.Radius,
			Color:  rec.Color,
		})
	}
	return zoneList, nil
}

func detectorSettings(cfg *config.TuningConfig) motion.DetectorSettings {
	settings := motion.DetectorSettings{
		Sensitivity:   cfg.GetMotionSensitivity(),
		MinAreaPx:     cfg.GetMotionMinAreaPx(),
		MaxAreaPx:     cfg.GetMotionMaxAreaPx(),
		HistoryFrames: cfg.GetMotionHistoryFrames(),
		DetectShadows: cfg.GetMotionDetectShadows(),
		MinConfidence: cfg.GetMotionMinConfidence(),
	}
	if roi := cfg.GetMotionROI(); roi != nil {
		r := image.Rect(roi.X, roi.Y, roi.X+roi.W, roi.Y+roi.H)
		settings.ROI = &r
	}
	return settings
}

// frameSource picks the stills directory when replaying, otherwise the
// configured camera stream.
func frameSource(cfg *config.TuningConfig) frames.Source {
	if *replayDir != "" {
		return frames.NewDirSource(frames.DirSettings{
			Dir:       *replayDir,
			FPSTarget: cfg.GetStreamFPSTarget(),
		}, nil)
	}

	url := cfg.GetStreamURL()
	if *streamURL != "" {
		url = *streamURL
	}
	return frames.NewStreamSource(frames.StreamSettings{
		URL:             url,
		Timeout:         cfg.GetStreamTimeout(),
		MaxRetries:      cfg.GetStreamMaxRetries(),
		RetryDelay:      cfg.GetStreamRetryDelay(),
		RetryForever:    cfg.GetStreamRetryForever(),
		FallbackEnabled: cfg.GetStreamFallbackEnabled(),
		FallbackPath:    cfg.GetStreamFallbackPath(),
		FPSTarget:       cfg.GetStreamFPSTarget(),
	}, nil)
}

// Command replay runs the detection pipeline over a directory of stills
// and prints what it finds, for tuning detector and tracker parameters
// against captured footage without a camera or a database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/config"
	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
	"github.com/nocturnal-data/terrarium.report/internal/vision/track"
	"github.com/nocturnal-data/terrarium.report/internal/vision/zones"
)

func main() {
	dir := flag.String("dir", "", "Directory of JPEG/PNG stills to replay")
	configPath := flag.String("config", "", "Tuning config JSON (defaults to built-in values)")
	fps := flag.Float64("fps", 0, "Pace replay at this frame rate (0 = as fast as possible)")
	quiet := flag.Bool("quiet", false, "Suppress per-frame output")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -dir <stills directory> [-config tuning.json]")
		os.Exit(2)
	}
	if *quiet {
		monitoring.SetLogger(func(string, ...interface{}) {})
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	detector := motion.NewDetector(motion.DetectorSettings{
		Sensitivity:   cfg.GetMotionSensitivity(),
		MinAreaPx:     cfg.GetMotionMinAreaPx(),
		MaxAreaPx:     cfg.GetMotionMaxAreaPx(),
		HistoryFrames: cfg.GetMotionHistoryFrames(),
		DetectShadows: cfg.GetMotionDetectShadows(),
		MinConfidence: cfg.GetMotionMinConfidence(),
	}, nil)
	tracker := track.NewTracker(track.TrackerSettings{
		MaxDistancePx:          cfg.GetTrackingMaxDistancePx(),
		StationaryThresholdMin: cfg.GetTrackingStationaryThresholdMin(),
	})

	var classifier *zones.Classifier
	if len(cfg.Zones) > 0 {
		zoneList := make([]zones.Zone, 0, len(cfg.Zones))
		for _, z := range cfg.Zones {
			zoneList = append(zoneList, zones.Zone{
				Name:   z.Name,
				Center: image.Pt(z.X, z.Y),
				Radius: z.Radius,
				Color:  z.Color,
			})
		}
		classifier = zones.NewClassifier(zoneList)
	}

	source := frames.NewDirSource(frames.DirSettings{Dir: *dir, FPSTarget: *fps}, nil)
	defer source.Close()

	ctx := context.Background()
	if err := source.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dir, err)
		os.Exit(1)
	}

	start := time.Now()
	framesRead := 0
	eventsTotal := 0
	clock := timeutil.RealClock{}

	for {
		frame, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "frame read failed: %v\n", err)
			os.Exit(1)
		}
		framesRead++

		now := clock.Now()
		events := detector.DetectMotion(frame)
		tracker.Update(events, now)
		eventsTotal += len(events)

		if *quiet {
			continue
		}
		for _, e := range events {
			zone := ""
			if classifier != nil {
				if name, ok := classifier.ZoneFor(e.Centroid); ok {
					zone = " zone=" + name
				}
			}
			fmt.Printf("frame %d: track #%d at (%d, %d) area=%d conf=%.2f%s\n",
				frame.Seq, e.TrackID, e.Centroid.X, e.Centroid.Y, e.Area, e.Confidence, zone)
		}
	}

	elapsed := time.Since(start)
	ds := detector.Stats()
	ts := tracker.Stats()
	fmt.Printf("\nreplayed %d frames in %s (%.1f fps)\n",
		framesRead, elapsed.Round(time.Millisecond), float64(framesRead)/elapsed.Seconds())
	fmt.Printf("events: %d detected across %d tracks (%d still active)\n",
		eventsTotal, ts.TotalTracks, ts.ActiveTracks)
	fmt.Printf("detector: frames=%d motions=%d\n", ds.FramesProcessed, ds.MotionsDetected)
}

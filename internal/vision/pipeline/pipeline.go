// Package pipeline drives frames through detection, tracking, zone
// classification, and the publication gate, and fans qualifying events out
// to the configured sinks.
package pipeline

import (
	"image"
	"reflect"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
	"github.com/nocturnal-data/terrarium.report/internal/vision/track"
)

// statsInterval spaces the periodic pipeline stats log lines.
const statsInterval = 300 * time.Second

// MotionStage converts one frame into motion events.
type MotionStage interface {
	DetectMotion(frame *frames.Frame) []motion.Event
	Stats() motion.DetectorStats
}

// TrackingStage associates events with persistent identities. Update sets
// each event's TrackID in place and returns this cycle's active tracks.
type TrackingStage interface {
	Update(events []motion.Event, now time.Time) []*track.TrackedObject
	Stats() track.TrackerStats
}

// ZoneStage resolves a position to a named zone.
type ZoneStage interface {
	ZoneFor(p image.Point) (string, bool)
}

// PublishGate decides whether this cycle's events may leave the pipeline.
type PublishGate interface {
	ShouldPublish(t time.Time) bool
}

// PersistenceSink receives events bound for storage. Implementations batch
// and flush at their own pace.
type PersistenceSink interface {
	Persist(events []motion.Event, now time.Time)
}

// SnapshotSink receives the frame and its events for annotated stills.
type SnapshotSink interface {
	Capture(frame *frames.Frame, events []motion.Event, now time.Time)
}

// LiveSink receives events for real-time feeds.
type LiveSink interface {
	Broadcast(events []motion.Event)
}

// NotifySink receives events for outbound notification.
type NotifySink interface {
	Publish(events []motion.Event, now time.Time)
}

// isNilInterface reports whether an interface value is nil or wraps a nil
// pointer, the usual Go interface-nil pitfall with optional sinks.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Stats counts what the pipeline has done since construction.
type Stats struct {
	FramesProcessed uint64 `json:"frames_processed"`
	EventsDetected  uint64 `json:"events_detected"`
	EventsPublished uint64 `json:"events_published"`
	EventsGated     uint64 `json:"events_gated"`
}

// Config holds the stages and sinks for one camera feed's pipeline. Detector
// and Tracker are required; the remaining fields are optional and skipped
// when nil (typed-nil pointers included).
type Config struct {
	Detector   MotionStage
	Tracker    TrackingStage
	Classifier ZoneStage
	Gate       PublishGate

	Persistence PersistenceSink
	Snapshots   SnapshotSink
	Live        LiveSink
	Notify      NotifySink

	Clock timeutil.Clock
}

// Pipeline owns the per-feed cycle state. One instance serves exactly one
// frame stream and must not be shared across goroutines.
type Pipeline struct {
	cfg   Config
	clock timeutil.Clock

	framesProcessed uint64
	eventsDetected  uint64
	eventsPublished uint64
	eventsGated     uint64

	lastStatsTime  time.Time
	warnedNilFrame bool
}

// New builds a pipeline from cfg. A nil clock falls back to the real clock.
func New(cfg Config) *Pipeline {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{cfg: cfg, clock: clock, lastStatsTime: clock.Now()}
}

// NewFrameCallback returns the per-frame processing function. Each call runs
// one full cycle: detect, track, classify, gate, fan out. The callback is
// synchronous; the caller requests the next frame only after it returns.
func (p *Pipeline) NewFrameCallback() func(*frames.Frame) {
	return func(frame *frames.Frame) {
		if frame == nil || frame.Gray == nil {
			if !p.warnedNilFrame {
				opsf("[Cycle] Ignoring nil frame from source")
				p.warnedNilFrame = true
			}
			return
		}
		p.framesProcessed++
		now := p.clock.Now()

		events := p.cfg.Detector.DetectMotion(frame)
		p.eventsDetected += uint64(len(events))
		tracef("[Cycle] Frame %d: %d motion events", frame.Seq, len(events))

		active := p.cfg.Tracker.Update(events, now)
		if len(active) > 0 {
			diagf("[Cycle] %d active tracks", len(active))
		}

		if !isNilInterface(p.cfg.Classifier) {
			for i := range events {
				if name, ok := p.cfg.Classifier.ZoneFor(events[i].Centroid); ok {
					events[i].Zone = name
				}
			}
		}

		if len(events) > 0 {
			if !isNilInterface(p.cfg.Gate) && !p.cfg.Gate.ShouldPublish(now) {
				p.eventsGated += uint64(len(events))
				diagf("[Cycle] Gated %d events outside publication window", len(events))
			} else {
				p.eventsPublished += uint64(len(events))
				p.forward(frame, events, now)
			}
		} else if !isNilInterface(p.cfg.Persistence) {
			// An empty cycle still ages the persistence side (open
			// sessions close on idle gaps).
			p.cfg.Persistence.Persist(nil, now)
		}

		if p.clock.Since(p.lastStatsTime) >= statsInterval {
			p.lastStatsTime = now
			p.logStats()
		}
	}
}

func (p *Pipeline) forward(frame *frames.Frame, events []motion.Event, now time.Time) {
	if !isNilInterface(p.cfg.Persistence) {
		p.cfg.Persistence.Persist(events, now)
	}
	if !isNilInterface(p.cfg.Snapshots) {
		p.cfg.Snapshots.Capture(frame, events, now)
	}
	if !isNilInterface(p.cfg.Live) {
		p.cfg.Live.Broadcast(events)
	}
	if !isNilInterface(p.cfg.Notify) {
		p.cfg.Notify.Publish(events, now)
	}
}

func (p *Pipeline) logStats() {
	ds := p.cfg.Detector.Stats()
	ts := p.cfg.Tracker.Stats()
	opsf("[Stats] frames=%d detected=%d published=%d gated=%d tracks=%d active=%d",
		p.framesProcessed, ds.MotionsDetected, p.eventsPublished, p.eventsGated,
		ts.TotalTracks, ts.ActiveTracks)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesProcessed: p.framesProcessed,
		EventsDetected:  p.eventsDetected,
		EventsPublished: p.eventsPublished,
		EventsGated:     p.eventsGated,
	}
}

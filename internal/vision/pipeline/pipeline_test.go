package pipeline

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/frames"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
	"github.com/nocturnal-data/terrarium.report/internal/vision/track"
)

type fakeDetector struct {
	events []motion.Event
	calls  int
}

func (d *fakeDetector) DetectMotion(*frames.Frame) []motion.Event {
	d.calls++
	return d.events
}

func (d *fakeDetector) Stats() motion.DetectorStats {
	return motion.DetectorStats{FramesProcessed: uint64(d.calls)}
}

type fakeTracker struct {
	calls int
}

func (t *fakeTracker) Update(events []motion.Event, now time.Time) []*track.TrackedObject {
	t.calls++
	for i := range events {
		events[i].TrackID = i + 1
	}
	return nil
}

func (t *fakeTracker) Stats() track.TrackerStats { return track.TrackerStats{} }

type fakeClassifier struct{ zone string }

func (c *fakeClassifier) ZoneFor(image.Point) (string, bool) {
	if c.zone == "" {
		return "", false
	}
	return c.zone, true
}

type fakeGate struct{ open bool }

func (g *fakeGate) ShouldPublish(time.Time) bool { return g.open }

type recordingSink struct {
	persisted [][]motion.Event
	broadcast [][]motion.Event
	notified  [][]motion.Event
	captured  int
}

func (s *recordingSink) Persist(events []motion.Event, now time.Time) {
	s.persisted = append(s.persisted, events)
}

func (s *recordingSink) Capture(frame *frames.Frame, events []motion.Event, now time.Time) {
	s.captured++
}

func (s *recordingSink) Broadcast(events []motion.Event) {
	s.broadcast = append(s.broadcast, events)
}

func (s *recordingSink) Publish(events []motion.Event, now time.Time) {
	s.notified = append(s.notified, events)
}

func testFrame(seq uint64) *frames.Frame {
	return &frames.Frame{
		Gray:      image.NewGray(image.Rect(0, 0, 8, 8)),
		Width:     8,
		Height:    8,
		Timestamp: time.Now(),
		Seq:       seq,
	}
}

func TestPipelineForwardsThroughOpenGate(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	detector := &fakeDetector{events: []motion.Event{
		{Centroid: image.Pt(10, 10), Area: 1500, Confidence: 0.5},
	}}

	p := New(Config{
		Detector:    detector,
		Tracker:     &fakeTracker{},
		Classifier:  &fakeClassifier{zone: "warm_hide"},
		Gate:        &fakeGate{open: true},
		Persistence: sink,
		Snapshots:   sink,
		Live:        sink,
		Notify:      sink,
		Clock:       clock,
	})

	p.NewFrameCallback()(testFrame(1))

	require.Len(t, sink.persisted, 1)
	require.Len(t, sink.persisted[0], 1)
	assert.Equal(t, "warm_hide", sink.persisted[0][0].Zone)
	assert.Equal(t, 1, sink.persisted[0][0].TrackID)
	assert.Equal(t, 1, sink.captured)
	assert.Len(t, sink.broadcast, 1)
	assert.Len(t, sink.notified, 1)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.FramesProcessed)
	assert.Equal(t, uint64(1), stats.EventsPublished)
	assert.Equal(t, uint64(0), stats.EventsGated)
}

func TestPipelineGatesOutsideWindow(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	detector := &fakeDetector{events: []motion.Event{
		{Centroid: image.Pt(10, 10), Area: 1500, Confidence: 0.5},
	}}

	p := New(Config{
		Detector:    detector,
		Tracker:     &fakeTracker{},
		Gate:        &fakeGate{open: false},
		Persistence: sink,
		Live:        sink,
		Clock:       clock,
	})

	p.NewFrameCallback()(testFrame(1))

	assert.Empty(t, sink.persisted)
	assert.Empty(t, sink.broadcast)
	assert.Equal(t, uint64(1), p.Stats().EventsGated)
	assert.Equal(t, uint64(0), p.Stats().EventsPublished)
}

func TestPipelineEmptyCycleStillAgesPersistence(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	sink := &recordingSink{}

	p := New(Config{
		Detector:    &fakeDetector{},
		Tracker:     &fakeTracker{},
		Gate:        &fakeGate{open: true},
		Persistence: sink,
		Clock:       clock,
	})

	p.NewFrameCallback()(testFrame(1))

	require.Len(t, sink.persisted, 1)
	assert.Empty(t, sink.persisted[0])
	assert.Equal(t, 0, sink.captured)
}

func TestPipelineSkipsNilFrameAndNilSinks(t *testing.T) {
	t.Parallel()

	detector := &fakeDetector{events: []motion.Event{
		{Centroid: image.Pt(5, 5), Area: 1200, Confidence: 0.4},
	}}
	tracker := &fakeTracker{}

	var nilSink *recordingSink
	p := New(Config{
		Detector:    detector,
		Tracker:     tracker,
		Gate:        &fakeGate{open: true},
		Persistence: nilSink,
		Snapshots:   nilSink,
		Live:        nilSink,
		Notify:      nilSink,
		Clock:       timeutil.NewMockClock(time.Now()),
	})
	cb := p.NewFrameCallback()

	cb(nil)
	assert.Equal(t, 0, detector.calls)

	// Typed-nil sinks must not panic.
	cb(testFrame(1))
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, 1, tracker.calls)
}

func TestPipelineNoGateAlwaysPublishes(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := New(Config{
		Detector: &fakeDetector{events: []motion.Event{
			{Centroid: image.Pt(1, 1), Area: 1100, Confidence: 0.2},
		}},
		Tracker:     &fakeTracker{},
		Persistence: sink,
		Clock:       timeutil.NewMockClock(time.Now()),
	})

	p.NewFrameCallback()(testFrame(1))

	require.Len(t, sink.persisted, 1)
	assert.Len(t, sink.persisted[0], 1)
}

func TestIsNilInterface(t *testing.T) {
	t.Parallel()

	var typedNil *recordingSink
	var iface PersistenceSink = typedNil

	assert.True(t, isNilInterface(nil))
	assert.True(t, isNilInterface(iface))
	assert.False(t, isNilInterface(&recordingSink{}))
}

package track

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

var baseTime = time.Date(2026, 3, 14, 1, 30, 0, 0, time.UTC)

func ev(x, y, area int) motion.Event {
	return motion.Event{Centroid: image.Point{X: x, Y: y}, Area: area}
}

func TestTrackerSpawnsAndMatches(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})

	events := []motion.Event{ev(100, 100, 1500)}
	active := tr.Update(events, baseTime)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].ID)
	assert.Equal(t, 1, events[0].TrackID)

	// A nearby event one cycle later continues the same track.
	events = []motion.Event{ev(120, 110, 1600)}
	active = tr.Update(events, baseTime.Add(500*time.Millisecond))
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].ID)
	assert.Equal(t, 1, events[0].TrackID)
	assert.Len(t, active[0].Positions, 2)
	assert.Equal(t, []int{1500, 1600}, active[0].Areas)
}

func TestTrackerMaxDistanceIsExclusive(t *testing.T) {
	t.Parallel()

	t.Run("at max distance spawns a new track", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
		tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

		events := []motion.Event{ev(200, 100, 1500)}
		tr.Update(events, baseTime.Add(time.Second))
		assert.Equal(t, 2, events[0].TrackID)
	})

	t.Run("just inside max distance matches", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
		tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

		events := []motion.Event{ev(199, 100, 1500)}
		tr.Update(events, baseTime.Add(time.Second))
		assert.Equal(t, 1, events[0].TrackID)
	})
}

func TestTrackerSingleAssignmentPerCycle(t *testing.T) {
	t.Parallel()

	t.Run("one track cannot absorb two events", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
		tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

		// Both events are within range of track 1; only the nearer-scanned
		// first event keeps it, the second spawns track 2.
		events := []motion.Event{ev(110, 100, 1500), ev(90, 100, 1500)}
		tr.Update(events, baseTime.Add(time.Second))
		assert.Equal(t, 1, events[0].TrackID)
		assert.Equal(t, 2, events[1].TrackID)
	})

	t.Run("equidistant tracks: exactly one matches", func(t *testing.T) {
		t.Parallel()
		tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
		tr.Update([]motion.Event{ev(50, 100, 1500), ev(150, 100, 1500)}, baseTime)

		// One event dead center between tracks 1 and 2. The lower id wins
		// the tie; the other track goes inactive but survives.
		events := []motion.Event{ev(100, 100, 1500)}
		active := tr.Update(events, baseTime.Add(time.Second))
		assert.Equal(t, 1, events[0].TrackID)
		require.Len(t, active, 1)
		assert.Equal(t, 1, active[0].ID)
		assert.Equal(t, 2, tr.Stats().TotalTracks)
	})
}

func TestTrackerSpawnsDoNotMatchSameCycle(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})

	// Two events 50px apart with no existing tracks. The second must not
	// latch onto the track the first just created.
	events := []motion.Event{ev(100, 100, 1500), ev(150, 100, 1500)}
	active := tr.Update(events, baseTime)
	assert.Len(t, active, 2)
	assert.Equal(t, 1, events[0].TrackID)
	assert.Equal(t, 2, events[1].TrackID)
}

func TestTrackerIDsNeverReused(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
	tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

	// Age track 1 out, then spawn a fresh track: it must get id 2.
	tr.Update(nil, baseTime.Add(11*time.Second))
	assert.Equal(t, 0, tr.Stats().TotalTracks)

	events := []motion.Event{ev(100, 100, 1500)}
	tr.Update(events, baseTime.Add(12*time.Second))
	assert.Equal(t, 2, events[0].TrackID)
	assert.Equal(t, 3, tr.Stats().NextTrackID)
}

func TestTrackerTimeoutIsStrict(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
	tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

	// Exactly at the timeout the track survives.
	tr.Update(nil, baseTime.Add(10*time.Second))
	assert.Equal(t, 1, tr.Stats().TotalTracks)

	// One instant past it the track is removed.
	tr.Update(nil, baseTime.Add(10*time.Second+time.Nanosecond))
	assert.Equal(t, 0, tr.Stats().TotalTracks)
}

func TestTrackerEmptyUpdateDeactivates(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
	tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)

	active := tr.Update(nil, baseTime.Add(time.Second))
	assert.Empty(t, active)

	stats := tr.Stats()
	assert.Equal(t, 1, stats.TotalTracks)
	assert.Equal(t, 0, stats.ActiveTracks)
}

func TestTrackerStationaryCounting(t *testing.T) {
	t.Parallel()

	// Threshold of 0 minutes means 0 qualifying cycles, so any track with a
	// non-negative counter reports stationary immediately.
	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 0})
	tr.Update([]motion.Event{ev(100, 100, 1500)}, baseTime)
	assert.Len(t, tr.StationaryObjects(), 1)

	tr = NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 1})
	now := baseTime
	tr.Update([]motion.Event{ev(100, 100, 1500)}, now)

	// Sixty sub-threshold moves reach the one-minute threshold.
	for i := 0; i < 60; i++ {
		now = now.Add(time.Second)
		x := 100 + (i%2)*5
		tr.Update([]motion.Event{ev(x, 100, 1500)}, now)
	}
	require.Len(t, tr.StationaryObjects(), 1)
	assert.Equal(t, 1, tr.Stats().StationaryObjects)

	// A single large move resets the counter.
	now = now.Add(time.Second)
	events := []motion.Event{ev(150, 100, 1500)}
	tr.Update(events, now)
	assert.Equal(t, 1, events[0].TrackID)
	assert.Empty(t, tr.StationaryObjects())
}

func TestTrackedObjectHelpers(t *testing.T) {
	t.Parallel()

	t.Run("average position truncates toward zero", func(t *testing.T) {
		t.Parallel()
		obj := &TrackedObject{Positions: []image.Point{{X: 0, Y: 0}, {X: 3, Y: 3}, {X: 5, Y: 5}}}
		assert.Equal(t, image.Point{X: 2, Y: 2}, obj.AveragePosition())
	})

	t.Run("average position of empty history is origin", func(t *testing.T) {
		t.Parallel()
		obj := &TrackedObject{}
		assert.Equal(t, image.Point{}, obj.AveragePosition())
	})

	t.Run("movement distance sums consecutive segments", func(t *testing.T) {
		t.Parallel()
		obj := &TrackedObject{Positions: []image.Point{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 14}}}
		assert.InDelta(t, 15.0, obj.MovementDistance(), 1e-9)
	})

	t.Run("duration spans first to last seen", func(t *testing.T) {
		t.Parallel()
		obj := &TrackedObject{FirstSeen: baseTime, LastSeen: baseTime.Add(42 * time.Second)}
		assert.Equal(t, 42*time.Second, obj.Duration())
	})
}

func TestTrackerDefaults(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: -1, StationaryThresholdMin: -1})
	assert.Equal(t, DefaultMaxDistancePx, tr.maxDistance)
	assert.Equal(t, 5*cyclesPerMinute, tr.stationaryThreshold)
}

func TestTrackerStats(t *testing.T) {
	t.Parallel()

	tr := NewTracker(TrackerSettings{MaxDistancePx: 100, StationaryThresholdMin: 5})
	tr.Update([]motion.Event{ev(100, 100, 1500), ev(400, 400, 2000)}, baseTime)

	stats := tr.Stats()
	assert.Equal(t, TrackerStats{
		TotalTracks:       2,
		ActiveTracks:      2,
		StationaryObjects: 0,
		NextTrackID:       3,
	}, stats)
}

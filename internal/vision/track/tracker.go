// Package track associates per-frame motion events with persistent gecko
// identities using greedy nearest-neighbor matching.
package track

import (
	"image"
	"math"
	"sort"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

const (
	// DefaultMaxDistancePx bounds event-to-track association.
	DefaultMaxDistancePx = 100.0

	// stationaryDistancePx is the per-cycle movement below which a track
	// accumulates stationary credit.
	stationaryDistancePx = 10.0

	// inactiveTimeout removes tracks that have not been matched for this
	// long, regardless of their active flag.
	inactiveTimeout = 10 * time.Second

	// cyclesPerMinute converts the stationary threshold from configured
	// minutes into qualifying update cycles. The counter advances once per
	// processed frame, so the effective wait scales with the frame rate.
	cyclesPerMinute = 60
)

// TrackedObject is one persistent identity across frames. It is owned
// exclusively by the Tracker; callers must treat returned objects as
// read-only snapshots valid until the next Update call.
type TrackedObject struct {
	ID        int
	FirstSeen time.Time
	LastSeen  time.Time

	// Positions and Areas are append-only histories, newest last.
	Positions []image.Point
	Areas     []int

	// Active is recomputed every cycle: true only when the track matched
	// or was created this cycle.
	Active bool

	// StationaryCount is the number of consecutive cycles the track moved
	// less than stationaryDistancePx.
	StationaryCount int
}

func (o *TrackedObject) update(centroid image.Point, area int, now time.Time) {
	o.Positions = append(o.Positions, centroid)
	o.Areas = append(o.Areas, area)
	o.LastSeen = now

	if len(o.Positions) >= 2 {
		prev := o.Positions[len(o.Positions)-2]
		if euclidean(prev, centroid) < stationaryDistancePx {
			o.StationaryCount++
		} else {
			o.StationaryCount = 0
		}
	}
}

// LastPosition returns the most recent centroid.
func (o *TrackedObject) LastPosition() image.Point {
	return o.Positions[len(o.Positions)-1]
}

// AveragePosition returns the mean of all recorded positions.
func (o *TrackedObject) AveragePosition() image.Point {
	if len(o.Positions) == 0 {
		return image.Point{}
	}
	var sx, sy int64
	for _, p := range o.Positions {
		sx += int64(p.X)
		sy += int64(p.Y)
	}
	n := int64(len(o.Positions))
	return image.Point{X: int(sx / n), Y: int(sy / n)}
}

// MovementDistance returns the total path length across the position
// history.
func (o *TrackedObject) MovementDistance() float64 {
	total := 0.0
	for i := 1; i < len(o.Positions); i++ {
		total += euclidean(o.Positions[i-1], o.Positions[i])
	}
	return total
}

// Duration returns how long the track has been observed.
func (o *TrackedObject) Duration() time.Duration {
	return o.LastSeen.Sub(o.FirstSeen)
}

// IsStationary reports whether the track has accumulated at least
// threshold consecutive low-movement cycles.
func (o *TrackedObject) IsStationary(threshold int) bool {
	return o.StationaryCount >= threshold
}

// TrackerSettings configure a Tracker.
type TrackerSettings struct {
	// MaxDistancePx is the greatest centroid distance at which an event
	// still associates with an existing track.
	MaxDistancePx float64

	// StationaryThresholdMin is the stationary threshold in minutes,
	// converted to update cycles at cyclesPerMinute.
	StationaryThresholdMin int
}

// TrackerStats summarize the tracker's current state.
type TrackerStats struct {
	TotalTracks       int `json:"total_tracks"`
	ActiveTracks      int `json:"active_tracks"`
	StationaryObjects int `json:"stationary_objects"`
	NextTrackID       int `json:"next_track_id"`
}

// Tracker maintains the set of live tracks for a single camera feed. It is
// not safe for concurrent use; the pipeline drives it from one goroutine.
type Tracker struct {
	maxDistance         float64
	stationaryThreshold int

	tracks map[int]*TrackedObject
	nextID int
}

// NewTracker creates a tracker. Non-positive distance and negative
// threshold settings fall back to the defaults.
func NewTracker(settings TrackerSettings) *Tracker {
	if settings.MaxDistancePx <= 0 {
		settings.MaxDistancePx = DefaultMaxDistancePx
	}
	if settings.StationaryThresholdMin < 0 {
		settings.StationaryThresholdMin = 5
	}

	monitoring.Logf("track: tracker initialized: max_distance=%.0f", settings.MaxDistancePx)
	return &Tracker{
		maxDistance:         settings.MaxDistancePx,
		stationaryThreshold: settings.StationaryThresholdMin * cyclesPerMinute,
		tracks:              make(map[int]*TrackedObject),
		nextID:              1,
	}
}

// Update associates this cycle's events with existing tracks, spawns tracks
// for unmatched events, ages out stale tracks, and returns the tracks that
// are active this cycle. Matched and spawned events have their TrackID set
// in place.
//
// Matching is greedy in event input order: each event takes the nearest
// still-unmatched track within the max distance, scanning tracks in
// ascending id order so runs are reproducible. A track matches at most one
// event per cycle and an event matches at most one track. Tracks spawned
// this cycle do not participate in this cycle's matching.
func (t *Tracker) Update(events []motion.Event, now time.Time) []*TrackedObject {
	for _, obj := range t.tracks {
		obj.Active = false
	}

	ids := t.sortedIDs()
	matched := make(map[int]bool, len(events))
	var unmatched []int

	for i := range events {
		bestID := 0
		bestDist := math.Inf(1)
		for _, id := range ids {
			if matched[id] {
				continue
			}
			obj := t.tracks[id]
			if len(obj.Positions) == 0 {
				continue
			}
			d := euclidean(events[i].Centroid, obj.LastPosition())
			if d < t.maxDistance && d < bestDist {
				bestDist = d
				bestID = id
			}
		}

		if bestID != 0 {
			obj := t.tracks[bestID]
			obj.update(events[i].Centroid, events[i].Area, now)
			obj.Active = true
			matched[bestID] = true
			events[i].TrackID = bestID
		} else {
			unmatched = append(unmatched, i)
		}
	}

	for _, i := range unmatched {
		id := t.nextID
		t.nextID++
		t.tracks[id] = &TrackedObject{
			ID:        id,
			FirstSeen: now,
			LastSeen:  now,
			Positions: []image.Point{events[i].Centroid},
			Areas:     []int{events[i].Area},
			Active:    true,
		}
		events[i].TrackID = id
	}

	t.removeStale(now)

	return t.ActiveTracks()
}

func (t *Tracker) removeStale(now time.Time) {
	for id, obj := range t.tracks {
		if now.Sub(obj.LastSeen) > inactiveTimeout {
			delete(t.tracks, id)
			monitoring.Logf("track: removed inactive track %d", id)
		}
	}
}

// ActiveTracks returns the tracks matched or created this cycle, in
// ascending id order.
func (t *Tracker) ActiveTracks() []*TrackedObject {
	var out []*TrackedObject
	for _, id := range t.sortedIDs() {
		if t.tracks[id].Active {
			out = append(out, t.tracks[id])
		}
	}
	return out
}

// StationaryObjects returns the active tracks that have been stationary for
// the configured threshold.
func (t *Tracker) StationaryObjects() []*TrackedObject {
	var out []*TrackedObject
	for _, id := range t.sortedIDs() {
		obj := t.tracks[id]
		if obj.Active && obj.IsStationary(t.stationaryThreshold) {
			out = append(out, obj)
		}
	}
	return out
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() TrackerStats {
	return TrackerStats{
		TotalTracks:       len(t.tracks),
		ActiveTracks:      len(t.ActiveTracks()),
		StationaryObjects: len(t.StationaryObjects()),
		NextTrackID:       t.nextID,
	}
}

func (t *Tracker) sortedIDs() []int {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func euclidean(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Package zones classifies enclosure positions against named circular
// regions such as hides, the water dish, and the basking ledge.
package zones

import (
	"image"
	"math"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// Unknown is the aggregate bucket for positions outside every zone. It is
// a reporting label, never a zone identity.
const Unknown = "Unknown"

// Zone is an immutable circular region of the camera frame.
type Zone struct {
	Name   string
	Center image.Point
	Radius int

	// Color is the display color in "[r, g, b]" form, carried through from
	// configuration for renderers.
	Color string
}

// Contains reports whether p lies inside the zone, boundary inclusive.
func (z Zone) Contains(p image.Point) bool {
	dx := float64(p.X - z.Center.X)
	dy := float64(p.Y - z.Center.Y)
	return math.Hypot(dx, dy) <= float64(z.Radius)
}

// Classifier resolves positions to zone names. It holds a read-only
// snapshot of the zone list taken at construction and is safe for
// concurrent readers.
type Classifier struct {
	zones []Zone
}

// NewClassifier builds a classifier over the given zones. Zone order is
// significant: the first containing zone wins.
func NewClassifier(zs []Zone) *Classifier {
	snapshot := make([]Zone, len(zs))
	copy(snapshot, zs)
	monitoring.Logf("zones: classifier initialized with %d zones", len(snapshot))
	return &Classifier{zones: snapshot}
}

// ZoneFor returns the name of the first zone containing p, or ("", false)
// when no zone matches.
func (c *Classifier) ZoneFor(p image.Point) (string, bool) {
	for _, z := range c.zones {
		if z.Contains(p) {
			return z.Name, true
		}
	}
	return "", false
}

// CountByZone counts how many of the given points fall in each zone. The
// result always carries every zone name plus the Unknown bucket, zeroed
// when unvisited.
func (c *Classifier) CountByZone(points []image.Point) map[string]int {
	counts := make(map[string]int, len(c.zones)+1)
	for _, z := range c.zones {
		counts[z.Name] = 0
	}
	counts[Unknown] = 0

	for _, p := range points {
		if name, ok := c.ZoneFor(p); ok {
			counts[name]++
		} else {
			counts[Unknown]++
		}
	}
	return counts
}

// MostVisited returns the zone with the highest occupancy over the given
// points. The Unknown bucket never wins, even when it holds the numeric
// maximum. Ties resolve to the earlier-configured zone, so with no points
// at all the first zone is reported. Returns ("", false) only when the
// classifier has no zones.
func (c *Classifier) MostVisited(points []image.Point) (string, bool) {
	if len(c.zones) == 0 {
		return "", false
	}

	counts := c.CountByZone(points)
	best := ""
	bestCount := -1
	for _, z := range c.zones {
		if counts[z.Name] > bestCount {
			best = z.Name
			bestCount = counts[z.Name]
		}
	}
	return best, true
}

// Package gate decides whether motion events may be published downstream,
// suppressing daytime triggers such as shadows, feeding, and passers-by.
package gate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
)

// Fallback window start applied when a configured time fails to parse.
const (
	fallbackHour   = 22
	fallbackMinute = 0
)

// Settings configure a PublishGate. Start and end are clock times in
// "HH:MM" form; a bare hour like "6" is accepted as "6:00".
type Settings struct {
	Enabled     bool
	ActiveStart string
	ActiveEnd   string
}

// Window describes the effective publication window for status reporting.
// Start and end are normalized "HH:MM" strings after fallback handling.
type Window struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// PublishGate is a time-of-day predicate over publication decisions. It is
// stateless after construction and safe for concurrent use.
type PublishGate struct {
	enabled     bool
	startHour   int
	startMinute int
	endHour     int
	endMinute   int
}

// NewPublishGate builds a gate from the given settings. Unparseable or
// out-of-range times fall back to 22:00 with a logged warning; construction
// never fails.
func NewPublishGate(s Settings) *PublishGate {
	g := &PublishGate{enabled: s.Enabled}
	g.startHour, g.startMinute = parseClockOrFallback(s.ActiveStart)
	g.endHour, g.endMinute = parseClockOrFallback(s.ActiveEnd)

	monitoring.Logf("gate: publish filter initialized enabled=%t window=%02d:%02d-%02d:%02d",
		g.enabled, g.startHour, g.startMinute, g.endHour, g.endMinute)
	return g
}

func parseClockOrFallback(s string) (int, int) {
	h, m, err := parseClock(s)
	if err != nil {
		monitoring.Logf("gate: failed to parse time %q: %v; using default 22:00", s, err)
		return fallbackHour, fallbackMinute
	}
	return h, m
}

// parseClock parses "HH:MM" or a bare hour. Segments past the minute are
// ignored.
func parseClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad hour: %w", err)
	}
	minute := 0
	if len(parts) > 1 {
		minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("bad minute: %w", err)
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("components out of range: hour=%d minute=%d", hour, minute)
	}
	return hour, minute, nil
}

// ShouldPublish reports whether t falls inside the active window. The start
// is inclusive and the end exclusive; seconds are ignored. A window whose
// start is later than its end wraps midnight. A disabled gate always
// reports true.
func (g *PublishGate) ShouldPublish(t time.Time) bool {
	if !g.enabled {
		return true
	}

	current := t.Hour()*60 + t.Minute()
	start := g.startHour*60 + g.startMinute
	end := g.endHour*60 + g.endMinute

	if start > end {
		return current >= start || current < end
	}
	return current >= start && current < end
}

// NextActiveTime returns the next instant the window opens, truncated to
// the minute; when t is already inside the window it returns t itself
// truncated. A disabled gate returns t unchanged.
func (g *PublishGate) NextActiveTime(t time.Time) time.Time {
	if !g.enabled {
		return t
	}

	year, month, day := t.Date()
	current := time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, t.Location())
	if g.ShouldPublish(current) {
		return current
	}

	next := time.Date(year, month, day, g.startHour, g.startMinute, 0, 0, t.Location())
	if !next.After(current) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Window reports the effective gate configuration.
func (g *PublishGate) Window() Window {
	return Window{
		Enabled: g.enabled,
		Start:   fmt.Sprintf("%02d:%02d", g.startHour, g.startMinute),
		End:     fmt.Sprintf("%02d:%02d", g.endHour, g.endMinute),
	}
}

// Package notify posts detection notifications to a TerrariumPI-compatible
// webhook endpoint.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/httputil"
	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/timeutil"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

// legacyMessageID is the pre-configured message template used by the
// fallback endpoint on TerrariumPI installations without webhook support.
const legacyMessageID = "d93a467a37dad33b55b2c816e48554cf"

// Settings configure a Notifier.
type Settings struct {
	// BaseURL is the TerrariumPI service root.
	BaseURL string

	// Cooldown is the minimum spacing between any two notifications.
	Cooldown time.Duration

	// TrackCooldown is the minimum spacing between notifications for the
	// same track id.
	TrackCooldown time.Duration

	// MinConfidence drops events below this detection confidence.
	MinConfidence float64
}

// payload is the webhook request body.
type payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Notifier rate-limits and posts detection notifications. All rate state
// lives on the instance. Send failures are logged and never propagate;
// a lost notification must not stall the pipeline.
type Notifier struct {
	settings Settings
	client   httputil.HTTPClient
	clock    timeutil.Clock

	lastSent  time.Time
	lastTrack map[int]time.Time
	sent      uint64
}

// NewNotifier builds a Notifier. Nil client and clock fall back to the
// default HTTP client and real clock; zero settings fall back to the
// documented defaults.
func NewNotifier(settings Settings, client httputil.HTTPClient, clock timeutil.Clock) *Notifier {
	if settings.BaseURL == "" {
		settings.BaseURL = "http://localhost:8090"
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 300 * time.Second
	}
	if settings.TrackCooldown <= 0 {
		settings.TrackCooldown = 25 * time.Second
	}
	if settings.MinConfidence <= 0 {
		settings.MinConfidence = 0.35
	}
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second})
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Notifier{
		settings:  settings,
		client:    client,
		clock:     clock,
		lastTrack: make(map[int]time.Time),
	}
}

// Publish sends at most one notification for the cycle's events, choosing
// the first event that clears the confidence floor and both cooldowns.
func (n *Notifier) Publish(events []motion.Event, now time.Time) {
	for _, e := range events {
		if e.Confidence < n.settings.MinConfidence {
			continue
		}
		if !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.settings.Cooldown {
			continue
		}
		if last, ok := n.lastTrack[e.TrackID]; ok && now.Sub(last) < n.settings.TrackCooldown {
			continue
		}

		if err := n.send(e); err != nil {
			monitoring.Logf("notify: send failed: %v", err)
			return
		}
		n.lastSent = now
		n.lastTrack[e.TrackID] = now
		n.sent++
		return
	}
}

// Sent reports how many notifications have been delivered.
func (n *Notifier) Sent() uint64 {
	return n.sent
}

func (n *Notifier) send(e motion.Event) error {
	body := payload{
		Title:   "I SAW MARTY!!!!",
		Message: buildMessage(e),
		Type:    "gecko_detection",
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	url := n.settings.BaseURL + "/api/notifications/webhook"
	status, err := n.post(url, data)
	if err != nil {
		return err
	}
	if accepted(status) {
		monitoring.Logf("notify: gecko detection notification sent (zone=%s)", zoneOrGeneral(e.Zone))
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("webhook endpoint returned %d", status)
	}

	// Older TerrariumPI versions have no webhook endpoint; deliver to the
	// pre-configured message template instead.
	legacy := struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}{Title: body.Title, Message: body.Message}
	data, err = json.Marshal(legacy)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	url = n.settings.BaseURL + "/api/notification/messages/" + legacyMessageID
	status, err = n.post(url, data)
	if err != nil {
		return err
	}
	if !accepted(status) {
		return fmt.Errorf("message endpoint returned %d", status)
	}
	monitoring.Logf("notify: gecko detection notification sent via message endpoint (zone=%s)", zoneOrGeneral(e.Zone))
	return nil
}

func (n *Notifier) post(url string, data []byte) (int, error) {
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func accepted(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	}
	return false
}

func buildMessage(e motion.Event) string {
	msg := "Nocturnal Eye motion detection captured activity! 🦎"
	if e.Zone != "" {
		msg += fmt.Sprintf("\nZone: %s", e.Zone)
	}
	if e.Confidence > 0 {
		msg += fmt.Sprintf("\nConfidence: %.1f%%", e.Confidence*100)
	}
	return msg
}

func zoneOrGeneral(zone string) string {
	if zone == "" {
		return "general area"
	}
	return zone
}

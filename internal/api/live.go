package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The dashboard is served from the same daemon but may be proxied.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveDetection is one event on the live feed wire.
type liveDetection struct {
	TrackID    int     `json:"track_id"`
	CentroidX  int     `json:"centroid_x"`
	CentroidY  int     `json:"centroid_y"`
	Area       int     `json:"area"`
	Confidence float64 `json:"confidence"`
	Zone       string  `json:"zone,omitempty"`
}

// liveMessage is the frame broadcast to every connected client.
type liveMessage struct {
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Detections []liveDetection `json:"detections"`
}

// liveClient pairs a connection with the write lock that serializes
// frames to it. The websocket package allows only one concurrent writer
// per connection, and pings from the read pump race broadcasts without it.
type liveClient struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex
}

// write sends one frame under the client's write lock.
func (c *liveClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// LiveHub fans motion events out to websocket clients. Safe for
// concurrent use; Broadcast is called from the pipeline goroutine while
// connections come and go on HTTP goroutines.
type LiveHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*liveClient
}

func NewLiveHub() *LiveHub {
	return &LiveHub{clients: make(map[*websocket.Conn]*liveClient)}
}

// register adds a connection under a fresh id.
func (h *LiveHub) register(conn *websocket.Conn) *liveClient {
	client := &liveClient{conn: conn, id: uuid.NewString()}
	h.mu.Lock()
	h.clients[conn] = client
	count := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("live: client %s connected (%d active)", client.id, count)
	return client
}

// Unregister drops a connection. Safe to call twice.
func (h *LiveHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		monitoring.Logf("live: client %s disconnected (%d active)", client.id, count)
	}
	conn.Close()
}

// ClientCount reports how many clients are connected.
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the cycle's events to every client, marshalling once.
// Clients that fail the write are dropped.
func (h *LiveHub) Broadcast(events []motion.Event) {
	h.mu.RLock()
	empty := len(h.clients) == 0
	h.mu.RUnlock()
	if empty || len(events) == 0 {
		return
	}

	msg := liveMessage{
		Type:       "detections",
		Timestamp:  time.Now(),
		Detections: make([]liveDetection, 0, len(events)),
	}
	for _, e := range events {
		msg.Detections = append(msg.Detections, liveDetection{
			TrackID:    e.TrackID,
			CentroidX:  e.Centroid.X,
			CentroidY:  e.Centroid.Y,
			Area:       e.Area,
			Confidence: e.Confidence,
			Zone:       e.Zone,
		})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		monitoring.Logf("live: marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*liveClient, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(websocket.TextMessage, data); err != nil {
			h.Unregister(client.conn)
		}
	}
}

// ServeLive upgrades the request and holds the connection open until the
// client goes away.
func (h *LiveHub) ServeLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("live: upgrade failed: %v", err)
		return
	}

	client := h.register(conn)
	go h.readPump(client)
}

// readPump drains client messages to process pong/close frames and keeps
// the connection alive with periodic pings.
func (h *LiveHub) readPump(client *liveClient) {
	conn := client.conn
	defer h.Unregister(conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

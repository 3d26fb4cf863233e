package main

import (
	"sync"
	"time"

	"github.com/nocturnal-data/terrarium.report/internal/db"
	"github.com/nocturnal-data/terrarium.report/internal/monitoring"
	"github.com/nocturnal-data/terrarium.report/internal/vision/motion"
)

// defaultFlushThreshold is how many buffered events force a write.
const defaultFlushThreshold = 10

// storeSink buffers published events and writes them to the store in
// batches. It also feeds the session tracker every cycle, including empty
// ones, so idle gaps close open sessions.
type storeSink struct {
	store     *db.DB
	sessions  *db.SessionTracker
	threshold int

	mu    sync.Mutex
	batch []motion.Event
}

func newStoreSink(store *db.DB, sessions *db.SessionTracker, threshold int) *storeSink {
	if threshold <= 0 {
		threshold = defaultFlushThreshold
	}
	return &storeSink{store: store, sessions: sessions, threshold: threshold}
}

// Persist implements the pipeline persistence sink.
func (s *storeSink) Persist(events []motion.Event, now time.Time) {
	if s.sessions != nil {
		if err := s.sessions.Observe(events, now); err != nil {
			monitoring.Logf("sink: session update failed: %v", err)
		}
	}
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	s.batch = append(s.batch, events...)
	full := len(s.batch) >= s.threshold
	s.mu.Unlock()

	if full {
		s.Flush()
	}
}

// Flush writes any buffered events. Failures are logged and the batch is
// dropped; the store never blocks the pipeline.
func (s *storeSink) Flush() {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	n, err := s.store.InsertEventBatch(batch)
	if err != nil {
		monitoring.Logf("sink: batch insert of %d events failed: %v", len(batch), err)
		return
	}
	monitoring.Logf("sink: wrote %d events", n)
}

// Pending reports how many events are buffered.
func (s *storeSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

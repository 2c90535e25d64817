// Package events implements the event store: an append-only,
// retention-bounded log of event records. Writers take a write lock
// only long enough to append and trim; readers copy a stable slice
// under a read lock.
package events

import (
	"sync"

	"fluxflag/internal/constants"
	"fluxflag/internal/logger"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
)

// Retention holds the two clamped retention parameters.
type Retention struct {
	MaxEvents  int
	MaxAgeDays int
}

// ClampRetention applies the [min,max] bounds and defaults from internal/constants,
// used by initialize() to sanitize host-supplied values before they
// reach the store.
func ClampRetention(maxEvents, maxAgeDays int) Retention {
	r := Retention{MaxEvents: maxEvents, MaxAgeDays: maxAgeDays}
	if r.MaxEvents == 0 {
		r.MaxEvents = constants.DefaultMaxEvents
	}
	if r.MaxEvents < constants.MinMaxEvents {
		r.MaxEvents = constants.MinMaxEvents
	}
	if r.MaxEvents > constants.MaxMaxEvents {
		r.MaxEvents = constants.MaxMaxEvents
	}
	if r.MaxAgeDays == 0 {
		r.MaxAgeDays = constants.DefaultMaxAgeDays
	}
	if r.MaxAgeDays < constants.MinMaxAgeDays {
		r.MaxAgeDays = constants.MinMaxAgeDays
	}
	if r.MaxAgeDays > constants.MaxMaxAgeDays {
		r.MaxAgeDays = constants.MaxMaxAgeDays
	}
	return r
}

// Store is the event log. Append, Clear, Restore and SetRetention
// mutate it under the store's own lock; internal/engine calls them from
// its mutation executor, except while initializing, when it restores
// the persisted log and appends first_open directly. Snapshot is safe
// to call from any goroutine and
// never blocks a concurrent Append for longer than a slice copy.
type Store struct {
	mu        sync.RWMutex
	records   []models.EventRecord
	retention Retention
	log       logger.Logger

	// nowMillis is overridable in tests to avoid wall-clock flakiness
	// around the retention age cutoff.
	nowMillis func() int64
}

func New(retention Retention, log logger.Logger, nowMillis func() int64) *Store {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Store{
		retention: retention,
		log:       log,
		nowMillis: nowMillis,
	}
}

func (s *Store) SetRetention(r Retention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = r
	s.trimLocked("retention_updated")
}

// Append enqueues record in insertion order, then enforces retention:
// drop everything older than the age cutoff, then, if still over
// max_events, drop the oldest until 80% of max_events remain (the
// hysteresis ratio in internal/constants).
func (s *Store) Append(record models.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	s.trimLocked("append")
	metrics.SetEventStoreSize(len(s.records))
}

func (s *Store) trimLocked(reason string) {
	before := len(s.records)

	cutoff := s.nowMillis() - int64(s.retention.MaxAgeDays)*86_400_000
	firstFresh := 0
	for firstFresh < len(s.records) && s.records[firstFresh].Timestamp < cutoff {
		firstFresh++
	}
	if firstFresh > 0 {
		s.records = append([]models.EventRecord(nil), s.records[firstFresh:]...)
	}

	if len(s.records) > s.retention.MaxEvents {
		keep := int(float64(s.retention.MaxEvents) * constants.RetentionHysteresisRatio)
		if keep < 1 {
			keep = 1
		}
		drop := len(s.records) - keep
		s.records = append([]models.EventRecord(nil), s.records[drop:]...)
	}

	if len(s.records) != before {
		metrics.IncEventStoreTrim(reason)
		s.log.Debugw("event store trimmed", "reason", reason, "before", before, "after", len(s.records))
	}
}

// Snapshot returns a stable, independently-owned copy of the current
// log for evaluation. Callers never observe a torn write.
func (s *Store) Snapshot() []models.EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear implements clear_event_history: drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	metrics.SetEventStoreSize(0)
}

// Serialize returns the log in a form suitable for the debounced
// persistence writer (internal/persistence).
func (s *Store) Serialize() []models.EventRecord {
	return s.Snapshot()
}

// Restore replaces the log wholesale, used on startup when a
// persisted event log is loaded before the mutation executor starts
// accepting host calls.
func (s *Store) Restore(records []models.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]models.EventRecord(nil), records...)
	s.trimLocked("restore")
	metrics.SetEventStoreSize(len(s.records))
}

package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fluxflag/internal/constants"
	"fluxflag/internal/logger"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
)

// EventLogWriter debounces persistence of the event log: a write fires
// after a 5-second quiet period, or immediately once 10 appends have
// accumulated since the last write, whichever comes first. Persistence
// errors are logged; in-memory state is never blocked on a write.
type EventLogWriter struct {
	store KVStore
	key   string
	log   logger.Logger

	mu             sync.Mutex
	timer          *time.Timer
	pendingAppends int
	closed         bool

	// snapshot returns the current event log to serialize; supplied by
	// the caller so this package doesn't depend on internal/events.
	snapshot func() []models.EventRecord
}

func NewEventLogWriter(store KVStore, key string, log logger.Logger, snapshot func() []models.EventRecord) *EventLogWriter {
	if log == nil {
		log = logger.NopLogger()
	}
	return &EventLogWriter{store: store, key: key, log: log, snapshot: snapshot}
}

// NotifyAppend is called by the engine after every event append. It
// schedules or accelerates the debounced flush.
func (w *EventLogWriter) NotifyAppend() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.pendingAppends++

	if w.pendingAppends >= constants.EventWriteDebounceMaxAppends {
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		go w.flush()
		return
	}

	if w.timer == nil {
		w.timer = time.AfterFunc(constants.EventWriteDebounceQuiet, w.onTimerFire)
	} else {
		w.timer.Reset(constants.EventWriteDebounceQuiet)
	}
}

func (w *EventLogWriter) onTimerFire() {
	w.flush()
}

func (w *EventLogWriter) flush() {
	w.mu.Lock()
	if w.pendingAppends == 0 {
		w.mu.Unlock()
		return
	}
	w.pendingAppends = 0
	w.timer = nil
	w.mu.Unlock()

	start := time.Now()
	body, err := json.Marshal(w.snapshot())
	if err != nil {
		w.log.Errorw("failed to serialize event log", "error", err)
		metrics.IncPersistenceWrite("events", "error")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultFetchTimeout)
	defer cancel()

	if err := w.store.Set(ctx, w.key, body); err != nil {
		w.log.Errorw("failed to persist event log", "error", err)
		metrics.IncPersistenceWrite("events", "error")
		return
	}

	metrics.IncPersistenceWrite("events", "ok")
	metrics.ObservePersistenceWriteDuration("events", time.Since(start))
}

// Flush writes synchronously right away if any appends are pending
// (with none pending it writes nothing), used on graceful shutdown so
// no pending appends are lost.
func (w *EventLogWriter) Flush() {
	w.flush()
}

// Close stops the debounce timer and performs a final flush.
func (w *EventLogWriter) Close() {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	w.flush()
}

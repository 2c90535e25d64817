package lifecycle

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"fluxflag/internal/constants"
	"fluxflag/internal/logger"
	"fluxflag/pkg/errors"
)

// Callbacks let internal/engine own installation semantics while
// Manager owns scheduling, jitter, and single-flight collapsing.
type Callbacks struct {
	// InstalledHash returns the content hash of the currently installed
	// rule set, or "" if none is installed yet.
	InstalledHash func() string
	// Install parses and installs a newly fetched immutable document.
	// A parse failure must leave the previous rule set installed; the
	// caller (internal/engine, via internal/ruleset.Parse) is
	// responsible for that.
	Install func(ctx context.Context, body []byte) error
	// TouchCacheTimestamp refreshes the persisted cache timestamp on a
	// cache-hit pointer check.
	TouchCacheTimestamp func(ctx context.Context)
	// SetCountry populates the device-property country key from the
	// pointer response's Country header.
	SetCountry func(country string)
	// OnReady fires once a rule set (cached or freshly installed) is
	// available for evaluation.
	OnReady func()
}

// Manager drives the fetch/poll loop: conditional-GET pointer checks
// on a timer, single-flight refreshes, and poll-interval management.
type Manager struct {
	fetcher *Fetcher
	cb      Callbacks
	log     logger.Logger

	pollInterval atomic.Int64 // nanoseconds
	stop         chan struct{}
	stopped      sync.Once

	refreshMu   sync.Mutex
	inFlight    *inflightRefresh
}

type inflightRefresh struct {
	done chan struct{}
	err  error
}

func NewManager(fetcher *Fetcher, cb Callbacks, initialPollInterval time.Duration, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NopLogger()
	}
	m := &Manager{
		fetcher: fetcher,
		cb:      cb,
		log:     log,
		stop:    make(chan struct{}),
	}
	m.pollInterval.Store(int64(clampPollInterval(initialPollInterval)))
	return m
}

func clampPollInterval(d time.Duration) time.Duration {
	if d == 0 {
		return constants.DefaultPollInterval
	}
	if d < constants.MinPollInterval {
		return constants.MinPollInterval
	}
	if d > constants.MaxPollInterval {
		return constants.MaxPollInterval
	}
	return d
}

func (m *Manager) PollInterval() time.Duration {
	return time.Duration(m.pollInterval.Load())
}

// raisePollInterval never lowers the interval: if the pointer document
// carries min_poll_interval_secs, the local poll interval is raised to
// that value, never lowered.
func (m *Manager) raisePollInterval(secs int) {
	if secs <= 0 {
		return
	}
	candidate := clampPollInterval(time.Duration(secs) * time.Second)
	for {
		current := time.Duration(m.pollInterval.Load())
		if candidate <= current {
			return
		}
		if m.pollInterval.CompareAndSwap(int64(current), int64(candidate)) {
			return
		}
	}
}

// Refresh performs one fetch cycle. Concurrent callers collapse onto
// a single in-flight attempt.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	if m.inFlight != nil {
		inFlight := m.inFlight
		m.refreshMu.Unlock()
		<-inFlight.done
		return inFlight.err
	}

	inFlight := &inflightRefresh{done: make(chan struct{})}
	m.inFlight = inFlight
	m.refreshMu.Unlock()

	err := m.doRefresh(ctx)

	m.refreshMu.Lock()
	inFlight.err = err
	m.inFlight = nil
	m.refreshMu.Unlock()
	close(inFlight.done)

	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	pointer, country, err := m.fetcher.FetchPointer(ctx)
	if err != nil {
		m.log.Warnw("pointer fetch failed, keeping installed rule set", "error", err)
		if m.cb.InstalledHash() != "" && m.cb.OnReady != nil {
			m.cb.OnReady()
		}
		return err
	}

	if country != "" && m.cb.SetCountry != nil {
		m.cb.SetCountry(country)
	}

	m.raisePollInterval(pointer.MinPollIntervalSecs)

	if pointer.Version == m.cb.InstalledHash() {
		if m.cb.TouchCacheTimestamp != nil {
			m.cb.TouchCacheTimestamp(ctx)
		}
		if m.cb.OnReady != nil {
			m.cb.OnReady()
		}
		return nil
	}

	path := pointer.Path
	if path == "" {
		path = "/rules/" + pointer.Version
	}

	body, err := m.fetcher.FetchImmutable(ctx, path)
	if err != nil {
		m.log.Warnw("immutable document fetch failed, keeping installed rule set", "error", err)
		if m.cb.InstalledHash() != "" && m.cb.OnReady != nil {
			m.cb.OnReady()
		}
		return err
	}

	if err := m.cb.Install(ctx, body); err != nil {
		if errors.IsParse(err) {
			m.log.Warnw("rule document parse failed, keeping previously installed rule set", "error", err)
		}
		return err
	}

	if m.cb.OnReady != nil {
		m.cb.OnReady()
	}
	return nil
}

// StartAutoRefresh runs Refresh at the configured interval, jittered
// by ±10% per tick to avoid thundering herd. It returns immediately;
// stop the loop with Stop.
func (m *Manager) StartAutoRefresh(ctx context.Context) {
	go func() {
		for {
			interval := m.PollInterval()
			jitterRange := float64(interval) * constants.PollJitterFraction
			jitter := time.Duration(rand.Float64()*2*jitterRange - jitterRange)
			wait := interval + jitter
			if wait < 0 {
				wait = interval
			}

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				if err := m.Refresh(ctx); err != nil {
					m.log.Warnw("auto-refresh cycle failed", "error", err)
				}
			case <-m.stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

func (m *Manager) Stop() {
	m.stopped.Do(func() { close(m.stop) })
}

// Package features implements the feature table and listener
// registry: re-evaluating every feature against the active rule set,
// diffing against the previous values, and notifying registered
// listeners off any internal lock.
package features

import (
	"sync"

	"github.com/google/uuid"

	"fluxflag/internal/condition"
	"fluxflag/internal/logger"
	"fluxflag/internal/ruleset"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
)

// Value is a feature's current value; Present distinguishes an
// explicit empty string from "no rule matched".
type Value struct {
	Value   string
	Present bool
}

// Listener is invoked with (feature-name, new-value) for every commit
// that changes that feature's value.
type Listener func(feature string, value Value)

type registration struct {
	token   string
	feature string
	fn      Listener
}

// Table holds the current feature->value map and the listener
// registry. Re-evaluation and mutation are expected to happen only
// from the engine's mutation executor; listener dispatch happens
// after the lock is released so a slow callback never blocks a
// concurrent read.
type Table struct {
	mu     sync.RWMutex
	values map[string]Value

	listenersMu sync.Mutex
	listeners   []registration

	eval *condition.Evaluator
	log  logger.Logger
}

func New(eval *condition.Evaluator, log logger.Logger) *Table {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Table{
		values: make(map[string]Value),
		eval:   eval,
		log:    log,
	}
}

// Reevaluate walks the feature->rules index, computes the new value
// for every feature, diffs against the previous table, updates the
// table under lock, and returns the changed feature values so the
// caller can dispatch notifications off-lock.
func (t *Table) Reevaluate(rs *ruleset.RuleSet, events []models.EventRecord, userProps, deviceProps map[string]string, nowMillis int64) map[string]Value {
	next := make(map[string]Value, len(rs.FeatureIndex))

	for feature, entries := range rs.FeatureIndex {
		next[feature] = t.firstMatch(entries, events, userProps, deviceProps, nowMillis, feature)
	}

	t.mu.Lock()
	changed := make(map[string]Value)
	for feature, v := range next {
		if prev, ok := t.values[feature]; !ok || prev != v {
			changed[feature] = v
		}
	}
	for feature, prev := range t.values {
		if _, stillTracked := next[feature]; !stillTracked && prev.Present {
			changed[feature] = Value{}
		}
	}
	t.values = next
	t.mu.Unlock()

	for feature := range changed {
		metrics.IncFeatureValueChange(feature)
	}

	return changed
}

func (t *Table) firstMatch(entries []models.RuleEntry, events []models.EventRecord, userProps, deviceProps map[string]string, nowMillis int64, feature string) Value {
	for _, entry := range entries {
		if t.eval.EvaluateRule(entry.Conditions, events, userProps, deviceProps, nowMillis) {
			metrics.IncEvaluationPass(feature, "matched")
			return Value{Value: entry.Value, Present: true}
		}
	}
	metrics.IncEvaluationPass(feature, "no_match")
	return Value{}
}

func (t *Table) Get(feature string) Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[feature]
}

// All returns a stable snapshot of every currently tracked feature
// value, used by the admin API's feature listing endpoint.
func (t *Table) All() map[string]Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Value, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// ResetFeature clears the cached value for a single feature and
// returns the value that was cleared. It does not recompute the
// feature from the current rule set: that recomputation would
// immediately re-match against events/properties that never stopped
// being true and restore the same value, so the feature would never
// actually go absent. The feature only re-arms on the next genuine
// mutation (a new event, property change, or rule install), which
// drives its own full Reevaluate pass.
func (t *Table) ResetFeature(feature string) Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.values[feature]
	delete(t.values, feature)
	return prev
}

// ResetAll clears every cached value and returns the values that were
// cleared, for the same reason ResetFeature does not recompute.
func (t *Table) ResetAll() map[string]Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.values
	t.values = make(map[string]Value)
	return prev
}

// AddListener registers fn for notifications about feature and
// returns an opaque removal token.
func (t *Table) AddListener(feature string, fn Listener) string {
	token := uuid.NewString()

	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, registration{token: token, feature: feature, fn: fn})
	return token
}

// RemoveAllListeners removes every registration for feature.
func (t *Table) RemoveAllListeners(feature string) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	kept := t.listeners[:0]
	for _, r := range t.listeners {
		if r.feature != feature {
			kept = append(kept, r)
		}
	}
	t.listeners = kept
}

func (t *Table) RemoveListener(token string) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	kept := t.listeners[:0]
	for _, r := range t.listeners {
		if r.token != token {
			kept = append(kept, r)
		}
	}
	t.listeners = kept
}

func (t *Table) ClearAllListeners() {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = nil
}

// Notify dispatches changed feature values to every matching
// listener. Callers must invoke this after releasing any internal
// lock: listeners must never be called while internal locks are held.
func (t *Table) Notify(changed map[string]Value) {
	if len(changed) == 0 {
		return
	}

	t.listenersMu.Lock()
	listeners := make([]registration, len(t.listeners))
	copy(listeners, t.listeners)
	t.listenersMu.Unlock()

	for feature, value := range changed {
		for _, r := range listeners {
			if r.feature != feature {
				continue
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						metrics.IncListenerNotification("panicked")
						t.log.Errorw("listener panicked", "feature", feature, "recover", rec)
					}
				}()
				r.fn(feature, value)
				metrics.IncListenerNotification("delivered")
			}()
		}
	}
}

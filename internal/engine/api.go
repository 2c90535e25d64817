package engine

import (
	"context"
	"strings"

	"fluxflag/internal/constants"
	"fluxflag/internal/features"
	"fluxflag/pkg/models"
)

// AllFeatureValues returns every currently tracked feature value, for
// the admin API's feature-listing endpoint.
func (e *Engine) AllFeatureValues() map[string]features.Value {
	return e.table.All()
}

// RuleHistory returns the install-history trail for this engine's
// (company, tenant, environment), for the admin API's history
// endpoint. Returns an empty slice, not an error, if audit persistence
// is disabled.
func (e *Engine) RuleHistory(ctx context.Context, limit int) ([]models.LifecycleEvent, error) {
	events, err := e.recorder.History(ctx, e.company, e.tenant, e.environment, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.LifecycleEvent{}
	}
	return events, nil
}

// LogEvent implements log_event(name, parameters?). Appends to the
// event store, schedules the debounced persistence write, reports the
// event name to the schema-discovery sink, and re-evaluates every
// feature so any newly-satisfied rule fires immediately.
func (e *Engine) LogEvent(name string, parameters map[string]string) {
	e.execute(func() {
		e.store.Append(models.EventRecord{
			Name:       name,
			Timestamp:  e.nowMillis(),
			Parameters: parameters,
		})
		if e.eventWriter != nil {
			e.eventWriter.NotifyAppend()
		}
		e.reporter.ReportEventName(name)
		e.reevaluateAndNotify()
	})
}

// GetEventHistory returns a stable snapshot of the event log in call
// order.
func (e *Engine) GetEventHistory() []models.EventRecord {
	return e.store.Snapshot()
}

// ClearEventHistory implements clear_event_history().
func (e *Engine) ClearEventHistory() {
	e.execute(func() {
		e.store.Clear()
		e.reevaluateAndNotify()
	})
}

// SetUserProperty implements set_user_property(k, v).
func (e *Engine) SetUserProperty(key, value string) {
	e.execute(func() {
		e.bags.User.Set(key, value)
		e.reporter.ReportUserPropertyKey(key)
		e.reevaluateAndNotify()
	})
}

// RemoveUserProperty implements remove_user_property(k).
func (e *Engine) RemoveUserProperty(key string) {
	e.execute(func() {
		e.bags.User.Remove(key)
		e.reevaluateAndNotify()
	})
}

// SetDeviceProperty implements set_device_property(k, v).
func (e *Engine) SetDeviceProperty(key, value string) {
	e.execute(func() {
		e.bags.Device.Set(key, value)
		e.reporter.ReportDevicePropertyKey(key)
		e.reevaluateAndNotify()
	})
}

// RemoveDeviceProperty implements remove_device_property(k).
func (e *Engine) RemoveDeviceProperty(key string) {
	e.execute(func() {
		e.bags.Device.Remove(key)
		e.reevaluateAndNotify()
	})
}

// GetFeatureValue implements get_feature_value(name) -> string?. The
// bool return distinguishes "absent" from an explicit empty string.
func (e *Engine) GetFeatureValue(name string) (string, bool) {
	v := e.table.Get(name)
	return v.Value, v.Present
}

// IsFeatureEnabled implements is_feature_enabled(name) -> bool.
func (e *Engine) IsFeatureEnabled(name string) bool {
	v := e.table.Get(name)
	if !v.Present {
		return false
	}
	return constants.FeatureTruthyValues[strings.ToLower(v.Value)]
}

// ResetFeature implements reset_feature(name): clears the cached value
// and leaves it absent. The next event, property change, or rule
// install re-arms it by recomputing from scratch.
func (e *Engine) ResetFeature(name string) {
	e.execute(func() {
		prev := e.table.ResetFeature(name)
		if prev.Present {
			e.table.Notify(map[string]features.Value{name: {}})
		}
	})
}

// ResetAllFeatures implements reset_all_features().
func (e *Engine) ResetAllFeatures() {
	e.execute(func() {
		prev := e.table.ResetAll()
		changed := make(map[string]features.Value, len(prev))
		for name, v := range prev {
			if v.Present {
				changed[name] = features.Value{}
			}
		}
		e.table.Notify(changed)
	})
}

// AddListener implements add_listener(feature, callback) -> token.
func (e *Engine) AddListener(feature string, fn features.Listener) string {
	return e.table.AddListener(feature, fn)
}

// RemoveAllListeners implements remove_all_listeners(feature).
func (e *Engine) RemoveAllListeners(feature string) {
	e.table.RemoveAllListeners(feature)
}

// RemoveListener removes a single registration by its token, a
// supplemented convenience alongside remove_all_listeners.
func (e *Engine) RemoveListener(token string) {
	e.table.RemoveListener(token)
}

// ClearAllListeners implements clear_all_listeners().
func (e *Engine) ClearAllListeners() {
	e.table.ClearAllListeners()
}

// RefreshRules implements refresh_rules(). Concurrent callers collapse
// onto a single outbound fetch.
func (e *Engine) RefreshRules(ctx context.Context) error {
	if e.manager == nil {
		return nil
	}
	return e.manager.Refresh(ctx)
}

// ClearCache implements clear_cache(company, tenant, env): drops the
// persisted rule body, hash, and cache timestamp so the next refresh
// re-fetches from scratch regardless of the pointer's version.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.kv == nil {
		return nil
	}
	for _, kind := range []string{constants.KeyKindRulesBody, constants.KeyKindRulesHash, constants.KeyKindRulesCachedAt} {
		if err := e.kv.Delete(ctx, e.key(kind)); err != nil {
			return err
		}
	}
	return nil
}

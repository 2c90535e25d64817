package models

import "time"

// LifecycleEvent records one rule-lifecycle transition for the
// install-history audit trail: a rule-set install, a cache-hit
// refresh, or a fetch failure that left the previous rule set intact.
type LifecycleEvent struct {
	EventType    string    `json:"event_type"`
	RuleHash     string    `json:"rule_hash,omitempty"`
	FeatureCount int       `json:"feature_count,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Detail       string    `json:"detail,omitempty"`
}

const (
	LifecycleEventInstalled    = "rules_installed"
	LifecycleEventCacheHit     = "rules_cache_hit"
	LifecycleEventFetchFailed  = "rules_fetch_failed"
	LifecycleEventParseFailed  = "rules_parse_failed"
	LifecycleEventLocalInstall = "rules_local_install"
)

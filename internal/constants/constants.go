package constants

import "time"

const (
	MinMaxEvents     = 100
	MaxMaxEvents     = 100000
	DefaultMaxEvents = 5000
)

const (
	MinMaxAgeDays     = 1
	MaxMaxAgeDays     = 365
	DefaultMaxAgeDays = 7
)

// RetentionHysteresisRatio is the fraction of max_events kept after an
// over-trim, so the log doesn't re-trim on every single append once it's
// sitting at capacity.
const RetentionHysteresisRatio = 0.8

const (
	MinWithinLastDays = 0
	MaxWithinLastDays = 365
)

const (
	MinPollInterval     = 60 * time.Second
	MaxPollInterval     = 24 * time.Hour
	DefaultPollInterval = 12 * time.Hour
	PollJitterFraction  = 0.10
)

const (
	DefaultFetchTimeout   = 30 * time.Second
	DefaultCountryTimeout = 5 * time.Second
	ShutdownTimeout       = 5 * time.Second
)

const (
	// EventWriteDebounceQuiet is how long the event log waits after the
	// last append before flushing to the persistence backend.
	EventWriteDebounceQuiet = 5 * time.Second
	// EventWriteDebounceMaxAppends forces a flush once this many appends
	// have accumulated since the last write, regardless of quiet period.
	EventWriteDebounceMaxAppends = 10
)

const (
	KeyKindEventsLog       = "events"
	KeyKindRulesBody       = "rules_body"
	KeyKindRulesHash       = "rules_hash"
	KeyKindRulesCachedAt   = "rules_cached_at"
	KeyKindFirstOpen       = "first_open"
	KeyKindDeviceID        = "device_id"
	KeyKindSchemaDiscovery = "schema_discovery"
)

const (
	// SchemaDiscoveryDebounceQuiet is how long the schema-discovery
	// reporter waits after the last newly observed name/key before
	// flushing, mirroring EventWriteDebounceQuiet.
	SchemaDiscoveryDebounceQuiet = 5 * time.Second
	// SchemaDiscoveryDebounceMaxAppends forces a flush once this many
	// new names/keys have accumulated since the last flush.
	SchemaDiscoveryDebounceMaxAppends = 10
)

const DeviceCountryPropertyKey = "country"
const DeviceIDPropertyKey = "device_id"

// FirstOpenEventName is the synthetic event the engine appends to the
// event history the first time it ever initializes for a device,
// gated on the persisted KeyKindFirstOpen flag so it fires once.
const FirstOpenEventName = "first_open"

var FeatureTruthyValues = map[string]bool{
	"true":    true,
	"on":      true,
	"enabled": true,
	"1":       true,
}

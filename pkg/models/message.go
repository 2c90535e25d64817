package models

import (
	"encoding/json"

	"fluxflag/internal/jsonval"
)

// EventRecord is the immutable event triple: an event name, an
// insertion-order monotonic timestamp in wall-clock milliseconds, and
// flat string parameters.
type EventRecord struct {
	Name       string            `json:"name"`
	Timestamp  int64             `json:"timestamp"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ValueOperand is the wire shape of a `{operator, value}` pair used
// throughout the conditions schema: count thresholds, parameter
// predicates, and property condition expectations.
type ValueOperand struct {
	Operator string         `json:"operator"`
	Value    jsonval.Value  `json:"value"`
}

// EventCondition is the wire shape of a single event condition.
type EventCondition struct {
	Key            string                  `json:"key"`
	Operator       string                  `json:"operator,omitempty"`
	Count          *ValueOperand           `json:"count,omitempty"`
	WithinLastDays *int                    `json:"within_last_days,omitempty"`
	Param          map[string]ValueOperand `json:"param,omitempty"`
	Not            bool                    `json:"not,omitempty"`
}

// PropertyCondition is the wire shape of a user/device property
// condition: `{ key, value: {operator, expected}, not }`.
type PropertyCondition struct {
	Key   string       `json:"key"`
	Value ValueOperand `json:"value"`
	Not   bool         `json:"not,omitempty"`
}

const (
	EventsModeSimple   = "simple"
	EventsModeSequence = "sequence"
)

const (
	OrderingDirect   = "direct"
	OrderingIndirect = "indirect"
)

const (
	BoolOperatorAND = "AND"
	BoolOperatorOR  = "OR"
)

// EventsConfig is the wire shape of the `events` conditions block. The
// legacy shape (a bare array of EventCondition) is normalized to
// Mode=simple, Operator=AND by UnmarshalJSON below.
type EventsConfig struct {
	Mode     string           `json:"mode"`
	Operator string           `json:"operator,omitempty"`
	Ordering string           `json:"ordering,omitempty"`
	Events   []EventCondition `json:"events"`
}

// UnmarshalJSON accepts both the canonical object shape
// (`{"mode":"simple","events":[...]}`) and the legacy bare-array shape
// (`[{"key":"x"}, ...]`), normalizing the latter to Mode=simple,
// Operator=AND.
func (e *EventsConfig) UnmarshalJSON(data []byte) error {
	trimmed := trimLeadingSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []EventCondition
		if err := json.Unmarshal(data, &events); err != nil {
			return err
		}
		e.Mode = EventsModeSimple
		e.Operator = BoolOperatorAND
		e.Ordering = ""
		e.Events = events
		return nil
	}

	type eventsConfigAlias EventsConfig
	var alias eventsConfigAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*e = EventsConfig(alias)
	return nil
}

func trimLeadingSpace(data []byte) []byte {
	i := 0
	for i < len(data) {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return data[i:]
}

// RuleConditions is the wire shape of a rule's `conditions` block.
type RuleConditions struct {
	Events                 *EventsConfig       `json:"events,omitempty"`
	UserProperties         []PropertyCondition `json:"user_properties,omitempty"`
	UserPropertiesOperator string              `json:"user_properties_operator,omitempty"`
	Device                 []PropertyCondition `json:"device,omitempty"`
	DeviceOperator         string              `json:"device_operator,omitempty"`
}

// RuleEntry is one candidate `{value, conditions}` entry within a
// feature's ordered rule list.
type RuleEntry struct {
	Value      string         `json:"value"`
	Conditions RuleConditions `json:"conditions"`
}

// RuleDocument is the immutable rule document body: `{ features:
// map<feature-name, [RuleEntry]> }`. Parsing also accepts the legacy
// shape, the feature map at the top level; see internal/ruleset.
type RuleDocument struct {
	Features map[string][]RuleEntry `json:"features"`
}

// PointerDocument is the small polling document fetched on every poll
// tick; its version names the immutable RuleDocument to fetch.
type PointerDocument struct {
	SchemaVersion       string `json:"schema_version,omitempty"`
	Version             string `json:"version"`
	Path                string `json:"path,omitempty"`
	UpdatedAt           string `json:"updated_at,omitempty"`
	FeatureCount        int    `json:"feature_count,omitempty"`
	TTLSecs             int    `json:"ttl_secs,omitempty"`
	MinPollIntervalSecs int    `json:"min_poll_interval_secs,omitempty"`
}

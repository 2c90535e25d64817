// Package ruleset implements the rule set and its four inverted
// indexes: parsing both the canonical and legacy document shapes,
// building the event-name, user-property-key, device-property-key,
// and feature-name indexes, and validating a persisted index bundle
// against a freshly computed content hash.
package ruleset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"fluxflag/pkg/errors"
	"fluxflag/pkg/models"
)

// RuleSet is the parsed, indexed representation of one immutable rule
// document. It is replaced atomically: a new RuleSet is built in full
// before the engine installs it, so readers never observe a partially
// indexed document.
type RuleSet struct {
	Hash     string
	Document models.RuleDocument

	// FeatureIndex is the mandatory index used during evaluation:
	// feature-name -> ordered list of rules.
	FeatureIndex map[string][]models.RuleEntry

	// The following three indexes are built alongside FeatureIndex and
	// can be exported with ToPersistedIndexes; the evaluator does not
	// read them, and nothing outside the tests persists them.
	EventNameIndex     map[string]map[string]struct{}
	UserPropertyIndex  map[string]map[string]struct{}
	DevicePropertyIndex map[string]map[string]struct{}
}

// ContentHash returns the sha256 hex digest of a rule document body's
// raw bytes as received (it is not re-encoded first), used both as the pointer
// document's "version" and as the persisted index-validation hash.
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Parse accepts both document shapes: the canonical `{features: {...}}`
// wrapper, and the legacy shape where the top-level object is already
// the feature map. A parse failure returns a *errors.Error tagged
// ErrParse; the caller (internal/engine) must retain the previously
// installed rule set on any parse failure rather than treating some
// malformed shapes as a soft no-op.
func Parse(body []byte) (*RuleSet, error) {
	var canonical models.RuleDocument
	if err := json.Unmarshal(body, &canonical); err == nil && canonical.Features != nil {
		return build(canonical, body)
	}

	var legacy map[string][]models.RuleEntry
	if err := json.Unmarshal(body, &legacy); err != nil {
		return nil, errors.Wrap(err, errors.ErrParse)
	}

	return build(models.RuleDocument{Features: legacy}, body)
}

func build(doc models.RuleDocument, originalBody []byte) (*RuleSet, error) {
	if err := models.ValidateRuleDocument(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrParse)
	}

	rs := &RuleSet{
		Hash:                ContentHash(originalBody),
		Document:            doc,
		FeatureIndex:        make(map[string][]models.RuleEntry, len(doc.Features)),
		EventNameIndex:      make(map[string]map[string]struct{}),
		UserPropertyIndex:   make(map[string]map[string]struct{}),
		DevicePropertyIndex: make(map[string]map[string]struct{}),
	}

	for feature, entries := range doc.Features {
		rs.FeatureIndex[feature] = entries
		for _, entry := range entries {
			indexEventNames(rs.EventNameIndex, feature, entry.Conditions.Events)
			indexPropertyKeys(rs.UserPropertyIndex, feature, entry.Conditions.UserProperties)
			indexPropertyKeys(rs.DevicePropertyIndex, feature, entry.Conditions.Device)
		}
	}

	return rs, nil
}

func indexEventNames(idx map[string]map[string]struct{}, feature string, cfg *models.EventsConfig) {
	if cfg == nil {
		return
	}
	for _, ec := range cfg.Events {
		addToIndex(idx, ec.Key, feature)
	}
}

func indexPropertyKeys(idx map[string]map[string]struct{}, feature string, conds []models.PropertyCondition) {
	for _, c := range conds {
		addToIndex(idx, c.Key, feature)
	}
}

func addToIndex(idx map[string]map[string]struct{}, key, feature string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[feature] = struct{}{}
}

// PersistedIndexes is the serializable form of the three auxiliary
// indexes, stored alongside the rule body's content hash so a
// restart can validate them without recomputing from scratch.
type PersistedIndexes struct {
	Hash                string                       `json:"hash"`
	EventNameIndex      map[string][]string          `json:"event_name_index"`
	UserPropertyIndex   map[string][]string          `json:"user_property_index"`
	DevicePropertyIndex map[string][]string          `json:"device_property_index"`
}

func (rs *RuleSet) ToPersistedIndexes() PersistedIndexes {
	return PersistedIndexes{
		Hash:                rs.Hash,
		EventNameIndex:      flatten(rs.EventNameIndex),
		UserPropertyIndex:   flatten(rs.UserPropertyIndex),
		DevicePropertyIndex: flatten(rs.DevicePropertyIndex),
	}
}

func flatten(idx map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(idx))
	for k, set := range idx {
		list := make([]string, 0, len(set))
		for feature := range set {
			list = append(list, feature)
		}
		out[k] = list
	}
	return out
}

// ValidatePersistedIndexes reports whether a persisted index bundle's
// hash matches a freshly computed hash of the current rule body; if
// not, the caller must rebuild the indexes from the document instead
// of trusting the persisted copy.
func ValidatePersistedIndexes(persisted PersistedIndexes, currentHash string) bool {
	return persisted.Hash == currentHash
}

package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateRuleDocument performs the structural check parsing alone
// doesn't catch: a document must have at least a features map (which
// may be empty). Feature values are opaque strings, and an explicit
// empty string is a valid, distinct value from "absent" (see
// internal/features.Value's Present/Value split), so it is not
// rejected here.
func ValidateRuleDocument(doc *RuleDocument) error {
	if doc == nil {
		return &ValidationError{Field: "document", Message: "rule document cannot be nil"}
	}

	if doc.Features == nil {
		return &ValidationError{Field: "features", Message: "features map cannot be nil"}
	}

	return nil
}

// SchemaDiscoveryReport is the payload sent to the schema-discovery
// telemetry sink: the set of event names and property keys observed
// since the last report, so operators can build new rules against
// fields their client population is actually emitting.
type SchemaDiscoveryReport struct {
	CompanyID       string   `json:"company_id"`
	TenantID        string   `json:"tenant_id"`
	Environment     string   `json:"environment"`
	EventNames      []string `json:"event_names,omitempty"`
	UserPropertyKeys   []string `json:"user_property_keys,omitempty"`
	DevicePropertyKeys []string `json:"device_property_keys,omitempty"`
	ReportedAtMillis int64  `json:"reported_at_millis"`
}

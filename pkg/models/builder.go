package models

// EventRecordBuilder assembles an EventRecord the way the host's
// log_event call constructs one: a name is required, parameters are
// optional and default to empty, and the timestamp defaults to now if
// never set explicitly (tests set it explicitly to control ordering).
type EventRecordBuilder struct {
	record *EventRecord
}

func NewEventRecordBuilder() *EventRecordBuilder {
	return &EventRecordBuilder{
		record: &EventRecord{
			Parameters: make(map[string]string),
		},
	}
}

func (b *EventRecordBuilder) WithName(name string) *EventRecordBuilder {
	b.record.Name = name
	return b
}

func (b *EventRecordBuilder) WithTimestamp(timestampMillis int64) *EventRecordBuilder {
	b.record.Timestamp = timestampMillis
	return b
}

func (b *EventRecordBuilder) WithParameter(key, value string) *EventRecordBuilder {
	b.record.Parameters[key] = value
	return b
}

func (b *EventRecordBuilder) WithParameters(params map[string]string) *EventRecordBuilder {
	for k, v := range params {
		b.record.Parameters[k] = v
	}
	return b
}

func (b *EventRecordBuilder) Build() *EventRecord {
	return b.record
}

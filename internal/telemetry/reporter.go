// Package telemetry implements the schema-discovery reporter:
// reporting newly observed event names and property keys upstream so
// operators can build rules against fields their client population is
// actually emitting. It is not a targeting input, only a one-way sink.
//
// The reporter writes to Kafka through a dedicated kafka-go writer.
// Its debounce timer mirrors internal/persistence.EventLogWriter: a
// flush fires after a quiet period, or immediately once enough
// names/keys have accumulated, whichever comes first.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"fluxflag/internal/constants"
	"fluxflag/internal/logger"
	"fluxflag/internal/persistence"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
)

// Reporter is the schema-discovery sink contract.
type Reporter interface {
	ReportEventName(name string)
	ReportUserPropertyKey(key string)
	ReportDevicePropertyKey(key string)
	SetScope(ctx context.Context, company, tenant, env string)
	Flush(ctx context.Context, company, tenant, env string) error
	Close() error
}

// NoopReporter discards everything; used when telemetry is disabled.
type NoopReporter struct{}

func (NoopReporter) ReportEventName(string)                              {}
func (NoopReporter) ReportUserPropertyKey(string)                        {}
func (NoopReporter) ReportDevicePropertyKey(string)                      {}
func (NoopReporter) SetScope(context.Context, string, string, string)    {}
func (NoopReporter) Flush(context.Context, string, string, string) error { return nil }
func (NoopReporter) Close() error                                        { return nil }

// schemaDiscoveryState is the persisted shape of the seen-name/seen-key
// sets, stored under a dedicated schema-discovery state key so a
// restart doesn't re-report names already surfaced upstream.
type schemaDiscoveryState struct {
	Events       []string `json:"events"`
	UserProps    []string `json:"user_properties"`
	DeviceProps  []string `json:"device_properties"`
}

// KafkaReporter accumulates newly observed names/keys in memory and
// publishes a SchemaDiscoveryReport to Kafka, debounced the same way
// the event log is: a quiet period after the last report, or a forced
// flush once enough have accumulated. The seen-sets are persisted to
// kv, when provided, so a restart restores dedup state instead of
// re-reporting everything as new.
type KafkaReporter struct {
	writer *kafka.Writer
	log    logger.Logger
	kv     persistence.KVStore

	mu                 sync.Mutex
	seenEvents         map[string]struct{}
	seenUserProps      map[string]struct{}
	seenDeviceProps    map[string]struct{}
	pendingEvents      []string
	pendingUserProps   []string
	pendingDeviceProps []string
	pendingCount       int
	timer              *time.Timer
	closed             bool

	scopeKey    string
	company     string
	tenant      string
	environment string
}

func NewKafkaReporter(brokers []string, topic string, kv persistence.KVStore, log logger.Logger) *KafkaReporter {
	if log == nil {
		log = logger.NopLogger()
	}
	return &KafkaReporter{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		kv:              kv,
		log:             log,
		seenEvents:      make(map[string]struct{}),
		seenUserProps:   make(map[string]struct{}),
		seenDeviceProps: make(map[string]struct{}),
	}
}

// SetScope binds the reporter to a company/tenant/environment, builds
// its persistence key, and restores any previously-seen names/keys so
// they aren't re-reported as new. Called once by the engine during
// Initialize/InitializeLocal, before any Report* call.
func (r *KafkaReporter) SetScope(ctx context.Context, company, tenant, env string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.company, r.tenant, r.environment = company, tenant, env
	r.scopeKey = persistence.Key(company, tenant, env, constants.KeyKindSchemaDiscovery)

	if r.kv == nil {
		return
	}
	body, ok, err := r.kv.Get(ctx, r.scopeKey)
	if err != nil || !ok {
		return
	}
	var state schemaDiscoveryState
	if err := json.Unmarshal(body, &state); err != nil {
		r.log.Warnw("failed to decode persisted schema discovery state", "error", err)
		return
	}
	for _, name := range state.Events {
		r.seenEvents[name] = struct{}{}
	}
	for _, key := range state.UserProps {
		r.seenUserProps[key] = struct{}{}
	}
	for _, key := range state.DeviceProps {
		r.seenDeviceProps[key] = struct{}{}
	}
}

func (r *KafkaReporter) ReportEventName(name string) {
	r.mu.Lock()
	if _, ok := r.seenEvents[name]; ok {
		r.mu.Unlock()
		return
	}
	r.seenEvents[name] = struct{}{}
	r.pendingEvents = append(r.pendingEvents, name)
	r.mu.Unlock()
	r.notify()
}

func (r *KafkaReporter) ReportUserPropertyKey(key string) {
	r.mu.Lock()
	if _, ok := r.seenUserProps[key]; ok {
		r.mu.Unlock()
		return
	}
	r.seenUserProps[key] = struct{}{}
	r.pendingUserProps = append(r.pendingUserProps, key)
	r.mu.Unlock()
	r.notify()
}

func (r *KafkaReporter) ReportDevicePropertyKey(key string) {
	r.mu.Lock()
	if _, ok := r.seenDeviceProps[key]; ok {
		r.mu.Unlock()
		return
	}
	r.seenDeviceProps[key] = struct{}{}
	r.pendingDeviceProps = append(r.pendingDeviceProps, key)
	r.mu.Unlock()
	r.notify()
}

// notify schedules or accelerates the debounced flush, mirroring
// persistence.EventLogWriter.NotifyAppend.
func (r *KafkaReporter) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.pendingCount++

	if r.pendingCount >= constants.SchemaDiscoveryDebounceMaxAppends {
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		go r.autoFlush()
		return
	}

	if r.timer == nil {
		r.timer = time.AfterFunc(constants.SchemaDiscoveryDebounceQuiet, r.autoFlush)
	} else {
		r.timer.Reset(constants.SchemaDiscoveryDebounceQuiet)
	}
}

func (r *KafkaReporter) autoFlush() {
	r.mu.Lock()
	company, tenant, env := r.company, r.tenant, r.environment
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultFetchTimeout)
	defer cancel()

	if err := r.Flush(ctx, company, tenant, env); err != nil {
		r.log.Warnw("debounced schema discovery flush failed", "error", err)
	}
}

func (r *KafkaReporter) Flush(ctx context.Context, company, tenant, env string) error {
	r.mu.Lock()
	r.timer = nil
	r.pendingCount = 0

	if len(r.pendingEvents) == 0 && len(r.pendingUserProps) == 0 && len(r.pendingDeviceProps) == 0 {
		r.mu.Unlock()
		return nil
	}

	report := models.SchemaDiscoveryReport{
		CompanyID:          company,
		TenantID:           tenant,
		Environment:        env,
		EventNames:         r.pendingEvents,
		UserPropertyKeys:   r.pendingUserProps,
		DevicePropertyKeys: r.pendingDeviceProps,
	}
	r.pendingEvents = nil
	r.pendingUserProps = nil
	r.pendingDeviceProps = nil
	r.mu.Unlock()

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	err = r.writer.WriteMessages(ctx, kafka.Message{Value: body})
	if err != nil {
		r.log.Warnw("failed to publish schema discovery report", "error", err)
		return err
	}

	metrics.IncSchemaEventsReported("event_names", len(report.EventNames))
	metrics.IncSchemaEventsReported("user_property_keys", len(report.UserPropertyKeys))
	metrics.IncSchemaEventsReported("device_property_keys", len(report.DevicePropertyKeys))

	r.persistState(ctx)
	return nil
}

func (r *KafkaReporter) persistState(ctx context.Context) {
	if r.kv == nil {
		return
	}

	r.mu.Lock()
	state := schemaDiscoveryState{
		Events:      keys(r.seenEvents),
		UserProps:   keys(r.seenUserProps),
		DeviceProps: keys(r.seenDeviceProps),
	}
	key := r.scopeKey
	r.mu.Unlock()

	if key == "" {
		return
	}
	body, err := json.Marshal(state)
	if err != nil {
		r.log.Warnw("failed to serialize schema discovery state", "error", err)
		return
	}
	if err := r.kv.Set(ctx, key, body); err != nil {
		r.log.Warnw("failed to persist schema discovery state", "error", err)
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (r *KafkaReporter) Close() error {
	r.mu.Lock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	return r.writer.Close()
}

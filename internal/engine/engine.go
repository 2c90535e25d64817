// Package engine owns the rule-evaluation engine's core state and
// exposes the host API. Mutations are serialized through a
// single-writer executor: a goroutine draining a channel of closures,
// while reads go directly against the RWMutex-guarded snapshots each
// component already exposes. Timers (internal/lifecycle's
// auto-refresh) and network callbacks enqueue onto this same executor
// rather than mutating state from their own goroutines.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fluxflag/internal/audit"
	"fluxflag/internal/compare"
	"fluxflag/internal/condition"
	"fluxflag/internal/constants"
	"fluxflag/internal/events"
	"fluxflag/internal/features"
	"fluxflag/internal/lifecycle"
	"fluxflag/internal/logger"
	"fluxflag/internal/persistence"
	"fluxflag/internal/properties"
	"fluxflag/internal/ruleset"
	"fluxflag/internal/telemetry"
	"fluxflag/pkg/circuitbreaker"
	"fluxflag/pkg/errors"
	"fluxflag/pkg/models"
)

// Config carries the arguments of the initialize() host call plus the
// wiring the engine needs beyond what a host would pass directly.
type Config struct {
	CompanyID      string
	TenantID       string
	Environment    string
	APIKey         string
	BaseURL        string
	AutoRefresh    bool
	PollInterval   time.Duration
	SessionTimeout time.Duration
	MaxEvents      int
	MaxEventAgeDays int
	Debug          bool
}

func (c Config) validate() error {
	if strings.TrimSpace(c.CompanyID) == "" || containsWhitespace(c.CompanyID) {
		return errors.ErrConfig.WithDetail("field", "company")
	}
	if strings.TrimSpace(c.TenantID) == "" || containsWhitespace(c.TenantID) {
		return errors.ErrConfig.WithDetail("field", "tenant")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.ErrConfig.WithDetail("field", "api_key")
	}
	if c.Environment != "" && containsWhitespace(c.Environment) {
		return errors.ErrConfig.WithDetail("field", "env")
	}
	return nil
}

func containsWhitespace(s string) bool {
	return strings.ContainsAny(s, " \t\n\r")
}

// Engine is an explicit, host-owned value: callers construct one per
// (company, tenant, environment) instead of relying on global state.
type Engine struct {
	log  logger.Logger
	eval *condition.Evaluator

	store *events.Store
	bags  *properties.Bags
	table *features.Table

	kv          persistence.KVStore
	eventWriter *persistence.EventLogWriter
	reporter    telemetry.Reporter
	recorder    audit.Recorder

	fetcher *lifecycle.Fetcher
	manager *lifecycle.Manager

	ruleSetMu sync.RWMutex
	ruleSet   *ruleset.RuleSet

	readyMu sync.Mutex
	ready   bool

	company, tenant, environment string

	jobs       chan func()
	workerStop chan struct{}
	stopOnce   sync.Once

	nowMillis func() int64
}

// New constructs a bare engine. Nothing is fetched or restored until
// Initialize or InitializeLocal runs.
func New(kv persistence.KVStore, reporter telemetry.Reporter, recorder audit.Recorder, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NopLogger()
	}
	if reporter == nil {
		reporter = telemetry.NoopReporter{}
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	cmp := compare.New(log)
	eval := condition.New(cmp, log)

	e := &Engine{
		log:        log,
		eval:       eval,
		bags:       properties.NewBags(),
		table:      features.New(eval, log),
		kv:         kv,
		reporter:   reporter,
		recorder:   recorder,
		jobs:       make(chan func()),
		workerStop: make(chan struct{}),
		nowMillis:  func() int64 { return time.Now().UnixMilli() },
	}

	go e.runWorker()
	return e
}

func (e *Engine) runWorker() {
	for {
		select {
		case job := <-e.jobs:
			job()
		case <-e.workerStop:
			return
		}
	}
}

// execute submits fn to the single-writer executor and blocks until
// it has run, giving callers linearizable mutation semantics without
// holding a mutex across network or persistence calls.
func (e *Engine) execute(fn func()) {
	done := make(chan struct{})
	e.jobs <- func() {
		fn()
		close(done)
	}
	<-done
}

// Initialize implements initialize(): validates configuration,
// restores any persisted event log and rule document, then starts the
// fetch/poll cycle.
// Configuration errors refuse to initialize without attempting any
// network traffic.
func (e *Engine) Initialize(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	e.company, e.tenant, e.environment = cfg.CompanyID, cfg.TenantID, cfg.Environment
	e.reporter.SetScope(ctx, e.company, e.tenant, e.environment)

	retention := events.ClampRetention(cfg.MaxEvents, cfg.MaxEventAgeDays)
	e.store = events.New(retention, e.log, e.nowMillis)

	e.restoreFromCache(ctx)

	e.eventWriter = persistence.NewEventLogWriter(e.kv, e.eventsKey(), e.log, e.store.Serialize)

	e.ensureDeviceIdentity(ctx)

	cbConfig := circuitbreaker.DefaultConfig(fmt.Sprintf("fluxflag-lifecycle-%s-%s", cfg.CompanyID, cfg.TenantID))

	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeout
	}
	e.fetcher = lifecycle.New(cfg.BaseURL, cfg.APIKey, timeout, cbConfig, e.log)

	pollInterval := cfg.PollInterval
	if !cfg.AutoRefresh {
		pollInterval = constants.MaxPollInterval
	}
	e.manager = lifecycle.NewManager(e.fetcher, lifecycle.Callbacks{
		InstalledHash:       e.installedHash,
		Install:             e.installFetchedDocument,
		TouchCacheTimestamp: e.touchCacheTimestamp,
		SetCountry:          e.setCountry,
		OnReady:             e.markReady,
	}, pollInterval, e.log)

	if err := e.manager.Refresh(ctx); err != nil {
		e.log.WarnwCtx(ctx, "initial rule fetch failed, serving cached rules if any", "error", err)
	}

	if cfg.AutoRefresh {
		e.manager.StartAutoRefresh(ctx)
	}

	return nil
}

// InitializeLocal implements initialize_local(): installs a rule
// document supplied directly by the host, bypassing the network
// fetcher entirely. If rulesJSON is empty, the document is read from
// path instead (a supplemented convenience for local/offline hosts).
func (e *Engine) InitializeLocal(ctx context.Context, rulesJSON string, path string) error {
	body := []byte(rulesJSON)
	if len(body) == 0 {
		if path == "" {
			return errors.ErrConfig.WithDetail("field", "rules_json")
		}
		read, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, errors.ErrConfig)
		}
		body = read
	}

	if e.store == nil {
		retention := events.ClampRetention(0, 0)
		e.store = events.New(retention, e.log, e.nowMillis)
	}

	e.reporter.SetScope(ctx, e.company, e.tenant, e.environment)
	e.ensureDeviceIdentity(ctx)

	var installErr error
	e.execute(func() {
		installErr = e.installLocked(body)
	})
	if installErr != nil {
		e.recordLifecycleEvent(ctx, models.LifecycleEventParseFailed, "", 0, installErr.Error())
		return installErr
	}

	e.recordLifecycleEvent(ctx, models.LifecycleEventLocalInstall, e.installedHash(), len(e.currentFeatureIndex()), "")
	e.markReady()
	return nil
}

func (e *Engine) restoreFromCache(ctx context.Context) {
	if e.kv == nil {
		return
	}

	if body, ok, err := e.kv.Get(ctx, e.eventsKey()); err == nil && ok {
		var records []models.EventRecord
		if err := json.Unmarshal(body, &records); err == nil {
			e.store.Restore(records)
		}
	}

	if body, ok, err := e.kv.Get(ctx, e.key(constants.KeyKindRulesBody)); err == nil && ok {
		if err := e.installLocked(body); err != nil {
			e.log.Warnw("cached rule document failed to parse, starting with no rules", "error", err)
		}
	}
}

func (e *Engine) installLocked(body []byte) error {
	rs, err := ruleset.Parse(body)
	if err != nil {
		return err
	}

	e.ruleSetMu.Lock()
	e.ruleSet = rs
	e.ruleSetMu.Unlock()

	e.reevaluateAndNotify()
	return nil
}

// installFetchedDocument is the lifecycle.Callbacks.Install hook; it
// runs on the manager's goroutine and must serialize through the
// executor before touching engine state, and persist the fetched body
// off the executor so a slow write never blocks a concurrent read.
func (e *Engine) installFetchedDocument(ctx context.Context, body []byte) error {
	var installErr error
	e.execute(func() {
		installErr = e.installLocked(body)
	})
	if installErr != nil {
		e.recordLifecycleEvent(ctx, models.LifecycleEventParseFailed, "", 0, installErr.Error())
		return installErr
	}

	e.persistRuleDocument(ctx, body)
	e.recordLifecycleEvent(ctx, models.LifecycleEventInstalled, e.installedHash(), len(e.currentFeatureIndex()), "")
	return nil
}

func (e *Engine) persistRuleDocument(ctx context.Context, body []byte) {
	if e.kv == nil {
		return
	}
	if err := e.kv.Set(ctx, e.key(constants.KeyKindRulesBody), body); err != nil {
		e.log.WarnwCtx(ctx, "failed to persist rule document", "error", err)
	}
	hash := ruleset.ContentHash(body)
	if err := e.kv.Set(ctx, e.key(constants.KeyKindRulesHash), []byte(hash)); err != nil {
		e.log.WarnwCtx(ctx, "failed to persist rule hash", "error", err)
	}
	e.touchCacheTimestamp(ctx)
}

func (e *Engine) touchCacheTimestamp(ctx context.Context) {
	if e.kv == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := e.kv.Set(ctx, e.key(constants.KeyKindRulesCachedAt), []byte(now)); err != nil {
		e.log.WarnwCtx(ctx, "failed to persist rule cache timestamp", "error", err)
	}
}

func (e *Engine) setCountry(country string) {
	e.execute(func() {
		e.bags.Device.Set(constants.DeviceCountryPropertyKey, country)
	})
}

// ensureDeviceIdentity assigns a stable device ID and logs the
// synthetic first_open event. It runs once per Initialize/
// InitializeLocal call, off the mutation executor (nothing here is
// reachable concurrently with a host call yet), and must run before
// any host-issued event so first_open is always first in the log.
func (e *Engine) ensureDeviceIdentity(ctx context.Context) {
	e.ensureDeviceID(ctx)
	e.ensureFirstOpen(ctx)
}

func (e *Engine) ensureDeviceID(ctx context.Context) {
	if e.kv != nil {
		key := persistence.GlobalKey(constants.KeyKindDeviceID)
		if body, ok, err := e.kv.Get(ctx, key); err == nil && ok {
			e.bags.Device.Set(constants.DeviceIDPropertyKey, string(body))
			return
		}

		id := uuid.NewString()
		if err := e.kv.Set(ctx, key, []byte(id)); err != nil {
			e.log.WarnwCtx(ctx, "failed to persist device id", "error", err)
		}
		e.bags.Device.Set(constants.DeviceIDPropertyKey, id)
		return
	}

	e.bags.Device.Set(constants.DeviceIDPropertyKey, uuid.NewString())
}

func (e *Engine) ensureFirstOpen(ctx context.Context) {
	key := persistence.GlobalKey(constants.KeyKindFirstOpen)

	if e.kv != nil {
		if _, ok, err := e.kv.Get(ctx, key); err == nil && ok {
			return
		}
	}

	e.store.Append(models.EventRecord{
		Name:      constants.FirstOpenEventName,
		Timestamp: e.nowMillis(),
	})
	if e.eventWriter != nil {
		e.eventWriter.NotifyAppend()
	}

	if e.kv != nil {
		if err := e.kv.Set(ctx, key, []byte("true")); err != nil {
			e.log.WarnwCtx(ctx, "failed to persist first-open flag", "error", err)
		}
	}
}

func (e *Engine) markReady() {
	e.readyMu.Lock()
	e.ready = true
	e.readyMu.Unlock()
}

func (e *Engine) IsReady() bool {
	e.readyMu.Lock()
	defer e.readyMu.Unlock()
	return e.ready
}

func (e *Engine) installedHash() string {
	e.ruleSetMu.RLock()
	defer e.ruleSetMu.RUnlock()
	if e.ruleSet == nil {
		return ""
	}
	return e.ruleSet.Hash
}

func (e *Engine) currentRuleSet() *ruleset.RuleSet {
	e.ruleSetMu.RLock()
	defer e.ruleSetMu.RUnlock()
	return e.ruleSet
}

func (e *Engine) currentFeatureIndex() map[string][]models.RuleEntry {
	rs := e.currentRuleSet()
	if rs == nil {
		return nil
	}
	return rs.FeatureIndex
}

func (e *Engine) reevaluateAndNotify() {
	rs := e.currentRuleSet()
	if rs == nil {
		return
	}
	changed := e.table.Reevaluate(rs, e.store.Snapshot(), e.bags.User.Snapshot(), e.bags.Device.Snapshot(), e.nowMillis())
	e.table.Notify(changed)
}

func (e *Engine) recordLifecycleEvent(ctx context.Context, eventType, hash string, featureCount int, detail string) {
	go func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultFetchTimeout)
		defer cancel()
		event := models.LifecycleEvent{
			EventType:    eventType,
			RuleHash:     hash,
			FeatureCount: featureCount,
			Timestamp:    time.Now(),
			Detail:       detail,
		}
		if err := e.recorder.Record(flushCtx, e.company, e.tenant, e.environment, event); err != nil {
			e.log.Debugw("audit record failed", "error", err)
		}
	}()
}

func (e *Engine) key(kind string) string {
	return persistence.Key(e.company, e.tenant, e.environment, kind)
}

func (e *Engine) eventsKey() string {
	return e.key(constants.KeyKindEventsLog)
}

// Shutdown stops the auto-refresh timer, flushes any pending event
// log write, closes the schema-discovery reporter, and stops the
// mutation executor.
func (e *Engine) Shutdown(ctx context.Context) []error {
	var errs []error

	if e.manager != nil {
		e.manager.Stop()
	}
	if e.eventWriter != nil {
		e.eventWriter.Close()
	}
	if err := e.reporter.Flush(ctx, e.company, e.tenant, e.environment); err != nil {
		errs = append(errs, err)
	}
	if err := e.reporter.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.recorder.Close(); err != nil {
		errs = append(errs, err)
	}

	e.stopOnce.Do(func() { close(e.workerStop) })
	return errs
}

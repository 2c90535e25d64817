// Package audit implements the install-history trail: every pointer
// cache-hit, rule install, fetch failure, and parse failure is
// optionally recorded to Postgres so operators can answer "when did
// feature X's rules last change" without grepping logs.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"fluxflag/pkg/errors"
	"fluxflag/pkg/metrics"
	"fluxflag/pkg/models"
)

// Recorder persists lifecycle events for later inspection. Never on
// the hot evaluation path; failures here are logged and swallowed by
// the caller.
type Recorder interface {
	Record(ctx context.Context, company, tenant, env string, event models.LifecycleEvent) error
	History(ctx context.Context, company, tenant, env string, limit int) ([]models.LifecycleEvent, error)
	Close() error
}

// NopRecorder discards everything; used when audit persistence is
// disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, string, string, models.LifecycleEvent) error {
	return nil
}

func (NopRecorder) History(context.Context, string, string, string, int) ([]models.LifecycleEvent, error) {
	return nil, nil
}

func (NopRecorder) Close() error { return nil }

// PostgresRecorder backs Recorder with a Postgres table managed by
// the migrations under migrations/postgres.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, company, tenant, env string, event models.LifecycleEvent) error {
	start := time.Now()

	occurredAt := event.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	query := `
		INSERT INTO rule_install_events (id, company_id, tenant_id, environment, event_type, rule_hash, feature_count, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), company, tenant, env,
		event.EventType, event.RuleHash, event.FeatureCount, event.Detail, occurredAt,
	)

	metrics.ObserveDatabaseQueryDuration("insert_rule_install_event", time.Since(start))
	if err != nil {
		metrics.IncDatabaseQuery("insert_rule_install_event", "error")
		return errors.Wrap(err, errors.ErrPersistence)
	}

	metrics.IncDatabaseQuery("insert_rule_install_event", "ok")
	return nil
}

func (r *PostgresRecorder) History(ctx context.Context, company, tenant, env string, limit int) ([]models.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	query := `
		SELECT event_type, rule_hash, feature_count, detail, occurred_at
		FROM rule_install_events
		WHERE company_id = $1 AND tenant_id = $2 AND environment = $3
		ORDER BY occurred_at DESC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, company, tenant, env, limit)
	metrics.ObserveDatabaseQueryDuration("select_rule_install_events", time.Since(start))
	if err != nil {
		metrics.IncDatabaseQuery("select_rule_install_events", "error")
		return nil, errors.Wrap(err, errors.ErrPersistence)
	}
	defer rows.Close()

	var events []models.LifecycleEvent
	for rows.Next() {
		var ev models.LifecycleEvent
		var occurredAt time.Time
		if err := rows.Scan(&ev.EventType, &ev.RuleHash, &ev.FeatureCount, &ev.Detail, &occurredAt); err != nil {
			metrics.IncDatabaseQuery("select_rule_install_events", "error")
			return nil, errors.Wrap(err, errors.ErrPersistence)
		}
		ev.Timestamp = occurredAt
		events = append(events, ev)
	}

	metrics.IncDatabaseQuery("select_rule_install_events", "ok")
	return events, nil
}

func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}

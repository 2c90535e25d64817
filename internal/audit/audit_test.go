package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxflag/pkg/models"
)

func TestNopRecorderDiscardsEverything(t *testing.T) {
	r := NopRecorder{}
	require.NoError(t, r.Record(context.Background(), "acme", "default", "prod", models.LifecycleEvent{}))
	history, err := r.History(context.Background(), "acme", "default", "prod", 10)
	require.NoError(t, err)
	assert.Nil(t, history)
	assert.NoError(t, r.Close())
}

func TestPostgresRecorderRecordInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := models.LifecycleEvent{
		EventType:    models.LifecycleEventInstalled,
		RuleHash:     "abc123",
		FeatureCount: 3,
		Detail:       "",
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rule_install_events")).
		WithArgs(sqlmock.AnyArg(), "acme", "default", "prod", event.EventType, event.RuleHash, event.FeatureCount, event.Detail, event.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := NewPostgresRecorder(db)
	require.NoError(t, r.Record(context.Background(), "acme", "default", "prod", event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderRecordDefaultsTimestampWhenZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := models.LifecycleEvent{EventType: models.LifecycleEventCacheHit}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rule_install_events")).
		WithArgs(sqlmock.AnyArg(), "acme", "default", "prod", event.EventType, event.RuleHash, event.FeatureCount, event.Detail, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := NewPostgresRecorder(db)
	require.NoError(t, r.Record(context.Background(), "acme", "default", "prod", event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderRecordWrapsDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rule_install_events")).
		WillReturnError(errors.New("connection reset"))

	r := NewPostgresRecorder(db)
	err = r.Record(context.Background(), "acme", "default", "prod", models.LifecycleEvent{})
	assert.Error(t, err)
}

func TestPostgresRecorderHistoryReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	occurredAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"event_type", "rule_hash", "feature_count", "detail", "occurred_at"}).
		AddRow(models.LifecycleEventInstalled, "abc123", 3, "", occurredAt)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, rule_hash, feature_count, detail, occurred_at")).
		WithArgs("acme", "default", "prod", 10).
		WillReturnRows(rows)

	r := NewPostgresRecorder(db)
	events, err := r.History(context.Background(), "acme", "default", "prod", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.LifecycleEventInstalled, events[0].EventType)
	assert.True(t, occurredAt.Equal(events[0].Timestamp))
}

func TestPostgresRecorderHistoryDefaultsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"event_type", "rule_hash", "feature_count", "detail", "occurred_at"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, rule_hash, feature_count, detail, occurred_at")).
		WithArgs("acme", "default", "prod", 50).
		WillReturnRows(rows)

	r := NewPostgresRecorder(db)
	_, err = r.History(context.Background(), "acme", "default", "prod", 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorderClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	r := NewPostgresRecorder(db)
	assert.NoError(t, r.Close())
}

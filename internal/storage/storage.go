// Package storage provides shared types for the metadata store.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and error values referenced by both the implementation
// and its consumers (indexer, metrics, cmd/radgate, etc.).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/radgate/radgate/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist. It is not
// retryable.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a unique-constraint violation or conflicting state.
var ErrConflict = errors.New("conflict")

// ErrBackend wraps transient engine-level failures. Callers may retry once
// via RetryTransient.
var ErrBackend = errors.New("backend error")

// Store is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface so mocks can be substituted in tests.
type Store interface {
	// Index rows. Upserts are keyed by the primary UID; two concurrent
	// upserts of the same UID result in one row with last-writer-wins
	// field values.
	UpsertStudy(ctx context.Context, s *types.IndexedStudy) error
	UpsertSeries(ctx context.Context, s *types.IndexedSeries) error
	UpsertInstance(ctx context.Context, i *types.IndexedInstance) error
	GetStudy(ctx context.Context, studyUID string) (*types.IndexedStudy, error)
	GetSeriesForStudy(ctx context.Context, studyUID string) ([]*types.IndexedSeries, error)
	GetInstancesForSeries(ctx context.Context, seriesUID string) ([]*types.IndexedInstance, error)
	CountStudies(ctx context.Context) (int64, error)
	ClearIndex(ctx context.Context) error

	// AggregateStudyCounts recomputes seriesCount/instanceCount/totalSize/
	// modalities for every study from its children in bulk statements.
	// Aggregates are eventually consistent until this runs.
	AggregateStudyCounts(ctx context.Context) error

	// Custom fields.
	CreateCustomField(ctx context.Context, f *types.CustomField) error
	GetEnabledCustomFields(ctx context.Context) ([]*types.CustomField, error)
	SetCustomFieldEnabled(ctx context.Context, id int64, enabled bool) error
	SetCustomFieldValue(ctx context.Context, fieldID int64, entityUID, value string) error
	GetCustomFieldValue(ctx context.Context, fieldID int64, entityUID string) (string, error)

	// Metrics.
	RecordMinuteMetric(ctx context.Context, p *types.MetricPoint) error
	RecordHourMetric(ctx context.Context, p *types.MetricPoint) error
	RecordDayMetric(ctx context.Context, p *types.MetricPoint) error
	GetMinuteMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error)
	GetHourMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error)
	GetDayMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error)
	CleanupOldMetrics(ctx context.Context) error

	// Route stats: atomic cumulative increments.
	UpdateRouteStats(ctx context.Context, aeTitle string, success bool, bytes int64, files int) error
	GetRouteStats(ctx context.Context, aeTitle string) (*types.RouteStats, error)
	GetAllRouteStats(ctx context.Context) ([]*types.RouteStats, error)

	// Reindex jobs.
	CreateReindexJob(ctx context.Context) (*types.ReindexJob, error)
	UpdateReindexJob(ctx context.Context, id int64, status types.ReindexJobStatus, total, processed, errs int, message string) error
	GetReindexJob(ctx context.Context, id int64) (*types.ReindexJob, error)
	GetLatestReindexJob(ctx context.Context) (*types.ReindexJob, error)

	// Lifecycle.
	Close() error
}

// RetryTransient runs fn, retrying exactly once after a short backoff when
// the failure is a transient backend error. Not-found and conflict errors
// propagate immediately.
func RetryTransient(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, ErrBackend) {
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 1), ctx)
	return backoff.Retry(fn, b)
}

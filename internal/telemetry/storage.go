package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/types"
)

const storageScopeName = "github.com/salewatch/salewatch/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in sw.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("sw.storage.operations",
		metric.WithDescription("Total storage operations executed"))
	dur, _ := m.Float64Histogram("sw.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"))
	errs, _ := m.Int64Counter("sw.storage.errors",
		metric.WithDescription("Total storage operation errors"))
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error) {
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1)
	}
	span.End()
}

func (s *InstrumentedStore) CreateCredential(ctx context.Context, cred *types.Credential) error {
	ctx, span, start := s.op(ctx, "CreateCredential")
	err := s.inner.CreateCredential(ctx, cred)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) GetCredential(ctx context.Context, id string) (*types.Credential, error) {
	ctx, span, start := s.op(ctx, "GetCredential")
	cred, err := s.inner.GetCredential(ctx, id)
	s.done(ctx, span, start, err)
	return cred, err
}

func (s *InstrumentedStore) ListCredentials(ctx context.Context) ([]*types.Credential, error) {
	ctx, span, start := s.op(ctx, "ListCredentials")
	creds, err := s.inner.ListCredentials(ctx)
	s.done(ctx, span, start, err)
	return creds, err
}

func (s *InstrumentedStore) RenameCredential(ctx context.Context, id, displayName string) error {
	ctx, span, start := s.op(ctx, "RenameCredential")
	err := s.inner.RenameCredential(ctx, id, displayName)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) DeleteCredential(ctx context.Context, id string) error {
	ctx, span, start := s.op(ctx, "DeleteCredential")
	err := s.inner.DeleteCredential(ctx, id)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) CredentialStats(ctx context.Context, id string) (*types.CredentialStats, error) {
	ctx, span, start := s.op(ctx, "CredentialStats")
	stats, err := s.inner.CredentialStats(ctx, id)
	s.done(ctx, span, start, err)
	return stats, err
}

func (s *InstrumentedStore) GetSyncState(ctx context.Context, apiKeyID string) (*types.SyncState, error) {
	ctx, span, start := s.op(ctx, "GetSyncState")
	state, err := s.inner.GetSyncState(ctx, apiKeyID)
	s.done(ctx, span, start, err)
	return state, err
}

func (s *InstrumentedStore) CommitHighwatermark(ctx context.Context, apiKeyID string, highwatermark uint64, at time.Time) error {
	ctx, span, start := s.op(ctx, "CommitHighwatermark")
	err := s.inner.CommitHighwatermark(ctx, apiKeyID, highwatermark, at)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) RecordChangedDatesQuery(ctx context.Context, q *types.ChangedDatesQuery) error {
	ctx, span, start := s.op(ctx, "RecordChangedDatesQuery")
	err := s.inner.RecordChangedDatesQuery(ctx, q)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) EnqueueTasks(ctx context.Context, apiKeyID string, dates []string) error {
	ctx, span, start := s.op(ctx, "EnqueueTasks", attribute.Int("sw.dates", len(dates)))
	err := s.inner.EnqueueTasks(ctx, apiKeyID, dates)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) ClaimTasks(ctx context.Context, apiKeyID string, batchSize int) ([]*types.SyncTask, error) {
	ctx, span, start := s.op(ctx, "ClaimTasks")
	tasks, err := s.inner.ClaimTasks(ctx, apiKeyID, batchSize)
	s.done(ctx, span, start, err)
	return tasks, err
}

func (s *InstrumentedStore) CompleteTask(ctx context.Context, taskID int64) error {
	ctx, span, start := s.op(ctx, "CompleteTask")
	err := s.inner.CompleteTask(ctx, taskID)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) FailTask(ctx context.Context, taskID int64, errMsg string) error {
	ctx, span, start := s.op(ctx, "FailTask")
	err := s.inner.FailTask(ctx, taskID, errMsg)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) ResetFailedTasks(ctx context.Context, apiKeyID string) (int, error) {
	ctx, span, start := s.op(ctx, "ResetFailedTasks")
	n, err := s.inner.ResetFailedTasks(ctx, apiKeyID)
	s.done(ctx, span, start, err)
	return n, err
}

func (s *InstrumentedStore) ResetStaleTasks(ctx context.Context, apiKeyID string, olderThan time.Duration) (int, error) {
	ctx, span, start := s.op(ctx, "ResetStaleTasks")
	n, err := s.inner.ResetStaleTasks(ctx, apiKeyID, olderThan)
	s.done(ctx, span, start, err)
	return n, err
}

func (s *InstrumentedStore) TaskCounts(ctx context.Context, apiKeyID string) (types.TaskCounts, error) {
	ctx, span, start := s.op(ctx, "TaskCounts")
	counts, err := s.inner.TaskCounts(ctx, apiKeyID)
	s.done(ctx, span, start, err)
	return counts, err
}

func (s *InstrumentedStore) TaskCountsAll(ctx context.Context) (map[string]types.TaskCounts, error) {
	ctx, span, start := s.op(ctx, "TaskCountsAll")
	counts, err := s.inner.TaskCountsAll(ctx)
	s.done(ctx, span, start, err)
	return counts, err
}

func (s *InstrumentedStore) ListFailedTasks(ctx context.Context, limit int) ([]*types.SyncTask, error) {
	ctx, span, start := s.op(ctx, "ListFailedTasks")
	tasks, err := s.inner.ListFailedTasks(ctx, limit)
	s.done(ctx, span, start, err)
	return tasks, err
}

func (s *InstrumentedStore) DeleteRecordsForDates(ctx context.Context, apiKeyID string, dates []string) error {
	ctx, span, start := s.op(ctx, "DeleteRecordsForDates", attribute.Int("sw.dates", len(dates)))
	err := s.inner.DeleteRecordsForDates(ctx, apiKeyID, dates)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) InsertRecords(ctx context.Context, records []*types.SalesRecord) error {
	ctx, span, start := s.op(ctx, "InsertRecords", attribute.Int("sw.records", len(records)))
	err := s.inner.InsertRecords(ctx, records)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) PurgeRecords(ctx context.Context, apiKeyID, fromDate, toDate string) (int64, error) {
	ctx, span, start := s.op(ctx, "PurgeRecords")
	n, err := s.inner.PurgeRecords(ctx, apiKeyID, fromDate, toDate)
	s.done(ctx, span, start, err)
	return n, err
}

func (s *InstrumentedStore) UpsertLookups(ctx context.Context, set *types.LookupSet) error {
	ctx, span, start := s.op(ctx, "UpsertLookups")
	err := s.inner.UpsertLookups(ctx, set)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) HealthCheck(ctx context.Context) error {
	ctx, span, start := s.op(ctx, "HealthCheck")
	err := s.inner.HealthCheck(ctx)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

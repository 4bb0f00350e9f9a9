package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const syncScopeName = "github.com/salewatch/salewatch/sync"

// SyncMetrics holds the sync-pipeline instruments. With telemetry disabled
// the global meter is a no-op provider, so recording costs nothing.
type SyncMetrics struct {
	runs    metric.Int64Counter
	tasks   metric.Int64Counter
	records metric.Int64Counter
	pages   metric.Int64Counter
	taskDur metric.Float64Histogram
}

// NewSyncMetrics creates the sw.sync.* instruments.
func NewSyncMetrics() *SyncMetrics {
	m := Meter(syncScopeName)
	runs, _ := m.Int64Counter("sw.sync.runs",
		metric.WithDescription("Sync runs by outcome"))
	tasks, _ := m.Int64Counter("sw.sync.tasks",
		metric.WithDescription("Sync tasks finished, by status"))
	records, _ := m.Int64Counter("sw.sync.records",
		metric.WithDescription("Sales records written"))
	pages, _ := m.Int64Counter("sw.sync.pages",
		metric.WithDescription("Remote sales pages fetched"))
	taskDur, _ := m.Float64Histogram("sw.sync.task.duration",
		metric.WithDescription("Per-task wall time in milliseconds"),
		metric.WithUnit("ms"))
	return &SyncMetrics{runs: runs, tasks: tasks, records: records, pages: pages, taskDur: taskDur}
}

// RecordRun counts one finished sync run.
func (m *SyncMetrics) RecordRun(ctx context.Context, apiKeyID, outcome string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sw.credential", apiKeyID),
		attribute.String("sw.outcome", outcome),
	))
}

// RecordTask counts one finished task and its duration.
func (m *SyncMetrics) RecordTask(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("sw.task.status", status))
	m.tasks.Add(ctx, 1, attrs)
	m.taskDur.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// AddRecords counts sales records written to the store.
func (m *SyncMetrics) AddRecords(ctx context.Context, n int) {
	m.records.Add(ctx, int64(n))
}

// AddPages counts remote pages fetched.
func (m *SyncMetrics) AddPages(ctx context.Context, n int) {
	m.pages.Add(ctx, int64(n))
}

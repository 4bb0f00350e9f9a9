package engine

import (
	"context"

	"github.com/salewatch/salewatch/internal/storage"
	"github.com/salewatch/salewatch/internal/types"
)

// recordWriter buffers sales records and flushes them to the store in
// batches. One writer per task; tasks own disjoint dates, so writers never
// contend on the same rows.
type recordWriter struct {
	store     storage.Store
	batchSize int
	buf       []*types.SalesRecord
	written   int64
}

func newRecordWriter(store storage.Store, batchSize int) *recordWriter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &recordWriter{store: store, batchSize: batchSize}
}

func (w *recordWriter) Add(ctx context.Context, rec *types.SalesRecord) error {
	w.buf = append(w.buf, rec)
	if len(w.buf) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

func (w *recordWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.InsertRecords(ctx, w.buf); err != nil {
		return err
	}
	w.written += int64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// Written returns the number of records flushed so far.
func (w *recordWriter) Written() int64 {
	return w.written
}

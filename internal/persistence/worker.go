package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"VaultAccountant/internal/accountant"
	"VaultAccountant/internal/observability"
)

// Worker drains the persist channel and batch-writes audit events to
// Postgres. The engine sends on this channel with a BLOCKING send, so a
// worker that falls behind stalls the engine instead of losing events.
// Each flush also upserts the newest state snapshot seen in the batch
// window, so recovery lag is bounded by one batch.
type Worker struct {
	writer    *AuditLogWriter
	snapshots *SnapshotStore
	inputChan <-chan accountant.Output

	batchSize    int
	flushTimeout time.Duration

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan accountant.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewAuditLogWriter(db),
		snapshots:    NewSnapshotStore(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout fires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)
	var latestSnap *accountant.StateSnapshot

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				// Final flush with a fresh context; ctx is already dead.
				if err := w.flush(context.Background(), batch, latestSnap); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch, latestSnap); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, RowFromEnvelope(out.Envelope))
			latestSnap = out.Snapshot

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch, latestSnap)
				batch = batch[:0]
				latestSnap = nil
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch, latestSnap)
				batch = batch[:0]
				latestSnap = nil
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled. The worker never drops a batch; on shutdown it makes
// one final attempt with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow, snap *accountant.StateSnapshot) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch, snap); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
		}

		if err := w.flush(ctx, batch, snap); err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow, snap *accountant.StateSnapshot) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.persistError("tx_begin")
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, batch); err != nil {
		w.persistError("write_events")
		return fmt.Errorf("write events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		w.persistError("tx_commit")
		return fmt.Errorf("commit: %w", err)
	}

	// Snapshot upsert is outside the event transaction: a snapshot that
	// lags its events only costs recovery a slightly older restore point.
	if snap != nil {
		if err := w.snapshots.Save(ctx, snap); err != nil {
			w.persistError("write_snapshot")
			return fmt.Errorf("write snapshot: %w", err)
		}
		if w.metrics != nil {
			w.metrics.SnapshotsWritten.Inc()
		}
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		if len(batch) > 0 {
			w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
		}
	}
	return nil
}

func (w *Worker) persistError(kind string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}

package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"VaultAccountant/internal/accountant"
	"VaultAccountant/internal/event"
	"VaultAccountant/internal/observability"
)

// Worker maintains the read-model tables from committed engine events.
// The projection channel is non-blocking with drop on the engine side, so
// the tables are best-effort; Rebuild recovers them from the audit log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan accountant.Output
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan accountant.Output, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{db: db, inputChan: inputChan, metrics: metrics, log: log}
}

// Run consumes engine outputs until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			if err := w.apply(ctx, out.Envelope); err != nil {
				// Eventually consistent; a failed update is recoverable
				// via Rebuild.
				w.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Str("event_type", out.Envelope.EventType.String()).
					Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, env *event.Envelope) error {
	start := time.Now()

	var err error
	var projection string
	switch env.EventType {
	case event.EventTypeReportProcessed:
		projection = "report_history"
		err = w.applyReport(ctx, env)
	case event.EventTypeFeeAccrued:
		projection = "fee_totals"
		err = w.applyAccrual(ctx, env)
	case event.EventTypeRewardsDistributed:
		projection = "fee_totals"
		err = w.applySweep(ctx, env)
	default:
		// Config, registry, and role events have no read model; the query
		// service answers those from the engine directly.
		return nil
	}

	if err == nil && w.metrics != nil {
		w.metrics.ProjectionUpdateDur.WithLabelValues(projection).Observe(time.Since(start).Seconds())
	}
	return err
}

func (w *Worker) applyReport(ctx context.Context, env *event.Envelope) error {
	var p event.ReportProcessedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal report payload: %w", err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.report_history
			(sequence, report_id, vault, strategy, gain, loss, fee_owed, skipped, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sequence) DO NOTHING
	`, env.Sequence, p.ReportID, p.Vault, p.Strategy, p.Gain, p.Loss, p.FeeOwed, p.Skipped, env.Timestamp); err != nil {
		return fmt.Errorf("report_history insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.vault_stats
			(vault, reports_applied, total_gain, total_loss, total_fee, last_sequence, updated_at)
		VALUES ($1, 1, $2, $3, $4, $5, NOW())
		ON CONFLICT (vault) DO UPDATE SET
			reports_applied = projections.vault_stats.reports_applied + 1,
			total_gain      = projections.vault_stats.total_gain + $2,
			total_loss      = projections.vault_stats.total_loss + $3,
			total_fee       = projections.vault_stats.total_fee + $4,
			last_sequence   = $5,
			updated_at      = NOW()
	`, p.Vault, p.Gain, p.Loss, p.FeeOwed, env.Sequence); err != nil {
		return fmt.Errorf("vault_stats upsert: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) applyAccrual(ctx context.Context, env *event.Envelope) error {
	var p event.FeeAccruedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal accrual payload: %w", err)
	}

	_, err := w.db.ExecContext(ctx, `
		INSERT INTO projections.fee_totals (asset, accrued, swept, balance, updated_at)
		VALUES ($1, $2, 0, $3, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			accrued    = projections.fee_totals.accrued + $2,
			balance    = $3,
			updated_at = NOW()
	`, p.Asset, p.Amount, p.Balance)
	if err != nil {
		return fmt.Errorf("fee_totals accrual upsert: %w", err)
	}
	return nil
}

func (w *Worker) applySweep(ctx context.Context, env *event.Envelope) error {
	var p event.RewardsDistributedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal sweep payload: %w", err)
	}

	_, err := w.db.ExecContext(ctx, `
		INSERT INTO projections.fee_totals (asset, accrued, swept, balance, updated_at)
		VALUES ($1, 0, $2, 0, NOW())
		ON CONFLICT (asset) DO UPDATE SET
			swept      = projections.fee_totals.swept + $2,
			balance    = GREATEST(projections.fee_totals.balance - $2, 0),
			updated_at = NOW()
	`, p.Asset, p.Amount)
	if err != nil {
		return fmt.Errorf("fee_totals sweep upsert: %w", err)
	}
	return nil
}

// Rebuild truncates the read-model tables and repopulates them from the
// audit log. Used after detected projection drift or drops.
func Rebuild(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		`TRUNCATE projections.report_history`,
		`TRUNCATE projections.fee_totals`,
		`TRUNCATE projections.vault_stats`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.report_history
			(sequence, report_id, vault, strategy, gain, loss, fee_owed, skipped, timestamp)
		SELECT
			sequence,
			payload->>'report_id',
			payload->>'vault',
			payload->>'strategy',
			(payload->>'gain')::BIGINT,
			(payload->>'loss')::BIGINT,
			(payload->>'fee_owed')::BIGINT,
			(payload->>'health_check_skipped')::BOOLEAN,
			timestamp
		FROM audit_log.events
		WHERE event_type = 'ReportProcessed'
	`); err != nil {
		return fmt.Errorf("rebuild report_history: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.vault_stats
			(vault, reports_applied, total_gain, total_loss, total_fee, last_sequence, updated_at)
		SELECT
			vault,
			COUNT(*),
			SUM(gain),
			SUM(loss),
			SUM(fee_owed),
			MAX(sequence),
			NOW()
		FROM projections.report_history
		GROUP BY vault
	`); err != nil {
		return fmt.Errorf("rebuild vault_stats: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.fee_totals (asset, accrued, swept, balance, updated_at)
		SELECT
			asset,
			COALESCE(SUM(accrued), 0),
			COALESCE(SUM(swept), 0),
			COALESCE(SUM(accrued), 0) - COALESCE(SUM(swept), 0),
			NOW()
		FROM (
			SELECT payload->>'asset' AS asset,
			       (payload->>'amount')::BIGINT AS accrued,
			       NULL::BIGINT AS swept
			FROM audit_log.events WHERE event_type = 'FeeAccrued'
			UNION ALL
			SELECT payload->>'asset',
			       NULL,
			       (payload->>'amount')::BIGINT
			FROM audit_log.events WHERE event_type = 'RewardsDistributed'
		) flows
		GROUP BY asset
	`); err != nil {
		return fmt.Errorf("rebuild fee_totals: %w", err)
	}

	return nil
}

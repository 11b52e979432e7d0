package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Service provides read-only access to the projection tables and the audit
// log. Every response carries as_of_sequence, the highest persisted audit
// sequence at query time, so callers can reason about freshness.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ReportHistory returns processed reports for a vault, newest first.
// Cursor pagination: pass the last seen sequence as beforeSequence.
func (s *Service) ReportHistory(
	ctx context.Context,
	vault string,
	limit int,
	beforeSequence *int64,
) ([]ReportHistoryEntry, error) {
	asOf, err := s.asOfSequence(ctx)
	if err != nil {
		return nil, err
	}

	q := `
		SELECT sequence, report_id, vault, strategy, gain, loss, fee_owed, skipped, timestamp
		FROM projections.report_history
		WHERE vault = $1
	`
	args := []interface{}{vault}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}
	q += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ReportHistoryEntry
	for rows.Next() {
		var e ReportHistoryEntry
		e.AsOfSequence = asOf
		if err := rows.Scan(
			&e.Sequence, &e.ReportID, &e.Vault, &e.Strategy,
			&e.Gain, &e.Loss, &e.FeeOwed, &e.Skipped, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns the aggregate report counters for a vault. A vault with no
// processed reports yields zeroed stats, not an error.
func (s *Service) Stats(ctx context.Context, vault string) (*VaultStats, error) {
	asOf, err := s.asOfSequence(ctx)
	if err != nil {
		return nil, err
	}

	st := &VaultStats{Vault: vault, AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT reports_applied, total_gain, total_loss, total_fee, last_sequence, updated_at
		FROM projections.vault_stats
		WHERE vault = $1
	`, vault).Scan(
		&st.ReportsApplied, &st.TotalGain, &st.TotalLoss,
		&st.TotalFee, &st.LastSequence, &st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// FeeTotals returns the running fee flows, optionally filtered to one asset.
func (s *Service) FeeTotals(ctx context.Context, asset *string) ([]FeeTotals, error) {
	asOf, err := s.asOfSequence(ctx)
	if err != nil {
		return nil, err
	}

	q := `SELECT asset, accrued, swept, balance, updated_at FROM projections.fee_totals`
	args := []interface{}{}
	if asset != nil {
		q += " WHERE asset = $1"
		args = append(args, *asset)
	}
	q += " ORDER BY asset"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []FeeTotals
	for rows.Next() {
		var t FeeTotals
		t.AsOfSequence = asOf
		if err := rows.Scan(&t.Asset, &t.Accrued, &t.Swept, &t.Balance, &t.UpdatedAt); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// AuditLog returns audit entries in a sequence range, ascending.
func (s *Service) AuditLog(ctx context.Context, fromSequence int64, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, vault, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM audit_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var stateHash, prevHash []byte
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Vault,
			&e.Payload, &stateHash, &prevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		e.StateHash = hex.EncodeToString(stateHash)
		e.PrevHash = hex.EncodeToString(prevHash)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks the audit log for hash chain breaks and sequence
// gaps. Breaks indicate tampering or a write-path bug; gaps indicate lost
// events.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	asOf, err := s.asOfSequence(ctx)
	if err != nil {
		return nil, err
	}
	report.LatestSequence = asOf

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM audit_log.events e1
		JOIN audit_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	gapRows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence + 1
		FROM audit_log.events e1
		LEFT JOIN audit_log.events e2 ON e2.sequence = e1.sequence + 1
		WHERE e2.sequence IS NULL AND e1.sequence < (SELECT MAX(sequence) FROM audit_log.events)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer gapRows.Close()
	for gapRows.Next() {
		var seq int64
		if err := gapRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := gapRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

func (s *Service) asOfSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_log.events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("as_of_sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

package event

import (
	"time"

	"github.com/google/uuid"
)

// StrategyReport is a periodic investment result reported by one of a
// vault's strategies. A single report carries either a non-zero gain or a
// (possibly zero) loss, never both.
// Idempotency key: report_id (UUID assigned by the vault).
type StrategyReport struct {
	ReportID uuid.UUID // Idempotency key
	Vault    string    // Caller identity; must be a registered vault
	Strategy string
	Gain     int64 // Fixed-point asset units
	Loss     int64

	// Point-in-time vault state captured by the vault at report time.
	// The engine treats these as one atomic read-only snapshot.
	CurrentDebt int64
	TotalSupply int64
	TotalAssets int64

	ReportSequence int64     // Source sequence from the vault
	Timestamp      time.Time // Versioned input timestamp (NOT wall-clock)
}

func (r *StrategyReport) IdempotencyKey() string {
	return r.ReportID.String()
}

func (r *StrategyReport) EventType() EventType {
	return EventTypeReportProcessed
}

func (r *StrategyReport) VaultID() *string {
	v := r.Vault
	return &v
}

func (r *StrategyReport) SourceSequence() int64 {
	return r.ReportSequence
}

// ReportOutcome is the ephemeral decision returned per report. Never
// stored in engine state; the audit log keeps a ReportProcessedPayload copy.
type ReportOutcome struct {
	FeeOwed    int64 `json:"fee_owed"`
	RefundOwed int64 `json:"refund_owed"` // Always 0 in the current design
}

// ReportProcessedPayload is the audit-log record of one report decision.
type ReportProcessedPayload struct {
	ReportID    string `json:"report_id"`
	Vault       string `json:"vault"`
	Strategy    string `json:"strategy"`
	Gain        int64  `json:"gain"`
	Loss        int64  `json:"loss"`
	CurrentDebt int64  `json:"current_debt"`
	TotalSupply int64  `json:"total_supply"`
	TotalAssets int64  `json:"total_assets"`
	FeeOwed     int64  `json:"fee_owed"`
	RefundOwed  int64  `json:"refund_owed"`
	Skipped     bool   `json:"health_check_skipped"`
	MaxGainBps  int64  `json:"max_gain_bps"`
	MaxLossBps  int64  `json:"max_loss_bps"`
}

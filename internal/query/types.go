package query

import (
	"encoding/json"
	"time"
)

// ReportHistoryEntry is one processed report decision for API queries.
type ReportHistoryEntry struct {
	Sequence     int64     `json:"sequence"`
	ReportID     string    `json:"report_id"`
	Vault        string    `json:"vault"`
	Strategy     string    `json:"strategy"`
	Gain         int64     `json:"gain"`
	Loss         int64     `json:"loss"`
	FeeOwed      int64     `json:"fee_owed"`
	Skipped      bool      `json:"health_check_skipped"`
	Timestamp    time.Time `json:"timestamp"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// VaultStats aggregates one vault's processed reports.
type VaultStats struct {
	Vault          string    `json:"vault"`
	ReportsApplied int64     `json:"reports_applied"`
	TotalGain      int64     `json:"total_gain"`
	TotalLoss      int64     `json:"total_loss"`
	TotalFee       int64     `json:"total_fee"`
	LastSequence   int64     `json:"last_sequence"`
	UpdatedAt      time.Time `json:"updated_at"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// FeeTotals is the running fee flow per asset.
type FeeTotals struct {
	Asset        string    `json:"asset"`
	Accrued      int64     `json:"accrued"`
	Swept        int64     `json:"swept"`
	Balance      int64     `json:"balance"`
	UpdatedAt    time.Time `json:"updated_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// AuditEntry is one audit-log row for API queries.
type AuditEntry struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Vault          *string         `json:"vault,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
	SourceSequence int64           `json:"source_sequence"`
}

// IntegrityReport is the result of an audit-log verification pass.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	LatestSequence  int64   `json:"latest_sequence"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
}

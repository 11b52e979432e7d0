package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"VaultAccountant/internal/event"
)

// ParseRawEvent converts a RawEvent into a typed engine event based on its
// subject prefix.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	switch {
	case strings.HasPrefix(raw.Subject, "vault.reports."):
		return ParseStrategyReport(raw.Data)
	case strings.HasPrefix(raw.Subject, "vault.fees.accrued."):
		return ParseFeeAccrued(raw.Data)
	default:
		return nil, fmt.Errorf("unknown subject: %s", raw.Subject)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream vault producers.

type strategyReportJSON struct {
	ReportID    string `json:"report_id"`
	Vault       string `json:"vault"`
	Strategy    string `json:"strategy"`
	Gain        int64  `json:"gain"`
	Loss        int64  `json:"loss"`
	CurrentDebt int64  `json:"current_debt"`
	TotalSupply int64  `json:"total_supply"`
	TotalAssets int64  `json:"total_assets"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseStrategyReport validates and converts a report payload.
func ParseStrategyReport(data []byte) (*event.StrategyReport, error) {
	var j strategyReportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StrategyReport: %w", err)
	}

	reportID, err := uuid.Parse(j.ReportID)
	if err != nil {
		return nil, fmt.Errorf("parse report_id: %w", err)
	}
	if j.Vault == "" {
		return nil, fmt.Errorf("parse StrategyReport: missing vault")
	}
	if j.Strategy == "" {
		return nil, fmt.Errorf("parse StrategyReport: missing strategy")
	}
	if j.Gain < 0 || j.Loss < 0 {
		return nil, fmt.Errorf("parse StrategyReport: negative gain or loss")
	}
	if j.Gain > 0 && j.Loss > 0 {
		return nil, fmt.Errorf("parse StrategyReport: gain and loss both non-zero")
	}
	if j.CurrentDebt < 0 || j.TotalSupply < 0 || j.TotalAssets < 0 {
		return nil, fmt.Errorf("parse StrategyReport: negative vault state")
	}

	return &event.StrategyReport{
		ReportID:       reportID,
		Vault:          j.Vault,
		Strategy:       j.Strategy,
		Gain:           j.Gain,
		Loss:           j.Loss,
		CurrentDebt:    j.CurrentDebt,
		TotalSupply:    j.TotalSupply,
		TotalAssets:    j.TotalAssets,
		ReportSequence: j.Sequence,
		Timestamp:      time.UnixMicro(j.TimestampUs),
	}, nil
}

type feeAccruedJSON struct {
	AccrualID   string `json:"accrual_id"`
	Vault       string `json:"vault"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseFeeAccrued validates and converts an accrual payload.
func ParseFeeAccrued(data []byte) (*event.FeeAccrued, error) {
	var j feeAccruedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FeeAccrued: %w", err)
	}

	accrualID, err := uuid.Parse(j.AccrualID)
	if err != nil {
		return nil, fmt.Errorf("parse accrual_id: %w", err)
	}
	if j.Vault == "" {
		return nil, fmt.Errorf("parse FeeAccrued: missing vault")
	}
	if j.Asset == "" {
		return nil, fmt.Errorf("parse FeeAccrued: missing asset")
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("parse FeeAccrued: non-positive amount %d", j.Amount)
	}

	return &event.FeeAccrued{
		AccrualID:       accrualID,
		Vault:           j.Vault,
		Asset:           j.Asset,
		Amount:          j.Amount,
		AccrualSequence: j.Sequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

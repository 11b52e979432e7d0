package event

import (
	"time"

	"github.com/google/uuid"
)

// FeeAccrued records fee-asset value credited to the engine's balance by a
// vault's minting step after a report. The engine only books it; the
// transfer itself happens on the vault side.
// Idempotency key: accrual_id (UUID assigned by the vault).
type FeeAccrued struct {
	AccrualID uuid.UUID // Idempotency key
	Vault     string    // Caller identity; must be a registered vault
	Asset     string
	Amount    int64 // Fixed-point asset units

	AccrualSequence int64     // Source sequence from the vault
	Timestamp       time.Time // Versioned input timestamp (NOT wall-clock)
}

func (f *FeeAccrued) IdempotencyKey() string {
	return f.AccrualID.String()
}

func (f *FeeAccrued) EventType() EventType {
	return EventTypeFeeAccrued
}

func (f *FeeAccrued) VaultID() *string {
	v := f.Vault
	return &v
}

func (f *FeeAccrued) SourceSequence() int64 {
	return f.AccrualSequence
}

// FeeAccruedPayload is the audit-log record of one accrual.
type FeeAccruedPayload struct {
	AccrualID string `json:"accrual_id"`
	Vault     string `json:"vault"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"` // Engine balance of the asset after crediting
}

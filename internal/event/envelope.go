package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeReportProcessed
	EventTypeDefaultConfigUpdated
	EventTypeCustomConfigUpdated
	EventTypeCustomConfigRemoved
	EventTypeVaultAdded
	EventTypeVaultRemoved
	EventTypeHealthCheckSkipArmed
	EventTypeFeeAccrued
	EventTypeRewardsDistributed
	EventTypeManagerProposed
	EventTypeManagerAccepted
	EventTypeVaultManagerUpdated
	EventTypeFeeRecipientUpdated
)

// Envelope wraps every entry in the audit log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from upstream (or derived for admin ops)
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Vault context (nullable for global/admin events)
	Vault *string

	// Versioned input timestamp for ingested events; wall clock for admin ops
	Timestamp time.Time

	// Upstream sequence for ordering validation (0 for admin ops)
	SourceSequence int64

	// JSON-encoded event-specific payload
	Payload []byte

	// SHA-256 of engine state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all ingested event payloads implement.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// VaultID returns the vault context (nil for global events)
	VaultID() *string

	// SourceSequence returns the upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeReportProcessed:
		return "ReportProcessed"
	case EventTypeDefaultConfigUpdated:
		return "DefaultConfigUpdated"
	case EventTypeCustomConfigUpdated:
		return "CustomConfigUpdated"
	case EventTypeCustomConfigRemoved:
		return "CustomConfigRemoved"
	case EventTypeVaultAdded:
		return "VaultAdded"
	case EventTypeVaultRemoved:
		return "VaultRemoved"
	case EventTypeHealthCheckSkipArmed:
		return "HealthCheckSkipArmed"
	case EventTypeFeeAccrued:
		return "FeeAccrued"
	case EventTypeRewardsDistributed:
		return "RewardsDistributed"
	case EventTypeManagerProposed:
		return "ManagerProposed"
	case EventTypeManagerAccepted:
		return "ManagerAccepted"
	case EventTypeVaultManagerUpdated:
		return "VaultManagerUpdated"
	case EventTypeFeeRecipientUpdated:
		return "FeeRecipientUpdated"
	default:
		return "Unknown"
	}
}

package accountant

import "errors"

// Error taxonomy for the accounting engine. Every entry point fails with
// exactly one of these (possibly wrapped with context via %w), and a failed
// call leaves engine state untouched.
var (
	// Authorization
	ErrNotFeeManager   = errors.New("caller is not the fee manager")
	ErrNotVaultManager = errors.New("caller is neither fee manager nor vault manager")
	ErrNotFeeRecipient = errors.New("caller is neither fee manager nor fee recipient")

	// Registration
	ErrVaultNotRegistered = errors.New("vault is not registered")
	ErrAlreadyRegistered  = errors.New("vault is already registered")
	ErrNotRegistered      = errors.New("vault is not registered")

	// Configuration
	ErrInvalidBound   = errors.New("loss bound exceeds 100%")
	ErrNoCustomConfig = errors.New("vault has no custom config")

	// Health check violations — the circuit breaker. Expected to fire on
	// legitimate volatility, not only bugs; callers should pause and
	// investigate rather than retry.
	ErrExcessiveGain = errors.New("reported gain exceeds configured bound")
	ErrExcessiveLoss = errors.New("reported loss exceeds configured bound")

	// Identity
	ErrZeroIdentity      = errors.New("identity must not be empty")
	ErrNotPendingManager = errors.New("caller is not the pending fee manager")

	// Transfer
	ErrTransferFailed = errors.New("asset transfer failed")

	// Ingestion
	ErrDuplicateReport = errors.New("report already processed")
	ErrStaleReport     = errors.New("report source sequence is stale")
)

// RejectReason maps an engine error to a short label for metrics and logs.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFeeManager),
		errors.Is(err, ErrNotVaultManager),
		errors.Is(err, ErrNotFeeRecipient):
		return "unauthorized"
	case errors.Is(err, ErrVaultNotRegistered),
		errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrNotRegistered):
		return "registration"
	case errors.Is(err, ErrInvalidBound),
		errors.Is(err, ErrNoCustomConfig):
		return "config"
	case errors.Is(err, ErrExcessiveGain):
		return "excessive_gain"
	case errors.Is(err, ErrExcessiveLoss):
		return "excessive_loss"
	case errors.Is(err, ErrZeroIdentity),
		errors.Is(err, ErrNotPendingManager):
		return "identity"
	case errors.Is(err, ErrTransferFailed):
		return "transfer"
	case errors.Is(err, ErrDuplicateReport):
		return "duplicate"
	case errors.Is(err, ErrStaleReport):
		return "stale"
	default:
		return "internal"
	}
}

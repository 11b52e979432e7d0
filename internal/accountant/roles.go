package accountant

import "fmt"

// Roles is the serializable role assignment set.
type Roles struct {
	FeeManager        Identity `json:"fee_manager"`
	PendingFeeManager Identity `json:"pending_fee_manager"`
	VaultManager      Identity `json:"vault_manager"`
	FeeRecipient      Identity `json:"fee_recipient"`
}

// RoleStore holds the privileged identities and the permission checks used
// by every mutating operation. FeeManager and FeeRecipient are never zero
// after construction; the feeManager handover is two-phase.
// Not thread-safe — the engine serializes all access.
type RoleStore struct {
	roles Roles
}

func NewRoleStore(feeManager, feeRecipient Identity) (*RoleStore, error) {
	if feeManager == ZeroIdentity {
		return nil, fmt.Errorf("fee manager: %w", ErrZeroIdentity)
	}
	if feeRecipient == ZeroIdentity {
		return nil, fmt.Errorf("fee recipient: %w", ErrZeroIdentity)
	}
	return &RoleStore{roles: Roles{
		FeeManager:   feeManager,
		FeeRecipient: feeRecipient,
	}}, nil
}

func (rs *RoleStore) requireFeeManager(caller Identity) error {
	if caller != rs.roles.FeeManager {
		return fmt.Errorf("caller %s: %w", caller, ErrNotFeeManager)
	}
	return nil
}

func (rs *RoleStore) requireVaultManager(caller Identity) error {
	if caller != rs.roles.FeeManager && caller != rs.roles.VaultManager {
		return fmt.Errorf("caller %s: %w", caller, ErrNotVaultManager)
	}
	return nil
}

func (rs *RoleStore) requireSweeper(caller Identity) error {
	if caller != rs.roles.FeeManager && caller != rs.roles.FeeRecipient {
		return fmt.Errorf("caller %s: %w", caller, ErrNotFeeRecipient)
	}
	return nil
}

func (rs *RoleStore) propose(candidate Identity) {
	rs.roles.PendingFeeManager = candidate
}

// accept completes the two-phase handover. Only the most recently proposed
// candidate may accept; success transfers the role and clears the pending slot.
func (rs *RoleStore) accept(caller Identity) error {
	if rs.roles.PendingFeeManager == ZeroIdentity || caller != rs.roles.PendingFeeManager {
		return fmt.Errorf("caller %s: %w", caller, ErrNotPendingManager)
	}
	rs.roles.FeeManager = caller
	rs.roles.PendingFeeManager = ZeroIdentity
	return nil
}

func (rs *RoleStore) setVaultManager(id Identity) {
	// The vault manager slot may be cleared; only feeManager and
	// feeRecipient reject the zero identity.
	rs.roles.VaultManager = id
}

func (rs *RoleStore) setFeeRecipient(id Identity) error {
	if id == ZeroIdentity {
		return fmt.Errorf("fee recipient: %w", ErrZeroIdentity)
	}
	rs.roles.FeeRecipient = id
	return nil
}

func (rs *RoleStore) snapshot() Roles {
	return rs.roles
}

func (rs *RoleStore) restore(roles Roles) {
	rs.roles = roles
}

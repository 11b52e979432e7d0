package accountant

import (
	"fmt"
	"sort"
)

// Registration records a vault's membership and its underlying asset.
// The asset is captured at registration time so removal can clear the
// engine's outstanding spending allowance to the vault.
type Registration struct {
	Vault Identity `json:"vault"`
	Asset string   `json:"asset"`
}

// VaultRegistry tracks which vault identities may invoke the engine.
// Not thread-safe — the engine serializes all access.
type VaultRegistry struct {
	vaults map[Identity]Registration
}

func NewVaultRegistry() *VaultRegistry {
	return &VaultRegistry{vaults: make(map[Identity]Registration)}
}

func (vr *VaultRegistry) add(vault Identity, asset string) error {
	if _, ok := vr.vaults[vault]; ok {
		return fmt.Errorf("vault %s: %w", vault, ErrAlreadyRegistered)
	}
	vr.vaults[vault] = Registration{Vault: vault, Asset: asset}
	return nil
}

// remove clears membership and returns the registration so the caller can
// revoke the vault's asset allowance.
func (vr *VaultRegistry) remove(vault Identity) (Registration, error) {
	reg, ok := vr.vaults[vault]
	if !ok {
		return Registration{}, fmt.Errorf("vault %s: %w", vault, ErrNotRegistered)
	}
	delete(vr.vaults, vault)
	return reg, nil
}

func (vr *VaultRegistry) isRegistered(vault Identity) bool {
	_, ok := vr.vaults[vault]
	return ok
}

// list returns registrations sorted by vault for deterministic digests.
func (vr *VaultRegistry) list() []Registration {
	regs := make([]Registration, 0, len(vr.vaults))
	for _, reg := range vr.vaults {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Vault < regs[j].Vault })
	return regs
}

func (vr *VaultRegistry) restore(regs []Registration) {
	vr.vaults = make(map[Identity]Registration, len(regs))
	for _, reg := range regs {
		vr.vaults[reg.Vault] = reg
	}
}

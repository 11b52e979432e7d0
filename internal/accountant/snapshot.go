package accountant

import (
	"sort"
	"time"

	"VaultAccountant/internal/ledger"
)

// VaultSequence is a serializable (vault, next expected sequence) pair.
type VaultSequence struct {
	Vault        Identity `json:"vault"`
	NextSequence int64    `json:"next_sequence"`
}

// StateSnapshot is the complete engine state at one audit sequence. One is
// emitted with every committed event, so recovery is a single load with no
// event replay.
type StateSnapshot struct {
	Sequence  int64    `json:"sequence"`
	StateHash [32]byte `json:"state_hash"`

	Roles         Roles                    `json:"roles"`
	DefaultConfig FeeConfig                `json:"default_config"`
	CustomConfigs []CustomConfigEntry      `json:"custom_configs"`
	Registrations []Registration           `json:"registrations"`
	SkipFlags     []SkipFlag               `json:"skip_flags"`
	Balances      []ledger.BalanceEntry    `json:"balances"`
	Allowances    []ledger.AllowanceEntry  `json:"allowances"`
	VaultSeqs     []VaultSequence          `json:"vault_sequences"`

	// Recent idempotency keys to warm the dedup LRU on restore.
	IdempotencyKeys []string `json:"idempotency_keys"`

	CreatedAt time.Time `json:"created_at"`
}

func (a *Accountant) vaultSequenceEntries() []VaultSequence {
	entries := make([]VaultSequence, 0, len(a.vaultSeqs))
	for vault, next := range a.vaultSeqs {
		entries = append(entries, VaultSequence{Vault: vault, NextSequence: next})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Vault < entries[j].Vault })
	return entries
}

// snapshotLocked captures the full engine state. Caller holds the lock.
func (a *Accountant) snapshotLocked() *StateSnapshot {
	return &StateSnapshot{
		Sequence:        a.sequence,
		StateHash:       a.hasher.GetPrevHash(),
		Roles:           a.roles.snapshot(),
		DefaultConfig:   a.configs.defaultConfig(),
		CustomConfigs:   a.configs.customEntries(),
		Registrations:   a.registry.list(),
		SkipFlags:       a.gate.armedFlags(),
		Balances:        a.book.Balances(),
		Allowances:      a.book.Allowances(),
		VaultSeqs:       a.vaultSequenceEntries(),
		IdempotencyKeys: a.dedup.Keys(),
		CreatedAt:       time.Now(),
	}
}

// Snapshot returns the current engine state for an on-demand capture.
func (a *Accountant) Snapshot() *StateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// RestoreFromSnapshot replaces all engine state with the snapshot contents.
// Called once at startup before any traffic is accepted.
func (a *Accountant) RestoreFromSnapshot(snap *StateSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sequence = snap.Sequence
	a.hasher.SetPrevHash(snap.StateHash)
	a.roles.restore(snap.Roles)
	a.configs.restore(snap.DefaultConfig, snap.CustomConfigs)
	a.registry.restore(snap.Registrations)
	a.gate.restore(snap.SkipFlags)
	a.book.Restore(snap.Balances, snap.Allowances)

	a.vaultSeqs = make(map[Identity]int64, len(snap.VaultSeqs))
	for _, vs := range snap.VaultSeqs {
		a.vaultSeqs[vs.Vault] = vs.NextSequence
	}
	a.dedup.Warm(snap.IdempotencyKeys)

	if a.metrics != nil {
		a.metrics.EngineSequence.Set(float64(a.sequence))
		a.metrics.DedupLRUSize.Set(float64(a.dedup.Size()))
	}
	a.log.Info().
		Int64("sequence", a.sequence).
		Int("registrations", len(snap.Registrations)).
		Int("custom_configs", len(snap.CustomConfigs)).
		Msg("engine state restored from snapshot")
}

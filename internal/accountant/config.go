package accountant

import (
	"fmt"
	"sort"

	bps "VaultAccountant/internal/math"
)

// Identity is an opaque caller/vault/strategy identifier. The engine never
// interprets it beyond equality checks; authentication happens upstream.
type Identity string

// ZeroIdentity is the null identity. Role assignments reject it.
const ZeroIdentity Identity = ""

// FeeConfig parameterizes the health check for one vault.
// MaxGainBps == 0 disables the gain bound; MaxLossBps == 10000 disables
// the loss bound. MaxLossBps <= 10000 holds after every successful write.
type FeeConfig struct {
	MaxGainBps int64 `json:"max_gain_bps"`
	MaxLossBps int64 `json:"max_loss_bps"`
	IsCustom   bool  `json:"is_custom"`
}

// ConfigStore holds the process-wide default FeeConfig and per-vault
// overrides. Not thread-safe — the engine serializes all access.
type ConfigStore struct {
	def    FeeConfig
	custom map[Identity]FeeConfig
}

func NewConfigStore(def FeeConfig) (*ConfigStore, error) {
	if err := validateBounds(def.MaxGainBps, def.MaxLossBps); err != nil {
		return nil, err
	}
	def.IsCustom = false
	return &ConfigStore{
		def:    def,
		custom: make(map[Identity]FeeConfig),
	}, nil
}

func validateBounds(maxGainBps, maxLossBps int64) error {
	if maxGainBps < 0 || maxGainBps > bps.Denominator {
		return fmt.Errorf("max_gain_bps %d out of [0, %d]: %w", maxGainBps, bps.Denominator, ErrInvalidBound)
	}
	if maxLossBps < 0 || maxLossBps > bps.Denominator {
		return fmt.Errorf("max_loss_bps %d out of [0, %d]: %w", maxLossBps, bps.Denominator, ErrInvalidBound)
	}
	return nil
}

func (cs *ConfigStore) setDefault(maxGainBps, maxLossBps int64) error {
	if err := validateBounds(maxGainBps, maxLossBps); err != nil {
		return err
	}
	cs.def = FeeConfig{MaxGainBps: maxGainBps, MaxLossBps: maxLossBps, IsCustom: false}
	return nil
}

func (cs *ConfigStore) setCustom(vault Identity, maxGainBps, maxLossBps int64) error {
	if err := validateBounds(maxGainBps, maxLossBps); err != nil {
		return err
	}
	cs.custom[vault] = FeeConfig{MaxGainBps: maxGainBps, MaxLossBps: maxLossBps, IsCustom: true}
	return nil
}

func (cs *ConfigStore) clearCustom(vault Identity) error {
	if _, ok := cs.custom[vault]; !ok {
		return fmt.Errorf("vault %s: %w", vault, ErrNoCustomConfig)
	}
	delete(cs.custom, vault)
	return nil
}

// resolve returns the effective config for a vault: its custom override
// when one is set, the default otherwise.
func (cs *ConfigStore) resolve(vault Identity) FeeConfig {
	if cfg, ok := cs.custom[vault]; ok {
		return cfg
	}
	return cs.def
}

func (cs *ConfigStore) useCustom(vault Identity) bool {
	_, ok := cs.custom[vault]
	return ok
}

func (cs *ConfigStore) defaultConfig() FeeConfig {
	return cs.def
}

// customEntries returns custom configs sorted by vault for deterministic
// digests and snapshots.
func (cs *ConfigStore) customEntries() []CustomConfigEntry {
	entries := make([]CustomConfigEntry, 0, len(cs.custom))
	for vault, cfg := range cs.custom {
		entries = append(entries, CustomConfigEntry{Vault: vault, Config: cfg})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Vault < entries[j].Vault })
	return entries
}

// CustomConfigEntry is a serializable (vault, config) pair.
type CustomConfigEntry struct {
	Vault  Identity  `json:"vault"`
	Config FeeConfig `json:"config"`
}

func (cs *ConfigStore) restore(def FeeConfig, custom []CustomConfigEntry) {
	def.IsCustom = false
	cs.def = def
	cs.custom = make(map[Identity]FeeConfig, len(custom))
	for _, e := range custom {
		e.Config.IsCustom = true
		cs.custom[e.Vault] = e.Config
	}
}

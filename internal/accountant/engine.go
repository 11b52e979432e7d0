package accountant

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"VaultAccountant/internal/event"
	"VaultAccountant/internal/ledger"
	bps "VaultAccountant/internal/math"
	"VaultAccountant/internal/observability"
)

// unlimitedAllowance is granted to a vault at registration so it can pull
// refunds of its underlying asset; revoked at removal.
const unlimitedAllowance = int64(1<<63 - 1)

// VaultView is the narrow read-only collaborator interface through which
// the engine sees the reporting vault's state. Values are a single
// point-in-time snapshot; the engine never re-reads mid-call.
type VaultView interface {
	CurrentDebt(strategy Identity) int64
	TotalSupply() int64
	TotalAssets() int64
}

// SnapshotView is a VaultView backed by values the vault supplied with the
// report.
type SnapshotView struct {
	Debt   int64
	Supply int64
	Assets int64
}

func (v SnapshotView) CurrentDebt(Identity) int64 { return v.Debt }
func (v SnapshotView) TotalSupply() int64         { return v.Supply }
func (v SnapshotView) TotalAssets() int64         { return v.Assets }

// ReportMeta carries the ingestion bookkeeping for one report.
type ReportMeta struct {
	ReportID       uuid.UUID
	SourceSequence int64 // 0 when the transport provides no ordering key
	Timestamp      time.Time
}

// Output is one committed event, emitted to the persistence and projection
// workers. Snapshot is the full engine state after the event so recovery
// needs no replay.
type Output struct {
	Envelope *event.Envelope
	Snapshot *StateSnapshot
}

// Accountant is the fee-and-loss accounting engine. It owns all decision
// state (roles, registry, configs, skip flags, fee balances) and presents
// a globally-serialized, all-or-nothing view of every entry point: a
// single writer lock guards all state, and a failed call mutates nothing.
type Accountant struct {
	mu sync.Mutex

	roles    *RoleStore
	registry *VaultRegistry
	configs  *ConfigStore
	gate     *HealthCheckGate
	book     *ledger.Book

	hasher    *StateHasher
	dedup     *Deduper
	vaultSeqs map[Identity]int64 // vault -> next expected report sequence
	sequence  int64

	persistChan    chan<- Output
	projectionChan chan<- Output

	metrics *observability.Metrics
	log     zerolog.Logger
}

// EngineParams bundles the constructor dependencies.
type EngineParams struct {
	FeeManager    Identity
	FeeRecipient  Identity
	DefaultConfig FeeConfig

	DedupCapacity int
	DBDedup       DBDedupChecker

	PersistChan    chan<- Output
	ProjectionChan chan<- Output

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

func NewAccountant(p EngineParams) (*Accountant, error) {
	roles, err := NewRoleStore(p.FeeManager, p.FeeRecipient)
	if err != nil {
		return nil, err
	}
	configs, err := NewConfigStore(p.DefaultConfig)
	if err != nil {
		return nil, err
	}
	if p.DedupCapacity <= 0 {
		p.DedupCapacity = 100_000
	}

	return &Accountant{
		roles:          roles,
		registry:       NewVaultRegistry(),
		configs:        configs,
		gate:           NewHealthCheckGate(),
		book:           ledger.NewBook(),
		hasher:         NewStateHasher(),
		dedup:          NewDeduper(p.DedupCapacity, p.DBDedup),
		vaultSeqs:      make(map[Identity]int64),
		persistChan:    p.PersistChan,
		projectionChan: p.ProjectionChan,
		metrics:        p.Metrics,
		log:            p.Logger,
	}, nil
}

// ----------------------------------------------------------------------------
// Report processing
// ----------------------------------------------------------------------------

// Report turns one (caller, strategy, gain, loss) report into a fee
// decision. Callable only by a registered vault. The only state mutations
// on success are the one-shot skip consumption, ingestion bookkeeping, and
// the audit sequence advance; vault state is never touched.
func (a *Accountant) Report(
	caller, strategy Identity,
	gain, loss int64,
	view VaultView,
	meta ReportMeta,
) (event.ReportOutcome, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	outcome, err := a.reportLocked(caller, strategy, gain, loss, view, meta)
	if err != nil {
		if a.metrics != nil {
			a.metrics.ReportsRejected.WithLabelValues(string(caller), RejectReason(err)).Inc()
		}
		return event.ReportOutcome{}, err
	}

	if a.metrics != nil {
		a.metrics.ReportsApplied.WithLabelValues(string(caller)).Inc()
		a.metrics.ReportDuration.WithLabelValues(string(caller)).Observe(time.Since(start).Seconds())
		a.metrics.FeeOwedTotal.WithLabelValues(string(caller)).Add(float64(outcome.FeeOwed))
	}
	return outcome, nil
}

func (a *Accountant) reportLocked(
	caller, strategy Identity,
	gain, loss int64,
	view VaultView,
	meta ReportMeta,
) (event.ReportOutcome, error) {
	if !a.registry.isRegistered(caller) {
		return event.ReportOutcome{}, fmt.Errorf("report from %s: %w", caller, ErrVaultNotRegistered)
	}
	if gain < 0 || loss < 0 {
		return event.ReportOutcome{}, fmt.Errorf("report from %s: negative gain or loss", caller)
	}

	idemKey := meta.ReportID.String()
	if a.dedup.IsDuplicate(event.EventTypeReportProcessed.String(), idemKey) {
		if a.metrics != nil {
			a.metrics.IdempotencyDuplicates.WithLabelValues(event.EventTypeReportProcessed.String()).Inc()
		}
		return event.ReportOutcome{}, fmt.Errorf("report %s: %w", idemKey, ErrDuplicateReport)
	}
	if meta.SourceSequence > 0 && meta.SourceSequence < a.vaultSeqs[caller] {
		if a.metrics != nil {
			a.metrics.ReportsStale.WithLabelValues(string(caller)).Inc()
		}
		return event.ReportOutcome{}, fmt.Errorf("report %s seq %d < %d: %w",
			idemKey, meta.SourceSequence, a.vaultSeqs[caller], ErrStaleReport)
	}

	cfg := a.configs.resolve(caller)

	// One atomic read of the vault snapshot.
	currentDebt := view.CurrentDebt(strategy)
	totalSupply := view.TotalSupply()
	totalAssets := view.TotalAssets()

	skipped := a.gate.armed(caller, strategy)

	var fee int64
	if gain > 0 {
		if !skipped && cfg.MaxGainBps > 0 && !bps.WithinBound(gain, currentDebt, cfg.MaxGainBps) {
			return event.ReportOutcome{}, fmt.Errorf("vault %s strategy %s gain %d over %d bps of debt %d: %w",
				caller, strategy, gain, cfg.MaxGainBps, currentDebt, ErrExcessiveGain)
		}

		// 100% performance fee, but never while the vault is
		// under-collateralized: the gain first repairs the
		// supply/assets shortfall, fee applies only to the surplus.
		fee = gain
		if totalAssets < totalSupply {
			needed := totalSupply - totalAssets
			if gain < needed {
				fee = 0
			} else {
				fee = gain - needed
			}
		}
	} else {
		if !skipped && cfg.MaxLossBps < bps.Denominator && !bps.WithinBound(loss, currentDebt, cfg.MaxLossBps) {
			return event.ReportOutcome{}, fmt.Errorf("vault %s strategy %s loss %d over %d bps of debt %d: %w",
				caller, strategy, loss, cfg.MaxLossBps, currentDebt, ErrExcessiveLoss)
		}
		fee = 0
	}

	// All checks passed — commit. The skip flag is cleared on every
	// committed report regardless of branch, so one arming never buys
	// more than one bypass. A report that aborted above left it armed.
	a.gate.clear(caller, strategy)
	if meta.SourceSequence > 0 {
		a.vaultSeqs[caller] = meta.SourceSequence + 1
	}
	a.dedup.MarkProcessed(event.EventTypeReportProcessed.String(), idemKey)
	if skipped && a.metrics != nil {
		a.metrics.SkipsConsumed.WithLabelValues(string(caller)).Inc()
	}

	outcome := event.ReportOutcome{FeeOwed: fee, RefundOwed: 0}
	a.commit(event.EventTypeReportProcessed, caller, idemKey, meta.SourceSequence, meta.Timestamp,
		event.ReportProcessedPayload{
			ReportID:    idemKey,
			Vault:       string(caller),
			Strategy:    string(strategy),
			Gain:        gain,
			Loss:        loss,
			CurrentDebt: currentDebt,
			TotalSupply: totalSupply,
			TotalAssets: totalAssets,
			FeeOwed:     outcome.FeeOwed,
			RefundOwed:  outcome.RefundOwed,
			Skipped:     skipped,
			MaxGainBps:  cfg.MaxGainBps,
			MaxLossBps:  cfg.MaxLossBps,
		})

	a.log.Info().
		Str("vault", string(caller)).
		Str("strategy", string(strategy)).
		Int64("gain", gain).
		Int64("loss", loss).
		Int64("fee_owed", fee).
		Bool("health_check_skipped", skipped).
		Msg("report processed")

	return outcome, nil
}

// ProcessReport adapts an ingested StrategyReport event into a Report call.
func (a *Accountant) ProcessReport(evt *event.StrategyReport) (event.ReportOutcome, error) {
	return a.Report(
		Identity(evt.Vault),
		Identity(evt.Strategy),
		evt.Gain,
		evt.Loss,
		SnapshotView{Debt: evt.CurrentDebt, Supply: evt.TotalSupply, Assets: evt.TotalAssets},
		ReportMeta{ReportID: evt.ReportID, SourceSequence: evt.ReportSequence, Timestamp: evt.Timestamp},
	)
}

// ----------------------------------------------------------------------------
// Configuration
// ----------------------------------------------------------------------------

func (a *Accountant) SetDefaultConfig(caller Identity, maxGainBps, maxLossBps int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireFeeManager(caller); err != nil {
			return err
		}
		return a.configs.setDefault(maxGainBps, maxLossBps)
	}()
	if err != nil {
		a.denied("set_default_config", err)
		return err
	}

	a.commitAdmin(event.EventTypeDefaultConfigUpdated, nil, event.DefaultConfigUpdatedPayload{
		Caller:     string(caller),
		MaxGainBps: maxGainBps,
		MaxLossBps: maxLossBps,
	})
	a.applied("set_default_config")
	return nil
}

func (a *Accountant) SetCustomConfig(caller, vault Identity, maxGainBps, maxLossBps int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireFeeManager(caller); err != nil {
			return err
		}
		if !a.registry.isRegistered(vault) {
			return fmt.Errorf("vault %s: %w", vault, ErrVaultNotRegistered)
		}
		return a.configs.setCustom(vault, maxGainBps, maxLossBps)
	}()
	if err != nil {
		a.denied("set_custom_config", err)
		return err
	}

	a.commitAdmin(event.EventTypeCustomConfigUpdated, &vault, event.CustomConfigUpdatedPayload{
		Caller:     string(caller),
		Vault:      string(vault),
		MaxGainBps: maxGainBps,
		MaxLossBps: maxLossBps,
	})
	a.applied("set_custom_config")
	return nil
}

func (a *Accountant) ClearCustomConfig(caller, vault Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireFeeManager(caller); err != nil {
			return err
		}
		return a.configs.clearCustom(vault)
	}()
	if err != nil {
		a.denied("clear_custom_config", err)
		return err
	}

	a.commitAdmin(event.EventTypeCustomConfigRemoved, &vault, event.CustomConfigRemovedPayload{
		Caller: string(caller),
		Vault:  string(vault),
	})
	a.applied("clear_custom_config")
	return nil
}

// ----------------------------------------------------------------------------
// Registry
// ----------------------------------------------------------------------------

func (a *Accountant) AddVault(caller, vault Identity, asset string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireVaultManager(caller); err != nil {
			return err
		}
		return a.registry.add(vault, asset)
	}()
	if err != nil {
		a.denied("add_vault", err)
		return err
	}

	// Grant the refund allowance alongside membership.
	a.book.SetAllowance(string(vault), asset, unlimitedAllowance)

	a.commitAdmin(event.EventTypeVaultAdded, &vault, event.VaultChangedPayload{
		Caller: string(caller),
		Vault:  string(vault),
		Asset:  asset,
	})
	a.applied("add_vault")
	return nil
}

func (a *Accountant) RemoveVault(caller, vault Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.roles.requireVaultManager(caller); err != nil {
		a.denied("remove_vault", err)
		return err
	}
	reg, err := a.registry.remove(vault)
	if err != nil {
		a.denied("remove_vault", err)
		return err
	}

	// Defensive cleanup: no stale approvals survive deregistration.
	a.book.ClearAllowance(string(vault), reg.Asset)

	a.commitAdmin(event.EventTypeVaultRemoved, &vault, event.VaultChangedPayload{
		Caller: string(caller),
		Vault:  string(vault),
		Asset:  reg.Asset,
	})
	a.applied("remove_vault")
	return nil
}

// ----------------------------------------------------------------------------
// Health check gate
// ----------------------------------------------------------------------------

func (a *Accountant) SkipNextHealthCheck(caller, vault, strategy Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireFeeManager(caller); err != nil {
			return err
		}
		if !a.registry.isRegistered(vault) {
			return fmt.Errorf("vault %s: %w", vault, ErrVaultNotRegistered)
		}
		return nil
	}()
	if err != nil {
		a.denied("skip_next_health_check", err)
		return err
	}

	a.gate.arm(vault, strategy)
	a.commitAdmin(event.EventTypeHealthCheckSkipArmed, &vault, event.HealthCheckSkipArmedPayload{
		Caller:   string(caller),
		Vault:    string(vault),
		Strategy: string(strategy),
	})
	a.applied("skip_next_health_check")
	if a.metrics != nil {
		a.metrics.SkipsArmed.WithLabelValues(string(vault)).Inc()
	}
	return nil
}

// ----------------------------------------------------------------------------
// Fee accrual and distribution
// ----------------------------------------------------------------------------

// RecordAccrual credits fee-asset value minted to the engine by a vault.
func (a *Accountant) RecordAccrual(evt *event.FeeAccrued) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	vault := Identity(evt.Vault)
	if !a.registry.isRegistered(vault) {
		a.denied("record_accrual", ErrVaultNotRegistered)
		return fmt.Errorf("accrual from %s: %w", evt.Vault, ErrVaultNotRegistered)
	}
	if evt.Amount <= 0 {
		err := fmt.Errorf("accrual from %s: non-positive amount %d", evt.Vault, evt.Amount)
		a.denied("record_accrual", err)
		return err
	}

	idemKey := evt.AccrualID.String()
	if a.dedup.IsDuplicate(event.EventTypeFeeAccrued.String(), idemKey) {
		if a.metrics != nil {
			a.metrics.IdempotencyDuplicates.WithLabelValues(event.EventTypeFeeAccrued.String()).Inc()
		}
		return fmt.Errorf("accrual %s: %w", idemKey, ErrDuplicateReport)
	}

	a.book.Credit(evt.Asset, evt.Amount)
	a.dedup.MarkProcessed(event.EventTypeFeeAccrued.String(), idemKey)

	a.commit(event.EventTypeFeeAccrued, vault, idemKey, evt.AccrualSequence, evt.Timestamp,
		event.FeeAccruedPayload{
			AccrualID: idemKey,
			Vault:     evt.Vault,
			Asset:     evt.Asset,
			Amount:    evt.Amount,
			Balance:   a.book.Balance(evt.Asset),
		})

	if a.metrics != nil {
		a.metrics.FeesAccruedTotal.WithLabelValues(evt.Asset).Add(float64(evt.Amount))
		a.metrics.FeeBalance.WithLabelValues(evt.Asset).Set(float64(a.book.Balance(evt.Asset)))
	}
	a.applied("record_accrual")
	return nil
}

// Sweep transfers amount of asset (nil: the full balance) from the engine
// to the fee recipient. Trusted-role operation; no bound checks.
func (a *Accountant) Sweep(caller Identity, asset string, amount *int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.roles.requireSweeper(caller); err != nil {
		a.denied("sweep", err)
		return 0, err
	}

	toSweep := a.book.Balance(asset)
	if amount != nil {
		toSweep = *amount
	}
	if err := a.book.Debit(asset, toSweep); err != nil {
		a.denied("sweep", ErrTransferFailed)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	recipient := a.roles.snapshot().FeeRecipient
	sweepID := uuid.New().String()
	a.commitAdmin(event.EventTypeRewardsDistributed, nil, event.RewardsDistributedPayload{
		Caller:    string(caller),
		Asset:     asset,
		Amount:    toSweep,
		Recipient: string(recipient),
		SweepID:   sweepID,
	})

	if a.metrics != nil {
		a.metrics.FeesSweptTotal.WithLabelValues(asset).Add(float64(toSweep))
		a.metrics.FeeBalance.WithLabelValues(asset).Set(float64(a.book.Balance(asset)))
	}
	a.applied("sweep")

	a.log.Info().
		Str("asset", asset).
		Int64("amount", toSweep).
		Str("recipient", string(recipient)).
		Msg("rewards distributed")
	return toSweep, nil
}

// ----------------------------------------------------------------------------
// Roles
// ----------------------------------------------------------------------------

func (a *Accountant) ProposeFeeManager(caller, candidate Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.roles.requireFeeManager(caller); err != nil {
		a.denied("propose_fee_manager", err)
		return err
	}
	a.roles.propose(candidate)

	a.commitAdmin(event.EventTypeManagerProposed, nil, event.ManagerProposedPayload{
		Caller:    string(caller),
		Candidate: string(candidate),
	})
	a.applied("propose_fee_manager")
	return nil
}

func (a *Accountant) AcceptFeeManager(caller Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.roles.accept(caller); err != nil {
		a.denied("accept_fee_manager", err)
		return err
	}

	a.commitAdmin(event.EventTypeManagerAccepted, nil, event.ManagerAcceptedPayload{
		Manager: string(caller),
	})
	a.applied("accept_fee_manager")
	return nil
}

func (a *Accountant) SetVaultManager(caller, id Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.roles.requireFeeManager(caller); err != nil {
		a.denied("set_vault_manager", err)
		return err
	}
	a.roles.setVaultManager(id)

	a.commitAdmin(event.EventTypeVaultManagerUpdated, nil, event.RoleUpdatedPayload{
		Caller:   string(caller),
		Identity: string(id),
	})
	a.applied("set_vault_manager")
	return nil
}

func (a *Accountant) SetFeeRecipient(caller, id Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := func() error {
		if err := a.roles.requireFeeManager(caller); err != nil {
			return err
		}
		return a.roles.setFeeRecipient(id)
	}()
	if err != nil {
		a.denied("set_fee_recipient", err)
		return err
	}

	a.commitAdmin(event.EventTypeFeeRecipientUpdated, nil, event.RoleUpdatedPayload{
		Caller:   string(caller),
		Identity: string(id),
	})
	a.applied("set_fee_recipient")
	return nil
}

// ----------------------------------------------------------------------------
// Read-only views
// ----------------------------------------------------------------------------

// Resolve returns the effective FeeConfig for a vault.
func (a *Accountant) Resolve(vault Identity) FeeConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configs.resolve(vault)
}

// UseCustomConfig reports whether the vault has a custom override.
func (a *Accountant) UseCustomConfig(vault Identity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configs.useCustom(vault)
}

func (a *Accountant) DefaultConfig() FeeConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configs.defaultConfig()
}

func (a *Accountant) IsRegistered(vault Identity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.isRegistered(vault)
}

func (a *Accountant) Registrations() []Registration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.list()
}

func (a *Accountant) Roles() Roles {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roles.snapshot()
}

func (a *Accountant) FeeBalance(asset string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.book.Balance(asset)
}

func (a *Accountant) Sequence() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequence
}

func (a *Accountant) StateHash() [32]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasher.GetPrevHash()
}

// ----------------------------------------------------------------------------
// Commit plumbing
// ----------------------------------------------------------------------------

// commit seals one successful mutation: advance the audit sequence, chain
// the state hash, and emit the envelope plus a full state snapshot.
// Persist send blocks (backpressure); projection send drops when full.
func (a *Accountant) commit(
	et event.EventType,
	vault Identity,
	idemKey string,
	sourceSeq int64,
	ts time.Time,
	payload interface{},
) {
	a.sequence++

	data, err := json.Marshal(payload)
	if err != nil {
		// Payload structs are plain value types; failure here is a bug.
		panic(fmt.Sprintf("FATAL: marshal %s payload: %v", et, err))
	}

	digest := a.stateDigest()
	prevHash := a.hasher.GetPrevHash()
	stateHash := a.hasher.ComputeHash(a.sequence, digest)

	var vaultPtr *string
	if vault != ZeroIdentity {
		v := string(vault)
		vaultPtr = &v
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	env := &event.Envelope{
		Sequence:       a.sequence,
		IdempotencyKey: idemKey,
		EventType:      et,
		Vault:          vaultPtr,
		Timestamp:      ts,
		SourceSequence: sourceSeq,
		Payload:        data,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	out := Output{Envelope: env, Snapshot: a.snapshotLocked()}

	if a.persistChan != nil {
		a.persistChan <- out
	}
	if a.projectionChan != nil {
		select {
		case a.projectionChan <- out:
		default:
			if a.metrics != nil {
				a.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if a.metrics != nil {
		a.metrics.EngineSequence.Set(float64(a.sequence))
		a.metrics.DedupLRUSize.Set(float64(a.dedup.Size()))
	}
}

// commitAdmin commits an operation that has no upstream idempotency key;
// the key is derived from the event type and sequence.
func (a *Accountant) commitAdmin(et event.EventType, vault *Identity, payload interface{}) {
	var v Identity
	if vault != nil {
		v = *vault
	}
	idemKey := fmt.Sprintf("%s:%d", et, a.sequence+1)
	a.commit(et, v, idemKey, 0, time.Now(), payload)
}

func (a *Accountant) applied(op string) {
	if a.metrics != nil {
		a.metrics.AdminOpsApplied.WithLabelValues(op).Inc()
	}
}

func (a *Accountant) denied(op string, err error) {
	if a.metrics != nil {
		a.metrics.AdminOpsDenied.WithLabelValues(op, RejectReason(err)).Inc()
	}
}

// stateDigest builds the canonical byte encoding of all engine state.
func (a *Accountant) stateDigest() []byte {
	var d digestWriter

	roles := a.roles.snapshot()
	d.str(string(roles.FeeManager))
	d.str(string(roles.PendingFeeManager))
	d.str(string(roles.VaultManager))
	d.str(string(roles.FeeRecipient))

	def := a.configs.defaultConfig()
	d.i64(def.MaxGainBps)
	d.i64(def.MaxLossBps)

	for _, e := range a.configs.customEntries() {
		d.str(string(e.Vault))
		d.i64(e.Config.MaxGainBps)
		d.i64(e.Config.MaxLossBps)
	}
	for _, reg := range a.registry.list() {
		d.str(string(reg.Vault))
		d.str(reg.Asset)
	}
	for _, f := range a.gate.armedFlags() {
		d.str(string(f.Vault))
		d.str(string(f.Strategy))
	}
	for _, b := range a.book.Balances() {
		d.str(b.Asset)
		d.i64(b.Balance)
	}
	for _, al := range a.book.Allowances() {
		d.str(al.Spender)
		d.str(al.Asset)
		d.i64(al.Amount)
	}
	for _, vs := range a.vaultSequenceEntries() {
		d.str(string(vs.Vault))
		d.i64(vs.NextSequence)
	}

	return d.buf
}

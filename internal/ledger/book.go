package ledger

import (
	"fmt"
	"sort"
)

// Book tracks the engine's own fee-asset balances and the spending
// allowances it has granted to vaults. Balances are credited by vault
// accrual events and debited only by sweeps.
// Not thread-safe — only accessed under the engine's writer lock.
type Book struct {
	balances   map[string]int64 // asset -> balance
	allowances map[string]int64 // "spender:asset" -> allowance
}

func NewBook() *Book {
	return &Book{
		balances:   make(map[string]int64),
		allowances: make(map[string]int64),
	}
}

// Credit adds amount to the engine's balance of asset.
func (b *Book) Credit(asset string, amount int64) {
	if amount <= 0 {
		return
	}
	b.balances[asset] += amount
}

// Debit removes amount from the engine's balance of asset. Fails when the
// balance is short; the caller's operation aborts with no state change.
func (b *Book) Debit(asset string, amount int64) error {
	bal := b.balances[asset]
	if amount > bal {
		return fmt.Errorf("debit %d of %s exceeds balance %d", amount, asset, bal)
	}
	b.balances[asset] = bal - amount
	return nil
}

// Balance returns the engine's current balance of asset.
func (b *Book) Balance(asset string) int64 {
	return b.balances[asset]
}

func allowanceKey(spender, asset string) string {
	return fmt.Sprintf("%s:%s", spender, asset)
}

// SetAllowance records an allowance granted to spender for asset.
func (b *Book) SetAllowance(spender, asset string, amount int64) {
	if amount == 0 {
		delete(b.allowances, allowanceKey(spender, asset))
		return
	}
	b.allowances[allowanceKey(spender, asset)] = amount
}

// ClearAllowance revokes any outstanding allowance to spender for asset.
func (b *Book) ClearAllowance(spender, asset string) {
	delete(b.allowances, allowanceKey(spender, asset))
}

// Allowance returns the outstanding allowance to spender for asset.
func (b *Book) Allowance(spender, asset string) int64 {
	return b.allowances[allowanceKey(spender, asset)]
}

// BalanceEntry is a serializable (asset, balance) pair.
type BalanceEntry struct {
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// AllowanceEntry is a serializable allowance record.
type AllowanceEntry struct {
	Spender string `json:"spender"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

// Balances returns all non-zero balances sorted by asset for deterministic
// digests and snapshots.
func (b *Book) Balances() []BalanceEntry {
	entries := make([]BalanceEntry, 0, len(b.balances))
	for asset, bal := range b.balances {
		if bal != 0 {
			entries = append(entries, BalanceEntry{Asset: asset, Balance: bal})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Asset < entries[j].Asset })
	return entries
}

// Allowances returns all outstanding allowances sorted by key.
func (b *Book) Allowances() []AllowanceEntry {
	keys := make([]string, 0, len(b.allowances))
	for k := range b.allowances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]AllowanceEntry, 0, len(keys))
	for _, k := range keys {
		var spender, asset string
		for i := 0; i < len(k); i++ {
			if k[i] == ':' {
				spender = k[:i]
				asset = k[i+1:]
				break
			}
		}
		entries = append(entries, AllowanceEntry{Spender: spender, Asset: asset, Amount: b.allowances[k]})
	}
	return entries
}

// Restore replaces the book contents from snapshot entries.
func (b *Book) Restore(balances []BalanceEntry, allowances []AllowanceEntry) {
	b.balances = make(map[string]int64, len(balances))
	for _, e := range balances {
		b.balances[e.Asset] = e.Balance
	}
	b.allowances = make(map[string]int64, len(allowances))
	for _, e := range allowances {
		b.allowances[allowanceKey(e.Spender, e.Asset)] = e.Amount
	}
}

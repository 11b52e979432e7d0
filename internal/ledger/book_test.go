package ledger_test

import (
	"testing"

	"VaultAccountant/internal/ledger"
)

func TestBook_CreditDebit(t *testing.T) {
	b := ledger.NewBook()

	b.Credit("USDC", 100)
	b.Credit("USDC", 50)
	if got := b.Balance("USDC"); got != 150 {
		t.Fatalf("balance = %d, want 150", got)
	}

	// Non-positive credits are no-ops.
	b.Credit("USDC", 0)
	b.Credit("USDC", -10)
	if got := b.Balance("USDC"); got != 150 {
		t.Fatalf("balance after no-op credits = %d, want 150", got)
	}

	if err := b.Debit("USDC", 60); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got := b.Balance("USDC"); got != 90 {
		t.Fatalf("balance = %d, want 90", got)
	}
}

func TestBook_OverdraftRejected(t *testing.T) {
	b := ledger.NewBook()
	b.Credit("USDC", 100)

	if err := b.Debit("USDC", 101); err == nil {
		t.Fatal("overdraft should fail")
	}
	if got := b.Balance("USDC"); got != 100 {
		t.Fatalf("failed debit must not change balance, got %d", got)
	}

	// Unknown asset has zero balance.
	if err := b.Debit("WETH", 1); err == nil {
		t.Fatal("debit on unknown asset should fail")
	}
}

func TestBook_Allowances(t *testing.T) {
	b := ledger.NewBook()

	b.SetAllowance("vault-a", "USDC", 500)
	if got := b.Allowance("vault-a", "USDC"); got != 500 {
		t.Fatalf("allowance = %d, want 500", got)
	}
	if got := b.Allowance("vault-a", "WETH"); got != 0 {
		t.Fatalf("allowance for other asset = %d, want 0", got)
	}

	// Setting to zero removes the entry.
	b.SetAllowance("vault-a", "USDC", 0)
	if got := b.Allowance("vault-a", "USDC"); got != 0 {
		t.Fatalf("cleared allowance = %d, want 0", got)
	}
	if len(b.Allowances()) != 0 {
		t.Fatalf("expected no allowance entries, got %v", b.Allowances())
	}

	b.SetAllowance("vault-b", "USDC", 100)
	b.ClearAllowance("vault-b", "USDC")
	if got := b.Allowance("vault-b", "USDC"); got != 0 {
		t.Fatalf("allowance after clear = %d, want 0", got)
	}
}

func TestBook_SnapshotEntriesSorted(t *testing.T) {
	b := ledger.NewBook()
	b.Credit("WETH", 5)
	b.Credit("DAI", 10)
	b.Credit("USDC", 20)
	b.SetAllowance("vault-b", "USDC", 2)
	b.SetAllowance("vault-a", "USDC", 1)

	balances := b.Balances()
	if len(balances) != 3 {
		t.Fatalf("expected 3 balances, got %d", len(balances))
	}
	for i := 1; i < len(balances); i++ {
		if balances[i-1].Asset >= balances[i].Asset {
			t.Fatalf("balances not sorted: %v", balances)
		}
	}

	allowances := b.Allowances()
	if len(allowances) != 2 || allowances[0].Spender != "vault-a" {
		t.Fatalf("allowances wrong or unsorted: %v", allowances)
	}
}

func TestBook_Restore(t *testing.T) {
	b := ledger.NewBook()
	b.Credit("STALE", 999)

	b.Restore(
		[]ledger.BalanceEntry{{Asset: "USDC", Balance: 150}},
		[]ledger.AllowanceEntry{{Spender: "vault-a", Asset: "USDC", Amount: 42}},
	)

	if got := b.Balance("STALE"); got != 0 {
		t.Fatalf("restore must replace prior state, STALE = %d", got)
	}
	if got := b.Balance("USDC"); got != 150 {
		t.Fatalf("restored balance = %d, want 150", got)
	}
	if got := b.Allowance("vault-a", "USDC"); got != 42 {
		t.Fatalf("restored allowance = %d, want 42", got)
	}
}

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"VaultAccountant/internal/accountant"
	"VaultAccountant/internal/observability"
	"VaultAccountant/internal/server"
)

const (
	feeManager = "fee-manager"
	recipient  = "treasury"
	vaultA     = "vault-a"
)

type fixture struct {
	srv      *httptest.Server
	health   *observability.HealthChecker
	rebuilds int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	persistChan := make(chan accountant.Output, 1024)
	projChan := make(chan accountant.Output, 1024)
	eng, err := accountant.NewAccountant(accountant.EngineParams{
		FeeManager:     accountant.Identity(feeManager),
		FeeRecipient:   accountant.Identity(recipient),
		DefaultConfig:  accountant.FeeConfig{MaxGainBps: 10_000, MaxLossBps: 0},
		DedupCapacity:  1024,
		PersistChan:    persistChan,
		ProjectionChan: projChan,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewAccountant: %v", err)
	}

	health := observability.NewHealthChecker()
	f := &fixture{health: health}
	rebuild := func(context.Context) error {
		f.rebuilds++
		return nil
	}
	f.srv = httptest.NewServer(server.New(eng, nil, rebuild, health, nil, zerolog.Nop()).Router())
	t.Cleanup(f.srv.Close)

	return f
}

// do sends a JSON request with the given caller identity and decodes the
// response body into out (when non-nil).
func (f *fixture) do(t *testing.T, method, path, as string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Caller-Identity", as)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) registerVault(t *testing.T, vault string) {
	t.Helper()
	code := f.do(t, http.MethodPost, "/v1/vaults", feeManager,
		map[string]string{"vault": vault, "asset": "USDC"}, nil)
	if code != http.StatusCreated {
		t.Fatalf("register vault: status %d", code)
	}
}

func reportBody(gain, loss, seq int64) map[string]interface{} {
	return map[string]interface{}{
		"report_id":    uuid.New().String(),
		"strategy":     "strategy-1",
		"gain":         gain,
		"loss":         loss,
		"current_debt": 500,
		"total_supply": 1000,
		"total_assets": 1000,
		"sequence":     seq,
		"timestamp_us": 1_700_000_000_000_000 + seq,
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	if code := f.do(t, http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("healthz: status %d", code)
	}
	if code := f.do(t, http.MethodGet, "/readyz", "", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready: status %d", code)
	}
	f.health.SetReady(true)
	if code := f.do(t, http.MethodGet, "/readyz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("readyz after ready: status %d", code)
	}
}

func TestSubmitReport(t *testing.T) {
	f := newFixture(t)
	f.registerVault(t, vaultA)

	var out struct {
		FeeOwed int64 `json:"fee_owed"`
	}
	code := f.do(t, http.MethodPost, "/v1/reports", vaultA, reportBody(60, 0, 1), &out)
	if code != http.StatusOK {
		t.Fatalf("report: status %d", code)
	}
	if out.FeeOwed != 60 {
		t.Fatalf("fee_owed = %d, want 60", out.FeeOwed)
	}
}

func TestSubmitReport_Errors(t *testing.T) {
	f := newFixture(t)
	f.registerVault(t, vaultA)

	// Unregistered caller.
	if code := f.do(t, http.MethodPost, "/v1/reports", "ghost-vault", reportBody(10, 0, 1), nil); code != http.StatusNotFound {
		t.Fatalf("unregistered: status %d", code)
	}

	// Both gain and loss set.
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, reportBody(10, 10, 1), nil); code != http.StatusBadRequest {
		t.Fatalf("gain+loss: status %d", code)
	}

	// Bad report id.
	bad := reportBody(10, 0, 1)
	bad["report_id"] = "not-a-uuid"
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, bad, nil); code != http.StatusBadRequest {
		t.Fatalf("bad report_id: status %d", code)
	}

	// Unknown fields are rejected.
	odd := reportBody(10, 0, 1)
	odd["surprise"] = true
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, odd, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", code)
	}

	// Loss over the default zero bound.
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, reportBody(0, 10, 2), nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("excessive loss: status %d", code)
	}

	// Duplicate report id.
	body := reportBody(10, 0, 3)
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, body, nil); code != http.StatusOK {
		t.Fatalf("first submit: unexpected status")
	}
	body["sequence"] = int64(5)
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, body, nil); code != http.StatusConflict {
		t.Fatalf("duplicate: status %d", code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t)
	f.registerVault(t, vaultA)

	// Non-manager cannot change the default.
	cfg := map[string]int64{"max_gain_bps": 2000, "max_loss_bps": 500}
	if code := f.do(t, http.MethodPut, "/v1/config/default", vaultA, cfg, nil); code != http.StatusForbidden {
		t.Fatalf("non-manager default: status %d", code)
	}

	if code := f.do(t, http.MethodPut, "/v1/config/default", feeManager, cfg, nil); code != http.StatusOK {
		t.Fatalf("set default: status %d", code)
	}

	var got struct {
		MaxGainBps int64 `json:"max_gain_bps"`
		MaxLossBps int64 `json:"max_loss_bps"`
		IsCustom   bool  `json:"is_custom"`
	}
	f.do(t, http.MethodGet, "/v1/config/default", "", nil, &got)
	if got.MaxGainBps != 2000 || got.MaxLossBps != 500 {
		t.Fatalf("default config = %+v", got)
	}

	// Custom override and its removal.
	custom := map[string]int64{"max_gain_bps": 100, "max_loss_bps": 100}
	if code := f.do(t, http.MethodPut, "/v1/config/vaults/"+vaultA, feeManager, custom, &got); code != http.StatusOK {
		t.Fatalf("set custom: status %d", code)
	}
	if !got.IsCustom || got.MaxGainBps != 100 {
		t.Fatalf("custom config = %+v", got)
	}

	if code := f.do(t, http.MethodDelete, "/v1/config/vaults/"+vaultA, feeManager, nil, &got); code != http.StatusOK {
		t.Fatalf("clear custom: status %d", code)
	}
	if got.IsCustom || got.MaxGainBps != 2000 {
		t.Fatalf("config after clear = %+v", got)
	}

	// Clearing again is a 404.
	if code := f.do(t, http.MethodDelete, "/v1/config/vaults/"+vaultA, feeManager, nil, nil); code != http.StatusNotFound {
		t.Fatalf("double clear: status %d", code)
	}

	// Out-of-range bound.
	if code := f.do(t, http.MethodPut, "/v1/config/default", feeManager, map[string]int64{"max_gain_bps": 10_001}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid bound: status %d", code)
	}
}

func TestVaultEndpoints(t *testing.T) {
	f := newFixture(t)

	// Non-manager cannot register.
	if code := f.do(t, http.MethodPost, "/v1/vaults", "random",
		map[string]string{"vault": vaultA, "asset": "USDC"}, nil); code != http.StatusForbidden {
		t.Fatalf("non-manager add: status %d", code)
	}

	f.registerVault(t, vaultA)

	// Duplicate registration conflicts.
	if code := f.do(t, http.MethodPost, "/v1/vaults", feeManager,
		map[string]string{"vault": vaultA, "asset": "USDC"}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate add: status %d", code)
	}

	var vaults []struct {
		Vault string `json:"vault"`
		Asset string `json:"asset"`
	}
	f.do(t, http.MethodGet, "/v1/vaults", "", nil, &vaults)
	if len(vaults) != 1 || vaults[0].Vault != vaultA {
		t.Fatalf("vault list = %+v", vaults)
	}

	if code := f.do(t, http.MethodDelete, "/v1/vaults/"+vaultA, feeManager, nil, nil); code != http.StatusNoContent {
		t.Fatalf("remove: status %d", code)
	}
	if code := f.do(t, http.MethodDelete, "/v1/vaults/"+vaultA, feeManager, nil, nil); code != http.StatusNotFound {
		t.Fatalf("remove missing: status %d", code)
	}
}

func TestSkipHealthCheckEndpoint(t *testing.T) {
	f := newFixture(t)
	f.registerVault(t, vaultA)

	path := fmt.Sprintf("/v1/vaults/%s/strategies/strategy-1/skip-health-check", vaultA)
	if code := f.do(t, http.MethodPost, path, vaultA, nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-manager skip: status %d", code)
	}
	if code := f.do(t, http.MethodPost, path, feeManager, nil, nil); code != http.StatusNoContent {
		t.Fatalf("skip: status %d", code)
	}

	// The armed skip lets an out-of-bound loss through once.
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, reportBody(0, 100, 1), nil); code != http.StatusOK {
		t.Fatalf("skipped report: status %d", code)
	}
	if code := f.do(t, http.MethodPost, "/v1/reports", vaultA, reportBody(0, 100, 2), nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("second loss: status %d", code)
	}
}

func TestAccrualAndSweepEndpoints(t *testing.T) {
	f := newFixture(t)
	f.registerVault(t, vaultA)

	accrue := map[string]interface{}{
		"accrual_id":   uuid.New().String(),
		"asset":        "USDC",
		"amount":       150,
		"sequence":     1,
		"timestamp_us": 1_700_000_000_000_000,
	}
	var balance struct {
		Balance int64 `json:"balance"`
	}
	if code := f.do(t, http.MethodPost, "/v1/accruals", vaultA, accrue, &balance); code != http.StatusOK {
		t.Fatalf("accrue: status %d", code)
	}
	if balance.Balance != 150 {
		t.Fatalf("balance = %d, want 150", balance.Balance)
	}

	// Partial sweep by the recipient.
	part := int64(40)
	var swept struct {
		Swept int64 `json:"swept"`
	}
	if code := f.do(t, http.MethodPost, "/v1/sweep", recipient,
		map[string]interface{}{"asset": "USDC", "amount": part}, &swept); code != http.StatusOK {
		t.Fatalf("partial sweep: status %d", code)
	}
	if swept.Swept != 40 {
		t.Fatalf("swept = %d, want 40", swept.Swept)
	}

	// Overdraft.
	if code := f.do(t, http.MethodPost, "/v1/sweep", recipient,
		map[string]interface{}{"asset": "USDC", "amount": 999}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraft sweep: status %d", code)
	}

	// Unauthorized caller.
	if code := f.do(t, http.MethodPost, "/v1/sweep", vaultA,
		map[string]string{"asset": "USDC"}, nil); code != http.StatusForbidden {
		t.Fatalf("unauthorized sweep: status %d", code)
	}

	// Full sweep drains the rest.
	if code := f.do(t, http.MethodPost, "/v1/sweep", feeManager,
		map[string]string{"asset": "USDC"}, &swept); code != http.StatusOK {
		t.Fatalf("full sweep: status %d", code)
	}
	if swept.Swept != 110 {
		t.Fatalf("swept = %d, want 110", swept.Swept)
	}
}

func TestRebuildProjectionsEndpoint(t *testing.T) {
	f := newFixture(t)

	// Only the fee manager may trigger a rebuild.
	if code := f.do(t, http.MethodPost, "/v1/admin/projections/rebuild", "random", nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-manager rebuild: status %d", code)
	}
	if f.rebuilds != 0 {
		t.Fatalf("rebuild ran for unauthorized caller")
	}

	var out struct {
		Status string `json:"status"`
	}
	if code := f.do(t, http.MethodPost, "/v1/admin/projections/rebuild", feeManager, nil, &out); code != http.StatusOK {
		t.Fatalf("rebuild: status %d", code)
	}
	if out.Status != "rebuilt" || f.rebuilds != 1 {
		t.Fatalf("status=%q rebuilds=%d", out.Status, f.rebuilds)
	}
}

func TestRoleEndpoints(t *testing.T) {
	f := newFixture(t)

	next := "next-manager"
	if code := f.do(t, http.MethodPost, "/v1/roles/fee-manager/propose", feeManager,
		map[string]string{"identity": next}, nil); code != http.StatusOK {
		t.Fatalf("propose: status %d", code)
	}

	// Wrong candidate cannot accept.
	if code := f.do(t, http.MethodPost, "/v1/roles/fee-manager/accept", "impostor", nil, nil); code != http.StatusForbidden {
		t.Fatalf("impostor accept: status %d", code)
	}

	var roles struct {
		FeeManager        string `json:"fee_manager"`
		PendingFeeManager string `json:"pending_fee_manager"`
	}
	if code := f.do(t, http.MethodPost, "/v1/roles/fee-manager/accept", next, nil, &roles); code != http.StatusOK {
		t.Fatalf("accept: status %d", code)
	}
	if roles.FeeManager != next || roles.PendingFeeManager != "" {
		t.Fatalf("roles after handover = %+v", roles)
	}

	// The new manager updates the recipient; a zero identity is rejected.
	if code := f.do(t, http.MethodPut, "/v1/roles/fee-recipient", next,
		map[string]string{"identity": ""}, nil); code != http.StatusBadRequest {
		t.Fatalf("zero recipient: status %d", code)
	}
	if code := f.do(t, http.MethodPut, "/v1/roles/fee-recipient", next,
		map[string]string{"identity": "new-treasury"}, nil); code != http.StatusOK {
		t.Fatalf("set recipient: status %d", code)
	}

	// Vault manager bootstrap by the new fee manager.
	if code := f.do(t, http.MethodPut, "/v1/roles/vault-manager", next,
		map[string]string{"identity": "ops"}, nil); code != http.StatusOK {
		t.Fatalf("set vault manager: status %d", code)
	}
	if code := f.do(t, http.MethodPost, "/v1/vaults", "ops",
		map[string]string{"vault": vaultA, "asset": "USDC"}, nil); code != http.StatusCreated {
		t.Fatalf("vault manager add: status %d", code)
	}
}

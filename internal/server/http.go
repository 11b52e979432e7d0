package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"VaultAccountant/internal/accountant"
	"VaultAccountant/internal/event"
	"VaultAccountant/internal/observability"
	"VaultAccountant/internal/query"
)

// callerHeader carries the authenticated caller identity. Authentication
// happens at the edge (gateway/mTLS); the engine only authorizes.
const callerHeader = "X-Caller-Identity"

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the engine and the query service over HTTP/JSON.
type Server struct {
	engine  *accountant.Accountant
	queries *query.Service
	rebuild func(context.Context) error
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	engine *accountant.Accountant,
	queries *query.Service,
	rebuild func(context.Context) error,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		rebuild: rebuild,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/reports", s.submitReport)
		r.Post("/accruals", s.recordAccrual)

		r.Put("/config/default", s.setDefaultConfig)
		r.Get("/config/default", s.getDefaultConfig)
		r.Put("/config/vaults/{vault}", s.setCustomConfig)
		r.Delete("/config/vaults/{vault}", s.clearCustomConfig)
		r.Get("/config/vaults/{vault}", s.getEffectiveConfig)

		r.Post("/vaults", s.addVault)
		r.Get("/vaults", s.listVaults)
		r.Delete("/vaults/{vault}", s.removeVault)
		r.Post("/vaults/{vault}/strategies/{strategy}/skip-health-check", s.skipHealthCheck)

		r.Post("/sweep", s.sweep)

		r.Get("/roles", s.getRoles)
		r.Post("/roles/fee-manager/propose", s.proposeFeeManager)
		r.Post("/roles/fee-manager/accept", s.acceptFeeManager)
		r.Put("/roles/vault-manager", s.setVaultManager)
		r.Put("/roles/fee-recipient", s.setFeeRecipient)

		r.Post("/admin/projections/rebuild", s.rebuildProjections)

		r.Get("/vaults/{vault}/reports", s.reportHistory)
		r.Get("/vaults/{vault}/stats", s.vaultStats)
		r.Get("/fees/totals", s.feeTotals)
		r.Get("/audit", s.auditLog)
		r.Get("/audit/integrity", s.verifyIntegrity)
	})

	return r
}

func caller(r *http.Request) accountant.Identity {
	return accountant.Identity(r.Header.Get(callerHeader))
}

// --- Report ingestion ---

type reportRequest struct {
	ReportID    string `json:"report_id"`
	Strategy    string `json:"strategy"`
	Gain        int64  `json:"gain"`
	Loss        int64  `json:"loss"`
	CurrentDebt int64  `json:"current_debt"`
	TotalSupply int64  `json:"total_supply"`
	TotalAssets int64  `json:"total_assets"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reportID, err := uuid.Parse(req.ReportID)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid report_id"))
		return
	}
	if req.Gain > 0 && req.Loss > 0 {
		writeError(w, http.StatusBadRequest, errors.New("gain and loss both non-zero"))
		return
	}

	outcome, err := s.engine.Report(
		caller(r),
		accountant.Identity(req.Strategy),
		req.Gain,
		req.Loss,
		accountant.SnapshotView{Debt: req.CurrentDebt, Supply: req.TotalSupply, Assets: req.TotalAssets},
		accountant.ReportMeta{
			ReportID:       reportID,
			SourceSequence: req.Sequence,
			Timestamp:      time.UnixMicro(req.TimestampUs),
		},
	)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type accrualRequest struct {
	AccrualID   string `json:"accrual_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (s *Server) recordAccrual(w http.ResponseWriter, r *http.Request) {
	var req accrualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	accrualID, err := uuid.Parse(req.AccrualID)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid accrual_id"))
		return
	}

	err = s.engine.RecordAccrual(&event.FeeAccrued{
		AccrualID:       accrualID,
		Vault:           string(caller(r)),
		Asset:           req.Asset,
		Amount:          req.Amount,
		AccrualSequence: req.Sequence,
		Timestamp:       time.UnixMicro(req.TimestampUs),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"balance": s.engine.FeeBalance(req.Asset),
	})
}

// --- Configuration ---

type configRequest struct {
	MaxGainBps int64 `json:"max_gain_bps"`
	MaxLossBps int64 `json:"max_loss_bps"`
}

func (s *Server) setDefaultConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetDefaultConfig(caller(r), req.MaxGainBps, req.MaxLossBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.DefaultConfig())
}

func (s *Server) getDefaultConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DefaultConfig())
}

func (s *Server) setCustomConfig(w http.ResponseWriter, r *http.Request) {
	vault := accountant.Identity(chi.URLParam(r, "vault"))
	var req configRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetCustomConfig(caller(r), vault, req.MaxGainBps, req.MaxLossBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Resolve(vault))
}

func (s *Server) clearCustomConfig(w http.ResponseWriter, r *http.Request) {
	vault := accountant.Identity(chi.URLParam(r, "vault"))
	if err := s.engine.ClearCustomConfig(caller(r), vault); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Resolve(vault))
}

func (s *Server) getEffectiveConfig(w http.ResponseWriter, r *http.Request) {
	vault := accountant.Identity(chi.URLParam(r, "vault"))
	writeJSON(w, http.StatusOK, s.engine.Resolve(vault))
}

// --- Registry ---

type addVaultRequest struct {
	Vault string `json:"vault"`
	Asset string `json:"asset"`
}

func (s *Server) addVault(w http.ResponseWriter, r *http.Request) {
	var req addVaultRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.AddVault(caller(r), accountant.Identity(req.Vault), req.Asset); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"vault": req.Vault, "asset": req.Asset})
}

func (s *Server) removeVault(w http.ResponseWriter, r *http.Request) {
	vault := accountant.Identity(chi.URLParam(r, "vault"))
	if err := s.engine.RemoveVault(caller(r), vault); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listVaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registrations())
}

// --- Health check gate ---

func (s *Server) skipHealthCheck(w http.ResponseWriter, r *http.Request) {
	vault := accountant.Identity(chi.URLParam(r, "vault"))
	strategy := accountant.Identity(chi.URLParam(r, "strategy"))
	if err := s.engine.SkipNextHealthCheck(caller(r), vault, strategy); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Rewards ---

type sweepRequest struct {
	Asset  string `json:"asset"`
	Amount *int64 `json:"amount,omitempty"` // nil sweeps the full balance
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	swept, err := s.engine.Sweep(caller(r), req.Asset, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"swept": swept})
}

// --- Roles ---

type identityRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) getRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

func (s *Server) proposeFeeManager(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.ProposeFeeManager(caller(r), accountant.Identity(req.Identity)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

func (s *Server) acceptFeeManager(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AcceptFeeManager(caller(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

func (s *Server) setVaultManager(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetVaultManager(caller(r), accountant.Identity(req.Identity)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

func (s *Server) setFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFeeRecipient(caller(r), accountant.Identity(req.Identity)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Roles())
}

// --- Admin ---

// rebuildProjections repopulates the read-model tables from the audit log.
// The projection path drops under pressure, so drift is recoverable by
// design; this is the recovery lever.
func (s *Server) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	if caller(r) != s.engine.Roles().FeeManager {
		writeEngineError(w, accountant.ErrNotFeeManager)
		return
	}
	if s.rebuild == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("projection rebuild unavailable"))
		return
	}

	start := time.Now()
	if err := s.rebuild(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("projection rebuild failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info().Dur("took", time.Since(start)).Msg("projections rebuilt")
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// --- Queries ---

func (s *Server) reportHistory(w http.ResponseWriter, r *http.Request) {
	s.instrument("report_history", w, r, func() (interface{}, error) {
		vault := chi.URLParam(r, "vault")
		limit := queryInt(r, "limit", 50)
		var before *int64
		if v := r.URL.Query().Get("before_sequence"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, errBadQuery
			}
			before = &n
		}
		return s.queries.ReportHistory(r.Context(), vault, limit, before)
	})
}

func (s *Server) vaultStats(w http.ResponseWriter, r *http.Request) {
	s.instrument("vault_stats", w, r, func() (interface{}, error) {
		return s.queries.Stats(r.Context(), chi.URLParam(r, "vault"))
	})
}

func (s *Server) feeTotals(w http.ResponseWriter, r *http.Request) {
	s.instrument("fee_totals", w, r, func() (interface{}, error) {
		var asset *string
		if v := r.URL.Query().Get("asset"); v != "" {
			asset = &v
		}
		return s.queries.FeeTotals(r.Context(), asset)
	})
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	s.instrument("audit_log", w, r, func() (interface{}, error) {
		from := int64(queryInt(r, "from_sequence", 1))
		limit := queryInt(r, "limit", 100)
		return s.queries.AuditLog(r.Context(), from, limit)
	})
}

func (s *Server) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	s.instrument("integrity", w, r, func() (interface{}, error) {
		return s.queries.VerifyIntegrity(r.Context())
	})
}

var errBadQuery = errors.New("invalid query parameter")

func (s *Server) instrument(endpoint string, w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	start := time.Now()
	result, err := fn()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errBadQuery) {
			status = http.StatusBadRequest
		}
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
			s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		}
		s.log.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
		writeError(w, status, err)
		return
	}
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, result)
}

// --- helpers ---

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEngineError maps engine sentinel errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, accountant.ErrNotFeeManager),
		errors.Is(err, accountant.ErrNotVaultManager),
		errors.Is(err, accountant.ErrNotFeeRecipient),
		errors.Is(err, accountant.ErrNotPendingManager):
		status = http.StatusForbidden
	case errors.Is(err, accountant.ErrVaultNotRegistered),
		errors.Is(err, accountant.ErrNotRegistered),
		errors.Is(err, accountant.ErrNoCustomConfig):
		status = http.StatusNotFound
	case errors.Is(err, accountant.ErrAlreadyRegistered),
		errors.Is(err, accountant.ErrDuplicateReport),
		errors.Is(err, accountant.ErrStaleReport):
		status = http.StatusConflict
	case errors.Is(err, accountant.ErrInvalidBound),
		errors.Is(err, accountant.ErrZeroIdentity):
		status = http.StatusBadRequest
	case errors.Is(err, accountant.ErrExcessiveGain),
		errors.Is(err, accountant.ErrExcessiveLoss),
		errors.Is(err, accountant.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

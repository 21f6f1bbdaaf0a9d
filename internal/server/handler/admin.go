package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// AdminMarketService is the admin surface of the market service.
type AdminMarketService interface {
	Pause(ctx context.Context, caller string) error
	Unpause(ctx context.Context, caller string) error
	Paused() bool
	SetAuthorizedResolver(ctx context.Context, caller, addr string, authorized bool) error
}

// AdminResolutionService is the admin surface of the resolution service.
type AdminResolutionService interface {
	ConfigureMarket(ctx context.Context, caller string, marketID uint64, cfg domain.MarketConfig) error
	ReopenResolution(ctx context.Context, caller string, marketID uint64) error
	AddResolver(ctx context.Context, caller, addr string) error
	RemoveResolver(ctx context.Context, caller, addr string) error
	Resolvers() []string
	SetDefaultDisputePeriod(ctx context.Context, caller string, d time.Duration) error
	DefaultDisputePeriod() time.Duration
}

// AdminHandler serves administrative endpoints. Routes using it are mounted
// behind API-key authentication; the configured admin address is used as the
// caller for every operation.
type AdminHandler struct {
	markets     AdminMarketService
	resolutions AdminResolutionService
	adminAddr   string
	logger      *slog.Logger
}

// NewAdminHandler creates an AdminHandler acting as the given admin address.
func NewAdminHandler(markets AdminMarketService, resolutions AdminResolutionService, adminAddr string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		markets:     markets,
		resolutions: resolutions,
		adminAddr:   adminAddr,
		logger:      logger,
	}
}

// Pause blocks market creation, trading, and liquidity deposits.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.markets.Pause(r.Context(), h.adminAddr); err != nil {
		writeDomainError(w, r, h.logger, err, "pause")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

// Unpause re-enables market creation, trading, and liquidity deposits.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := h.markets.Unpause(r.Context(), h.adminAddr); err != nil {
		writeDomainError(w, r, h.logger, err, "unpause")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

// GetPaused reports whether entries are currently blocked.
// GET /api/admin/paused
func (h *AdminHandler) GetPaused(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": h.markets.Paused()})
}

// configurePolicyRequest is the body for setting a market's resolution
// policy. Durations use Go syntax, e.g. "24h".
type configurePolicyRequest struct {
	Method          string `json:"method"`
	ResolutionDelay string `json:"resolution_delay,omitempty"`
	DisputePeriod   string `json:"dispute_period,omitempty"`
	MinVoters       int    `json:"min_voters,omitempty"`
}

// ConfigurePolicy sets a market's resolution policy.
// PUT /api/admin/markets/{id}/resolution/policy
func (h *AdminHandler) ConfigurePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req configurePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := domain.MarketConfig{
		Method:    domain.ResolutionMethod(req.Method),
		MinVoters: req.MinVoters,
	}
	if req.ResolutionDelay != "" {
		d, err := time.ParseDuration(req.ResolutionDelay)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resolution_delay")
			return
		}
		cfg.ResolutionDelay = d
	}
	if req.DisputePeriod != "" {
		d, err := time.ParseDuration(req.DisputePeriod)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dispute_period")
			return
		}
		cfg.DisputePeriod = d
	}

	if err := h.resolutions.ConfigureMarket(r.Context(), h.adminAddr, id, cfg); err != nil {
		writeDomainError(w, r, h.logger, err, "configure policy")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "configured": true})
}

// ReopenResolution returns a disputed market to pending so the process can
// restart.
// POST /api/admin/markets/{id}/resolution/reopen
func (h *AdminHandler) ReopenResolution(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.resolutions.ReopenResolution(r.Context(), h.adminAddr, id); err != nil {
		writeDomainError(w, r, h.logger, err, "reopen resolution")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "status": "pending"})
}

type disputePeriodRequest struct {
	DisputePeriod string `json:"dispute_period"`
}

// SetDefaultDisputePeriod changes the dispute window applied to markets
// without an explicit policy.
// PUT /api/admin/resolution/dispute-period
func (h *AdminHandler) SetDefaultDisputePeriod(w http.ResponseWriter, r *http.Request) {
	var req disputePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := time.ParseDuration(req.DisputePeriod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute_period")
		return
	}

	if err := h.resolutions.SetDefaultDisputePeriod(r.Context(), h.adminAddr, d); err != nil {
		writeDomainError(w, r, h.logger, err, "set default dispute period")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dispute_period": h.resolutions.DefaultDisputePeriod().String()})
}

// ListResolvers returns the registered resolver addresses.
// GET /api/admin/resolvers
func (h *AdminHandler) ListResolvers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resolvers": h.resolutions.Resolvers()})
}

type resolverRequest struct {
	Address string `json:"address"`
}

// AddResolver registers a resolver address with both the oracle and the
// engine.
// POST /api/admin/resolvers
func (h *AdminHandler) AddResolver(w http.ResponseWriter, r *http.Request) {
	var req resolverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	if err := h.resolutions.AddResolver(r.Context(), h.adminAddr, req.Address); err != nil {
		writeDomainError(w, r, h.logger, err, "add resolver")
		return
	}
	if err := h.markets.SetAuthorizedResolver(r.Context(), h.adminAddr, req.Address, true); err != nil {
		writeDomainError(w, r, h.logger, err, "authorize resolver")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"resolver": req.Address})
}

// RemoveResolver revokes a resolver address.
// DELETE /api/admin/resolvers/{address}
func (h *AdminHandler) RemoveResolver(w http.ResponseWriter, r *http.Request) {
	addr := pathParam(r, "address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	if err := h.resolutions.RemoveResolver(r.Context(), h.adminAddr, addr); err != nil {
		writeDomainError(w, r, h.logger, err, "remove resolver")
		return
	}
	if err := h.markets.SetAuthorizedResolver(r.Context(), h.adminAddr, addr, false); err != nil {
		writeDomainError(w, r, h.logger, err, "revoke resolver")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"resolver": addr, "removed": true})
}

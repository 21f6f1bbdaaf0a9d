package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// ResolutionService defines the methods the resolution handler requires from
// the service layer.
type ResolutionService interface {
	SubmitResolution(ctx context.Context, caller string, marketID uint64, outcome bool, evidence string) error
	Vote(ctx context.Context, caller string, marketID uint64, outcome bool) error
	FinalizeResolution(ctx context.Context, marketID uint64) error
	DisputeResolution(ctx context.Context, caller string, marketID uint64, reason string) error
	Resolution(ctx context.Context, marketID uint64) (domain.Resolution, error)
	MarketPolicy(marketID uint64) domain.MarketConfig
	GetVote(ctx context.Context, marketID uint64, addr string) (bool, error)
}

// ResolutionHandler serves the resolution lifecycle endpoints.
type ResolutionHandler struct {
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler with the given service and
// logger.
func NewResolutionHandler(resolutions ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolutions: resolutions,
		logger:      logger,
	}
}

// GetResolution returns a market's resolution record. Markets with no
// activity yet report a pending record.
// GET /api/markets/{id}/resolution
func (h *ResolutionHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.resolutions.Resolution(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get resolution")
		return
	}

	writeJSON(w, http.StatusOK, newResolutionView(res))
}

// GetPolicy returns the resolution policy in effect for a market.
// GET /api/markets/{id}/resolution/policy
func (h *ResolutionHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newPolicyView(h.resolutions.MarketPolicy(id)))
}

// submitResolutionRequest is the body for outcome submission.
type submitResolutionRequest struct {
	Resolver string `json:"resolver"`
	Outcome  string `json:"outcome"`
	Evidence string `json:"evidence,omitempty"`
}

// SubmitResolution proposes an outcome for an expired market.
// POST /api/markets/{id}/resolution
func (h *ResolutionHandler) SubmitResolution(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req submitResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := parseSide(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, `outcome must be "yes" or "no"`)
		return
	}

	if err := h.resolutions.SubmitResolution(r.Context(), req.Resolver, id, outcome, req.Evidence); err != nil {
		writeDomainError(w, r, h.logger, err, "submit resolution")
		return
	}

	h.writeCurrent(w, r, id)
}

// voteRequest is the body for a consensus vote.
type voteRequest struct {
	Voter   string `json:"voter"`
	Outcome string `json:"outcome"`
}

// Vote records a resolver's vote on a consensus market.
// POST /api/markets/{id}/resolution/votes
func (h *ResolutionHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := parseSide(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, `outcome must be "yes" or "no"`)
		return
	}

	if err := h.resolutions.Vote(r.Context(), req.Voter, id, outcome); err != nil {
		writeDomainError(w, r, h.logger, err, "vote")
		return
	}

	h.writeCurrent(w, r, id)
}

// GetVote returns the outcome an address voted for on a consensus market.
// Addresses that never voted get a 404.
// GET /api/markets/{id}/resolution/votes/{address}
func (h *ResolutionHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr := pathParam(r, "address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	outcome, err := h.resolutions.GetVote(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get vote")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"voter":     addr,
		"outcome":   sideName(outcome),
	})
}

// FinalizeResolution completes a submitted resolution once its delay and
// dispute window have passed. Callable by anyone.
// POST /api/markets/{id}/resolution/finalize
func (h *ResolutionHandler) FinalizeResolution(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.resolutions.FinalizeResolution(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, err, "finalize resolution")
		return
	}

	h.writeCurrent(w, r, id)
}

// disputeRequest is the body for a resolution dispute.
type disputeRequest struct {
	Disputer string `json:"disputer"`
	Reason   string `json:"reason"`
}

// DisputeResolution challenges a submitted resolution inside its window.
// POST /api/markets/{id}/resolution/dispute
func (h *ResolutionHandler) DisputeResolution(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.resolutions.DisputeResolution(r.Context(), req.Disputer, id, req.Reason); err != nil {
		writeDomainError(w, r, h.logger, err, "dispute resolution")
		return
	}

	h.writeCurrent(w, r, id)
}

// writeCurrent responds with the market's resolution record after a
// successful mutation.
func (h *ResolutionHandler) writeCurrent(w http.ResponseWriter, r *http.Request, marketID uint64) {
	res, err := h.resolutions.Resolution(r.Context(), marketID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, newResolutionView(res))
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
)

// LiquidityService defines the methods the liquidity handler requires from
// the service layer.
type LiquidityService interface {
	AddLiquidity(ctx context.Context, provider string, marketID uint64, amount *big.Int) (*big.Int, error)
	RemoveLiquidity(ctx context.Context, provider string, marketID uint64, lpTokens *big.Int) (*big.Int, error)
	ClaimWinnings(ctx context.Context, claimer string, marketID uint64) (*big.Int, error)
}

// LiquidityHandler serves liquidity provision and winnings claim endpoints.
type LiquidityHandler struct {
	liquidity LiquidityService
	logger    *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler with the given service and
// logger.
func NewLiquidityHandler(liquidity LiquidityService, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{
		liquidity: liquidity,
		logger:    logger,
	}
}

type addLiquidityRequest struct {
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}

// AddLiquidity deposits collateral into a market's pool.
// POST /api/markets/{id}/liquidity
func (h *LiquidityHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req addLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseBigInt("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	minted, err := h.liquidity.AddLiquidity(r.Context(), req.Provider, id, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "add liquidity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"provider":  req.Provider,
		"lp_minted": bigString(minted),
	})
}

type removeLiquidityRequest struct {
	Provider string `json:"provider"`
	LPTokens string `json:"lp_tokens"`
}

// RemoveLiquidity burns LP shares and pays out the proportional collateral.
// Available even while the engine is paused.
// POST /api/markets/{id}/liquidity/withdraw
func (h *LiquidityHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req removeLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lpTokens, err := parseBigInt("lp_tokens", req.LPTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paidOut, err := h.liquidity.RemoveLiquidity(r.Context(), req.Provider, id, lpTokens)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "remove liquidity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"provider":  req.Provider,
		"paid_out":  bigString(paidOut),
	})
}

type claimRequest struct {
	Claimer string `json:"claimer"`
}

// ClaimWinnings pays out a claimer's winning shares in a resolved market.
// POST /api/markets/{id}/claim
func (h *LiquidityHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Claimer == "" {
		writeError(w, http.StatusBadRequest, "missing claimer")
		return
	}

	payout, err := h.liquidity.ClaimWinnings(r.Context(), req.Claimer, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "claim winnings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"claimer":   req.Claimer,
		"payout":    bigString(payout),
	})
}

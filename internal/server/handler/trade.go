package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	Trade(ctx context.Context, trader string, marketID uint64, isYes bool, tokensIn, minSharesOut *big.Int, deadline time.Time) (domain.TradeRecord, error)
	TradesByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.TradeRecord, error)
	TradesByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// TradeHandler serves trade execution and trade history endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeRequest is the body for trade execution. Token amounts are decimal
// strings; a zero deadline means no deadline.
type tradeRequest struct {
	Trader       string    `json:"trader"`
	Side         string    `json:"side"`
	TokensIn     string    `json:"tokens_in"`
	MinSharesOut string    `json:"min_shares_out"`
	Deadline     time.Time `json:"deadline,omitempty"`
}

// Trade buys outcome shares in a market.
// POST /api/markets/{id}/trades
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	isYes, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokensIn, err := parseBigInt("tokens_in", req.TokensIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// min_shares_out is optional; absent means no slippage bound.
	minSharesOut := new(big.Int)
	if req.MinSharesOut != "" {
		minSharesOut, err = parseBigInt("min_shares_out", req.MinSharesOut)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rec, err := h.trades.Trade(r.Context(), req.Trader, id, isYes, tokensIn, minSharesOut, req.Deadline)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "trade")
		return
	}

	writeJSON(w, http.StatusCreated, newTradeView(rec))
}

// listTradesResponse wraps trade history output with pagination metadata.
type listTradesResponse struct {
	Trades []tradeView `json:"trades"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListByMarket returns a market's journaled trades, most recent first.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListByMarket(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := parseListOpts(r)
	trades, err := h.trades.TradesByMarket(r.Context(), id, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list trades")
		return
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: newTradeViews(trades),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// ListByTrader returns a trader's journaled trades, most recent first.
// GET /api/trades/{address}?limit=50&offset=0
func (h *TradeHandler) ListByTrader(w http.ResponseWriter, r *http.Request) {
	trader := pathParam(r, "address")
	if trader == "" {
		writeError(w, http.StatusBadRequest, "missing trader address")
		return
	}

	opts := parseListOpts(r)
	trades, err := h.trades.TradesByTrader(r.Context(), trader, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list trades")
		return
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: newTradeViews(trades),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

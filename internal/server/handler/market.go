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

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator, question string, endTime time.Time, initialLiquidity *big.Int, feeBps int64) (domain.Market, error)
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context) []domain.Market
	Prices(ctx context.Context, marketID uint64) (priceYes, priceNo *big.Int, err error)
	Quote(ctx context.Context, marketID uint64, isYes bool, tokensIn *big.Int) (domain.Quote, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the body for market creation. Token amounts are
// decimal strings.
type createMarketRequest struct {
	Creator          string    `json:"creator"`
	Question         string    `json:"question"`
	EndTime          time.Time `json:"end_time"`
	InitialLiquidity string    `json:"initial_liquidity"`
	FeeBps           int64     `json:"fee_bps"`
}

// CreateMarket creates a new market funded by the creator.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	liquidity, err := parseBigInt("initial_liquidity", req.InitialLiquidity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.Creator, req.Question, req.EndTime, liquidity, req.FeeBps)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "create market")
		return
	}

	writeJSON(w, http.StatusCreated, newMarketView(market))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int          `json:"total"`
}

// ListMarkets returns all markets ordered by id.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.ListMarkets(r.Context())

	views := make([]marketView, len(markets))
	for i, m := range markets {
		views[i] = newMarketView(m)
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   len(views),
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get market")
		return
	}

	writeJSON(w, http.StatusOK, newMarketView(market))
}

// GetPrices returns the current YES and NO prices for a market.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	priceYes, priceNo, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get prices")
		return
	}

	writeJSON(w, http.StatusOK, pricesView{
		MarketID: id,
		Yes:      formatPrice(priceYes),
		No:       formatPrice(priceNo),
		YesRaw:   bigString(priceYes),
		NoRaw:    bigString(priceNo),
	})
}

// Quote returns the shares a trade would receive without executing it.
// GET /api/markets/{id}/quote?side=yes&amount=1000000
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	isYes, err := parseSide(q.Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBigInt("amount", q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.markets.Quote(r.Context(), id, isYes, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "quote")
		return
	}

	writeJSON(w, http.StatusOK, quoteView{
		MarketID:       id,
		Side:           sideName(isYes),
		TokensIn:       bigString(amount),
		SharesOut:      bigString(quote.SharesOut),
		EffectivePrice: bigString(quote.EffectivePrice),
		Price:          formatPrice(quote.EffectivePrice),
	})
}

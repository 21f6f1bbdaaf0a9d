package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// stubMarketService returns canned results so the handler's request parsing,
// view rendering, and error mapping can be tested in isolation.
type stubMarketService struct {
	market domain.Market
	quote  domain.Quote
	err    error
}

func (s *stubMarketService) CreateMarket(_ context.Context, creator, question string, endTime time.Time, initialLiquidity *big.Int, feeBps int64) (domain.Market, error) {
	if s.err != nil {
		return domain.Market{}, s.err
	}
	m := s.market
	m.Creator = creator
	m.Question = question
	m.EndTime = endTime
	m.FeeBps = feeBps
	return m, nil
}

func (s *stubMarketService) GetMarket(_ context.Context, id uint64) (domain.Market, error) {
	if s.err != nil {
		return domain.Market{}, s.err
	}
	return s.market, nil
}

func (s *stubMarketService) ListMarkets(_ context.Context) []domain.Market {
	return []domain.Market{s.market}
}

func (s *stubMarketService) Prices(_ context.Context, _ uint64) (*big.Int, *big.Int, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	half := new(big.Int).Div(domain.PriceUnit, big.NewInt(2))
	return half, half, nil
}

func (s *stubMarketService) Quote(_ context.Context, _ uint64, _ bool, _ *big.Int) (domain.Quote, error) {
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return s.quote, nil
}

func testMarket() domain.Market {
	return domain.Market{
		ID:           7,
		Question:     "Will the vote pass?",
		EndTime:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		LiquidityYes: big.NewInt(500_000),
		LiquidityNo:  big.NewInt(500_000),
		TotalShares:  big.NewInt(1_000_000),
		Creator:      "alice",
		FeeBps:       100,
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestMux(svc MarketService) *http.ServeMux {
	h := NewMarketHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", h.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/quote", h.Quote)
	return mux
}

func TestCreateMarketHandler(t *testing.T) {
	mux := newTestMux(&stubMarketService{market: testMarket()})

	body := `{"creator":"alice","question":"Will the vote pass?","end_time":"2026-04-01T00:00:00Z","initial_liquidity":"1000000","fee_bps":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var v marketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, uint64(7), v.ID)
	assert.Equal(t, "alice", v.Creator)
	assert.Equal(t, "1000000", v.TotalShares)
	assert.Nil(t, v.Outcome, "unresolved markets omit the outcome")
}

func TestCreateMarketHandlerBadBody(t *testing.T) {
	mux := newTestMux(&stubMarketService{market: testMarket()})

	for _, body := range []string{"not json", `{"initial_liquidity":"abc"}`, `{"initial_liquidity":""}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestGetMarketHandler(t *testing.T) {
	m := testMarket()
	m.Resolved = true
	m.Outcome = true
	mux := newTestMux(&stubMarketService{market: m})

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var v marketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotNil(t, v.Outcome)
	assert.True(t, *v.Outcome)
}

func TestGetMarketHandlerErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets/nope", nil)
	rec := httptest.NewRecorder()
	newTestMux(&stubMarketService{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-numeric id")

	notFound := &stubMarketService{err: fmt.Errorf("market 42: %w", domain.ErrNotFound)}
	req = httptest.NewRequest(http.MethodGet, "/api/markets/42", nil)
	rec = httptest.NewRecorder()
	newTestMux(notFound).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPricesHandler(t *testing.T) {
	mux := newTestMux(&stubMarketService{market: testMarket()})

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/prices", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var v pricesView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "0.5", v.Yes)
	assert.Equal(t, "500000000000000000", v.YesRaw)
}

func TestQuoteHandler(t *testing.T) {
	svc := &stubMarketService{quote: domain.Quote{
		SharesOut:      big.NewInt(83_334),
		EffectivePrice: big.NewInt(600_000_000_000_000_000),
	}}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/quote?side=yes&amount=100000", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var v quoteView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "yes", v.Side)
	assert.Equal(t, "83334", v.SharesOut)
	assert.Equal(t, "0.6", v.Price)

	req = httptest.NewRequest(http.MethodGet, "/api/markets/7/quote?side=maybe&amount=100000", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDomainStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrState, http.StatusConflict},
		{domain.ErrSlippage, http.StatusConflict},
		{domain.ErrPaused, http.StatusConflict},
		{domain.ErrNoLiquidity, http.StatusConflict},
		{domain.ErrNoWinnings, http.StatusConflict},
		{domain.ErrTransfer, http.StatusPaymentRequired},
		{fmt.Errorf("wrapped: %w", domain.ErrSlippage), http.StatusConflict},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, domainStatus(tc.err), "error %v", tc.err)
	}
}

func TestParseHelpers(t *testing.T) {
	_, err := parseBigInt("amount", " ")
	assert.Error(t, err)
	_, err = parseBigInt("amount", "12.5")
	assert.Error(t, err)
	v, err := parseBigInt("amount", " 123 ")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(123), v)

	yes, err := parseSide("YES")
	require.NoError(t, err)
	assert.True(t, yes)
	no, err := parseSide("no")
	require.NoError(t, err)
	assert.False(t, no)
	_, err = parseSide("maybe")
	assert.Error(t, err)

	assert.Equal(t, "0.5", formatPrice(big.NewInt(500_000_000_000_000_000)))
	assert.Equal(t, "1", formatPrice(new(big.Int).Set(domain.PriceUnit)))
	assert.Equal(t, "0", formatPrice(nil))

	req := httptest.NewRequest(http.MethodGet, "/?limit=9000&offset=10", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit, "limit is capped")
	assert.Equal(t, 10, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}

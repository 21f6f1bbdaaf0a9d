package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/amm"
	"github.com/alanyoungcy/predictpool/internal/bus"
	"github.com/alanyoungcy/predictpool/internal/collateral"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/ledger"
)

// Paper-mode wiring: every store and cache is nil, so the services must run
// the full market lifecycle on the engine alone.
func newPaperStack(t *testing.T) (*MarketService, *collateral.Bank) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bank := collateral.NewBank("pool")
	engine := amm.NewEngine(ledger.New(), bank, bus.NewMemory(), amm.Config{
		Admin:               "admin",
		PoolAddress:         "pool",
		MinInitialLiquidity: big.NewInt(1_000),
	}, logger)
	return NewMarketService(engine, nil, nil, nil, nil, logger), bank
}

func TestMarketServicePaperLifecycle(t *testing.T) {
	svc, bank := newPaperStack(t)
	ctx := context.Background()

	bank.Mint("alice", big.NewInt(1_000_000))
	bank.Approve("alice", big.NewInt(1_000_000))
	m, err := svc.CreateMarket(ctx, "alice", "Will the vote pass?", time.Now().Add(time.Hour), big.NewInt(1_000_000), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, big.NewInt(500_000), m.LiquidityYes)

	yes, no, err := svc.Prices(ctx, m.ID)
	require.NoError(t, err)
	half := new(big.Int).Div(domain.PriceUnit, big.NewInt(2))
	assert.Equal(t, half, yes)
	assert.Equal(t, half, no)

	bank.Mint("bob", big.NewInt(100_000))
	bank.Approve("bob", big.NewInt(100_000))
	q, err := svc.Quote(ctx, m.ID, true, big.NewInt(100_000))
	require.NoError(t, err)
	rec, err := svc.Trade(ctx, "bob", m.ID, true, big.NewInt(100_000), q.SharesOut, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, q.SharesOut, rec.SharesOut)

	pos, err := svc.Position(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, rec.SharesOut, pos.YesShares)

	// Without a trade journal the history endpoints are empty, not errors.
	trades, err := svc.TradesByMarket(ctx, m.ID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, trades)

	markets := svc.ListMarkets(ctx)
	require.Len(t, markets, 1)
}

func TestMarketServicePauseAudit(t *testing.T) {
	svc, _ := newPaperStack(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Pause(ctx, "mallory"), domain.ErrUnauthorized)
	require.NoError(t, svc.Pause(ctx, "admin"))
	assert.True(t, svc.Paused())
	require.NoError(t, svc.Unpause(ctx, "admin"))
	assert.False(t, svc.Paused())

	require.NoError(t, svc.SetAuthorizedResolver(ctx, "admin", "oracle", true))
	assert.ErrorIs(t, svc.SetAuthorizedResolver(ctx, "mallory", "oracle", true), domain.ErrUnauthorized)
}

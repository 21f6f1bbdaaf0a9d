package amm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/bus"
	"github.com/alanyoungcy/predictpool/internal/collateral"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/ledger"
)

const (
	testAdmin = "admin"
	testPool  = "pool"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *collateral.Bank, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	bank := collateral.NewBank(testPool)
	eng := NewEngine(ledger.New(), bank, bus.NewMemory(), Config{
		Admin:               testAdmin,
		PoolAddress:         testPool,
		MinInitialLiquidity: big.NewInt(1_000),
		Now:                 clock.Now,
	}, discardLogger())
	return eng, bank, clock
}

func fund(t *testing.T, bank *collateral.Bank, addr string, amount int64) {
	t.Helper()
	bank.Mint(addr, big.NewInt(amount))
	bank.Approve(addr, big.NewInt(amount))
}

func mustCreate(t *testing.T, eng *Engine, bank *collateral.Bank, clock *fakeClock, creator string, liquidity, feeBps int64) uint64 {
	t.Helper()
	fund(t, bank, creator, liquidity)
	id, err := eng.CreateMarket(context.Background(), creator, "Will the vote pass?", clock.Now().Add(24*time.Hour), big.NewInt(liquidity), feeBps)
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, bank *collateral.Bank, addr string) *big.Int {
	t.Helper()
	bal, err := bank.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func TestCreateMarket(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 100)
	require.Equal(t, uint64(1), id)

	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), m.LiquidityYes)
	assert.Equal(t, bi(500_000), m.LiquidityNo)
	assert.Equal(t, bi(1_000_000), m.TotalShares)
	assert.Equal(t, "alice", m.Creator)
	assert.Equal(t, int64(100), m.FeeBps)
	assert.False(t, m.Resolved)

	pos, err := eng.UserShares(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, bi(1_000_000), pos.LPShares)

	assert.Equal(t, bi(1_000_000), balanceOf(t, bank, testPool))
	assert.Equal(t, 0, balanceOf(t, bank, "alice").Sign())
}

func TestCreateMarketValidation(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	fund(t, bank, "alice", 10_000_000)
	endTime := clock.Now().Add(24 * time.Hour)

	cases := []struct {
		name      string
		creator   string
		question  string
		endTime   time.Time
		liquidity *big.Int
		feeBps    int64
	}{
		{"empty creator", "", "q?", endTime, bi(10_000), 0},
		{"empty question", "alice", "", endTime, bi(10_000), 0},
		{"end time in past", "alice", "q?", clock.Now().Add(-time.Hour), bi(10_000), 0},
		{"end time now", "alice", "q?", clock.Now(), bi(10_000), 0},
		{"fee above cap", "alice", "q?", endTime, bi(10_000), domain.MaxFeeBps + 1},
		{"negative fee", "alice", "q?", endTime, bi(10_000), -1},
		{"liquidity below minimum", "alice", "q?", endTime, bi(999), 0},
		{"nil liquidity", "alice", "q?", endTime, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CreateMarket(ctx, tc.creator, tc.question, tc.endTime, tc.liquidity, tc.feeBps)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, eng.Markets(), "no market may exist after failed creation")
}

func TestCreateMarketWithoutAllowance(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	bank.Mint("alice", bi(1_000_000)) // minted but never approved

	_, err := eng.CreateMarket(context.Background(), "alice", "q?", clock.Now().Add(time.Hour), bi(1_000_000), 0)
	assert.ErrorIs(t, err, domain.ErrTransfer)
	assert.Empty(t, eng.Markets())
	assert.Equal(t, bi(1_000_000), balanceOf(t, bank, "alice"))
}

func TestPriceMidpointAndConservation(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	half := new(big.Int).Div(domain.PriceUnit, bi(2))
	yes, err := eng.Price(id, true)
	require.NoError(t, err)
	assert.Equal(t, half, yes)

	// Skew the pool, then check the prices still sum to one unit within
	// truncation error.
	fund(t, bank, "bob", 300_000)
	_, err = eng.Trade(context.Background(), "bob", id, true, bi(300_000), nil, time.Time{})
	require.NoError(t, err)

	yes, err = eng.Price(id, true)
	require.NoError(t, err)
	no, err := eng.Price(id, false)
	require.NoError(t, err)
	assert.Equal(t, 1, yes.Cmp(half), "buying YES must raise its price")

	diff := new(big.Int).Sub(domain.PriceUnit, new(big.Int).Add(yes, no))
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(bi(1)) <= 0, "yes+no = %s, want within 1 of unit", new(big.Int).Add(yes, no))
}

func TestTradeMatchesQuote(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	fund(t, bank, "bob", 100_000)

	q, err := eng.SharesOut(id, true, bi(100_000))
	require.NoError(t, err)
	require.Equal(t, bi(83_334), q.SharesOut)

	// The exact quote used as the minimum must pass.
	rec, err := eng.Trade(context.Background(), "bob", id, true, bi(100_000), q.SharesOut, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, q.SharesOut, rec.SharesOut)
	assert.Equal(t, q.EffectivePrice, rec.EffectivePrice)
	assert.Equal(t, id, rec.MarketID)
	assert.Equal(t, "bob", rec.Trader)
	assert.True(t, rec.IsYes)
	assert.NotEmpty(t, rec.ID)

	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(416_666), m.LiquidityYes)
	assert.Equal(t, bi(600_000), m.LiquidityNo)

	pos, err := eng.UserShares(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, bi(83_334), pos.YesShares)
	assert.Equal(t, 0, pos.NoShares.Sign())
	assert.Equal(t, bi(1_100_000), balanceOf(t, bank, testPool))
}

func TestTradeSlippageGuard(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	fund(t, bank, "bob", 100_000)

	q, err := eng.SharesOut(id, true, bi(100_000))
	require.NoError(t, err)

	tooHigh := new(big.Int).Add(q.SharesOut, bi(1))
	_, err = eng.Trade(context.Background(), "bob", id, true, bi(100_000), tooHigh, time.Time{})
	assert.ErrorIs(t, err, domain.ErrSlippage)

	// Nothing moved: the guard fires before the deposit is pulled.
	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), m.LiquidityYes)
	assert.Equal(t, bi(100_000), balanceOf(t, bank, "bob"))
}

func TestTradeFeeRetainedInPool(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 200)
	fund(t, bank, "bob", 10_000)

	_, err := eng.Trade(context.Background(), "bob", id, true, bi(10_000), nil, time.Time{})
	require.NoError(t, err)

	// The reserve grows by the post-fee input only, but the pool account
	// holds the full deposit: the 2% fee accrues to LPs as excess backing.
	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(509_800), m.LiquidityNo)
	assert.Equal(t, bi(1_010_000), balanceOf(t, bank, testPool))
}

func TestTradeClosedStates(t *testing.T) {
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		eng, bank, clock := newTestEngine(t)
		id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
		fund(t, bank, "bob", 10_000)
		clock.Advance(25 * time.Hour)
		_, err := eng.Trade(ctx, "bob", id, true, bi(10_000), nil, time.Time{})
		assert.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("resolved", func(t *testing.T) {
		eng, bank, clock := newTestEngine(t)
		id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
		fund(t, bank, "bob", 10_000)
		clock.Advance(25 * time.Hour)
		require.NoError(t, eng.ResolveMarket(ctx, testAdmin, id, true))
		_, err := eng.Trade(ctx, "bob", id, true, bi(10_000), nil, time.Time{})
		assert.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("deadline passed", func(t *testing.T) {
		eng, bank, clock := newTestEngine(t)
		id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
		fund(t, bank, "bob", 10_000)
		_, err := eng.Trade(ctx, "bob", id, true, bi(10_000), nil, clock.Now().Add(-time.Second))
		assert.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("zero deadline means none", func(t *testing.T) {
		eng, bank, clock := newTestEngine(t)
		id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
		fund(t, bank, "bob", 10_000)
		_, err := eng.Trade(ctx, "bob", id, true, bi(10_000), nil, time.Time{})
		assert.NoError(t, err)
	})

	t.Run("unknown market", func(t *testing.T) {
		eng, bank, _ := newTestEngine(t)
		fund(t, bank, "bob", 10_000)
		_, err := eng.Trade(ctx, "bob", 42, true, bi(10_000), nil, time.Time{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTradeCannotDrainReserve(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000, 0)
	fund(t, bank, "bob", 10_000_000)

	// 10M tokens into a 500/500 pool truncates the product invariant to
	// zero, quoting the entire YES reserve. The trade must be refused before
	// any collateral moves.
	_, err := eng.Trade(context.Background(), "bob", id, true, bi(10_000_000), nil, time.Time{})
	require.ErrorIs(t, err, domain.ErrNoLiquidity)

	assert.Equal(t, bi(10_000_000), balanceOf(t, bank, "bob"))
	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500), m.LiquidityYes)
	assert.Equal(t, bi(500), m.LiquidityNo)

	pos, err := eng.UserShares(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, pos.YesShares.Sign())
}

func TestEventsRecordedToHistoryStream(t *testing.T) {
	clock := newFakeClock()
	bank := collateral.NewBank(testPool)
	mem := bus.NewMemory()
	eng := NewEngine(ledger.New(), bank, mem, Config{
		Admin:               testAdmin,
		PoolAddress:         testPool,
		MinInitialLiquidity: big.NewInt(1_000),
		Now:                 clock.Now,
	}, discardLogger())
	ctx := context.Background()

	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	fund(t, bank, "bob", 100_000)
	_, err := eng.Trade(ctx, "bob", id, true, bi(100_000), nil, time.Time{})
	require.NoError(t, err)

	msgs, err := mem.StreamRead(ctx, domain.ChannelMarkets, "0", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var evt domain.Event
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &evt))
	assert.Equal(t, domain.EventMarketCreated, evt.Type)
	assert.Equal(t, id, evt.MarketID)

	msgs, err = mem.StreamRead(ctx, domain.ChannelTrades, "0", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &evt))
	assert.Equal(t, domain.EventTradeExecuted, evt.Type)
	assert.Equal(t, "bob", evt.Fields["trader"])
}

func TestTradeWithoutAllowanceLeavesNoTrace(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	bank.Mint("bob", bi(10_000)) // no approval

	_, err := eng.Trade(context.Background(), "bob", id, true, bi(10_000), nil, time.Time{})
	assert.ErrorIs(t, err, domain.ErrTransfer)

	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), m.LiquidityYes)
	assert.Equal(t, bi(500_000), m.LiquidityNo)

	pos, err := eng.UserShares(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, pos.YesShares.Sign())
}

func TestAddRemoveLiquidity(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	fund(t, bank, "bob", 500_000)

	minted, err := eng.AddLiquidity(ctx, "bob", id, bi(500_000))
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), minted)

	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(750_000), m.LiquidityYes)
	assert.Equal(t, bi(750_000), m.LiquidityNo)
	assert.Equal(t, bi(1_500_000), m.TotalShares)

	out, err := eng.RemoveLiquidity(ctx, "bob", id, minted)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), out)
	assert.Equal(t, bi(500_000), balanceOf(t, bank, "bob"))

	pos, err := eng.UserShares(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, pos.LPShares.Sign())

	m, err = eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), m.LiquidityYes)
	assert.Equal(t, bi(1_000_000), m.TotalShares)
}

func TestAddLiquidityKeepsPrice(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	// Skew the pool first, then deposit and check the price is untouched.
	fund(t, bank, "bob", 200_000)
	_, err := eng.Trade(ctx, "bob", id, true, bi(200_000), nil, time.Time{})
	require.NoError(t, err)

	before, err := eng.Price(id, true)
	require.NoError(t, err)

	fund(t, bank, "carol", 300_000)
	_, err = eng.AddLiquidity(ctx, "carol", id, bi(300_000))
	require.NoError(t, err)

	after, err := eng.Price(id, true)
	require.NoError(t, err)

	// The split truncates to whole tokens, so the ratio can shift by about
	// one part per token of reserve, not one wei.
	tolerance := new(big.Int).Div(domain.PriceUnit, bi(1_000_000))
	diff := new(big.Int).Sub(before, after)
	assert.True(t, diff.CmpAbs(tolerance) <= 0, "price moved from %s to %s on deposit", before, after)
}

func TestRemoveLiquidityMoreThanHeld(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	_, err := eng.RemoveLiquidity(context.Background(), "alice", id, bi(1_000_001))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRemoveLiquidityAfterResolve(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	clock.Advance(25 * time.Hour)
	require.NoError(t, eng.ResolveMarket(ctx, testAdmin, id, true))

	out, err := eng.RemoveLiquidity(ctx, "alice", id, bi(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, bi(1_000_000), out)
	assert.Equal(t, bi(1_000_000), balanceOf(t, bank, "alice"))

	// Reserves stay put on resolved markets; the terminal price ignores them.
	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.Equal(t, bi(500_000), m.LiquidityYes)
	assert.Equal(t, 0, m.TotalShares.Sign())
}

func TestResolveMarket(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	err := eng.ResolveMarket(ctx, "mallory", id, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = eng.ResolveMarket(ctx, testAdmin, id, true)
	assert.ErrorIs(t, err, domain.ErrState, "resolving before expiry must fail")

	clock.Advance(25 * time.Hour)
	require.NoError(t, eng.ResolveMarket(ctx, testAdmin, id, true))

	m, err := eng.Market(id)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.True(t, m.Outcome)

	yes, err := eng.Price(id, true)
	require.NoError(t, err)
	assert.Equal(t, domain.PriceUnit, yes)
	no, err := eng.Price(id, false)
	require.NoError(t, err)
	assert.Equal(t, 0, no.Sign())

	err = eng.ResolveMarket(ctx, testAdmin, id, false)
	assert.ErrorIs(t, err, domain.ErrState, "resolution is one-way")
}

func TestSetAuthorizedResolver(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	clock.Advance(25 * time.Hour)

	err := eng.SetAuthorizedResolver("mallory", "orc", true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, eng.SetAuthorizedResolver(testAdmin, "orc", true))
	require.NoError(t, eng.SetAuthorizedResolver(testAdmin, "orc", false))

	err = eng.ResolveMarket(ctx, "orc", id, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "revoked resolver must be rejected")

	require.NoError(t, eng.SetAuthorizedResolver(testAdmin, "orc", true))
	assert.NoError(t, eng.ResolveMarket(ctx, "orc", id, true))
}

func TestClaimWinnings(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)

	fund(t, bank, "bob", 100_000)
	rec, err := eng.Trade(ctx, "bob", id, true, bi(100_000), nil, time.Time{})
	require.NoError(t, err)

	fund(t, bank, "carl", 100_000)
	_, err = eng.Trade(ctx, "carl", id, false, bi(100_000), nil, time.Time{})
	require.NoError(t, err)

	_, err = eng.ClaimWinnings(ctx, "bob", id)
	assert.ErrorIs(t, err, domain.ErrState, "claim before resolution must fail")

	clock.Advance(25 * time.Hour)
	require.NoError(t, eng.ResolveMarket(ctx, testAdmin, id, true))

	payout, err := eng.ClaimWinnings(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, rec.SharesOut, payout, "winning shares redeem 1:1")
	assert.Equal(t, rec.SharesOut, balanceOf(t, bank, "bob"))

	_, err = eng.ClaimWinnings(ctx, "bob", id)
	assert.ErrorIs(t, err, domain.ErrNoWinnings, "second claim has nothing to pay")

	_, err = eng.ClaimWinnings(ctx, "carl", id)
	assert.ErrorIs(t, err, domain.ErrNoWinnings, "losing side holds nothing")

	_, err = eng.ClaimWinnings(ctx, "dora", id)
	assert.ErrorIs(t, err, domain.ErrNoWinnings)
}

func TestPauseGatesEntriesOnly(t *testing.T) {
	eng, bank, clock := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, eng, bank, clock, "alice", 1_000_000, 0)
	fund(t, bank, "bob", 200_000)
	_, err := eng.Trade(ctx, "bob", id, true, bi(100_000), nil, time.Time{})
	require.NoError(t, err)

	assert.ErrorIs(t, eng.Pause("mallory"), domain.ErrUnauthorized)
	require.NoError(t, eng.Pause(testAdmin))
	assert.True(t, eng.Paused())

	fund(t, bank, "carol", 1_000_000)
	_, err = eng.CreateMarket(ctx, "carol", "q?", clock.Now().Add(time.Hour), bi(1_000_000), 0)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = eng.Trade(ctx, "bob", id, true, bi(10_000), nil, time.Time{})
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = eng.AddLiquidity(ctx, "carol", id, bi(10_000))
	assert.ErrorIs(t, err, domain.ErrPaused)

	// Exits stay open under pause.
	_, err = eng.RemoveLiquidity(ctx, "alice", id, bi(100_000))
	assert.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, eng.ResolveMarket(ctx, testAdmin, id, true))
	_, err = eng.ClaimWinnings(ctx, "bob", id)
	assert.NoError(t, err)

	assert.ErrorIs(t, eng.Unpause("mallory"), domain.ErrUnauthorized)
	require.NoError(t, eng.Unpause(testAdmin))
	assert.False(t, eng.Paused())
	_, err = eng.CreateMarket(ctx, "carol", "q?", clock.Now().Add(time.Hour), bi(990_000), 0)
	assert.NoError(t, err)
}

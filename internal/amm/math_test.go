package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

func bi(n int64) *big.Int { return big.NewInt(n) }

func TestSpotPriceEmptyPool(t *testing.T) {
	half := new(big.Int).Div(domain.PriceUnit, bi(2))
	assert.Equal(t, half, spotPrice(bi(0), bi(0), true))
	assert.Equal(t, half, spotPrice(bi(0), bi(0), false))
}

func TestSpotPriceBalancedPool(t *testing.T) {
	half := new(big.Int).Div(domain.PriceUnit, bi(2))
	assert.Equal(t, half, spotPrice(bi(500_000), bi(500_000), true))
	assert.Equal(t, half, spotPrice(bi(500_000), bi(500_000), false))
}

func TestSpotPriceDrivenByOppositeReserve(t *testing.T) {
	// Scarce YES reserve means YES is expensive: price(yes) = no/(yes+no).
	yes := spotPrice(bi(100_000), bi(900_000), true)
	no := spotPrice(bi(100_000), bi(900_000), false)
	assert.Equal(t, 1, yes.Cmp(no), "scarce side must price above the abundant side")

	expected := new(big.Int).Mul(bi(900_000), domain.PriceUnit)
	expected.Div(expected, bi(1_000_000))
	assert.Equal(t, expected, yes)
}

func TestSpotPricesSumNearUnit(t *testing.T) {
	cases := []struct {
		name     string
		yes, no  int64
	}{
		{"balanced", 500_000, 500_000},
		{"skewed", 123_457, 876_543},
		{"tiny", 3, 7},
		{"lopsided", 1, 999_999_999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum := new(big.Int).Add(
				spotPrice(bi(tc.yes), bi(tc.no), true),
				spotPrice(bi(tc.yes), bi(tc.no), false),
			)
			diff := new(big.Int).Sub(domain.PriceUnit, sum)
			require.True(t, diff.Sign() >= 0, "price sum must never exceed one unit")
			assert.True(t, diff.Cmp(bi(1)) <= 0, "price sum %s drifted more than 1 from unit", sum)
		})
	}
}

func TestQuoteNoFee(t *testing.T) {
	// 500k/500k pool, 100k in: other grows to 600k, target shrinks to
	// 500000*500000/600000 = 416666, so 83334 shares come out.
	q := quote(bi(500_000), bi(500_000), bi(100_000), 0)
	assert.Equal(t, bi(83_334), q.SharesOut)

	expected := new(big.Int).Mul(bi(100_000), domain.PriceUnit)
	expected.Div(expected, bi(83_334))
	assert.Equal(t, expected, q.EffectivePrice)
}

func TestQuoteFeeReducesShares(t *testing.T) {
	free := quote(bi(500_000), bi(500_000), bi(100_000), 0)
	paid := quote(bi(500_000), bi(500_000), bi(100_000), 200)
	assert.Equal(t, -1, paid.SharesOut.Cmp(free.SharesOut), "fee must reduce shares out")
	assert.Equal(t, 1, paid.EffectivePrice.Cmp(free.EffectivePrice), "fee must raise the effective price")
}

func TestQuoteZeroSharesOnDustInput(t *testing.T) {
	// An input too small to move the truncated product buys nothing, and the
	// effective price stays zero rather than dividing by zero.
	q := quote(bi(1_000_000_000), bi(1_000_000_000), bi(1), 0)
	assert.Equal(t, 0, q.SharesOut.Sign())
	assert.Equal(t, 0, q.EffectivePrice.Sign())
}

func TestNetIn(t *testing.T) {
	assert.Equal(t, bi(9_750), netIn(bi(10_000), 250))
	assert.Equal(t, bi(10_000), netIn(bi(10_000), 0))
	// 999 * 100 / 10000 truncates to 9, favoring the pool.
	assert.Equal(t, bi(990), netIn(bi(999), 100))
}

func TestSplitEven(t *testing.T) {
	yes, no := splitEven(bi(1_000))
	assert.Equal(t, bi(500), yes)
	assert.Equal(t, bi(500), no)

	yes, no = splitEven(bi(1_001))
	assert.Equal(t, bi(500), yes)
	assert.Equal(t, bi(501), no, "odd remainder goes to the NO side")
}

func TestSplitProportional(t *testing.T) {
	yes, no := splitProportional(bi(300), bi(200), bi(1_000))
	assert.Equal(t, bi(60), yes)
	assert.Equal(t, bi(240), no)
	assert.Equal(t, bi(300), new(big.Int).Add(yes, no), "split must conserve the amount")
}

func TestLpTokensWithdrawalRoundTrip(t *testing.T) {
	// Deposit 500 into a pool of 2000 liquidity backing 1000 shares: 250 LP
	// minted. Burning those 250 against the grown pool pays back exactly 500.
	minted := lpTokensFor(bi(500), bi(1_000), bi(2_000))
	require.Equal(t, bi(250), minted)

	out := withdrawalFor(minted, bi(1_250), bi(2_500))
	assert.Equal(t, bi(500), out)
}

func TestWithdrawalTruncatesForPool(t *testing.T) {
	// 1 LP of 3 over 100 liquidity is 33.33; the holder gets 33.
	assert.Equal(t, bi(33), withdrawalFor(bi(1), bi(3), bi(100)))
}

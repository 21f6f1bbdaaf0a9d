package domain

import (
	"math/big"
	"time"
)

// PriceUnit is the fixed-point scale for prices: 1e18 equals a probability
// of 1.0. A market's YES price divided by PriceUnit is the crowd's implied
// probability for the YES outcome.
var PriceUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MaxFeeBps caps the per-market trading fee at 10%.
const MaxFeeBps = 1000

// FeeDenominator converts basis points to a fraction.
const FeeDenominator = 10000

// Market is a binary (yes/no) prediction market priced by a constant-product
// pool. LiquidityYes and LiquidityNo are the two CPMM reserves; their ratio
// encodes the implied price. Both reserves stay strictly positive while the
// market is unresolved.
type Market struct {
	ID           uint64
	Question     string
	EndTime      time.Time
	LiquidityYes *big.Int
	LiquidityNo  *big.Int
	TotalShares  *big.Int
	Resolved     bool
	Outcome      bool
	Creator      string
	FeeBps       int64
	CreatedAt    time.Time
}

// Clone returns a deep copy so callers cannot mutate ledger state through a
// returned snapshot.
func (m Market) Clone() Market {
	out := m
	out.LiquidityYes = new(big.Int).Set(m.LiquidityYes)
	out.LiquidityNo = new(big.Int).Set(m.LiquidityNo)
	out.TotalShares = new(big.Int).Set(m.TotalShares)
	return out
}

// TotalLiquidity returns LiquidityYes + LiquidityNo.
func (m Market) TotalLiquidity() *big.Int {
	return new(big.Int).Add(m.LiquidityYes, m.LiquidityNo)
}

// Expired reports whether trading is closed as of now.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.EndTime)
}

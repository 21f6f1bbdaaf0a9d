// Package amm implements the constant-product automated market maker for
// binary prediction markets: market creation, pricing, trade execution,
// liquidity provisioning, resolution, and winnings settlement.
package amm

import (
	"math/big"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// All integer division in this file truncates toward zero. Truncation always
// lands in the pool's favor, never the user's, so the price-conservation
// invariant cannot drift in a user-favorable direction across many operations.

// spotPrice returns the CPMM price of one side at the 1e18 scale. A side's
// price is driven by the opposite reserve: price(yes) = no / (yes + no).
// Zero total liquidity yields the 0.5 midpoint.
func spotPrice(liquidityYes, liquidityNo *big.Int, isYes bool) *big.Int {
	total := new(big.Int).Add(liquidityYes, liquidityNo)
	if total.Sign() == 0 {
		return new(big.Int).Div(domain.PriceUnit, big.NewInt(2))
	}

	opposite := liquidityYes
	if isYes {
		opposite = liquidityNo
	}

	p := new(big.Int).Mul(opposite, domain.PriceUnit)
	return p.Div(p, total)
}

// quote computes how many shares of the target side a collateral amount
// buys. The fee is deducted from the input before the swap; the product
// target*other is preserved against the post-fee growth of the other
// reserve, so the fee stays in the pool and accrues to LPs.
func quote(target, other, tokensIn *big.Int, feeBps int64) domain.Quote {
	feeAmount := new(big.Int).Mul(tokensIn, big.NewInt(feeBps))
	feeAmount.Div(feeAmount, big.NewInt(domain.FeeDenominator))
	netIn := new(big.Int).Sub(tokensIn, feeAmount)

	newOther := new(big.Int).Add(other, netIn)
	newTarget := new(big.Int).Mul(target, other)
	newTarget.Div(newTarget, newOther)

	sharesOut := new(big.Int).Sub(target, newTarget)

	effectivePrice := new(big.Int)
	if sharesOut.Sign() > 0 {
		effectivePrice.Mul(tokensIn, domain.PriceUnit)
		effectivePrice.Div(effectivePrice, sharesOut)
	}

	return domain.Quote{SharesOut: sharesOut, EffectivePrice: effectivePrice}
}

// netIn returns tokensIn minus the fee, the amount actually added to the
// opposite reserve on a trade.
func netIn(tokensIn *big.Int, feeBps int64) *big.Int {
	fee := new(big.Int).Mul(tokensIn, big.NewInt(feeBps))
	fee.Div(fee, big.NewInt(domain.FeeDenominator))
	return new(big.Int).Sub(tokensIn, fee)
}

// splitEven halves an amount between the YES and NO reserves. The odd
// remainder goes to the NO side.
func splitEven(amount *big.Int) (yes, no *big.Int) {
	yes = new(big.Int).Div(amount, big.NewInt(2))
	no = new(big.Int).Sub(amount, yes)
	return yes, no
}

// splitProportional divides a deposit (or withdrawal) across both reserves
// in proportion to the current reserve ratio, keeping the price unchanged.
// The truncation remainder goes to the NO side.
func splitProportional(amount, liquidityYes, totalLiquidity *big.Int) (yes, no *big.Int) {
	yes = new(big.Int).Mul(amount, liquidityYes)
	yes.Div(yes, totalLiquidity)
	no = new(big.Int).Sub(amount, yes)
	return yes, no
}

// lpTokensFor returns the LP shares minted for a deposit against the current
// pool: amount * totalShares / totalLiquidity.
func lpTokensFor(amount, totalShares, totalLiquidity *big.Int) *big.Int {
	lp := new(big.Int).Mul(amount, totalShares)
	return lp.Div(lp, totalLiquidity)
}

// withdrawalFor returns the collateral paid out for burning LP shares:
// lpTokens * totalLiquidity / totalShares.
func withdrawalFor(lpTokens, totalShares, totalLiquidity *big.Int) *big.Int {
	out := new(big.Int).Mul(lpTokens, totalLiquidity)
	return out.Div(out, totalShares)
}

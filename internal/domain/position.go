package domain

import "math/big"

// Position holds one participant's balances in one market: LP shares plus
// outcome shares on each side. Created lazily with zero balances on first
// interaction and only ever zeroed, never deleted.
type Position struct {
	MarketID  uint64
	Address   string
	LPShares  *big.Int
	YesShares *big.Int
	NoShares  *big.Int
}

// NewPosition returns an empty position for the given market and address.
func NewPosition(marketID uint64, addr string) Position {
	return Position{
		MarketID:  marketID,
		Address:   addr,
		LPShares:  new(big.Int),
		YesShares: new(big.Int),
		NoShares:  new(big.Int),
	}
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	out := p
	out.LPShares = new(big.Int).Set(p.LPShares)
	out.YesShares = new(big.Int).Set(p.YesShares)
	out.NoShares = new(big.Int).Set(p.NoShares)
	return out
}

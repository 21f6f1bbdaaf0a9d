package domain

import (
	"math/big"
	"time"
)

// TradeRecord is the journal entry emitted for every executed trade.
type TradeRecord struct {
	ID             string // uuid
	MarketID       uint64
	Trader         string
	IsYes          bool
	TokensIn       *big.Int
	SharesOut      *big.Int
	EffectivePrice *big.Int // 1e18 scale, collateral paid per share
	ExecutedAt     time.Time
}

// Quote is the result of a shares-out computation: how many outcome shares a
// given collateral amount buys, and the all-in price per share actually paid.
type Quote struct {
	SharesOut      *big.Int
	EffectivePrice *big.Int
}

package domain

import "time"

// Signal bus channels carrying core events. The websocket hub relays these
// to external subscribers; nothing internal consumes them for control flow.
const (
	ChannelMarkets     = "markets"
	ChannelTrades      = "trades"
	ChannelLiquidity   = "liquidity"
	ChannelResolutions = "resolutions"
)

// Event types.
const (
	EventMarketCreated       = "market_created"
	EventTradeExecuted       = "trade_executed"
	EventLiquidityAdded      = "liquidity_added"
	EventLiquidityRemoved    = "liquidity_removed"
	EventMarketResolved      = "market_resolved"
	EventResolutionSubmitted = "resolution_submitted"
	EventResolutionDisputed  = "resolution_disputed"
	EventWinningsClaimed     = "winnings_claimed"
)

// Event is the JSON envelope published on the signal bus. Big-integer
// amounts are rendered as decimal strings in Fields to survive the JSON
// number range.
type Event struct {
	Type     string            `json:"type"`
	MarketID uint64            `json:"market_id"`
	At       time.Time         `json:"at"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// EventChannel maps an event type to its signal bus channel.
func EventChannel(eventType string) string {
	switch eventType {
	case EventMarketCreated, EventMarketResolved:
		return ChannelMarkets
	case EventTradeExecuted, EventWinningsClaimed:
		return ChannelTrades
	case EventLiquidityAdded, EventLiquidityRemoved:
		return ChannelLiquidity
	case EventResolutionSubmitted, EventResolutionDisputed:
		return ChannelResolutions
	default:
		return ChannelMarkets
	}
}

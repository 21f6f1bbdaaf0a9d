package handler

import (
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// View types render domain values for the API. Big-integer amounts are
// decimal strings so clients never lose precision to JSON number parsing;
// prices additionally carry a human-readable probability.

type marketView struct {
	ID           uint64    `json:"id"`
	Question     string    `json:"question"`
	EndTime      time.Time `json:"end_time"`
	LiquidityYes string    `json:"liquidity_yes"`
	LiquidityNo  string    `json:"liquidity_no"`
	TotalShares  string    `json:"total_shares"`
	Resolved     bool      `json:"resolved"`
	Outcome      *bool     `json:"outcome,omitempty"`
	Creator      string    `json:"creator"`
	FeeBps       int64     `json:"fee_bps"`
	CreatedAt    time.Time `json:"created_at"`
}

func newMarketView(m domain.Market) marketView {
	v := marketView{
		ID:           m.ID,
		Question:     m.Question,
		EndTime:      m.EndTime,
		LiquidityYes: bigString(m.LiquidityYes),
		LiquidityNo:  bigString(m.LiquidityNo),
		TotalShares:  bigString(m.TotalShares),
		Resolved:     m.Resolved,
		Creator:      m.Creator,
		FeeBps:       m.FeeBps,
		CreatedAt:    m.CreatedAt,
	}
	if m.Resolved {
		outcome := m.Outcome
		v.Outcome = &outcome
	}
	return v
}

type tradeView struct {
	ID             string    `json:"id"`
	MarketID       uint64    `json:"market_id"`
	Trader         string    `json:"trader"`
	Side           string    `json:"side"`
	TokensIn       string    `json:"tokens_in"`
	SharesOut      string    `json:"shares_out"`
	EffectivePrice string    `json:"effective_price"`
	ExecutedAt     time.Time `json:"executed_at"`
}

func newTradeView(t domain.TradeRecord) tradeView {
	return tradeView{
		ID:             t.ID,
		MarketID:       t.MarketID,
		Trader:         t.Trader,
		Side:           sideName(t.IsYes),
		TokensIn:       bigString(t.TokensIn),
		SharesOut:      bigString(t.SharesOut),
		EffectivePrice: bigString(t.EffectivePrice),
		ExecutedAt:     t.ExecutedAt,
	}
}

func newTradeViews(trades []domain.TradeRecord) []tradeView {
	out := make([]tradeView, len(trades))
	for i, t := range trades {
		out[i] = newTradeView(t)
	}
	return out
}

type positionView struct {
	MarketID  uint64 `json:"market_id"`
	Address   string `json:"address"`
	LPShares  string `json:"lp_shares"`
	YesShares string `json:"yes_shares"`
	NoShares  string `json:"no_shares"`
}

func newPositionView(p domain.Position) positionView {
	return positionView{
		MarketID:  p.MarketID,
		Address:   p.Address,
		LPShares:  bigString(p.LPShares),
		YesShares: bigString(p.YesShares),
		NoShares:  bigString(p.NoShares),
	}
}

type resolutionView struct {
	MarketID      uint64          `json:"market_id"`
	Status        string          `json:"status"`
	Method        string          `json:"method"`
	Outcome       *bool           `json:"outcome,omitempty"`
	Submitter     string          `json:"submitter,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	Evidence      string          `json:"evidence,omitempty"`
	VotesYes      int             `json:"votes_yes"`
	VotesNo       int             `json:"votes_no"`
	Votes         map[string]bool `json:"votes,omitempty"`
	DisputedBy    string          `json:"disputed_by,omitempty"`
	DisputeReason string          `json:"dispute_reason,omitempty"`
}

func newResolutionView(res domain.Resolution) resolutionView {
	v := resolutionView{
		MarketID:      res.MarketID,
		Status:        string(res.Status),
		Method:        string(res.Method),
		Submitter:     res.Submitter,
		Evidence:      res.Evidence,
		VotesYes:      res.VotesYes,
		VotesNo:       res.VotesNo,
		Votes:         res.Votes,
		DisputedBy:    res.DisputedBy,
		DisputeReason: res.DisputeReason,
	}
	if res.Status == domain.ResolutionSubmitted || res.Status == domain.ResolutionResolved {
		outcome := res.Outcome
		v.Outcome = &outcome
	}
	if !res.SubmittedAt.IsZero() {
		at := res.SubmittedAt
		v.SubmittedAt = &at
	}
	return v
}

type policyView struct {
	Method            string `json:"method"`
	ResolutionDelay   string `json:"resolution_delay"`
	DisputePeriod     string `json:"dispute_period"`
	RequiresConsensus bool   `json:"requires_consensus"`
	MinVoters         int    `json:"min_voters"`
}

func newPolicyView(cfg domain.MarketConfig) policyView {
	return policyView{
		Method:            string(cfg.Method),
		ResolutionDelay:   cfg.ResolutionDelay.String(),
		DisputePeriod:     cfg.DisputePeriod.String(),
		RequiresConsensus: cfg.RequiresConsensus,
		MinVoters:         cfg.MinVoters,
	}
}

type pricesView struct {
	MarketID uint64 `json:"market_id"`
	Yes      string `json:"yes"`
	No       string `json:"no"`
	YesRaw   string `json:"yes_raw"`
	NoRaw    string `json:"no_raw"`
}

type quoteView struct {
	MarketID       uint64 `json:"market_id"`
	Side           string `json:"side"`
	TokensIn       string `json:"tokens_in"`
	SharesOut      string `json:"shares_out"`
	EffectivePrice string `json:"effective_price"`
	Price          string `json:"price"`
}

func sideName(isYes bool) string {
	if isYes {
		return "yes"
	}
	return "no"
}

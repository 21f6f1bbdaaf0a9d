package domain

import "time"

// ResolutionStatus is the lifecycle state of a market's resolution record.
type ResolutionStatus string

const (
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionSubmitted ResolutionStatus = "submitted"
	ResolutionDisputed  ResolutionStatus = "disputed"
	ResolutionResolved  ResolutionStatus = "resolved"
)

// ResolutionMethod selects how a market's outcome is determined.
type ResolutionMethod string

const (
	MethodManual    ResolutionMethod = "manual"
	MethodAutomated ResolutionMethod = "automated"
	MethodConsensus ResolutionMethod = "consensus"
)

// Resolution tracks the outcome-determination process for one market. The
// outcome is tentative until Status reaches ResolutionResolved; under the
// consensus method a vote tally may overwrite it.
type Resolution struct {
	MarketID      uint64
	Outcome       bool
	Status        ResolutionStatus
	Method        ResolutionMethod
	Submitter     string
	SubmittedAt   time.Time
	Evidence      string
	VotesYes      int
	VotesNo       int
	Votes         map[string]bool // voter address -> outcome voted
	DisputedBy    string
	DisputeReason string
}

// Clone returns a deep copy of the resolution record.
func (r Resolution) Clone() Resolution {
	out := r
	if r.Votes != nil {
		out.Votes = make(map[string]bool, len(r.Votes))
		for k, v := range r.Votes {
			out.Votes[k] = v
		}
	}
	return out
}

// MarketConfig is the per-market resolution policy, set by an administrator
// any time before resolution. Markets without an explicit config use
// DefaultMarketConfig.
type MarketConfig struct {
	Method            ResolutionMethod
	ResolutionDelay   time.Duration
	DisputePeriod     time.Duration
	RequiresConsensus bool
	MinVoters         int
}

// DefaultMarketConfig is the policy applied to unconfigured markets: manual
// resolution with no delay and no dispute window.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		Method:            MethodManual,
		ResolutionDelay:   0,
		DisputePeriod:     0,
		RequiresConsensus: false,
		MinVoters:         0,
	}
}

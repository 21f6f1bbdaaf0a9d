// Package oracle determines market outcomes and feeds them to the market
// engine. Each market follows a resolution lifecycle of pending, submitted,
// optionally disputed, and resolved, governed by a per-market policy that
// selects manual, automated, or consensus resolution with configurable
// delay and dispute windows.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// MarketResolver is the engine surface the oracle drives. The oracle's own
// address must be registered as an authorized resolver on the engine.
type MarketResolver interface {
	Market(marketID uint64) (domain.Market, error)
	ResolveMarket(ctx context.Context, caller string, marketID uint64, outcome bool) error
}

// Config holds the oracle's static parameters.
type Config struct {
	// Admin may manage resolvers, configure markets, and reopen disputed
	// resolutions.
	Admin string

	// Address identifies the oracle when it calls the engine.
	Address string

	// MaxResolutionDelay and MaxDisputePeriod cap per-market policy values.
	MaxResolutionDelay time.Duration
	MaxDisputePeriod   time.Duration

	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time
}

// Oracle runs the resolution lifecycle for every market. All state lives in
// memory behind one mutex; resolution traffic is orders of magnitude lighter
// than trading, so a single lock suffices.
type Oracle struct {
	engine MarketResolver
	bus    domain.SignalBus
	logger *slog.Logger
	cfg    Config
	now    func() time.Time

	mu          sync.RWMutex
	resolvers   map[string]bool
	defaultCfg  domain.MarketConfig
	configs     map[uint64]domain.MarketConfig
	resolutions map[uint64]*domain.Resolution
}

// New creates an Oracle bound to the given engine.
func New(engine MarketResolver, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Oracle {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Oracle{
		engine:      engine,
		bus:         bus,
		logger:      logger.With(slog.String("component", "oracle")),
		cfg:         cfg,
		now:         now,
		resolvers:   make(map[string]bool),
		defaultCfg:  domain.DefaultMarketConfig(),
		configs:     make(map[uint64]domain.MarketConfig),
		resolutions: make(map[uint64]*domain.Resolution),
	}
}

// ConfigureMarket sets the resolution policy for a market. Admin only, and
// only while the market's resolution is still pending.
func (o *Oracle) ConfigureMarket(ctx context.Context, caller string, marketID uint64, cfg domain.MarketConfig) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("oracle: only admin may configure markets: %w", domain.ErrUnauthorized)
	}
	switch cfg.Method {
	case domain.MethodManual, domain.MethodAutomated, domain.MethodConsensus:
	default:
		return fmt.Errorf("oracle: unknown resolution method %q: %w", cfg.Method, domain.ErrValidation)
	}
	if cfg.ResolutionDelay < 0 || cfg.ResolutionDelay > o.cfg.MaxResolutionDelay {
		return fmt.Errorf("oracle: resolution delay %s out of range: %w", cfg.ResolutionDelay, domain.ErrValidation)
	}
	if cfg.DisputePeriod < 0 || cfg.DisputePeriod > o.cfg.MaxDisputePeriod {
		return fmt.Errorf("oracle: dispute period %s out of range: %w", cfg.DisputePeriod, domain.ErrValidation)
	}
	if cfg.Method == domain.MethodConsensus {
		cfg.RequiresConsensus = true
		if cfg.MinVoters < 1 {
			return fmt.Errorf("oracle: consensus requires at least one voter: %w", domain.ErrValidation)
		}
	}
	if _, err := o.engine.Market(marketID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.resolutions[marketID]; ok && r.Status != domain.ResolutionPending {
		return fmt.Errorf("oracle: market %d resolution is %s, cannot reconfigure: %w", marketID, r.Status, domain.ErrState)
	}
	o.configs[marketID] = cfg

	o.logger.InfoContext(ctx, "market configured",
		slog.Uint64("market_id", marketID),
		slog.String("method", string(cfg.Method)),
		slog.Duration("resolution_delay", cfg.ResolutionDelay),
		slog.Duration("dispute_period", cfg.DisputePeriod),
	)
	return nil
}

// SubmitResolution proposes an outcome for an expired market. Only a
// registered resolver or the admin may submit. Under the manual method with
// no delay and no dispute window the submission finalizes immediately.
func (o *Oracle) SubmitResolution(ctx context.Context, caller string, marketID uint64, outcome bool, evidence string) error {
	if !o.isResolver(caller) {
		return fmt.Errorf("oracle: %s is not a resolver: %w", caller, domain.ErrUnauthorized)
	}
	m, err := o.engine.Market(marketID)
	if err != nil {
		return err
	}
	now := o.now()
	if m.Resolved {
		return fmt.Errorf("oracle: market %d already resolved: %w", marketID, domain.ErrState)
	}
	if now.Before(m.EndTime) {
		return fmt.Errorf("oracle: market %d has not expired: %w", marketID, domain.ErrState)
	}

	o.mu.Lock()
	cfg := o.configFor(marketID)
	r, ok := o.resolutions[marketID]
	if ok && r.Status != domain.ResolutionPending {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d resolution is %s: %w", marketID, r.Status, domain.ErrState)
	}
	r = &domain.Resolution{
		MarketID:    marketID,
		Outcome:     outcome,
		Status:      domain.ResolutionSubmitted,
		Method:      cfg.Method,
		Submitter:   caller,
		SubmittedAt: now,
		Evidence:    evidence,
		Votes:       make(map[string]bool),
	}
	o.resolutions[marketID] = r
	instant := cfg.Method != domain.MethodConsensus && cfg.ResolutionDelay == 0 && cfg.DisputePeriod == 0
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "resolution submitted",
		slog.Uint64("market_id", marketID),
		slog.String("submitter", caller),
		slog.Bool("outcome", outcome),
		slog.String("method", string(cfg.Method)),
	)
	o.publish(ctx, domain.EventResolutionSubmitted, marketID, map[string]string{
		"submitter": caller,
		"outcome":   outcomeName(outcome),
		"method":    string(cfg.Method),
	})

	if instant {
		return o.finalize(ctx, marketID, outcome)
	}
	return nil
}

// Vote records a resolver's outcome vote on a consensus-method market whose
// resolution has been submitted. One vote per address, and when a dispute
// window is configured votes are only accepted inside it. Once the minimum
// voter count is reached with a strict majority, the resolution finalizes
// immediately with the majority outcome.
func (o *Oracle) Vote(ctx context.Context, caller string, marketID uint64, outcome bool) error {
	if !o.isResolver(caller) {
		return fmt.Errorf("oracle: %s is not a resolver: %w", caller, domain.ErrUnauthorized)
	}

	o.mu.Lock()
	r, ok := o.resolutions[marketID]
	if !ok || r.Status != domain.ResolutionSubmitted {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d has no open resolution to vote on: %w", marketID, domain.ErrState)
	}
	if r.Method != domain.MethodConsensus {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d does not use consensus resolution: %w", marketID, domain.ErrState)
	}
	cfg := o.configFor(marketID)
	if window := r.SubmittedAt.Add(cfg.DisputePeriod); cfg.DisputePeriod > 0 && o.now().After(window) {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d voting closed at %s: %w", marketID, window.Format(time.RFC3339), domain.ErrState)
	}
	if _, voted := r.Votes[caller]; voted {
		o.mu.Unlock()
		return fmt.Errorf("oracle: %s already voted on market %d: %w", caller, marketID, domain.ErrState)
	}

	r.Votes[caller] = outcome
	if outcome {
		r.VotesYes++
	} else {
		r.VotesNo++
	}

	quorum := len(r.Votes) >= cfg.MinVoters && r.VotesYes != r.VotesNo
	var majority bool
	if quorum {
		majority = r.VotesYes > r.VotesNo
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "resolution vote",
		slog.Uint64("market_id", marketID),
		slog.String("voter", caller),
		slog.Bool("outcome", outcome),
	)

	if quorum {
		return o.finalize(ctx, marketID, majority)
	}
	return nil
}

// FinalizeResolution completes a submitted resolution once both the
// resolution delay and the dispute window have elapsed. Any caller may
// finalize. On consensus markets a strict vote majority overrides the
// submitted outcome; a tie leaves it standing.
func (o *Oracle) FinalizeResolution(ctx context.Context, marketID uint64) error {
	now := o.now()

	o.mu.Lock()
	r, ok := o.resolutions[marketID]
	if !ok || r.Status != domain.ResolutionSubmitted {
		o.mu.Unlock()
		status := domain.ResolutionPending
		if ok {
			status = r.Status
		}
		return fmt.Errorf("oracle: market %d resolution is %s, not submitted: %w", marketID, status, domain.ErrState)
	}
	cfg := o.configFor(marketID)
	if wait := r.SubmittedAt.Add(cfg.ResolutionDelay); now.Before(wait) {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d resolution delay runs until %s: %w", marketID, wait.Format(time.RFC3339), domain.ErrState)
	}
	if window := r.SubmittedAt.Add(cfg.DisputePeriod); now.Before(window) {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d dispute window open until %s: %w", marketID, window.Format(time.RFC3339), domain.ErrState)
	}

	outcome := r.Outcome
	if r.Method == domain.MethodConsensus {
		if len(r.Votes) < cfg.MinVoters {
			o.mu.Unlock()
			return fmt.Errorf("oracle: market %d has %d of %d required votes: %w", marketID, len(r.Votes), cfg.MinVoters, domain.ErrState)
		}
		if r.VotesYes > r.VotesNo {
			outcome = true
		} else if r.VotesNo > r.VotesYes {
			outcome = false
		}
	}
	o.mu.Unlock()

	return o.finalize(ctx, marketID, outcome)
}

// DisputeResolution challenges a submitted resolution inside its dispute
// window, freezing it until an administrator reopens it.
func (o *Oracle) DisputeResolution(ctx context.Context, caller string, marketID uint64, reason string) error {
	if caller == "" {
		return fmt.Errorf("oracle: disputer address required: %w", domain.ErrValidation)
	}
	now := o.now()

	o.mu.Lock()
	r, ok := o.resolutions[marketID]
	if !ok || r.Status != domain.ResolutionSubmitted {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d has no submitted resolution to dispute: %w", marketID, domain.ErrState)
	}
	cfg := o.configFor(marketID)
	window := r.SubmittedAt.Add(cfg.DisputePeriod)
	if cfg.DisputePeriod == 0 || !now.Before(window) {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d dispute window closed at %s: %w", marketID, window.Format(time.RFC3339), domain.ErrState)
	}

	r.Status = domain.ResolutionDisputed
	r.DisputedBy = caller
	r.DisputeReason = reason
	o.mu.Unlock()

	o.logger.WarnContext(ctx, "resolution disputed",
		slog.Uint64("market_id", marketID),
		slog.String("disputed_by", caller),
		slog.String("reason", reason),
	)
	o.publish(ctx, domain.EventResolutionDisputed, marketID, map[string]string{
		"disputed_by": caller,
		"reason":      reason,
	})
	return nil
}

// ReopenResolution returns a disputed market to the pending state so a
// fresh outcome can be submitted. Admin only. The previous outcome, votes,
// and dispute details are discarded; the dispute reason survives in the
// audit trail only.
func (o *Oracle) ReopenResolution(ctx context.Context, caller string, marketID uint64) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("oracle: only admin may reopen resolutions: %w", domain.ErrUnauthorized)
	}

	o.mu.Lock()
	r, ok := o.resolutions[marketID]
	if !ok || r.Status != domain.ResolutionDisputed {
		o.mu.Unlock()
		return fmt.Errorf("oracle: market %d resolution is not disputed: %w", marketID, domain.ErrState)
	}
	o.resolutions[marketID] = &domain.Resolution{
		MarketID: marketID,
		Status:   domain.ResolutionPending,
		Method:   r.Method,
		Votes:    make(map[string]bool),
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "resolution reopened",
		slog.Uint64("market_id", marketID),
		slog.String("admin", caller),
	)
	return nil
}

// Resolution returns a snapshot of a market's resolution record. Markets
// with no submission yet report a pending record.
func (o *Oracle) Resolution(marketID uint64) (domain.Resolution, error) {
	if _, err := o.engine.Market(marketID); err != nil {
		return domain.Resolution{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if r, ok := o.resolutions[marketID]; ok {
		return r.Clone(), nil
	}
	return domain.Resolution{
		MarketID: marketID,
		Status:   domain.ResolutionPending,
		Method:   o.configFor(marketID).Method,
		Votes:    map[string]bool{},
	}, nil
}

// MarketPolicy returns the resolution policy in effect for a market.
func (o *Oracle) MarketPolicy(marketID uint64) domain.MarketConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.configFor(marketID)
}

// HasVoted reports whether the address has voted on the market, and the
// outcome it voted for.
func (o *Oracle) HasVoted(marketID uint64, addr string) (voted bool, outcome bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.resolutions[marketID]
	if !ok {
		return false, false
	}
	outcome, voted = r.Votes[addr]
	return voted, outcome
}

// GetVote returns the outcome an address voted for on a market. It fails
// when the market has no resolution record or the address never voted.
func (o *Oracle) GetVote(marketID uint64, addr string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.resolutions[marketID]
	if !ok {
		return false, fmt.Errorf("oracle: market %d has no resolution record: %w", marketID, domain.ErrNotFound)
	}
	outcome, voted := r.Votes[addr]
	if !voted {
		return false, fmt.Errorf("oracle: %s has not voted on market %d: %w", addr, marketID, domain.ErrNotFound)
	}
	return outcome, nil
}

// AddResolver registers an address as a resolver and voter. Admin only.
func (o *Oracle) AddResolver(caller, addr string) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("oracle: only admin may manage resolvers: %w", domain.ErrUnauthorized)
	}
	if addr == "" {
		return fmt.Errorf("oracle: resolver address required: %w", domain.ErrValidation)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolvers[addr] = true
	return nil
}

// RemoveResolver revokes a resolver. Admin only. Existing votes stand.
func (o *Oracle) RemoveResolver(caller, addr string) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("oracle: only admin may manage resolvers: %w", domain.ErrUnauthorized)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.resolvers, addr)
	return nil
}

// SetDefaultDisputePeriod changes the dispute window applied to markets
// without an explicit policy. Admin only. Markets already configured keep
// their own windows.
func (o *Oracle) SetDefaultDisputePeriod(caller string, d time.Duration) error {
	if caller != o.cfg.Admin {
		return fmt.Errorf("oracle: only admin may set the default dispute period: %w", domain.ErrUnauthorized)
	}
	if d < 0 || d > o.cfg.MaxDisputePeriod {
		return fmt.Errorf("oracle: dispute period %s out of range: %w", d, domain.ErrValidation)
	}
	o.mu.Lock()
	o.defaultCfg.DisputePeriod = d
	o.mu.Unlock()
	o.logger.Info("default dispute period changed", slog.Duration("dispute_period", d))
	return nil
}

// DefaultDisputePeriod returns the dispute window applied to unconfigured
// markets.
func (o *Oracle) DefaultDisputePeriod() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.defaultCfg.DisputePeriod
}

// Resolvers returns the registered resolver addresses.
func (o *Oracle) Resolvers() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.resolvers))
	for addr := range o.resolvers {
		out = append(out, addr)
	}
	return out
}

// finalize pushes the outcome to the engine and marks the record resolved.
// The engine enforces its own one-way transition, so a concurrent finalize
// cannot flip an outcome.
func (o *Oracle) finalize(ctx context.Context, marketID uint64, outcome bool) error {
	if err := o.engine.ResolveMarket(ctx, o.cfg.Address, marketID, outcome); err != nil {
		return fmt.Errorf("oracle: finalize market %d: %w", marketID, err)
	}

	o.mu.Lock()
	if r, ok := o.resolutions[marketID]; ok {
		r.Status = domain.ResolutionResolved
		r.Outcome = outcome
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "resolution finalized",
		slog.Uint64("market_id", marketID),
		slog.Bool("outcome", outcome),
	)
	return nil
}

// configFor returns the market's policy or the default. Callers hold o.mu.
func (o *Oracle) configFor(marketID uint64) domain.MarketConfig {
	if cfg, ok := o.configs[marketID]; ok {
		return cfg
	}
	return o.defaultCfg
}

func (o *Oracle) isResolver(addr string) bool {
	if addr == "" {
		return false
	}
	if addr == o.cfg.Admin {
		return true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.resolvers[addr]
}

// publish emits an event on the signal bus; failures are logged, never fatal.
func (o *Oracle) publish(ctx context.Context, eventType string, marketID uint64, fields map[string]string) {
	evt := domain.Event{
		Type:     eventType,
		MarketID: marketID,
		At:       o.now().UTC(),
		Fields:   fields,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	channel := domain.EventChannel(eventType)
	if err := o.bus.Publish(ctx, channel, payload); err != nil {
		o.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", eventType),
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := o.bus.StreamAppend(ctx, channel, payload); err != nil {
		o.logger.WarnContext(ctx, "event history append failed",
			slog.String("event", eventType),
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func outcomeName(outcome bool) string {
	if outcome {
		return "yes"
	}
	return "no"
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/oracle"
)

// ResolutionService fronts the oracle and journals resolution records and
// admin actions. The stores may be nil (paper mode).
type ResolutionService struct {
	oracle      *oracle.Oracle
	resolutions domain.ResolutionStore
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewResolutionService creates a ResolutionService with all required
// dependencies.
func NewResolutionService(
	o *oracle.Oracle,
	resolutions domain.ResolutionStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		oracle:      o,
		resolutions: resolutions,
		audit:       audit,
		logger:      logger,
	}
}

// ConfigureMarket sets a market's resolution policy.
func (s *ResolutionService) ConfigureMarket(ctx context.Context, caller string, marketID uint64, cfg domain.MarketConfig) error {
	if err := s.oracle.ConfigureMarket(ctx, caller, marketID, cfg); err != nil {
		return err
	}
	s.auditLog(ctx, "oracle.configure_market", map[string]any{
		"caller":           caller,
		"market_id":        marketID,
		"method":           string(cfg.Method),
		"resolution_delay": cfg.ResolutionDelay.String(),
		"dispute_period":   cfg.DisputePeriod.String(),
		"min_voters":       cfg.MinVoters,
	})
	return nil
}

// SubmitResolution proposes an outcome for an expired market.
func (s *ResolutionService) SubmitResolution(ctx context.Context, caller string, marketID uint64, outcome bool, evidence string) error {
	if err := s.oracle.SubmitResolution(ctx, caller, marketID, outcome, evidence); err != nil {
		return err
	}
	s.journalResolution(ctx, marketID)
	return nil
}

// Vote records a resolver's vote on a consensus market.
func (s *ResolutionService) Vote(ctx context.Context, caller string, marketID uint64, outcome bool) error {
	if err := s.oracle.Vote(ctx, caller, marketID, outcome); err != nil {
		return err
	}
	s.journalResolution(ctx, marketID)
	return nil
}

// FinalizeResolution completes a submitted resolution once its delay and
// dispute window have passed.
func (s *ResolutionService) FinalizeResolution(ctx context.Context, marketID uint64) error {
	if err := s.oracle.FinalizeResolution(ctx, marketID); err != nil {
		return err
	}
	s.journalResolution(ctx, marketID)
	return nil
}

// DisputeResolution challenges a submitted resolution inside its window.
func (s *ResolutionService) DisputeResolution(ctx context.Context, caller string, marketID uint64, reason string) error {
	if err := s.oracle.DisputeResolution(ctx, caller, marketID, reason); err != nil {
		return err
	}
	s.journalResolution(ctx, marketID)
	return nil
}

// ReopenResolution returns a disputed market to pending. Admin only.
func (s *ResolutionService) ReopenResolution(ctx context.Context, caller string, marketID uint64) error {
	res, _ := s.oracle.Resolution(marketID)
	if err := s.oracle.ReopenResolution(ctx, caller, marketID); err != nil {
		return err
	}
	s.journalResolution(ctx, marketID)
	s.auditLog(ctx, "oracle.reopen_resolution", map[string]any{
		"caller":          caller,
		"market_id":       marketID,
		"disputed_by":     res.DisputedBy,
		"dispute_reason":  res.DisputeReason,
		"dropped_outcome": res.Outcome,
	})
	return nil
}

// Resolution returns a market's resolution record.
func (s *ResolutionService) Resolution(ctx context.Context, marketID uint64) (domain.Resolution, error) {
	return s.oracle.Resolution(marketID)
}

// MarketPolicy returns the resolution policy in effect for a market.
func (s *ResolutionService) MarketPolicy(marketID uint64) domain.MarketConfig {
	return s.oracle.MarketPolicy(marketID)
}

// GetVote returns the outcome an address voted for on a market.
func (s *ResolutionService) GetVote(ctx context.Context, marketID uint64, addr string) (bool, error) {
	return s.oracle.GetVote(marketID, addr)
}

// AddResolver registers a resolver address. Admin only.
func (s *ResolutionService) AddResolver(ctx context.Context, caller, addr string) error {
	if err := s.oracle.AddResolver(caller, addr); err != nil {
		return err
	}
	s.auditLog(ctx, "oracle.add_resolver", map[string]any{"caller": caller, "resolver": addr})
	return nil
}

// RemoveResolver revokes a resolver address. Admin only.
func (s *ResolutionService) RemoveResolver(ctx context.Context, caller, addr string) error {
	if err := s.oracle.RemoveResolver(caller, addr); err != nil {
		return err
	}
	s.auditLog(ctx, "oracle.remove_resolver", map[string]any{"caller": caller, "resolver": addr})
	return nil
}

// Resolvers returns the registered resolver addresses.
func (s *ResolutionService) Resolvers() []string {
	return s.oracle.Resolvers()
}

// SetDefaultDisputePeriod changes the dispute window for markets without an
// explicit policy. Admin only.
func (s *ResolutionService) SetDefaultDisputePeriod(ctx context.Context, caller string, d time.Duration) error {
	if err := s.oracle.SetDefaultDisputePeriod(caller, d); err != nil {
		return err
	}
	s.auditLog(ctx, "oracle.set_default_dispute_period", map[string]any{
		"caller":         caller,
		"dispute_period": d.String(),
	})
	return nil
}

// DefaultDisputePeriod returns the dispute window applied to unconfigured
// markets.
func (s *ResolutionService) DefaultDisputePeriod() time.Duration {
	return s.oracle.DefaultDisputePeriod()
}

func (s *ResolutionService) journalResolution(ctx context.Context, marketID uint64) {
	if s.resolutions == nil {
		return
	}
	res, err := s.oracle.Resolution(marketID)
	if err != nil {
		return
	}
	if err := s.resolutions.Upsert(ctx, res); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: journal failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ResolutionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Package service composes the engine and oracle with the journal stores,
// price cache, and signal bus. Services are what the HTTP layer talks to:
// they run the core operation first, then perform best-effort side writes
// (journaling, caching) that never affect the operation's outcome.
package service

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/predictpool/internal/amm"
	"github.com/alanyoungcy/predictpool/internal/domain"
)

// MarketService fronts the AMM engine and adds persistence and caching on
// top. The journal stores and the price cache may be nil (paper mode), in
// which case the corresponding side writes are skipped.
type MarketService struct {
	engine *amm.Engine
	market domain.MarketStore
	trades domain.TradeStore
	prices domain.PriceCache
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	engine *amm.Engine,
	markets domain.MarketStore,
	trades domain.TradeStore,
	prices domain.PriceCache,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine: engine,
		market: markets,
		trades: trades,
		prices: prices,
		audit:  audit,
		logger: logger,
	}
}

// CreateMarket creates a market on the engine and journals the snapshot.
func (s *MarketService) CreateMarket(ctx context.Context, creator, question string, endTime time.Time, initialLiquidity *big.Int, feeBps int64) (domain.Market, error) {
	id, err := s.engine.CreateMarket(ctx, creator, question, endTime, initialLiquidity, feeBps)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := s.engine.Market(id)
	if err != nil {
		return domain.Market{}, err
	}

	s.journalMarket(ctx, m)
	s.refreshPrices(ctx, m)
	return m, nil
}

// GetMarket returns the live market state from the ledger.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	return s.engine.Market(id)
}

// ListMarkets returns all live markets ordered by id.
func (s *MarketService) ListMarkets(ctx context.Context) []domain.Market {
	return s.engine.Markets()
}

// Prices returns the YES and NO prices for a market at the 1e18 scale,
// preferring the cache and falling back to the engine on a miss.
func (s *MarketService) Prices(ctx context.Context, marketID uint64) (priceYes, priceNo *big.Int, err error) {
	if s.prices != nil {
		y, n, _, cacheErr := s.prices.GetPrices(ctx, marketID)
		if cacheErr == nil {
			return y, n, nil
		}
	}

	priceYes, err = s.engine.Price(marketID, true)
	if err != nil {
		return nil, nil, err
	}
	priceNo, err = s.engine.Price(marketID, false)
	if err != nil {
		return nil, nil, err
	}

	if s.prices != nil {
		if cacheErr := s.prices.SetPrices(ctx, marketID, priceYes, priceNo, time.Now()); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: price cache set failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return priceYes, priceNo, nil
}

// Quote returns the shares a trade would receive without executing it.
func (s *MarketService) Quote(ctx context.Context, marketID uint64, isYes bool, tokensIn *big.Int) (domain.Quote, error) {
	return s.engine.SharesOut(marketID, isYes, tokensIn)
}

// Trade executes a trade on the engine, then journals the trade record and
// refreshes the cached prices.
func (s *MarketService) Trade(ctx context.Context, trader string, marketID uint64, isYes bool, tokensIn, minSharesOut *big.Int, deadline time.Time) (domain.TradeRecord, error) {
	rec, err := s.engine.Trade(ctx, trader, marketID, isYes, tokensIn, minSharesOut, deadline)
	if err != nil {
		return domain.TradeRecord{}, err
	}

	if s.trades != nil {
		if jErr := s.trades.Insert(ctx, rec); jErr != nil {
			s.logger.WarnContext(ctx, "market_service: trade journal failed",
				slog.String("trade_id", rec.ID),
				slog.String("error", jErr.Error()),
			)
		}
	}

	s.syncMarket(ctx, marketID)
	return rec, nil
}

// AddLiquidity deposits liquidity and returns the LP shares minted.
func (s *MarketService) AddLiquidity(ctx context.Context, provider string, marketID uint64, amount *big.Int) (*big.Int, error) {
	minted, err := s.engine.AddLiquidity(ctx, provider, marketID, amount)
	if err != nil {
		return nil, err
	}
	s.syncMarket(ctx, marketID)
	return minted, nil
}

// RemoveLiquidity burns LP shares and returns the collateral paid out.
func (s *MarketService) RemoveLiquidity(ctx context.Context, provider string, marketID uint64, lpTokens *big.Int) (*big.Int, error) {
	out, err := s.engine.RemoveLiquidity(ctx, provider, marketID, lpTokens)
	if err != nil {
		return nil, err
	}
	s.syncMarket(ctx, marketID)
	return out, nil
}

// ClaimWinnings pays out a claimer's winning shares.
func (s *MarketService) ClaimWinnings(ctx context.Context, claimer string, marketID uint64) (*big.Int, error) {
	payout, err := s.engine.ClaimWinnings(ctx, claimer, marketID)
	if err != nil {
		return nil, err
	}
	s.syncMarket(ctx, marketID)
	return payout, nil
}

// Position returns an address's LP, YES, and NO balances in a market.
func (s *MarketService) Position(ctx context.Context, marketID uint64, addr string) (domain.Position, error) {
	return s.engine.UserShares(marketID, addr)
}

// TradesByMarket returns journaled trades for a market, most recent first.
// Requires the trade journal; paper mode returns an empty slice.
func (s *MarketService) TradesByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if s.trades == nil {
		return nil, nil
	}
	return s.trades.ListByMarket(ctx, marketID, opts)
}

// TradesByTrader returns a trader's journaled trades, most recent first.
func (s *MarketService) TradesByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if s.trades == nil {
		return nil, nil
	}
	return s.trades.ListByTrader(ctx, trader, opts)
}

// Pause blocks entries (market creation, trading, deposits). Admin only.
func (s *MarketService) Pause(ctx context.Context, caller string) error {
	if err := s.engine.Pause(caller); err != nil {
		return err
	}
	s.auditLog(ctx, "admin.pause", map[string]any{"caller": caller})
	return nil
}

// Unpause re-enables entries. Admin only.
func (s *MarketService) Unpause(ctx context.Context, caller string) error {
	if err := s.engine.Unpause(caller); err != nil {
		return err
	}
	s.auditLog(ctx, "admin.unpause", map[string]any{"caller": caller})
	return nil
}

// Paused reports whether entries are blocked.
func (s *MarketService) Paused() bool {
	return s.engine.Paused()
}

// SetAuthorizedResolver toggles engine-level resolution authorization.
func (s *MarketService) SetAuthorizedResolver(ctx context.Context, caller, addr string, authorized bool) error {
	if err := s.engine.SetAuthorizedResolver(caller, addr, authorized); err != nil {
		return err
	}
	s.auditLog(ctx, "admin.set_resolver", map[string]any{
		"caller":     caller,
		"resolver":   addr,
		"authorized": authorized,
	})
	return nil
}

// syncMarket journals the current market snapshot and refreshes cached
// prices after a mutation. Best effort.
func (s *MarketService) syncMarket(ctx context.Context, marketID uint64) {
	m, err := s.engine.Market(marketID)
	if err != nil {
		return
	}
	s.journalMarket(ctx, m)
	s.refreshPrices(ctx, m)
}

func (s *MarketService) journalMarket(ctx context.Context, m domain.Market) {
	if s.market == nil {
		return
	}
	if err := s.market.Upsert(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: market journal failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) refreshPrices(ctx context.Context, m domain.Market) {
	if s.prices == nil {
		return
	}
	priceYes, err := s.engine.Price(m.ID, true)
	if err != nil {
		return
	}
	priceNo, err := s.engine.Price(m.ID, false)
	if err != nil {
		return
	}
	if err := s.prices.SetPrices(ctx, m.ID, priceYes, priceNo, time.Now()); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache refresh failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

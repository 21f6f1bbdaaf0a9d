package amm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/ledger"
)

// Config holds the engine's static parameters.
type Config struct {
	// Admin is the address allowed to toggle resolvers and pause trading.
	Admin string

	// PoolAddress is the collateral account that custodies every market's
	// reserves. Deposits are pulled into it, payouts are pushed out of it.
	PoolAddress string

	// MinInitialLiquidity is the floor for createMarket, preventing
	// degenerate zero-liquidity markets.
	MinInitialLiquidity *big.Int

	// Now supplies the current time for every time-gated check. Defaults to
	// time.Now; tests inject a fixed clock.
	Now func() time.Time
}

// Engine executes all market operations against the ledger, moving funds
// through the collateral asset. Every mutating operation is atomic: ledger
// mutation and collateral transfer either both commit or neither does, and
// the market's exclusive lock is held for the operation's full duration.
type Engine struct {
	ledger     *ledger.Ledger
	collateral domain.CollateralAsset
	bus        domain.SignalBus
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time

	mu        sync.RWMutex // guards paused and resolvers
	paused    bool
	resolvers map[string]bool
}

// NewEngine creates an Engine with all required dependencies.
func NewEngine(
	led *ledger.Ledger,
	collateral domain.CollateralAsset,
	bus domain.SignalBus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		ledger:     led,
		collateral: collateral,
		bus:        bus,
		logger:     logger.With(slog.String("component", "amm")),
		cfg:        cfg,
		now:        now,
		resolvers:  make(map[string]bool),
	}
}

// CreateMarket validates parameters, debits the initial liquidity from the
// creator, and stores a new market with reserves split evenly across YES and
// NO. The creator is credited the full deposit in LP shares. Returns the
// assigned market id.
func (e *Engine) CreateMarket(ctx context.Context, creator, question string, endTime time.Time, initialLiquidity *big.Int, feeBps int64) (uint64, error) {
	if err := e.checkPaused(); err != nil {
		return 0, err
	}
	if creator == "" {
		return 0, fmt.Errorf("amm: creator address required: %w", domain.ErrValidation)
	}
	if question == "" {
		return 0, fmt.Errorf("amm: question required: %w", domain.ErrValidation)
	}
	now := e.now()
	if !endTime.After(now) {
		return 0, fmt.Errorf("amm: end time %s not in the future: %w", endTime.Format(time.RFC3339), domain.ErrValidation)
	}
	if feeBps < 0 || feeBps > domain.MaxFeeBps {
		return 0, fmt.Errorf("amm: fee %d bps exceeds maximum %d: %w", feeBps, domain.MaxFeeBps, domain.ErrValidation)
	}
	if initialLiquidity == nil || initialLiquidity.Cmp(e.cfg.MinInitialLiquidity) < 0 {
		return 0, fmt.Errorf("amm: initial liquidity below minimum %s: %w", e.cfg.MinInitialLiquidity, domain.ErrValidation)
	}

	// Pull the deposit before touching any state; a failed transfer leaves
	// no trace.
	if err := e.collateral.TransferFrom(ctx, creator, e.cfg.PoolAddress, initialLiquidity); err != nil {
		return 0, fmt.Errorf("amm: create market deposit: %w", err)
	}

	liqYes, liqNo := splitEven(initialLiquidity)
	id := e.ledger.CreateMarket(domain.Market{
		Question:     question,
		EndTime:      endTime,
		LiquidityYes: liqYes,
		LiquidityNo:  liqNo,
		TotalShares:  new(big.Int).Set(initialLiquidity),
		Creator:      creator,
		FeeBps:       feeBps,
		CreatedAt:    now,
	})

	// Credit the creator's LP shares. The market is freshly created, so this
	// cannot conflict with another operation.
	_ = e.ledger.Update(id, func(tx *ledger.Tx) error {
		tx.Position(creator).LPShares.Set(initialLiquidity)
		return nil
	})

	e.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator),
		slog.String("initial_liquidity", initialLiquidity.String()),
		slog.Int64("fee_bps", feeBps),
	)
	e.publish(ctx, domain.EventMarketCreated, id, map[string]string{
		"creator":           creator,
		"question":          question,
		"end_time":          endTime.Format(time.RFC3339),
		"initial_liquidity": initialLiquidity.String(),
	})

	return id, nil
}

// Price returns the current price of one side at the 1e18 scale. Resolved
// markets price the winning side at exactly one unit and the losing side at
// zero, regardless of reserves.
func (e *Engine) Price(marketID uint64, isYes bool) (*big.Int, error) {
	m, err := e.ledger.Market(marketID)
	if err != nil {
		return nil, err
	}
	if m.Resolved {
		if m.Outcome == isYes {
			return new(big.Int).Set(domain.PriceUnit), nil
		}
		return new(big.Int), nil
	}
	return spotPrice(m.LiquidityYes, m.LiquidityNo, isYes), nil
}

// SharesOut quotes a trade without mutating anything: the shares received
// for tokensIn on the given side, and the effective all-in price per share.
// Quoting a resolved market is an error.
func (e *Engine) SharesOut(marketID uint64, isYes bool, tokensIn *big.Int) (domain.Quote, error) {
	m, err := e.ledger.Market(marketID)
	if err != nil {
		return domain.Quote{}, err
	}
	if m.Resolved {
		return domain.Quote{}, fmt.Errorf("amm: market %d already resolved: %w", marketID, domain.ErrState)
	}
	if tokensIn == nil || tokensIn.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("amm: tokens in must be positive: %w", domain.ErrValidation)
	}

	target, other := m.LiquidityYes, m.LiquidityNo
	if !isYes {
		target, other = m.LiquidityNo, m.LiquidityYes
	}
	return quote(target, other, tokensIn, m.FeeBps), nil
}

// Trade buys outcome shares on one side. The full tokensIn (fee included)
// is pulled from the trader into the pool; the bought side's reserve drops
// by the shares sold and the opposite reserve grows by the fee-adjusted
// input, so fees accrue implicitly as retained reserve value.
func (e *Engine) Trade(ctx context.Context, trader string, marketID uint64, isYes bool, tokensIn, minSharesOut *big.Int, deadline time.Time) (domain.TradeRecord, error) {
	if err := e.checkPaused(); err != nil {
		return domain.TradeRecord{}, err
	}
	if trader == "" {
		return domain.TradeRecord{}, fmt.Errorf("amm: trader address required: %w", domain.ErrValidation)
	}
	if tokensIn == nil || tokensIn.Sign() <= 0 {
		return domain.TradeRecord{}, fmt.Errorf("amm: tokens in must be positive: %w", domain.ErrValidation)
	}
	if minSharesOut == nil {
		minSharesOut = new(big.Int)
	}

	var rec domain.TradeRecord
	err := e.ledger.Update(marketID, func(tx *ledger.Tx) error {
		m := tx.Market()
		now := e.now()

		if m.Resolved {
			return fmt.Errorf("amm: market %d already resolved: %w", marketID, domain.ErrState)
		}
		if m.Expired(now) {
			return fmt.Errorf("amm: market %d trading closed at %s: %w", marketID, m.EndTime.Format(time.RFC3339), domain.ErrState)
		}
		if !deadline.IsZero() && now.After(deadline) {
			return fmt.Errorf("amm: trade deadline passed: %w", domain.ErrState)
		}

		target, other := m.LiquidityYes, m.LiquidityNo
		if !isYes {
			target, other = m.LiquidityNo, m.LiquidityYes
		}

		q := quote(target, other, tokensIn, m.FeeBps)
		if q.SharesOut.Sign() == 0 {
			return fmt.Errorf("amm: market %d quote is zero shares: %w", marketID, domain.ErrNoLiquidity)
		}
		// An input large enough to truncate the product invariant to zero
		// would empty the bought reserve; the market cannot price after that.
		if q.SharesOut.Cmp(target) >= 0 {
			return fmt.Errorf("amm: market %d trade would drain the %s reserve: %w", marketID, sideName(isYes), domain.ErrNoLiquidity)
		}
		if q.SharesOut.Cmp(minSharesOut) < 0 {
			return fmt.Errorf("amm: quoted %s shares below minimum %s: %w", q.SharesOut, minSharesOut, domain.ErrSlippage)
		}

		// Pull the full input, fee included, while holding the market lock.
		if err := e.collateral.TransferFrom(ctx, trader, e.cfg.PoolAddress, tokensIn); err != nil {
			return fmt.Errorf("amm: trade deposit: %w", err)
		}

		target.Sub(target, q.SharesOut)
		other.Add(other, netIn(tokensIn, m.FeeBps))

		pos := tx.Position(trader)
		if isYes {
			pos.YesShares.Add(pos.YesShares, q.SharesOut)
		} else {
			pos.NoShares.Add(pos.NoShares, q.SharesOut)
		}

		rec = domain.TradeRecord{
			ID:             uuid.New().String(),
			MarketID:       marketID,
			Trader:         trader,
			IsYes:          isYes,
			TokensIn:       new(big.Int).Set(tokensIn),
			SharesOut:      q.SharesOut,
			EffectivePrice: q.EffectivePrice,
			ExecutedAt:     now,
		}
		return nil
	})
	if err != nil {
		return domain.TradeRecord{}, err
	}

	e.logger.InfoContext(ctx, "trade executed",
		slog.Uint64("market_id", marketID),
		slog.String("trader", trader),
		slog.Bool("is_yes", isYes),
		slog.String("tokens_in", rec.TokensIn.String()),
		slog.String("shares_out", rec.SharesOut.String()),
	)
	e.publish(ctx, domain.EventTradeExecuted, marketID, map[string]string{
		"trade_id":        rec.ID,
		"trader":          trader,
		"side":            sideName(isYes),
		"tokens_in":       rec.TokensIn.String(),
		"shares_out":      rec.SharesOut.String(),
		"effective_price": rec.EffectivePrice.String(),
	})

	return rec, nil
}

// AddLiquidity deposits collateral into an unresolved market, splitting it
// across both reserves at the current ratio so the price is unchanged, and
// mints LP shares proportional to the pool's current total.
func (e *Engine) AddLiquidity(ctx context.Context, provider string, marketID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.checkPaused(); err != nil {
		return nil, err
	}
	if provider == "" {
		return nil, fmt.Errorf("amm: provider address required: %w", domain.ErrValidation)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amm: amount must be positive: %w", domain.ErrValidation)
	}

	var minted *big.Int
	err := e.ledger.Update(marketID, func(tx *ledger.Tx) error {
		m := tx.Market()
		if m.Resolved {
			return fmt.Errorf("amm: market %d already resolved: %w", marketID, domain.ErrState)
		}

		if err := e.collateral.TransferFrom(ctx, provider, e.cfg.PoolAddress, amount); err != nil {
			return fmt.Errorf("amm: liquidity deposit: %w", err)
		}

		var yesAmt, noAmt *big.Int
		if m.TotalShares.Sign() == 0 {
			// Transient empty pool: seed it as at creation.
			yesAmt, noAmt = splitEven(amount)
			minted = new(big.Int).Set(amount)
		} else {
			total := m.TotalLiquidity()
			minted = lpTokensFor(amount, m.TotalShares, total)
			yesAmt, noAmt = splitProportional(amount, m.LiquidityYes, total)
		}

		m.LiquidityYes.Add(m.LiquidityYes, yesAmt)
		m.LiquidityNo.Add(m.LiquidityNo, noAmt)
		m.TotalShares.Add(m.TotalShares, minted)

		pos := tx.Position(provider)
		pos.LPShares.Add(pos.LPShares, minted)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "liquidity added",
		slog.Uint64("market_id", marketID),
		slog.String("provider", provider),
		slog.String("amount", amount.String()),
		slog.String("lp_minted", minted.String()),
	)
	e.publish(ctx, domain.EventLiquidityAdded, marketID, map[string]string{
		"provider":  provider,
		"amount":    amount.String(),
		"lp_minted": minted.String(),
	})

	return minted, nil
}

// RemoveLiquidity burns LP shares for a proportional share of the pool's
// collateral. Exits remain available on resolved and paused markets; on a
// resolved market the reserves are left untouched because the terminal
// price function ignores them.
func (e *Engine) RemoveLiquidity(ctx context.Context, provider string, marketID uint64, lpTokens *big.Int) (*big.Int, error) {
	if provider == "" {
		return nil, fmt.Errorf("amm: provider address required: %w", domain.ErrValidation)
	}
	if lpTokens == nil || lpTokens.Sign() <= 0 {
		return nil, fmt.Errorf("amm: lp tokens must be positive: %w", domain.ErrValidation)
	}

	var amountOut *big.Int
	err := e.ledger.Update(marketID, func(tx *ledger.Tx) error {
		m := tx.Market()
		pos := tx.Position(provider)

		if lpTokens.Cmp(pos.LPShares) > 0 {
			return fmt.Errorf("amm: burning %s lp shares but only %s held: %w", lpTokens, pos.LPShares, domain.ErrValidation)
		}

		total := m.TotalLiquidity()
		amountOut = withdrawalFor(lpTokens, m.TotalShares, total)

		if !m.Resolved {
			yesOut, noOut := splitProportional(amountOut, m.LiquidityYes, total)
			m.LiquidityYes.Sub(m.LiquidityYes, yesOut)
			m.LiquidityNo.Sub(m.LiquidityNo, noOut)
		}

		m.TotalShares.Sub(m.TotalShares, lpTokens)
		pos.LPShares.Sub(pos.LPShares, lpTokens)

		if err := e.collateral.Transfer(ctx, provider, amountOut); err != nil {
			return fmt.Errorf("amm: liquidity withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "liquidity removed",
		slog.Uint64("market_id", marketID),
		slog.String("provider", provider),
		slog.String("lp_burned", lpTokens.String()),
		slog.String("amount_out", amountOut.String()),
	)
	e.publish(ctx, domain.EventLiquidityRemoved, marketID, map[string]string{
		"provider":   provider,
		"lp_burned":  lpTokens.String(),
		"amount_out": amountOut.String(),
	})

	return amountOut, nil
}

// ResolveMarket performs the one-way resolution transition. Only an
// authorized resolver (the oracle) or the admin may call it, and only once
// the market's end time has passed. There is no un-resolve.
func (e *Engine) ResolveMarket(ctx context.Context, caller string, marketID uint64, outcome bool) error {
	if !e.isResolver(caller) {
		return fmt.Errorf("amm: %s is not an authorized resolver: %w", caller, domain.ErrUnauthorized)
	}

	err := e.ledger.Update(marketID, func(tx *ledger.Tx) error {
		m := tx.Market()
		now := e.now()

		if m.Resolved {
			return fmt.Errorf("amm: market %d already resolved: %w", marketID, domain.ErrState)
		}
		if now.Before(m.EndTime) {
			return fmt.Errorf("amm: market %d has not expired: %w", marketID, domain.ErrState)
		}

		m.Resolved = true
		m.Outcome = outcome
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", marketID),
		slog.Bool("outcome", outcome),
		slog.String("resolver", caller),
	)
	e.publish(ctx, domain.EventMarketResolved, marketID, map[string]string{
		"outcome":  sideName(outcome),
		"resolver": caller,
	})

	return nil
}

// ClaimWinnings pays the caller their winning-side share balance 1:1 in
// collateral and zeroes it, so a second claim has nothing to pay.
func (e *Engine) ClaimWinnings(ctx context.Context, claimer string, marketID uint64) (*big.Int, error) {
	if claimer == "" {
		return nil, fmt.Errorf("amm: claimer address required: %w", domain.ErrValidation)
	}

	var payout *big.Int
	err := e.ledger.Update(marketID, func(tx *ledger.Tx) error {
		m := tx.Market()
		if !m.Resolved {
			return fmt.Errorf("amm: market %d not resolved: %w", marketID, domain.ErrState)
		}

		pos := tx.Position(claimer)
		winning := pos.NoShares
		if m.Outcome {
			winning = pos.YesShares
		}
		if winning.Sign() == 0 {
			return fmt.Errorf("amm: market %d claimer %s: %w", marketID, claimer, domain.ErrNoWinnings)
		}

		payout = new(big.Int).Set(winning)
		winning.SetInt64(0)

		if err := e.collateral.Transfer(ctx, claimer, payout); err != nil {
			return fmt.Errorf("amm: winnings payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "winnings claimed",
		slog.Uint64("market_id", marketID),
		slog.String("claimer", claimer),
		slog.String("payout", payout.String()),
	)
	e.publish(ctx, domain.EventWinningsClaimed, marketID, map[string]string{
		"claimer": claimer,
		"payout":  payout.String(),
	})

	return payout, nil
}

// Market returns a read-only snapshot of all market fields.
func (e *Engine) Market(marketID uint64) (domain.Market, error) {
	return e.ledger.Market(marketID)
}

// Markets returns snapshots of every market ordered by id.
func (e *Engine) Markets() []domain.Market {
	return e.ledger.Markets()
}

// UserShares returns the LP, YES, and NO balances for an address.
func (e *Engine) UserShares(marketID uint64, addr string) (domain.Position, error) {
	return e.ledger.Position(marketID, addr)
}

// SetAuthorizedResolver toggles resolution authorization for an address.
// Admin only.
func (e *Engine) SetAuthorizedResolver(caller, addr string, authorized bool) error {
	if caller != e.cfg.Admin {
		return fmt.Errorf("amm: only admin may manage resolvers: %w", domain.ErrUnauthorized)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if authorized {
		e.resolvers[addr] = true
	} else {
		delete(e.resolvers, addr)
	}
	return nil
}

// Pause blocks market creation, trading, and liquidity deposits. Exits
// (RemoveLiquidity, ClaimWinnings) always remain available. Admin only.
func (e *Engine) Pause(caller string) error {
	if caller != e.cfg.Admin {
		return fmt.Errorf("amm: only admin may pause: %w", domain.ErrUnauthorized)
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.logger.Warn("engine paused", slog.String("admin", caller))
	return nil
}

// Unpause re-enables market creation, trading, and liquidity deposits.
// Admin only.
func (e *Engine) Unpause(caller string) error {
	if caller != e.cfg.Admin {
		return fmt.Errorf("amm: only admin may unpause: %w", domain.ErrUnauthorized)
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.logger.Info("engine unpaused", slog.String("admin", caller))
	return nil
}

// Paused reports whether entries are currently blocked.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

func (e *Engine) checkPaused() error {
	if e.Paused() {
		return fmt.Errorf("amm: %w", domain.ErrPaused)
	}
	return nil
}

func (e *Engine) isResolver(addr string) bool {
	if addr == "" {
		return false
	}
	if addr == e.cfg.Admin {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolvers[addr]
}

// publish emits an event on the signal bus: live fan-out over pub/sub plus
// an append to the channel's bounded history stream. Events are
// observability only; a publish failure never fails the operation that
// produced it.
func (e *Engine) publish(ctx context.Context, eventType string, marketID uint64, fields map[string]string) {
	evt := domain.Event{
		Type:     eventType,
		MarketID: marketID,
		At:       e.now().UTC(),
		Fields:   fields,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	channel := domain.EventChannel(eventType)
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", eventType),
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.bus.StreamAppend(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "event history append failed",
			slog.String("event", eventType),
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func sideName(isYes bool) string {
	if isYes {
		return "yes"
	}
	return "no"
}

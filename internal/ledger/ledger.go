// Package ledger owns the authoritative in-memory state for all markets:
// the market table, per-market per-address positions, and sequential id
// allocation. Mutations run through copy-on-write transactions under a
// per-market exclusive lock, so every operation either fully commits or
// leaves no trace, and two trades can never interleave their reserve
// reads and writes. Cross-market operations proceed independently.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// marketState bundles one market with its positions and its lock.
type marketState struct {
	mu        sync.RWMutex
	market    domain.Market
	positions map[string]domain.Position
}

// Ledger is the in-memory market ledger. The zero value is not usable; use New.
type Ledger struct {
	mu      sync.RWMutex // guards the market table and id counter
	markets map[uint64]*marketState
	nextID  uint64
}

// New creates an empty Ledger. IDs are assigned sequentially starting at 1.
func New() *Ledger {
	return &Ledger{
		markets: make(map[uint64]*marketState),
		nextID:  1,
	}
}

// CreateMarket stores a new market, assigning and returning the next
// sequential id. The caller provides every field except ID.
func (l *Ledger) CreateMarket(m domain.Market) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.ID = l.nextID
	l.nextID++

	l.markets[m.ID] = &marketState{
		market:    m.Clone(),
		positions: make(map[string]domain.Position),
	}
	return m.ID
}

func (l *Ledger) get(id uint64) (*marketState, error) {
	l.mu.RLock()
	ms, ok := l.markets[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger: market %d: %w", id, domain.ErrNotFound)
	}
	return ms, nil
}

// Tx is a copy-on-write view of one market handed to Update and View
// callbacks. Mutations made through it become visible only if the callback
// returns nil and the post-conditions hold.
type Tx struct {
	market  *domain.Market
	base    *marketState
	touched map[string]*domain.Position
}

// Market returns the transaction's working copy of the market.
func (tx *Tx) Market() *domain.Market {
	return tx.market
}

// Position returns the working copy of the given address's position,
// creating an empty one on first access.
func (tx *Tx) Position(addr string) *domain.Position {
	if p, ok := tx.touched[addr]; ok {
		return p
	}
	var p domain.Position
	if base, ok := tx.base.positions[addr]; ok {
		p = base.Clone()
	} else {
		p = domain.NewPosition(tx.market.ID, addr)
	}
	tx.touched[addr] = &p
	return &p
}

// validate enforces the ledger invariants before a transaction commits:
// no negative balances, strictly positive reserves while unresolved, and
// the one-way resolved transition.
func (tx *Tx) validate(wasResolved bool, prevOutcome bool) error {
	m := tx.market
	if m.LiquidityYes.Sign() < 0 || m.LiquidityNo.Sign() < 0 {
		return fmt.Errorf("ledger: market %d reserve below zero: %w", m.ID, domain.ErrValidation)
	}
	if m.TotalShares.Sign() < 0 {
		return fmt.Errorf("ledger: market %d total shares below zero: %w", m.ID, domain.ErrValidation)
	}
	if !m.Resolved && m.TotalShares.Sign() > 0 {
		if m.LiquidityYes.Sign() == 0 || m.LiquidityNo.Sign() == 0 {
			return fmt.Errorf("ledger: market %d unresolved with empty reserve: %w", m.ID, domain.ErrValidation)
		}
	}
	if wasResolved && !m.Resolved {
		return fmt.Errorf("ledger: market %d cannot un-resolve: %w", m.ID, domain.ErrState)
	}
	if wasResolved && m.Outcome != prevOutcome {
		return fmt.Errorf("ledger: market %d outcome is immutable: %w", m.ID, domain.ErrState)
	}
	for addr, p := range tx.touched {
		if p.LPShares.Sign() < 0 || p.YesShares.Sign() < 0 || p.NoShares.Sign() < 0 {
			return fmt.Errorf("ledger: market %d position %s below zero: %w", m.ID, addr, domain.ErrValidation)
		}
	}
	return nil
}

// Update runs fn against a copy-on-write transaction for the market,
// holding the market's exclusive lock for the full duration (including any
// external calls fn makes). If fn returns an error, or a ledger invariant
// would be violated, nothing is committed.
func (l *Ledger) Update(id uint64, fn func(tx *Tx) error) error {
	ms, err := l.get(id)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	working := ms.market.Clone()
	tx := &Tx{
		market:  &working,
		base:    ms,
		touched: make(map[string]*domain.Position),
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.validate(ms.market.Resolved, ms.market.Outcome); err != nil {
		return err
	}

	ms.market = working
	for addr, p := range tx.touched {
		ms.positions[addr] = *p
	}
	return nil
}

// View runs fn against a read-only transaction under the market's shared
// lock. Mutations made through the transaction are discarded.
func (l *Ledger) View(id uint64, fn func(tx *Tx) error) error {
	ms, err := l.get(id)
	if err != nil {
		return err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	working := ms.market.Clone()
	tx := &Tx{
		market:  &working,
		base:    ms,
		touched: make(map[string]*domain.Position),
	}
	return fn(tx)
}

// Market returns a snapshot of the market with the given id.
func (l *Ledger) Market(id uint64) (domain.Market, error) {
	ms, err := l.get(id)
	if err != nil {
		return domain.Market{}, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.market.Clone(), nil
}

// Position returns a snapshot of the given address's position in a market.
// Addresses that never interacted get an empty position, not an error.
func (l *Ledger) Position(id uint64, addr string) (domain.Position, error) {
	ms, err := l.get(id)
	if err != nil {
		return domain.Position{}, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if p, ok := ms.positions[addr]; ok {
		return p.Clone(), nil
	}
	return domain.NewPosition(id, addr), nil
}

// Markets returns snapshots of all markets ordered by id.
func (l *Ledger) Markets() []domain.Market {
	l.mu.RLock()
	states := make([]*marketState, 0, len(l.markets))
	for _, ms := range l.markets {
		states = append(states, ms)
	}
	l.mu.RUnlock()

	out := make([]domain.Market, 0, len(states))
	for _, ms := range states {
		ms.mu.RLock()
		out = append(out, ms.market.Clone())
		ms.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of markets in the ledger.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markets)
}

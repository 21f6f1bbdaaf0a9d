package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `id, market_id, trader, is_yes, tokens_in, shares_out,
	effective_price, executed_at`

// Insert journals one executed trade. Re-inserting the same trade id is a
// no-op so replays after a crash stay idempotent.
func (s *TradeStore) Insert(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, market_id, trader, is_yes, tokens_in,
			shares_out, effective_price, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, int64(t.MarketID), t.Trader, t.IsYes,
		bigStr(t.TokensIn), bigStr(t.SharesOut), bigStr(t.EffectivePrice),
		t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t        domain.TradeRecord
			marketID int64
			in, out  string
			price    string
		)
		if err := rows.Scan(
			&t.ID, &marketID, &t.Trader, &t.IsYes,
			&in, &out, &price, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		t.MarketID = uint64(marketID)
		var err error
		if t.TokensIn, err = parseBig(in); err != nil {
			return nil, err
		}
		if t.SharesOut, err = parseBig(out); err != nil {
			return nil, err
		}
		if t.EffectivePrice, err = parseBig(price); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListByMarket returns trades for a market with pagination and optional time
// filtering, most recent first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE market_id = $1`
	query, args := appendWindow(query, []any{int64(marketID)}, opts, "executed_at", "executed_at DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// ListByTrader returns a trader's trades with pagination and optional time
// filtering, most recent first.
func (s *TradeStore) ListByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE trader = $1`
	query, args := appendWindow(query, []any{trader}, opts, "executed_at", "executed_at DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by trader: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by trader: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades executed strictly before the given time, in
// execution order (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE executed_at < $1 ORDER BY executed_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades executed before the given time. Returns
// the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

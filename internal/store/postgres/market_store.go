package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, end_time, liquidity_yes, liquidity_no,
	total_shares, resolved, outcome, creator, fee_bps, created_at`

// Upsert inserts or updates a market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, end_time, liquidity_yes, liquidity_no,
			total_shares, resolved, outcome, creator, fee_bps,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			question      = EXCLUDED.question,
			end_time      = EXCLUDED.end_time,
			liquidity_yes = EXCLUDED.liquidity_yes,
			liquidity_no  = EXCLUDED.liquidity_no,
			total_shares  = EXCLUDED.total_shares,
			resolved      = EXCLUDED.resolved,
			outcome       = EXCLUDED.outcome,
			fee_bps       = EXCLUDED.fee_bps,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(m.ID), m.Question, m.EndTime,
		bigStr(m.LiquidityYes), bigStr(m.LiquidityNo), bigStr(m.TotalShares),
		m.Resolved, m.Outcome, m.Creator, m.FeeBps, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		id         int64
		liqYes     string
		liqNo      string
		totShares  string
		parseError error
	)
	err := row.Scan(
		&id, &m.Question, &m.EndTime, &liqYes, &liqNo,
		&totShares, &m.Resolved, &m.Outcome, &m.Creator, &m.FeeBps,
		&m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	if m.LiquidityYes, parseError = parseBig(liqYes); parseError != nil {
		return domain.Market{}, parseError
	}
	if m.LiquidityNo, parseError = parseBig(liqNo); parseError != nil {
		return domain.Market{}, parseError
	}
	if m.TotalShares, parseError = parseBig(totShares); parseError != nil {
		return domain.Market{}, parseError
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	query, args := appendWindow(query, nil, opts, "created_at", "id DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// ListResolvedBefore returns resolved markets whose trading end time is
// strictly before the given time. The archiver uses this to find markets
// whose history is safe to move to cold storage.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE resolved AND end_time < $1 ORDER BY id ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets before: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

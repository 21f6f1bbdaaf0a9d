package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)

// NewResolutionStore creates a new ResolutionStore backed by the given
// connection pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

const resolutionCols = `market_id, outcome, status, method, submitter,
	submitted_at, evidence, votes_yes, votes_no, votes, disputed_by,
	dispute_reason`

// Upsert inserts or replaces a market's resolution record. Votes are stored
// as a JSONB map of voter address to outcome.
func (s *ResolutionStore) Upsert(ctx context.Context, r domain.Resolution) error {
	votesJSON, err := json.Marshal(r.Votes)
	if err != nil {
		return fmt.Errorf("postgres: marshal resolution votes: %w", err)
	}

	const query = `
		INSERT INTO resolutions (
			market_id, outcome, status, method, submitter,
			submitted_at, evidence, votes_yes, votes_no, votes,
			disputed_by, dispute_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			outcome        = EXCLUDED.outcome,
			status         = EXCLUDED.status,
			method         = EXCLUDED.method,
			submitter      = EXCLUDED.submitter,
			submitted_at   = EXCLUDED.submitted_at,
			evidence       = EXCLUDED.evidence,
			votes_yes      = EXCLUDED.votes_yes,
			votes_no       = EXCLUDED.votes_no,
			votes          = EXCLUDED.votes,
			disputed_by    = EXCLUDED.disputed_by,
			dispute_reason = EXCLUDED.dispute_reason,
			updated_at     = NOW()`

	_, err = s.pool.Exec(ctx, query,
		int64(r.MarketID), r.Outcome, string(r.Status), string(r.Method),
		r.Submitter, r.SubmittedAt, r.Evidence,
		r.VotesYes, r.VotesNo, votesJSON,
		r.DisputedBy, r.DisputeReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert resolution for market %d: %w", r.MarketID, err)
	}
	return nil
}

func scanResolution(row pgx.Row) (domain.Resolution, error) {
	var (
		r         domain.Resolution
		marketID  int64
		status    string
		method    string
		votesJSON []byte
	)
	err := row.Scan(
		&marketID, &r.Outcome, &status, &method, &r.Submitter,
		&r.SubmittedAt, &r.Evidence, &r.VotesYes, &r.VotesNo, &votesJSON,
		&r.DisputedBy, &r.DisputeReason,
	)
	if err != nil {
		return domain.Resolution{}, err
	}
	r.MarketID = uint64(marketID)
	r.Status = domain.ResolutionStatus(status)
	r.Method = domain.ResolutionMethod(method)
	if votesJSON != nil {
		if err := json.Unmarshal(votesJSON, &r.Votes); err != nil {
			return domain.Resolution{}, fmt.Errorf("postgres: unmarshal resolution votes: %w", err)
		}
	}
	return r, nil
}

// GetByMarket retrieves a market's resolution record.
func (s *ResolutionStore) GetByMarket(ctx context.Context, marketID uint64) (domain.Resolution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resolutionCols+` FROM resolutions WHERE market_id = $1`, int64(marketID))
	r, err := scanResolution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Resolution{}, fmt.Errorf("postgres: resolution for market %d: %w", marketID, domain.ErrNotFound)
		}
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution for market %d: %w", marketID, err)
	}
	return r, nil
}

// ListByStatus returns resolutions in a given lifecycle state with
// pagination and optional time filtering.
func (s *ResolutionStore) ListByStatus(ctx context.Context, status domain.ResolutionStatus, opts domain.ListOpts) ([]domain.Resolution, error) {
	query := `SELECT ` + resolutionCols + ` FROM resolutions WHERE status = $1`
	query, args := appendWindow(query, []any{string(status)}, opts, "submitted_at", "market_id ASC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions by status: %w", err)
	}
	defer rows.Close()

	var resolutions []domain.Resolution
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		resolutions = append(resolutions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: resolution rows: %w", err)
	}
	return resolutions, nil
}

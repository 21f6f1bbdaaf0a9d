package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market snapshots. The ledger remains the source of
// truth; the store is a write-behind journal for history and dashboards.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists the trade journal.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]TradeRecord, error)
	ListByTrader(ctx context.Context, trader string, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ResolutionStore persists resolution records.
type ResolutionStore interface {
	Upsert(ctx context.Context, res Resolution) error
	GetByMarket(ctx context.Context, marketID uint64) (Resolution, error)
	ListByStatus(ctx context.Context, status ResolutionStatus, opts ListOpts) ([]Resolution, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

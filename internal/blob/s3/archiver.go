package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// TradeArchiveStore is the read surface the archiver needs from the trade
// journal. The Postgres TradeStore satisfies it.
type TradeArchiveStore interface {
	// ListBefore returns all trades executed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
}

// ArchiveImpl implements domain.Archiver by querying the journal stores for
// settled history, serializing it to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	audit  domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		audit:  audit,
	}
}

// ArchiveTrades queries all trades before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/trades/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	lines := make([]archivedTrade, len(trades))
	for i, t := range trades {
		lines[i] = newArchivedTrade(t)
	}

	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog uploads all audit entries before the cutoff to S3 at
// archive/audit/YYYY-MM.jsonl and returns the count of archived records.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return int64(len(entries)), nil
}

// archivedTrade is the JSONL row format. Big integers are rendered as
// decimal strings so any JSON reader can parse them without precision loss.
type archivedTrade struct {
	ID             string    `json:"id"`
	MarketID       uint64    `json:"market_id"`
	Trader         string    `json:"trader"`
	Side           string    `json:"side"`
	TokensIn       string    `json:"tokens_in"`
	SharesOut      string    `json:"shares_out"`
	EffectivePrice string    `json:"effective_price"`
	ExecutedAt     time.Time `json:"executed_at"`
}

func newArchivedTrade(t domain.TradeRecord) archivedTrade {
	side := "no"
	if t.IsYes {
		side = "yes"
	}
	return archivedTrade{
		ID:             t.ID,
		MarketID:       t.MarketID,
		Trader:         t.Trader,
		Side:           side,
		TokensIn:       t.TokensIn.String(),
		SharesOut:      t.SharesOut.String(),
		EffectivePrice: t.EffectivePrice.String(),
		ExecutedAt:     t.ExecutedAt,
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// ArchiveJob periodically moves settled history older than the retention
// window from the database to cold storage, then prunes the archived rows.
// A distributed lock keeps concurrent deployments from archiving the same
// window twice.
type ArchiveJob struct {
	archiver      domain.Archiver
	trades        domain.TradeStore
	locks         domain.LockManager
	retentionDays int
	interval      time.Duration
	lockTTL       time.Duration
	logger        *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(
	archiver domain.Archiver,
	trades domain.TradeStore,
	locks domain.LockManager,
	retentionDays int,
	interval, lockTTL time.Duration,
	logger *slog.Logger,
) *ArchiveJob {
	return &ArchiveJob{
		archiver:      archiver,
		trades:        trades,
		locks:         locks,
		retentionDays: retentionDays,
		interval:      interval,
		lockTTL:       lockTTL,
		logger:        logger,
	}
}

// Run executes a single archive pass. Rows are deleted from the primary
// store only after their archive upload succeeded.
func (j *ArchiveJob) Run(ctx context.Context) error {
	unlock, err := j.locks.Acquire(ctx, "archive", j.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.Info("archive run skipped, lock held elsewhere")
			return nil
		}
		return fmt.Errorf("archive: acquire lock: %w", err)
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)
	j.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", j.retentionDays),
	)

	tradesArchived, err := j.archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: trades before %v: %w", cutoff, err)
	}

	var pruned int64
	if tradesArchived > 0 {
		pruned, err = j.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive: prune trades before %v: %w", cutoff, err)
		}
	}

	auditArchived, err := j.archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: audit log before %v: %w", cutoff, err)
	}

	j.logger.Info("archive run complete",
		slog.Int64("trades_archived", tradesArchived),
		slog.Int64("trades_pruned", pruned),
		slog.Int64("audit_archived", auditArchived),
	)
	return nil
}

// RunPeriodic runs archive passes on the configured interval until the
// context is cancelled. A failed pass is logged and retried next interval.
func (j *ArchiveJob) RunPeriodic(ctx context.Context) error {
	j.logger.Info("archiver started", slog.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

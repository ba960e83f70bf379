// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HistoryCleaner removes login history partitions past retention.
type HistoryCleaner interface {
	CleanupOldHistory(ctx context.Context) (int, error)
}

// CleanupReporter receives the outcome of each history cleanup run.
type CleanupReporter interface {
	HistoryCleanup(ctx context.Context, removed int, err error)
}

// AuditPruner removes audit events older than a cutoff.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryCleanupJob creates a job that deletes login history partitions
// older than the configured retention. Every run is reported to audit,
// which may be nil.
func HistoryCleanupJob(history HistoryCleaner, audit CleanupReporter, logger *zap.Logger) Job {
	return Job{
		Name:     "login-history-cleanup",
		Interval: 24 * time.Hour,
		Run: func(ctx context.Context) error {
			removed, err := history.CleanupOldHistory(ctx)
			if audit != nil {
				audit.HistoryCleanup(ctx, removed, err)
			}
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info("cleaned up old login history",
					zap.Int("partitions_removed", removed))
			}
			return nil
		},
	}
}

// AuditRetentionJob creates a job that removes audit events older than
// retention.
func AuditRetentionJob(store AuditPruner, retention time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "audit-retention",
		Interval: 6 * time.Hour,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("cleaned up old audit events",
					zap.Int64("deleted", deleted),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}

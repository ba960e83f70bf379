// internal/app/bootstrap/startup.go
package bootstrap

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/seeding"
	"github.com/dalemusser/stratadues/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It seeds the configured admin account and starts the background task
// runner. Returning a non-nil error aborts startup.
//
// The context will be cancelled if the process is asked to shut down while
// Startup is running; honor it in any long-running work.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	// Note: Indexes are created in EnsureSchema via indexes.EnsureAll().

	// Seed admin user if configured
	if appCfg.SeedAdminLoginID != "" {
		if _, err := seeding.SeedAdmin(ctx, deps.Users, appCfg.SeedAdminLoginID, appCfg.SeedAdminName, appCfg.BcryptCost, logger); err != nil {
			logger.Error("failed to seed admin user", zap.Error(err))
			return err
		}
	}

	// Start background task runner
	return startTaskRunner(appCfg, deps, logger)
}

// taskRunner is the global task runner instance, used for graceful shutdown
// and the health report.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	runner := tasks.New(logger)

	history := tasks.HistoryCleanupJob(deps.History, deps.AuditLog, logger)
	history.Interval = appCfg.HistoryCleanupInterval
	if err := runner.Register(history); err != nil {
		return err
	}

	if appCfg.AuditRetentionDays > 0 {
		retention := time.Duration(appCfg.AuditRetentionDays) * 24 * time.Hour
		if err := runner.Register(tasks.AuditRetentionJob(deps.AuditStore, retention, logger)); err != nil {
			return err
		}
	}

	// Start running jobs
	runner.Start()
	taskRunner = runner
	return nil
}

// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	auditlogfeature "github.com/dalemusser/stratadues/internal/app/features/auditlog"
	healthfeature "github.com/dalemusser/stratadues/internal/app/features/health"
	lockoutsfeature "github.com/dalemusser/stratadues/internal/app/features/lockouts"
	loginfeature "github.com/dalemusser/stratadues/internal/app/features/login"
	loginhistoryfeature "github.com/dalemusser/stratadues/internal/app/features/loginhistory"
	picturesfeature "github.com/dalemusser/stratadues/internal/app/features/pictures"
	profilefeature "github.com/dalemusser/stratadues/internal/app/features/profile"
	"github.com/dalemusser/stratadues/internal/app/system/apicors"
	"github.com/dalemusser/stratadues/internal/app/system/auth"
	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Layout:
//   - /health, /ready, /readyz, /livez: unauthenticated health checks
//   - /api/*: JSON admin API behind API key auth and API CORS
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	keys, err := auth.ParseKeys(appCfg.APIKeys)
	if err != nil {
		return nil, err
	}
	logger.Info("admin API keys loaded", zap.Strings("names", keys.Names()))

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// ─────────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────────
	var jobs healthfeature.JobLister
	if taskRunner != nil {
		jobs = taskRunner
	}
	healthHandler := healthfeature.NewHandler(logger, jobs,
		healthfeature.MongoDependency(deps.MongoClient),
		healthfeature.DirDependency("login_history_dir", deps.HistoryDir),
		healthfeature.DirDependency("pictures_dir", deps.PicturesDir),
	)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// ─────────────────────────────────────────────────────────────────────────────
	// Admin API
	// ─────────────────────────────────────────────────────────────────────────────
	r.Route("/api", func(api chi.Router) {
		api.Use(apicors.Middleware(apicors.ParseOrigins(appCfg.APICORSOrigins)))
		api.Use(auth.APIKeyAuth(keys, logger))

		// Sign-in on behalf of the front end
		api.Mount("/auth", loginfeature.Routes(loginfeature.NewHandler(deps.SignIn, logger)))

		// Passwords
		api.Mount("/users", profilefeature.Routes(profilefeature.NewHandler(deps.SignIn, logger)))

		// Login history
		api.Mount("/login-history", loginhistoryfeature.Routes(loginhistoryfeature.NewHandler(deps.History, logger)))

		// Lockouts
		api.Mount("/lockouts", lockoutsfeature.Routes(lockoutsfeature.NewHandler(deps.Gate, deps.AuditLog, logger)))

		// Profile pictures
		api.Mount("/pictures", picturesfeature.Routes(
			picturesfeature.NewHandler(deps.Pictures, appCfg.PictureMaxBytes, deps.AuditLog, logger)))

		// Audit log
		api.Mount("/audit", auditlogfeature.Routes(auditlogfeature.NewHandler(deps.AuditStore, logger)))

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			jsonutil.NotFound(w, "no such endpoint")
		})
	})

	// 404 catch-all for unmatched routes
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonutil.NotFound(w, "not found")
	})

	return r, nil
}

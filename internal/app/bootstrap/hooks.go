// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks wires this app into the WAFFLE lifecycle.
// Each function is called in order by app.Run, from configuration
// loading through DB setup, one-time startup work, HTTP handler
// construction, and finally graceful shutdown.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "stratadues",   // used only for logging/diagnostics
	LoadConfig:     LoadConfig,     // load core + app config
	ValidateConfig: ValidateConfig, // keys, timezone, limits, audit modes
	ConnectDB:      ConnectDB,      // connect to MongoDB, open file stores, build services
	EnsureSchema:   EnsureSchema,   // collections, validators, indexes
	Startup:        Startup,        // seed admin, start background jobs
	BuildHandler:   BuildHandler,   // health checks + admin API
	Shutdown:       Shutdown,       // stop jobs, disconnect MongoDB
}

// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig carries the keys, storage locations and policies of the audit
// and credential store. The struct is passed to every lifecycle hook; stores
// receive only the pieces they need at construction.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// DataDir is the root for history partitions and picture artifacts.
	DataDir string

	// Keys: 32 bytes in hex or base64, or a passphrase stretched with HKDF.
	// Left empty in dev, an ephemeral key is generated at startup.
	HistoryKey string
	PictureKey string

	// Login history
	HistoryTimezone        string        // IANA zone deciding the calendar day of an entry (default: UTC)
	HistoryPartitionCap    int           // Max entries per day partition (default: 1000)
	HistoryRetentionDays   int           // Days of partitions kept (default: 30)
	HistoryCleanupInterval time.Duration // How often retention runs (default: 6h)

	// Account lockout
	LockoutThreshold int           // Consecutive failures that lock an account (default: 5)
	LockoutCooldown  time.Duration // How long a lock lasts (default: 15m)

	// Profile pictures
	PictureMaxBytes      int64 // Upload ceiling checked before decoding (default: 5 MiB)
	PictureMinDimension  int   // Smallest accepted side in pixels (default: 64)
	PictureMaxDimension  int   // Largest accepted side in pixels (default: 4096)
	PictureThumbnailSize int   // Thumbnail bounding square (default: 150)

	// BcryptCost for stored passwords (default: 12).
	BcryptCost int

	// Admin API keys as "name:key" pairs separated by commas. The name of the
	// matching key is recorded as the actor of admin actions.
	APIKeys string

	// APICORSOrigins lists browser origins allowed to call the admin API.
	// Empty means no cross-origin access.
	APICORSOrigins string

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth  string // Authentication events (login, lockout, logout)
	AuditLogAdmin string // Admin actions (unlocks, picture changes, cleanup)

	// AuditRetentionDays removes stored audit events older than this many
	// days. Zero keeps them forever.
	AuditRetentionDays int

	// Admin seeding configuration
	SeedAdminLoginID string // Login ID of the admin user to create on startup (if set)
	SeedAdminName    string // Name of the admin user to create on startup
}

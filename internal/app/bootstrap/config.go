// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATADUES"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, history_key, etc.
//   - Environment variables: STRATADUES_MONGO_URI, STRATADUES_HISTORY_KEY, etc.
//   - Command-line flags: --mongo_uri, --history_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratadues", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "data_dir", Default: "./data", Desc: "Root directory for login history partitions and picture files"},

	// Encryption keys
	{Name: "history_key", Default: "", Desc: "Login history key: 32 bytes hex/base64 or a passphrase (required outside dev)"},
	{Name: "picture_key", Default: "", Desc: "Profile picture key: 32 bytes hex/base64 or a passphrase (required outside dev)"},

	// Login history
	{Name: "history_timezone", Default: "UTC", Desc: "IANA timezone deciding which day partition an entry belongs to"},
	{Name: "history_partition_cap", Default: 1000, Desc: "Max entries kept per day partition (oldest dropped first)"},
	{Name: "history_retention_days", Default: 30, Desc: "Days of login history kept"},
	{Name: "history_cleanup_interval", Default: "6h", Desc: "How often old login history is removed"},

	// Account lockout
	{Name: "lockout_threshold", Default: 5, Desc: "Consecutive failed logins that lock an account"},
	{Name: "lockout_cooldown", Default: "15m", Desc: "How long a locked account stays locked"},

	// Profile pictures
	{Name: "picture_max_bytes", Default: 5 << 20, Desc: "Max profile picture upload size in bytes"},
	{Name: "picture_min_dimension", Default: 64, Desc: "Min profile picture width and height in pixels"},
	{Name: "picture_max_dimension", Default: 4096, Desc: "Max profile picture width and height in pixels"},
	{Name: "picture_thumbnail_size", Default: 150, Desc: "Profile picture thumbnail bounding box in pixels"},

	{Name: "bcrypt_cost", Default: 12, Desc: "bcrypt cost for stored passwords"},

	// Admin API
	{Name: "api_keys", Default: "", Desc: "Admin API keys as name:key pairs separated by commas"},
	{Name: "api_cors_origins", Default: "", Desc: "Browser origins allowed to call the admin API (comma separated)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_retention_days", Default: 0, Desc: "Days of stored audit events kept (0 keeps everything)"},

	// Admin seeding configuration
	{Name: "seed_admin_login_id", Default: "", Desc: "Login ID of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of admin user to create on startup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATADUES_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		DataDir: appValues.String("data_dir"),

		HistoryKey: appValues.String("history_key"),
		PictureKey: appValues.String("picture_key"),

		// Login history
		HistoryTimezone:        appValues.String("history_timezone"),
		HistoryPartitionCap:    appValues.Int("history_partition_cap"),
		HistoryRetentionDays:   appValues.Int("history_retention_days"),
		HistoryCleanupInterval: appValues.Duration("history_cleanup_interval", 6*time.Hour),

		// Lockout
		LockoutThreshold: appValues.Int("lockout_threshold"),
		LockoutCooldown:  appValues.Duration("lockout_cooldown", 15*time.Minute),

		// Pictures
		PictureMaxBytes:      int64(appValues.Int("picture_max_bytes")),
		PictureMinDimension:  appValues.Int("picture_min_dimension"),
		PictureMaxDimension:  appValues.Int("picture_max_dimension"),
		PictureThumbnailSize: appValues.Int("picture_thumbnail_size"),

		BcryptCost: appValues.Int("bcrypt_cost"),

		APIKeys:        appValues.String("api_keys"),
		APICORSOrigins: appValues.String("api_cors_origins"),

		// Audit logging
		AuditLogAuth:       appValues.String("audit_log_auth"),
		AuditLogAdmin:      appValues.String("audit_log_admin"),
		AuditRetentionDays: appValues.Int("audit_retention_days"),

		// Admin seeding
		SeedAdminLoginID: appValues.String("seed_admin_login_id"),
		SeedAdminName:    appValues.String("seed_admin_name"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// All problems are reported together.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	err := validateAppConfig(coreCfg.Env, appCfg)
	if err != nil {
		logger.Error("invalid app configuration", zap.Error(err))
	}
	return err
}

func validateAppConfig(env string, appCfg AppConfig) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if appCfg.DataDir == "" {
		bad("data_dir is required")
	}
	if env != "dev" {
		if appCfg.HistoryKey == "" {
			bad("history_key is required outside dev")
		}
		if appCfg.PictureKey == "" {
			bad("picture_key is required outside dev")
		}
		if appCfg.APIKeys == "" {
			bad("api_keys is required outside dev")
		}
	}
	if appCfg.HistoryKey != "" && appCfg.HistoryKey == appCfg.PictureKey {
		bad("history_key and picture_key must differ")
	}

	if _, err := time.LoadLocation(appCfg.HistoryTimezone); err != nil {
		bad("history_timezone %q: %v", appCfg.HistoryTimezone, err)
	}

	positive := []struct {
		name string
		v    int64
	}{
		{"history_partition_cap", int64(appCfg.HistoryPartitionCap)},
		{"history_retention_days", int64(appCfg.HistoryRetentionDays)},
		{"history_cleanup_interval", int64(appCfg.HistoryCleanupInterval)},
		{"lockout_threshold", int64(appCfg.LockoutThreshold)},
		{"lockout_cooldown", int64(appCfg.LockoutCooldown)},
		{"picture_max_bytes", appCfg.PictureMaxBytes},
		{"picture_min_dimension", int64(appCfg.PictureMinDimension)},
		{"picture_max_dimension", int64(appCfg.PictureMaxDimension)},
		{"picture_thumbnail_size", int64(appCfg.PictureThumbnailSize)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			bad("%s must be positive", p.name)
		}
	}
	if appCfg.PictureMinDimension > appCfg.PictureMaxDimension {
		bad("picture_min_dimension exceeds picture_max_dimension")
	}
	if appCfg.AuditRetentionDays < 0 {
		bad("audit_retention_days must not be negative")
	}
	if appCfg.BcryptCost < bcrypt.MinCost || appCfg.BcryptCost > bcrypt.MaxCost {
		bad("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if !auditlog.ValidSetting(appCfg.AuditLogAuth) {
		bad("audit_log_auth %q: want all, db, log or off", appCfg.AuditLogAuth)
	}
	if !auditlog.ValidSetting(appCfg.AuditLogAdmin) {
		bad("audit_log_admin %q: want all, db, log or off", appCfg.AuditLogAdmin)
	}

	if _, err := auth.ParseKeys(appCfg.APIKeys); err != nil {
		bad("api_keys: %v", err)
	}

	return errors.Join(errs...)
}

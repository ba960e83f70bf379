// internal/app/bootstrap/services.go
package bootstrap

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dalemusser/stratadues/internal/app/store/audit"
	"github.com/dalemusser/stratadues/internal/app/store/blobs"
	"github.com/dalemusser/stratadues/internal/app/store/daylog"
	"github.com/dalemusser/stratadues/internal/app/store/lockouts"
	"github.com/dalemusser/stratadues/internal/app/store/profilepictures"
	userstore "github.com/dalemusser/stratadues/internal/app/store/users"
	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/envelope"
	"github.com/dalemusser/stratadues/internal/app/system/imaging"
	"github.com/dalemusser/stratadues/internal/app/system/lockout"
	"github.com/dalemusser/stratadues/internal/app/system/loginhistory"
	"github.com/dalemusser/stratadues/internal/app/system/pathlock"
	"github.com/dalemusser/stratadues/internal/app/system/profilepic"
	"github.com/dalemusser/stratadues/internal/app/system/signin"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Key purposes, used as HKDF labels and as associated data.
const (
	historyKeyPurpose = "login-history"
	pictureKeyPurpose = "profile-pictures"
)

// loadKey parses a configured key. In dev a missing key is replaced by a
// random one that lives only as long as the process.
func loadKey(env, name, value, purpose string, logger *zap.Logger) ([]byte, error) {
	if value == "" && env == "dev" {
		logger.Warn("no key configured; using an ephemeral key, data written now is unreadable after restart",
			zap.String("key", name))
		return envelope.GenerateKey()
	}
	key, err := envelope.ParseKey(value, purpose)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}

// buildServices opens the file-backed stores under DataDir and wires the
// services on top of them and db.
func buildServices(env string, appCfg AppConfig, db *mongo.Database, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{
		MongoDatabase: db,
		HistoryDir:    filepath.Join(appCfg.DataDir, "login-history"),
		PicturesDir:   filepath.Join(appCfg.DataDir, "profile-pictures"),
		Users:         userstore.New(db),
		AuditStore:    audit.New(db),
	}

	deps.AuditLog = auditlog.New(deps.AuditStore, logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})

	historyKey, err := loadKey(env, "history_key", appCfg.HistoryKey, historyKeyPurpose, logger)
	if err != nil {
		return DBDeps{}, err
	}
	pictureKey, err := loadKey(env, "picture_key", appCfg.PictureKey, pictureKeyPurpose, logger)
	if err != nil {
		return DBDeps{}, err
	}

	historyCipher, err := envelope.NewAEAD(historyKey, []byte(historyKeyPurpose))
	if err != nil {
		return DBDeps{}, err
	}
	pictureCipher, err := envelope.NewSecretBox(pictureKey)
	if err != nil {
		return DBDeps{}, err
	}

	loc, err := time.LoadLocation(appCfg.HistoryTimezone)
	if err != nil {
		return DBDeps{}, fmt.Errorf("history_timezone: %w", err)
	}

	// One locker for both trees; paths never collide.
	locks := pathlock.New(true)

	deps.HistoryStore, err = daylog.New[models.LoginHistoryEntry](daylog.Config{
		Dir:      deps.HistoryDir,
		Prefix:   "login-history",
		Cap:      appCfg.HistoryPartitionCap,
		Location: loc,
		Cipher:   historyCipher,
		Locks:    locks,
	}, logger)
	if err != nil {
		return DBDeps{}, err
	}
	deps.History = loginhistory.New(deps.HistoryStore, logger, loginhistory.Config{
		RetentionDays: appCfg.HistoryRetentionDays,
	})

	deps.Gate, err = lockout.New(lockouts.New(db), lockout.Config{
		Threshold: appCfg.LockoutThreshold,
		Cooldown:  appCfg.LockoutCooldown,
	}, logger)
	if err != nil {
		return DBDeps{}, err
	}

	policy := imaging.DefaultPolicy()
	policy.MaxBytes = appCfg.PictureMaxBytes
	policy.MinDimension = appCfg.PictureMinDimension
	policy.MaxDimension = appCfg.PictureMaxDimension
	deps.Blobs, err = blobs.New(blobs.Config{
		Dir:       deps.PicturesDir,
		Cipher:    pictureCipher,
		Processor: imaging.NewPipeline(policy, appCfg.PictureThumbnailSize),
		Locks:     locks,
	}, logger)
	if err != nil {
		return DBDeps{}, err
	}
	deps.Pictures, err = profilepic.New(profilepictures.New(db), deps.Blobs, profilepic.Config{
		LockDir: deps.PicturesDir,
		Locks:   locks,
	}, logger)
	if err != nil {
		return DBDeps{}, err
	}

	deps.SignIn = signin.New(deps.Users, deps.Gate, deps.History, deps.AuditLog, logger,
		signin.WithBcryptCost(appCfg.BcryptCost))

	logger.Info("stores ready",
		zap.String("history_dir", deps.HistoryDir),
		zap.String("pictures_dir", deps.PicturesDir),
		zap.String("history_timezone", loc.String()),
		zap.Int("lockout_threshold", appCfg.LockoutThreshold),
		zap.Duration("lockout_cooldown", appCfg.LockoutCooldown),
	)
	return deps, nil
}

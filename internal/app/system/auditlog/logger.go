// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"strconv"
	"time"

	"github.com/dalemusser/stratadues/internal/app/store/audit"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (login, lockout, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for admin action events (unlocks, pictures, cleanup).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// ValidSetting reports whether v is an accepted Config value.
func ValidSetting(v string) bool {
	switch v {
	case "all", "db", "log", "off":
		return true
	}
	return false
}

// Logger provides convenience methods for logging audit events.
// It logs to MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil, in which case "db"
// destinations are skipped.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	// Determine which config setting applies based on event category
	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all" // Default to logging everything for unknown categories
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, from models.Provenance, userID, loginID string, tempPassword bool) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    userID,
		IP:        from.IPAddress,
		UserAgent: from.UserAgent,
		Success:   true,
		Details: map[string]string{
			"login_id":      loginID,
			"temp_password": strconv.FormatBool(tempPassword),
		},
	})
}

// LoginFailedUserNotFound logs a failed login due to user not found.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, from models.Provenance, attemptedLoginID string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		IP:            from.IPAddress,
		UserAgent:     from.UserAgent,
		FailureReason: "user not found",
		Details: map[string]string{
			"attempted_login_id": attemptedLoginID,
		},
	})
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, from models.Provenance, userID, loginID string, remaining int) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        userID,
		IP:            from.IPAddress,
		UserAgent:     from.UserAgent,
		FailureReason: "wrong password",
		Details: map[string]string{
			"login_id":           loginID,
			"remaining_attempts": strconv.Itoa(remaining),
		},
	})
}

// LoginFailedUserDisabled logs a failed login due to disabled account.
func (l *Logger) LoginFailedUserDisabled(ctx context.Context, from models.Provenance, userID, loginID string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserDisabled,
		UserID:        userID,
		IP:            from.IPAddress,
		UserAgent:     from.UserAgent,
		FailureReason: "user disabled",
		Details: map[string]string{
			"login_id": loginID,
		},
	})
}

// LoginLockedOut logs an attempt rejected because the account is locked.
func (l *Logger) LoginLockedOut(ctx context.Context, from models.Provenance, userID, loginID string, until time.Time) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginLockedOut,
		UserID:        userID,
		IP:            from.IPAddress,
		UserAgent:     from.UserAgent,
		FailureReason: "account locked",
		Details: map[string]string{
			"login_id":     loginID,
			"locked_until": until.UTC().Format(time.RFC3339),
		},
	})
}

// AccountLocked logs the failure that locked an account.
func (l *Logger) AccountLocked(ctx context.Context, from models.Provenance, userID string, until time.Time) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventAccountLocked,
		UserID:        userID,
		IP:            from.IPAddress,
		UserAgent:     from.UserAgent,
		FailureReason: "too many failed attempts",
		Details: map[string]string{
			"locked_until": until.UTC().Format(time.RFC3339),
		},
	})
}

// Logout logs a user logout.
func (l *Logger) Logout(ctx context.Context, loginRecordID string, closed bool) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		Success:   true,
		Details: map[string]string{
			"login_record_id": loginRecordID,
			"record_closed":   strconv.FormatBool(closed),
		},
	})
}

// --- Admin Events ---

// AccountUnlocked logs an administrative unlock of one account.
func (l *Logger) AccountUnlocked(ctx context.Context, actorID, userID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountUnlocked,
		UserID:    userID,
		ActorID:   actorID,
		Success:   true,
	})
}

// AllAccountsUnlocked logs an administrative unlock of every locked account.
func (l *Logger) AllAccountsUnlocked(ctx context.Context, actorID string, count int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAllAccountsUnlocked,
		ActorID:   actorID,
		Success:   true,
		Details: map[string]string{
			"count": strconv.Itoa(count),
		},
	})
}

// ProfilePictureReplaced logs a picture upload.
func (l *Logger) ProfilePictureReplaced(ctx context.Context, actorID, userID, blobID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventProfilePictureReplaced,
		UserID:    userID,
		ActorID:   actorID,
		Success:   true,
		Details: map[string]string{
			"blob_id": blobID,
		},
	})
}

// ProfilePictureRemoved logs a picture removal.
func (l *Logger) ProfilePictureRemoved(ctx context.Context, actorID, userID string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventProfilePictureRemoved,
		UserID:    userID,
		ActorID:   actorID,
		Success:   true,
	})
}

// HistoryCleanup logs a retention run over the login history.
func (l *Logger) HistoryCleanup(ctx context.Context, removed int, err error) {
	event := audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventHistoryCleanup,
		ActorID:   "system",
		Success:   err == nil,
		Details: map[string]string{
			"removed": strconv.Itoa(removed),
		},
	}
	if err != nil {
		event.FailureReason = err.Error()
	}
	l.Log(ctx, event)
}

// internal/app/system/signin/service.go
package signin

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"time"

	userstore "github.com/dalemusser/stratadues/internal/app/store/users"
	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/authutil"
	"github.com/dalemusser/stratadues/internal/app/system/lockout"
	"github.com/dalemusser/stratadues/internal/app/system/loginhistory"
	"github.com/dalemusser/stratadues/internal/app/system/normalize"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Failure reasons written to login history.
const (
	ReasonInvalidPassword = "Invalid password"
	ReasonUserNotFound    = "User not found"
	ReasonAccountLocked   = "Account locked"
	ReasonAccountDisabled = "Account disabled"
)

var (
	// ErrAuditFailed wraps a login history write failure. The Result returned
	// alongside it is still valid.
	ErrAuditFailed = errors.New("login history not recorded")

	// ErrWrongPassword is returned by ChangePassword when the current
	// password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// Users is the subset of the user store the service needs.
type Users interface {
	GetByLoginID(ctx context.Context, loginID string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string, temp bool) error
}

// Credentials is what the user typed.
type Credentials struct {
	LoginID  string
	Password string
}

// Outcome classifies a sign-in.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidCredential
	OutcomeLocked
	OutcomeDisabled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeLocked:
		return "locked"
	case OutcomeDisabled:
		return "disabled"
	}
	return "unknown"
}

// Result describes a completed sign-in.
type Result struct {
	Outcome Outcome
	User    *models.User // set when the login ID resolved to a user

	// LoginRecordID correlates the later logout. Empty when history failed.
	LoginRecordID string

	// RequiresPasswordChange is set on success with a temporary password.
	RequiresPasswordChange bool

	LockedUntil time.Time // set when Outcome is OutcomeLocked

	// RemainingAttempts before a lock, set on OutcomeInvalidCredential. It is
	// for audit and logs; callers must not show it, since it is counted for
	// unknown login IDs too.
	RemainingAttempts int
}

// Service authenticates users against the lockout gate and records every
// attempt in login history.
type Service struct {
	users      Users
	gate       *lockout.Gate
	history    *loginhistory.Service
	audit      *auditlog.Logger
	logger     *zap.Logger
	bcryptCost int

	// dummyHash is compared against when there is no real hash to check.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the cost used when storing new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// New creates a sign-in Service. audit may be nil.
func New(users Users, gate *lockout.Gate, history *loginhistory.Service, audit *auditlog.Logger, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:      users,
		gate:       gate,
		history:    history,
		audit:      audit,
		logger:     logger,
		bcryptCost: authutil.BcryptCost,
	}
	for _, o := range opts {
		o(s)
	}
	hash, err := authutil.HashPasswordCost("not a real password", s.bcryptCost)
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", zap.Error(err))
	}
	s.dummyHash = hash
	return s
}

// Login evaluates one sign-in attempt. The lockout gate is consulted before
// the password is checked, and the attempt is written to login history in
// every case. A history failure is reported as ErrAuditFailed wrapped around
// the cause, together with the Result.
//
// An unknown login ID and a wrong password produce the same outcome, cost
// one bcrypt comparison each and lock after the same number of failures.
// A disabled account is only reported as disabled to a caller who knows
// its password.
func (s *Service) Login(ctx context.Context, creds Credentials, from models.Provenance) (Result, error) {
	user, err := s.users.GetByLoginID(ctx, creds.LoginID)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		s.logger.Error("user lookup failed", zap.String("login_id", creds.LoginID), zap.Error(err))
		return Result{}, err
	}
	if user == nil {
		return s.loginUnknown(ctx, creds, from)
	}

	who := user.Identity()
	userID := who.UserID

	if user.Status != models.StatusActive {
		s.audit.LoginFailedUserDisabled(ctx, from, userID, user.LoginID)
		res := Result{Outcome: OutcomeDisabled, User: user}
		if !s.passwordMatches(user, creds.Password) {
			res.Outcome = OutcomeInvalidCredential
		}
		return s.record(ctx, res, who, ReasonAccountDisabled, from)
	}

	d, err := s.gate.Attempt(ctx, userID, func() (bool, error) {
		return s.passwordMatches(user, creds.Password), nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{User: user, RemainingAttempts: d.RemainingAttempts}
	switch d.Outcome {
	case lockout.OutcomeLocked:
		res.Outcome = OutcomeLocked
		res.LockedUntil = d.LockedUntil
		res.RemainingAttempts = 0
		if d.Triggered {
			s.audit.AccountLocked(ctx, from, userID, d.LockedUntil)
			return s.record(ctx, res, who, ReasonInvalidPassword, from)
		}
		s.audit.LoginLockedOut(ctx, from, userID, user.LoginID, d.LockedUntil)
		return s.record(ctx, res, who, ReasonAccountLocked, from)

	case lockout.OutcomeInvalidCredential:
		res.Outcome = OutcomeInvalidCredential
		s.audit.LoginFailedWrongPassword(ctx, from, userID, user.LoginID, d.RemainingAttempts)
		return s.record(ctx, res, who, ReasonInvalidPassword, from)
	}

	res.Outcome = OutcomeSuccess
	res.RequiresPasswordChange = user.MustChangePassword()
	s.audit.LoginSuccess(ctx, from, userID, user.LoginID, res.RequiresPasswordChange)
	return s.record(ctx, res, who, "", from)
}

// loginUnknown handles a login ID that matches no user. The gate counts
// failures under a key derived from the login ID, so repeated guesses lock
// exactly as they would for a real account.
func (s *Service) loginUnknown(ctx context.Context, creds Credentials, from models.Provenance) (Result, error) {
	s.audit.LoginFailedUserNotFound(ctx, from, creds.LoginID)
	who := models.Identity{Email: creds.LoginID}

	d, err := s.gate.Attempt(ctx, unknownKey(creds.LoginID), func() (bool, error) {
		s.passwordMatches(nil, creds.Password)
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: OutcomeInvalidCredential, RemainingAttempts: d.RemainingAttempts}
	reason := ReasonUserNotFound
	if d.Outcome == lockout.OutcomeLocked {
		res.Outcome = OutcomeLocked
		res.LockedUntil = d.LockedUntil
		res.RemainingAttempts = 0
		if !d.Triggered {
			reason = ReasonAccountLocked
		}
	}
	return s.record(ctx, res, who, reason, from)
}

// unknownKey is the gate key for a login ID without a user. It cannot
// collide with a hex ObjectID.
func unknownKey(loginID string) string {
	return "unknown:" + normalize.LoginID(loginID)
}

// passwordMatches runs one bcrypt comparison whether or not user has a
// password, so every credential check takes about the same time.
func (s *Service) passwordMatches(user *models.User, password string) bool {
	if user == nil || user.PasswordHash == nil {
		authutil.CheckPassword(password, s.dummyHash)
		return false
	}
	return authutil.CheckPassword(password, *user.PasswordHash)
}

// record writes res to login history and fills in the record id.
func (s *Service) record(ctx context.Context, res Result, who models.Identity, reason string, from models.Provenance) (Result, error) {
	outcome := loginhistory.Outcome{Success: res.Outcome == OutcomeSuccess, FailureReason: reason}
	id, err := s.history.RecordAttempt(ctx, who, outcome, from)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrAuditFailed, err)
	}
	res.LoginRecordID = id
	return res, nil
}

// Logout closes out the history record of a session. Unknown or already
// closed records are not an error.
func (s *Service) Logout(ctx context.Context, loginRecordID string) error {
	if loginRecordID == "" {
		return nil
	}
	closed, err := s.history.RecordLogout(ctx, loginRecordID)
	if err != nil {
		return err
	}
	s.audit.Logout(ctx, loginRecordID, closed)
	return nil
}

// ChangePassword replaces the password of userID after verifying the current
// one. The new password is permanent.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil || !authutil.CheckPassword(current, *user.PasswordHash) {
		return ErrWrongPassword
	}
	if current == next {
		return authutil.ErrPasswordUnchanged
	}
	if err := authutil.ValidatePassword(next); err != nil {
		return err
	}
	hash, err := authutil.HashPasswordCost(next, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash, false); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

// ResetPassword assigns a generated temporary password to userID, clears any
// lockout and returns the new password. The user must change it at the next
// sign-in.
func (s *Service) ResetPassword(ctx context.Context, actorID, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	temp, err := authutil.GenerateTemporaryPassword()
	if err != nil {
		return "", err
	}
	hash, err := authutil.HashPasswordCost(temp, s.bcryptCost)
	if err != nil {
		return "", err
	}
	if err := s.users.SetPassword(ctx, user.ID, hash, true); err != nil {
		return "", err
	}
	if err := s.gate.Unlock(ctx, userID); err != nil {
		return "", err
	}
	s.audit.AccountUnlocked(ctx, actorID, userID)
	s.logger.Info("password reset", zap.String("user_id", userID), zap.String("actor_id", actorID))
	return temp, nil
}

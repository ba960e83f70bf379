// internal/app/system/lockout/gate.go
//
// Package lockout decides whether a login attempt is evaluated at all, based
// on the user's recent failures.
//
// An account is Open until Threshold consecutive failures, then Locked for
// Cooldown. While Locked every attempt is rejected without looking at the
// credential. The first attempt at or after the lock expiry reopens the
// account with a zero counter and is then evaluated normally. A success
// clears the counter.
package lockout

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.uber.org/zap"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 15 * time.Minute
)

// StateStore persists lock state. Update must apply fn atomically with
// respect to other updates of the same user; fn is pure and may be called
// more than once.
type StateStore interface {
	Get(ctx context.Context, userID string) (models.LockState, error)
	Update(ctx context.Context, userID string, fn func(models.LockState) models.LockState) (models.LockState, error)
	Reset(ctx context.Context, userID string) error
	// ResetLocked clears every account locked at now and returns how many.
	ResetLocked(ctx context.Context, now time.Time) (int, error)
	// ListLocked returns the accounts locked at now.
	ListLocked(ctx context.Context, now time.Time) ([]models.LockState, error)
}

// Config holds the lockout policy.
type Config struct {
	Threshold int           // consecutive failures that lock the account
	Cooldown  time.Duration // how long a lock lasts
}

// Outcome classifies one attempt.
type Outcome int

const (
	// OutcomeAllowed means the attempt may proceed (pre-check) or the
	// credential was accepted.
	OutcomeAllowed Outcome = iota
	// OutcomeInvalidCredential is a wrong credential on an open account.
	OutcomeInvalidCredential
	// OutcomeLocked means the account is locked; the credential was not
	// considered.
	OutcomeLocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Decision is the gate's answer for one attempt.
type Decision struct {
	Outcome           Outcome
	LockedUntil       time.Time // set when Outcome is OutcomeLocked
	RemainingAttempts int       // failures left before a lock; 0 when locked
	Triggered         bool      // this attempt caused the lock
}

// Locked is shorthand for Outcome == OutcomeLocked.
func (d Decision) Locked() bool { return d.Outcome == OutcomeLocked }

// Status is the effective state of one account.
type Status struct {
	UserID            string     `json:"userId"`
	Locked            bool       `json:"locked"`
	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	FailedAttempts    int        `json:"failedAttempts"`
	RemainingAttempts int        `json:"remainingAttempts"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate applies the lockout policy on top of a StateStore.
type Gate struct {
	store  StateStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Gate. Zero Config fields take the defaults.
func New(store StateStore, cfg Config, logger *zap.Logger, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("lockout: state store is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{store: store, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the active policy.
func (g *Gate) Config() Config { return g.cfg }

// Allow reports whether an attempt for userID would be evaluated, without
// consuming anything.
func (g *Gate) Allow(ctx context.Context, userID string) (Decision, error) {
	st, err := g.store.Get(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	now := g.now()
	if st.LockedAt(now) {
		return Decision{Outcome: OutcomeLocked, LockedUntil: *st.LockedUntil}, nil
	}
	if st.LockedUntil != nil {
		// Expired lock; the next consumed attempt resets the counter.
		st = models.LockState{}
	}
	return Decision{Outcome: OutcomeAllowed, RemainingAttempts: g.remaining(st)}, nil
}

// CheckAndConsumeAttempt applies one evaluated attempt to userID's state. An
// attempt on a locked account is rejected even when succeeded is true.
func (g *Gate) CheckAndConsumeAttempt(ctx context.Context, userID string, succeeded bool) (Decision, error) {
	now := g.now()
	var d Decision
	_, err := g.store.Update(ctx, userID, func(st models.LockState) models.LockState {
		var next models.LockState
		next, d = g.transition(st, succeeded, now)
		next.UserID = userID
		return next
	})
	if err != nil {
		g.logger.Error("lockout state update failed", zap.String("user_id", userID), zap.Error(err))
		return Decision{}, err
	}
	if d.Triggered {
		g.logger.Warn("account locked",
			zap.String("user_id", userID),
			zap.Int("threshold", g.cfg.Threshold),
			zap.Time("locked_until", d.LockedUntil))
	}
	return d, nil
}

// Attempt runs verify only when the account is open and applies its result.
// A verify error is returned without changing the state.
func (g *Gate) Attempt(ctx context.Context, userID string, verify func() (bool, error)) (Decision, error) {
	d, err := g.Allow(ctx, userID)
	if err != nil || d.Locked() {
		return d, err
	}
	ok, err := verify()
	if err != nil {
		return Decision{}, err
	}
	return g.CheckAndConsumeAttempt(ctx, userID, ok)
}

// Status returns the effective state of userID. An expired lock reads as
// open with no failures.
func (g *Gate) Status(ctx context.Context, userID string) (Status, error) {
	st, err := g.store.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return g.status(userID, st, g.now()), nil
}

// ListLocked returns the status of every currently locked account.
func (g *Gate) ListLocked(ctx context.Context) ([]Status, error) {
	now := g.now()
	states, err := g.store.ListLocked(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(states))
	for _, st := range states {
		out = append(out, g.status(st.UserID, st, now))
	}
	return out, nil
}

// Unlock forces userID open and clears its counter.
func (g *Gate) Unlock(ctx context.Context, userID string) error {
	if err := g.store.Reset(ctx, userID); err != nil {
		return err
	}
	g.logger.Info("account unlocked", zap.String("user_id", userID))
	return nil
}

// UnlockAll forces every currently locked account open and returns how many
// were unlocked.
func (g *Gate) UnlockAll(ctx context.Context) (int, error) {
	n, err := g.store.ResetLocked(ctx, g.now())
	if err != nil {
		return n, err
	}
	g.logger.Info("all locked accounts unlocked", zap.Int("count", n))
	return n, nil
}

// transition is the state machine. It must stay pure: stores may retry it.
func (g *Gate) transition(st models.LockState, succeeded bool, now time.Time) (models.LockState, Decision) {
	if st.LockedAt(now) {
		return st, Decision{Outcome: OutcomeLocked, LockedUntil: *st.LockedUntil}
	}
	if st.LockedUntil != nil {
		st = models.LockState{}
	}

	if succeeded {
		return models.LockState{UpdatedAt: now}, Decision{
			Outcome:           OutcomeAllowed,
			RemainingAttempts: g.cfg.Threshold,
		}
	}

	st.FailedAttempts++
	st.UpdatedAt = now
	if st.FailedAttempts >= g.cfg.Threshold {
		until := now.Add(g.cfg.Cooldown)
		st.LockedUntil = &until
		return st, Decision{Outcome: OutcomeLocked, LockedUntil: until, Triggered: true}
	}
	return st, Decision{
		Outcome:           OutcomeInvalidCredential,
		RemainingAttempts: g.remaining(st),
	}
}

func (g *Gate) status(userID string, st models.LockState, now time.Time) Status {
	if st.LockedAt(now) {
		until := *st.LockedUntil
		return Status{UserID: userID, Locked: true, LockedUntil: &until, FailedAttempts: st.FailedAttempts}
	}
	if st.LockedUntil != nil {
		st = models.LockState{}
	}
	return Status{
		UserID:            userID,
		FailedAttempts:    st.FailedAttempts,
		RemainingAttempts: g.remaining(st),
	}
}

func (g *Gate) remaining(st models.LockState) int {
	return max(g.cfg.Threshold-st.FailedAttempts, 0)
}

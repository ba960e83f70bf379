// internal/domain/models/lockstate.go
package models

import "time"

// LockState is the lockout bookkeeping for one user. The zero value is an
// open account with no recorded failures.
type LockState struct {
	UserID         string     `bson:"user_id" json:"userId"`
	FailedAttempts int        `bson:"failed_attempts" json:"failedAttempts"`
	LockedUntil    *time.Time `bson:"locked_until,omitempty" json:"lockedUntil,omitempty"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updatedAt"`
}

// LockedAt reports whether the account is locked at now. A lock ends at the
// instant LockedUntil is reached.
func (s LockState) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// IsClear reports whether the state carries no failures and no lock.
func (s LockState) IsClear() bool {
	return s.FailedAttempts == 0 && s.LockedUntil == nil
}

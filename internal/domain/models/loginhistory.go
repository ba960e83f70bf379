// internal/domain/models/loginhistory.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"math"
	"time"
)

// LoginHistorySchema is the current on-disk version of LoginHistoryEntry.
// Bump it when fields change meaning so old partitions can be told apart.
const LoginHistorySchema = 1

// LoginHistoryEntry records one authentication attempt.
//
// The identity fields are a snapshot taken at attempt time and stay accurate
// after the user is edited or deleted. An entry is written once and mutated
// at most once more, when the matching logout closes it out.
type LoginHistoryEntry struct {
	Schema int    `bson:"schema" json:"-"`
	ID     string `bson:"id" json:"id"`

	// Identity snapshot
	UserID    string `bson:"user_id" json:"userId"`
	UserEmail string `bson:"user_email" json:"userEmail"`
	UserName  string `bson:"user_name" json:"userName"`
	UserRole  string `bson:"user_role" json:"userRole"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	// Request provenance (optional)
	IPAddress string `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failureReason,omitempty"`

	// Set together by the logout close-out, then immutable.
	SessionDuration *int       `bson:"session_duration,omitempty" json:"sessionDuration,omitempty"` // minutes
	LogoutTime      *time.Time `bson:"logout_time,omitempty" json:"logoutTime,omitempty"`
}

// LoggedOut reports whether the entry has been closed out by a logout.
func (e LoginHistoryEntry) LoggedOut() bool {
	return e.LogoutTime != nil
}

// CloseOut sets the logout time and session duration. A logout earlier than
// the attempt (clock skew) is clamped to the attempt time. It returns false
// and leaves the entry untouched if it was already closed out.
func (e *LoginHistoryEntry) CloseOut(at time.Time) bool {
	if e.LogoutTime != nil {
		return false
	}
	if at.Before(e.Timestamp) {
		at = e.Timestamp
	}
	at = at.UTC()
	minutes := SessionMinutes(e.Timestamp, at)
	e.LogoutTime = &at
	e.SessionDuration = &minutes
	return true
}

// SessionMinutes is the session length rounded to whole minutes.
func SessionMinutes(login, logout time.Time) int {
	return int(math.Round(logout.Sub(login).Minutes()))
}

// Identity is the acting user as resolved by the authentication layer.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// Provenance describes where a request came from.
type Provenance struct {
	IPAddress string
	UserAgent string
}

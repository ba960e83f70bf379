// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a member or administrator of the community.
//
// Auth fields:
//   - LoginID: What the user types to identify themselves (stored lowercase)
//   - PasswordHash: bcrypt hash of the current password
//   - PasswordTemp: set when the password was assigned by the system (reset,
//     import with national id number, seeded admin); the user must replace it
//     before receiving a full session
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName string             `bson:"full_name" json:"full_name"`

	// Authentication fields
	LoginID   string  `bson:"login_id" json:"login_id"` // User identifier (lowercase)
	LoginIDCI string  `bson:"login_id_ci" json:"-"`     // Folded for case/diacritic-insensitive matching
	Email     *string `bson:"email" json:"email"`       // Contact email (lowercase, optional)

	// Password auth fields
	PasswordHash *string `bson:"password_hash,omitempty" json:"-"` // bcrypt hash (never in JSON)
	PasswordTemp *bool   `bson:"password_temp,omitempty" json:"-"` // true if must change on next login

	// Role and status
	Role   string `bson:"role" json:"role"`                         // admin, member
	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{
		RoleAdmin,
		RoleMember,
	}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// MustChangePassword reports whether the user holds a temporary password.
func (u User) MustChangePassword() bool {
	return u.PasswordTemp != nil && *u.PasswordTemp
}

// Identity returns the snapshot recorded in login history.
func (u User) Identity() Identity {
	email := u.LoginID
	if u.Email != nil && *u.Email != "" {
		email = *u.Email
	}
	return Identity{
		UserID: u.ID.Hex(),
		Email:  email,
		Name:   u.FullName,
		Role:   u.Role,
	}
}

// internal/app/system/seeding/seeding.go
package seeding

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/stratadues/internal/app/store/users"
	"github.com/dalemusser/stratadues/internal/app/system/authutil"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.uber.org/zap"
)

// Users is the subset of the user store seeding needs.
type Users interface {
	GetByLoginID(ctx context.Context, loginID string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

// SeedAdmin ensures an admin user exists with the given login_id.
//
// A new admin gets a generated temporary password, which is returned and
// logged once so the operator can sign in; it must be changed at the first
// sign-in. An existing user is left untouched and "" is returned.
func SeedAdmin(ctx context.Context, users Users, loginID, name string, cost int, logger *zap.Logger) (string, error) {
	if name == "" {
		name = "Admin"
	}

	existing, err := users.GetByLoginID(ctx, loginID)
	if err == nil {
		if existing.Role != models.RoleAdmin {
			logger.Warn("seed admin login id belongs to a non-admin user",
				zap.String("login_id", existing.LoginID),
				zap.String("user_id", existing.ID.Hex()),
				zap.String("role", existing.Role))
			return "", nil
		}
		logger.Debug("admin user already configured", zap.String("login_id", existing.LoginID))
		return "", nil
	}
	if !errors.Is(err, userstore.ErrNotFound) {
		return "", err
	}

	temp, err := authutil.GenerateTemporaryPassword()
	if err != nil {
		return "", err
	}
	hash, err := authutil.HashPasswordCost(temp, cost)
	if err != nil {
		return "", err
	}
	isTemp := true
	u, err := users.Create(ctx, models.User{
		FullName:     name,
		LoginID:      loginID,
		PasswordHash: &hash,
		PasswordTemp: &isTemp,
		Role:         models.RoleAdmin,
		Status:       models.StatusActive,
	})
	if err != nil {
		return "", err
	}

	logger.Warn("created admin user with a temporary password; change it at first sign-in",
		zap.String("login_id", u.LoginID),
		zap.String("user_id", u.ID.Hex()),
		zap.String("temporary_password", temp))
	return temp, nil
}

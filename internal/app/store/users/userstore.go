// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/normalize"
	"github.com/dalemusser/stratadues/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateLoginID is returned when attempting to create a user with a login_id that already exists.
	ErrDuplicateLoginID = errors.New("a user with this login ID already exists")
	errBadRole          = errors.New("invalid role")
	errBadStatus        = errors.New(`status must be "active"|"disabled"`)
	errNoLoginID        = errors.New("login ID is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by the hex form of its ObjectID.
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// GetByLoginID looks up a user by case/diacritic-insensitive login_id.
func (s *Store) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"login_id_ci": text.Fold(normalize.LoginID(loginID))})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	// Normalize core fields
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)

	u.LoginID = normalize.LoginID(u.LoginID)
	if u.LoginID == "" {
		return models.User{}, errNoLoginID
	}
	u.LoginIDCI = text.Fold(u.LoginID)

	// Normalize email if provided
	if u.Email != nil && *u.Email != "" {
		email := normalize.Email(*u.Email)
		u.Email = &email
	}

	u.Role = normalize.Keyword(u.Role)
	u.Status = normalize.Keyword(u.Status)
	if u.Status == "" {
		u.Status = models.StatusActive
	}

	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}
	if u.Status != models.StatusActive && u.Status != models.StatusDisabled {
		return models.User{}, errBadStatus
	}

	// Timestamps
	now := time.Now().UTC().Truncate(time.Millisecond)
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateLoginID
		}
		return models.User{}, err
	}
	return u, nil
}

// SetPassword stores a new password hash. temp marks a system-assigned
// password (reset, import, seeded account) that the user must replace at
// the next login; a password the user chose clears the flag.
func (s *Store) SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string, temp bool) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": passwordHash,
		"password_temp": temp,
		"updated_at":    time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus changes a user's status.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	if st != models.StatusActive && st != models.StatusDisabled {
		return errBadStatus
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     st,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a user by ID.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByRole returns users with the given role sorted by name. An empty role
// lists everyone.
func (s *Store) ListByRole(ctx context.Context, role string) ([]models.User, error) {
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

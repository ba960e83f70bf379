// Package profilepictures provides storage for profile picture records.
package profilepictures

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a user has no picture.
var ErrNotFound = errors.New("profile picture not found")

// Store provides access to the profile_pictures collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new profile picture store.
func New(db *mongo.Database) *Store {
	return &Store{
		c: db.Collection("profile_pictures"),
	}
}

// EnsureIndexes creates the unique user_id index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_profile_pictures_user_id"),
	})
	return err
}

// Get returns the live picture of userID.
func (s *Store) Get(ctx context.Context, userID string) (*models.ProfilePicture, error) {
	var pic models.ProfilePicture
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&pic)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pic, nil
}

// Upsert makes pic the live picture of pic.UserID, replacing any previous
// record, and returns the stored record.
func (s *Store) Upsert(ctx context.Context, pic models.ProfilePicture) (*models.ProfilePicture, error) {
	if pic.ID.IsZero() {
		pic.ID = primitive.NewObjectID()
	}
	if pic.CreatedAt.IsZero() {
		pic.CreatedAt = time.Now().UTC()
	}

	// _id is immutable, so replace keeps the existing one when a record is
	// already there.
	repl := bson.M{
		"user_id":    pic.UserID,
		"blob_id":    pic.BlobID,
		"filename":   pic.Filename,
		"mime_type":  pic.MimeType,
		"size":       pic.Size,
		"width":      pic.Width,
		"height":     pic.Height,
		"created_at": pic.CreatedAt,
	}
	var out models.ProfilePicture
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"user_id": pic.UserID},
		bson.M{"$set": repl, "$setOnInsert": bson.M{"_id": pic.ID}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the record of userID and returns it, or ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID string) (*models.ProfilePicture, error) {
	var pic models.ProfilePicture
	err := s.c.FindOneAndDelete(ctx, bson.M{"user_id": userID}).Decode(&pic)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pic, nil
}

// Count returns the number of stored pictures.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}

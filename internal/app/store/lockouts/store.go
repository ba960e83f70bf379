// internal/app/store/lockouts/store.go
package lockouts

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

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

const (
	collectionName = "account_lockouts"

	// maxRetries bounds the compare-and-swap loop in Update.
	maxRetries = 8

	// retainFor is how long a record outlives its last change (or the end of
	// its lock) before the TTL index removes it.
	retainFor = 24 * time.Hour
)

// ErrConflict is returned when Update loses the compare-and-swap race
// maxRetries times in a row.
var ErrConflict = errors.New("lockouts: concurrent update conflict")

// record is the stored form of a lock state.
type record struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	models.LockState `bson:",inline"`
	Version          int64     `bson:"version"`
	ExpiresAt        time.Time `bson:"expires_at"` // TTL
}

// Store keeps account lock state in MongoDB so every server instance sees
// the same counters. Updates use optimistic concurrency on Version.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// New creates a Store on the account_lockouts collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(collectionName), now: time.Now}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// One record per user
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_lockouts_user_id"),
		},
		// Locked account listing
		{
			Keys:    bson.D{{Key: "locked_until", Value: 1}},
			Options: options.Index().SetName("idx_lockouts_locked_until"),
		},
		// Expire stale records
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_lockouts_ttl"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Get returns the state of userID, or a clear state if none is stored.
func (s *Store) Get(ctx context.Context, userID string) (models.LockState, error) {
	rec, err := s.find(ctx, userID)
	if err != nil {
		return models.LockState{}, err
	}
	if rec == nil {
		return models.LockState{UserID: userID}, nil
	}
	return rec.LockState, nil
}

// Update applies fn to the current state of userID and stores the result if
// nobody else changed the record in between. On a lost race fn is called
// again with the fresh state.
func (s *Store) Update(ctx context.Context, userID string, fn func(models.LockState) models.LockState) (models.LockState, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		rec, err := s.find(ctx, userID)
		if err != nil {
			return models.LockState{}, err
		}

		cur := models.LockState{UserID: userID}
		var version int64
		if rec != nil {
			cur = rec.LockState
			version = rec.Version
		}

		next := fn(cur)
		next.UserID = userID
		ok, err := s.swap(ctx, next, version, rec == nil)
		if err != nil {
			return models.LockState{}, err
		}
		if ok {
			return next, nil
		}
	}
	return models.LockState{}, ErrConflict
}

// Reset clears userID's counter and lock.
func (s *Store) Reset(ctx context.Context, userID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

// ResetLocked clears every account locked at now.
func (s *Store) ResetLocked(ctx context.Context, now time.Time) (int, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"locked_until": bson.M{"$gt": now}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// ListLocked returns the accounts locked at now, ordered by user id.
func (s *Store) ListLocked(ctx context.Context, now time.Time) ([]models.LockState, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"locked_until": bson.M{"$gt": now}},
		options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	out := make([]models.LockState, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.LockState)
	}
	return out, nil
}

func (s *Store) find(ctx context.Context, userID string) (*record, error) {
	var rec record
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// swap writes next if the stored version is still version. It reports false
// when another writer got there first.
func (s *Store) swap(ctx context.Context, next models.LockState, version int64, insert bool) (bool, error) {
	expires := s.now().Add(retainFor)
	if next.LockedUntil != nil {
		expires = next.LockedUntil.Add(retainFor)
	}

	if insert {
		_, err := s.c.InsertOne(ctx, record{LockState: next, Version: 1, ExpiresAt: expires})
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return err == nil, err
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": next.UserID, "version": version},
		bson.M{
			"$set": bson.M{
				"failed_attempts": next.FailedAttempts,
				"locked_until":    next.LockedUntil,
				"updated_at":      next.UpdatedAt,
				"expires_at":      expires,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

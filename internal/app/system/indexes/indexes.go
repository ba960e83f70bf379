// internal/app/system/indexes/indexes.go
package indexes

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionIndexes is the desired index set of one collection.
type collectionIndexes struct {
	collection string
	indexes    []mongo.IndexModel
}

// desired lists every index the stores rely on. Login history is absent:
// it lives in sealed day partitions on disk.
func desired() []collectionIndexes {
	return []collectionIndexes{
		{"users", []mongo.IndexModel{
			// Sign-in lookup; folded so "Alice" and "alice" cannot both exist
			{
				Keys:    bson.D{{Key: "login_id_ci", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_users_login_id_ci"),
			},
			// Role counts and listings
			{
				Keys: bson.D{
					{Key: "role", Value: 1},
					{Key: "status", Value: 1},
					{Key: "full_name", Value: 1},
					{Key: "_id", Value: 1},
				},
				Options: options.Index().SetName("idx_users_role_status_fullname_id"),
			},
		}},
		{"account_lockouts", []mongo.IndexModel{
			// One counter per user
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_lockouts_user_id"),
			},
			// Locked account listing and unlock-all
			{
				Keys:    bson.D{{Key: "locked_until", Value: 1}},
				Options: options.Index().SetName("idx_lockouts_locked_until"),
			},
			// Stale counters expire on their own
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_lockouts_ttl"),
			},
		}},
		{"profile_pictures", []mongo.IndexModel{
			// At most one live picture per user
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_profile_pictures_user_id"),
			},
		}},
		{"audit_logs", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_created"),
			},
			{
				Keys:    bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_category_created"),
			},
			{
				Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_type_created"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_user_created"),
			},
			{
				Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_actor_created"),
			},
		}},
	}
}

/*
EnsureAll is called at startup and by test setup. Reconciling is idempotent.
Problems from every collection are joined so startup fails with the full
picture rather than the first error.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	rec := reconciler{logger: logger}
	var errs []error
	for _, want := range desired() {
		if err := rec.ensure(ctx, db.Collection(want.collection), want.indexes); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", want.collection, err))
		}
	}
	return errors.Join(errs...)
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

// keySig renders a key pattern so indexes can be matched by keys
// regardless of name.
func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(p *bool) bool { return p != nil && *p }

// isDuplicateKeyErr reports E11000, which Mongo and DocumentDB both raise
// when a unique index cannot be built over existing data.
func isDuplicateKeyErr(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "E11000")
}

type reconciler struct {
	logger *zap.Logger
}

// existing maps key signature to the index currently on the collection.
func (r reconciler) existing(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		// A missing collection lists nothing; creation will make it.
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			r.logger.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// ensure makes coll carry every index in want. An index with the same keys
// but a different uniqueness is dropped and rebuilt.
func (r reconciler) ensure(ctx context.Context, coll *mongo.Collection, want []mongo.IndexModel) error {
	have := r.existing(ctx, coll)
	var errs []error

	for _, m := range want {
		name := ""
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := r.logger.With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", isUnique(unique)))

		if ex, ok := have[sig]; ok {
			if isUnique(unique) == isUnique(ex.Unique) {
				log.Debug("index present", zap.String("existing_name", ex.Name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop of mismatched index failed", zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: drop: %w", name, err))
				continue
			}
			log.Info("dropped index with mismatched options", zap.String("existing_name", ex.Name))
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && isUnique(unique) {
				err = errors.New("cannot create unique index (duplicates present)")
			}
			log.Warn("index ensure failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	return errors.Join(errs...)
}

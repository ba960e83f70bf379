// internal/app/system/profilepic/service.go
//
// Package profilepic keeps a user's picture record and blob artifacts in
// step: one live picture per user, no orphaned artifacts.
package profilepic

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dalemusser/stratadues/internal/app/store/blobs"
	"github.com/dalemusser/stratadues/internal/app/store/profilepictures"
	"github.com/dalemusser/stratadues/internal/app/system/pathlock"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"go.uber.org/zap"
)

// ErrNoPicture is returned by Image when the user has no picture.
var ErrNoPicture = errors.New("profilepic: user has no picture")

// Records is the picture record store.
type Records interface {
	Get(ctx context.Context, userID string) (*models.ProfilePicture, error)
	Upsert(ctx context.Context, pic models.ProfilePicture) (*models.ProfilePicture, error)
	Delete(ctx context.Context, userID string) (*models.ProfilePicture, error)
}

// Blobs is the artifact store.
type Blobs interface {
	Put(ctx context.Context, ownerID string, data []byte, mimeType string) (blobs.Info, error)
	Get(ctx context.Context, ownerID, blobID string, v blobs.Variant) ([]byte, error)
	Delete(ctx context.Context, ownerID, blobID string) (bool, error)
	DeleteOwner(ctx context.Context, ownerID string) (int, error)
}

// Config configures a Service.
type Config struct {
	// LockDir holds one lock file per user. Every process sharing the
	// picture records and artifacts must use the same directory.
	LockDir string
	// Locks may be shared with other stores; a cross-process locker is
	// created when nil.
	Locks *pathlock.Locker
}

// Service manages profile pictures.
type Service struct {
	records Records
	blobs   Blobs
	lockDir string
	locks   *pathlock.Locker
	logger  *zap.Logger
}

// New creates a Service.
func New(records Records, blobStore Blobs, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.LockDir == "" {
		return nil, errors.New("profilepic: lock directory is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = pathlock.New(true)
	}
	if err := os.MkdirAll(cfg.LockDir, 0o700); err != nil {
		return nil, fmt.Errorf("profilepic: create lock directory: %w", err)
	}
	return &Service{
		records: records,
		blobs:   blobStore,
		lockDir: cfg.LockDir,
		locks:   cfg.Locks,
		logger:  logger,
	}, nil
}

// lockUser serializes the record-and-artifact sequence of one user across
// goroutines and processes. The key differs from the owner directory key
// the blob store locks inside Put and Delete.
func (s *Service) lockUser(userID string) (func(), error) {
	if !blobs.ValidID(userID) {
		return nil, blobs.ErrInvalidID
	}
	unlock, err := s.locks.Lock(filepath.Join(s.lockDir, userID+".picture"))
	if err != nil {
		s.logger.Error("failed to lock profile picture", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return unlock, nil
}

// Replace stores data as userID's picture. The upload is validated and
// written first; the previous artifacts are then deleted before the new
// record is written. An invalid upload leaves the current picture intact.
func (s *Service) Replace(ctx context.Context, userID, filename string, data []byte, mimeType string) (*models.ProfilePicture, error) {
	unlock, err := s.lockUser(userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	old, err := s.records.Get(ctx, userID)
	if err != nil && !errors.Is(err, profilepictures.ErrNotFound) {
		return nil, err
	}

	info, err := s.blobs.Put(ctx, userID, data, mimeType)
	if err != nil {
		return nil, err
	}

	if old != nil {
		if _, err := s.blobs.Delete(ctx, userID, old.BlobID); err != nil {
			s.discard(ctx, userID, info.ID)
			return nil, err
		}
	}

	pic, err := s.records.Upsert(ctx, models.ProfilePicture{
		UserID:    userID,
		BlobID:    info.ID,
		Filename:  filepath.Base(filename),
		MimeType:  info.MimeType,
		Size:      info.OriginalSize,
		Width:     info.Width,
		Height:    info.Height,
		CreatedAt: info.CreatedAt,
	})
	if err != nil {
		s.discard(ctx, userID, info.ID)
		if old != nil {
			// The old artifacts are gone; drop the record that points at them.
			if _, derr := s.records.Delete(ctx, userID); derr != nil && !errors.Is(derr, profilepictures.ErrNotFound) {
				s.logger.Error("failed to drop stale profile picture record",
					zap.String("user_id", userID),
					zap.String("blob_id", old.BlobID),
					zap.Error(derr))
			}
		}
		return nil, err
	}

	s.logger.Info("profile picture replaced",
		zap.String("user_id", userID),
		zap.String("blob_id", info.ID),
		zap.Bool("had_previous", old != nil))
	return pic, nil
}

// Remove deletes userID's picture record and every artifact stored for the
// user. It reports whether a picture existed.
func (s *Service) Remove(ctx context.Context, userID string) (bool, error) {
	unlock, err := s.lockUser(userID)
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = s.records.Delete(ctx, userID)
	existed := err == nil
	if err != nil && !errors.Is(err, profilepictures.ErrNotFound) {
		return false, err
	}

	n, err := s.blobs.DeleteOwner(ctx, userID)
	if err != nil {
		s.logger.Error("failed to delete profile picture artifacts", zap.String("user_id", userID), zap.Error(err))
		return existed, err
	}
	if !existed && n > 0 {
		s.logger.Warn("removed orphaned profile picture artifacts", zap.String("user_id", userID), zap.Int("files", n))
	}
	return existed, nil
}

// Image returns one variant of userID's picture with its record.
func (s *Service) Image(ctx context.Context, userID string, v blobs.Variant) ([]byte, *models.ProfilePicture, error) {
	pic, err := s.records.Get(ctx, userID)
	if errors.Is(err, profilepictures.ErrNotFound) {
		return nil, nil, ErrNoPicture
	}
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, userID, pic.BlobID, v)
	if errors.Is(err, blobs.ErrNotFound) {
		s.logger.Warn("profile picture record without artifact",
			zap.String("user_id", userID),
			zap.String("blob_id", pic.BlobID),
			zap.String("variant", v.String()))
		return nil, nil, ErrNoPicture
	}
	if err != nil {
		return nil, nil, err
	}
	return data, pic, nil
}

func (s *Service) discard(ctx context.Context, userID, blobID string) {
	if _, err := s.blobs.Delete(ctx, userID, blobID); err != nil {
		s.logger.Error("failed to discard new profile picture",
			zap.String("user_id", userID),
			zap.String("blob_id", blobID),
			zap.Error(err))
	}
}

// internal/app/store/blobs/store.go
//
// Package blobs stores profile pictures on local disk: an encrypted
// normalized image and a plaintext thumbnail per blob, grouped by owner.
package blobs

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/atomicfile"
	"github.com/dalemusser/stratadues/internal/app/system/envelope"
	"github.com/dalemusser/stratadues/internal/app/system/imaging"
	"github.com/dalemusser/stratadues/internal/app/system/pathlock"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	sealedExt = ".sealed"
	thumbExt  = ".thumb.jpg"

	formatVersion = 1
)

var (
	// ErrNotFound means the requested artifact does not exist.
	ErrNotFound = errors.New("blobs: not found")
	// ErrCorrupt means the encrypted artifact failed to open or decode.
	ErrCorrupt = errors.New("blobs: artifact corrupt")
	// ErrInvalidID is returned for owner or blob ids that are not a single
	// safe path segment.
	ErrInvalidID = errors.New("blobs: invalid id")
)

// Variant selects which artifact Get returns.
type Variant int

const (
	Full Variant = iota
	Thumbnail
)

func (v Variant) String() string {
	if v == Thumbnail {
		return "thumbnail"
	}
	return "full"
}

// ParseVariant maps "full" and "thumbnail" (also "thumb") to a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch strings.ToLower(s) {
	case "", "full":
		return Full, true
	case "thumbnail", "thumb":
		return Thumbnail, true
	}
	return Full, false
}

// Processor validates uploads and derives the stored artifacts.
type Processor interface {
	Validate(data []byte, mimeType string) (imaging.Info, error)
	Process(data []byte) (imaging.Result, error)
}

// Info describes a stored blob.
type Info struct {
	ID            string
	OwnerID       string
	MimeType      string // of the stored artifacts
	OriginalType  string // as uploaded
	OriginalSize  int64
	Width         int
	Height        int
	FullSize      int64 // plaintext bytes of the normalized image
	ThumbnailSize int64
	CreatedAt     time.Time
}

// Config configures a Store.
type Config struct {
	Dir       string
	Cipher    envelope.Cipher
	Processor Processor
	Locks     *pathlock.Locker // shared or created when nil
	Now       func() time.Time
	NewID     func() string
}

// Store is the encrypted blob store.
type Store struct {
	dir    string
	cipher envelope.Cipher
	proc   Processor
	locks  *pathlock.Locker
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

type fileEnvelope struct {
	Version int    `bson:"v"`
	Alg     string `bson:"alg"`
	Nonce   []byte `bson:"nonce"`
	Tag     []byte `bson:"tag"`
	Data    []byte `bson:"ct"`
}

// New creates a Store rooted at cfg.Dir.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Cipher == nil {
		return nil, errors.New("blobs: cipher is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("blobs: image processor is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("blobs: directory is required")
	}
	if cfg.Locks == nil {
		cfg.Locks = pathlock.New(true)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("blobs: create directory: %w", err)
	}
	return &Store{
		dir:    cfg.Dir,
		cipher: cfg.Cipher,
		proc:   cfg.Processor,
		locks:  cfg.Locks,
		now:    cfg.Now,
		newID:  cfg.NewID,
		logger: logger,
	}, nil
}

// Put validates data, derives the normalized image and thumbnail, and writes
// both under a new blob id. Nothing is written when validation fails.
func (s *Store) Put(ctx context.Context, ownerID string, data []byte, mimeType string) (Info, error) {
	if !ValidID(ownerID) {
		return Info{}, ErrInvalidID
	}
	if _, err := s.proc.Validate(data, mimeType); err != nil {
		return Info{}, err
	}
	res, err := s.proc.Process(data)
	if err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	raw, err := s.seal(res.Full)
	if err != nil {
		return Info{}, err
	}

	ownerDir := filepath.Join(s.dir, ownerID)
	unlock, err := s.locks.Lock(ownerDir)
	if err != nil {
		return Info{}, err
	}
	defer unlock()

	if err := os.MkdirAll(ownerDir, 0o700); err != nil {
		return Info{}, fmt.Errorf("blobs: create owner directory: %w", err)
	}

	id := s.newID()
	sealedPath, thumbPath := s.paths(ownerID, id)
	if err := atomicfile.Write(sealedPath, raw, 0o600); err != nil {
		return Info{}, fmt.Errorf("blobs: write image: %w", err)
	}
	if err := atomicfile.Write(thumbPath, res.Thumbnail, 0o644); err != nil {
		_ = os.Remove(sealedPath)
		return Info{}, fmt.Errorf("blobs: write thumbnail: %w", err)
	}

	return Info{
		ID:            id,
		OwnerID:       ownerID,
		MimeType:      imaging.OutputType,
		OriginalType:  imaging.NormalizeType(mimeType),
		OriginalSize:  int64(len(data)),
		Width:         res.Width,
		Height:        res.Height,
		FullSize:      int64(len(res.Full)),
		ThumbnailSize: int64(len(res.Thumbnail)),
		CreatedAt:     s.now().UTC(),
	}, nil
}

// Get returns one artifact. The full image is decrypted; a tampered or
// foreign file yields ErrCorrupt.
func (s *Store) Get(ctx context.Context, ownerID, blobID string, v Variant) ([]byte, error) {
	if !ValidID(ownerID) || !ValidID(blobID) {
		return nil, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sealedPath, thumbPath := s.paths(ownerID, blobID)
	if v == Thumbnail {
		return readFile(thumbPath)
	}

	raw, err := readFile(sealedPath)
	if err != nil {
		return nil, err
	}
	return s.open(raw)
}

// Delete removes both artifacts of a blob. It reports whether anything was
// removed; deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, ownerID, blobID string) (bool, error) {
	if !ValidID(ownerID) || !ValidID(blobID) {
		return false, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	unlock, err := s.locks.Lock(filepath.Join(s.dir, ownerID))
	if err != nil {
		return false, err
	}
	defer unlock()

	removed := false
	var errs []error
	sealedPath, thumbPath := s.paths(ownerID, blobID)
	for _, p := range []string{sealedPath, thumbPath} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case !os.IsNotExist(err):
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("failed to delete blob artifacts",
			zap.String("owner_id", ownerID),
			zap.String("blob_id", blobID),
			zap.Error(err))
		return removed, err
	}
	return removed, nil
}

// DeleteOwner removes every artifact of ownerID and returns the number of
// files removed.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	if !ValidID(ownerID) {
		return 0, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ownerDir := filepath.Join(s.dir, ownerID)
	unlock, err := s.locks.Lock(ownerDir)
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := os.ReadDir(ownerDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && !atomicfile.IsTemp(e.Name()) {
			n++
		}
	}
	if err := os.RemoveAll(ownerDir); err != nil {
		return 0, fmt.Errorf("blobs: remove owner directory: %w", err)
	}
	// The "<ownerDir>.lock" sidecar stays: another process may be waiting on it.
	return n, nil
}

func (s *Store) paths(ownerID, blobID string) (sealed, thumb string) {
	base := filepath.Join(s.dir, ownerID, blobID)
	return base + sealedExt, base + thumbExt
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("blobs: seal: %w", err)
	}
	raw, err := bson.Marshal(fileEnvelope{
		Version: formatVersion,
		Alg:     s.cipher.Algorithm(),
		Nonce:   sealed.Nonce,
		Tag:     sealed.Tag,
		Data:    sealed.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("blobs: encode: %w", err)
	}
	return raw, nil
}

func (s *Store) open(raw []byte) ([]byte, error) {
	var env fileEnvelope
	if err := bson.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	if env.Version != formatVersion || env.Alg != s.cipher.Algorithm() {
		return nil, fmt.Errorf("%w: unsupported format v%d/%s", ErrCorrupt, env.Version, env.Alg)
	}
	plain, err := s.cipher.Open(envelope.Sealed{Ciphertext: env.Data, Nonce: env.Nonce, Tag: env.Tag})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plain, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobs: read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// ValidID reports whether id is usable as a single path element.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.ContainsAny(id, `/\`) && !strings.HasPrefix(id, ".")
}

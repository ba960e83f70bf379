// internal/app/store/daylog/store.go
//
// Package daylog stores collections of records as one encrypted file per
// calendar day.
//
// Each partition is serialized as BSON, sealed with an envelope.Cipher, and
// replaced atomically. Read-modify-write sequences (AppendOne,
// UpdateMatching, Cleanup) hold an exclusive lock on the partition path so
// concurrent requests cannot lose each other's updates. Plain reads take no
// lock; the atomic rename guarantees they see a whole file.
package daylog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/atomicfile"
	"github.com/dalemusser/stratadues/internal/app/system/envelope"
	"github.com/dalemusser/stratadues/internal/app/system/pathlock"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCap bounds the number of records per partition.
	DefaultCap = 1000

	// dayLayout names partitions and is also stored inside them.
	dayLayout = "2006-01-02"

	fileExt = ".sealed"

	formatVersion = 1

	// staleTempAge is how old a leftover temp file must be before Cleanup
	// treats it as debris from a crashed write.
	staleTempAge = time.Hour

	readConcurrency = 4
)

var (
	// ErrCorrupt means a partition file exists but cannot be opened or
	// decoded. It is never reported as an empty partition.
	ErrCorrupt = errors.New("daylog: partition corrupt")
)

// Config configures a Store.
type Config struct {
	// Dir holds the partition files. It is created if missing.
	Dir string
	// Prefix starts every partition file name, e.g. "login-history".
	Prefix string
	// Cap is the maximum records per partition (DefaultCap when zero).
	Cap int
	// Location decides which calendar day an instant belongs to (UTC when nil).
	Location *time.Location
	// Cipher seals partition files. Required.
	Cipher envelope.Cipher
	// Locks may be shared between stores; a cross-process locker is created
	// when nil.
	Locks *pathlock.Locker
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Partition is one day's records in insertion order.
type Partition[T any] struct {
	Day     string
	Records []T
}

// Store is a day-partitioned, encrypted, append-mostly record store.
type Store[T any] struct {
	dir    string
	prefix string
	cap    int
	loc    *time.Location
	cipher envelope.Cipher
	locks  *pathlock.Locker
	now    func() time.Time
	logger *zap.Logger
}

// fileEnvelope is the on-disk wrapper around a sealed payload.
type fileEnvelope struct {
	Version int    `bson:"v"`
	Alg     string `bson:"alg"`
	Nonce   []byte `bson:"nonce"`
	Tag     []byte `bson:"tag"`
	Data    []byte `bson:"ct"`
}

// payload is the plaintext inside a partition file.
type payload[T any] struct {
	Schema  int    `bson:"schema"`
	Day     string `bson:"date"`
	Records []T    `bson:"records"`
}

// New creates a Store, creating its directory if needed.
func New[T any](cfg Config, logger *zap.Logger) (*Store[T], error) {
	if cfg.Cipher == nil {
		return nil, errors.New("daylog: cipher is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("daylog: directory is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "log"
	}
	if strings.ContainsAny(cfg.Prefix, `/\`) {
		return nil, fmt.Errorf("daylog: invalid prefix %q", cfg.Prefix)
	}
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultCap
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Locks == nil {
		cfg.Locks = pathlock.New(true)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("daylog: create directory: %w", err)
	}

	return &Store[T]{
		dir:    cfg.Dir,
		prefix: cfg.Prefix,
		cap:    cfg.Cap,
		loc:    cfg.Location,
		cipher: cfg.Cipher,
		locks:  cfg.Locks,
		now:    cfg.Now,
		logger: logger,
	}, nil
}

// Cap returns the per-partition record limit.
func (s *Store[T]) Cap() int { return s.cap }

// Today returns the start of the current calendar day.
func (s *Store[T]) Today() time.Time {
	return s.startOfDay(s.now())
}

// DayKey returns the partition key ("YYYY-MM-DD") for an instant.
func (s *Store[T]) DayKey(t time.Time) string {
	return t.In(s.loc).Format(dayLayout)
}

// Dates returns the last daysBack calendar days including today, newest first.
func (s *Store[T]) Dates(daysBack int) []time.Time {
	if daysBack <= 0 {
		return nil
	}
	today := s.Today()
	out := make([]time.Time, 0, daysBack)
	for i := 0; i < daysBack; i++ {
		out = append(out, s.addDays(today, -i))
	}
	return out
}

// Path returns the file that holds the partition for day.
func (s *Store[T]) Path(day time.Time) string {
	return filepath.Join(s.dir, s.prefix+"-"+s.DayKey(day)+fileExt)
}

// Load returns the records of day's partition. A missing partition is empty;
// an unreadable one returns ErrCorrupt.
func (s *Store[T]) Load(day time.Time) ([]T, error) {
	return s.load(s.Path(day))
}

// Save replaces day's partition with records.
func (s *Store[T]) Save(day time.Time, records []T) error {
	path := s.Path(day)
	unlock, err := s.locks.Lock(path)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(path, s.DayKey(day), records)
}

// AppendOne appends record to day's partition, evicting the oldest records
// when the partition would exceed the cap.
func (s *Store[T]) AppendOne(day time.Time, record T) error {
	path := s.Path(day)
	unlock, err := s.locks.Lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.load(path)
	if err != nil {
		return err
	}
	records = append(records, record)
	if over := len(records) - s.cap; over > 0 {
		s.logger.Debug("partition at cap, evicting oldest records",
			zap.String("day", s.DayKey(day)),
			zap.Int("evicted", over))
		records = records[over:]
	}
	return s.save(path, s.DayKey(day), records)
}

// UpdateMatching scans the partitions for days in order and applies mutate to
// the first record that satisfies match, then persists that partition and
// stops. It reports whether a record was updated.
func (s *Store[T]) UpdateMatching(days []time.Time, match func(T) bool, mutate func(*T)) (bool, error) {
	for _, day := range days {
		found, err := s.updateIn(day, match, mutate)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

func (s *Store[T]) updateIn(day time.Time, match func(T) bool, mutate func(*T)) (bool, error) {
	path := s.Path(day)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	unlock, err := s.locks.Lock(path)
	if err != nil {
		return false, err
	}
	defer unlock()

	records, err := s.load(path)
	if err != nil {
		return false, err
	}
	for i := range records {
		if match(records[i]) {
			mutate(&records[i])
			return true, s.save(path, s.DayKey(day), records)
		}
	}
	return false, nil
}

// ListDateRange loads the last daysBack days (including today), newest
// first. Partitions are read concurrently. Days that cannot be read are left
// out of the result and reported together in the returned error, so callers
// can still use the readable ones.
func (s *Store[T]) ListDateRange(daysBack int) ([]Partition[T], error) {
	days := s.Dates(daysBack)
	parts := make([]Partition[T], len(days))
	errs := make([]error, len(days))

	var g errgroup.Group
	g.SetLimit(readConcurrency)
	for i, day := range days {
		g.Go(func() error {
			key := s.DayKey(day)
			records, err := s.load(s.Path(day))
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", key, err)
				return nil
			}
			parts[i] = Partition[T]{Day: key, Records: records}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Partition[T], 0, len(days))
	for i := range parts {
		if errs[i] == nil {
			out = append(out, parts[i])
		}
	}
	return out, errors.Join(errs...)
}

// Cleanup deletes partitions dated strictly before today minus retentionDays,
// along with temp files left by crashed writes. It returns the number of
// partitions removed.
func (s *Store[T]) Cleanup(retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("daylog: negative retention %d", retentionDays)
	}
	cutoff := s.addDays(s.Today(), -retentionDays)

	if n, err := atomicfile.RemoveStale(s.dir, staleTempAge, s.now()); err != nil {
		s.logger.Warn("failed to scan for stale temp files", zap.String("dir", s.dir), zap.Error(err))
	} else if n > 0 {
		s.logger.Info("removed stale partition temp files", zap.Int("removed", n))
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("daylog: read directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := s.parseName(e.Name())
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := s.remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("removed expired partitions",
			zap.String("prefix", s.prefix),
			zap.Int("removed", removed),
			zap.String("cutoff", s.DayKey(cutoff)))
	}
	return removed, errors.Join(errs...)
}

func (s *Store[T]) remove(path string) error {
	unlock, err := s.locks.Lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daylog: remove %s: %w", filepath.Base(path), err)
	}
	// The lock sidecar stays: another process may be waiting on it.
	return nil
}

// parseName extracts the day from a partition file name.
func (s *Store[T]) parseName(name string) (time.Time, bool) {
	head := s.prefix + "-"
	if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(name, head), fileExt)
	day, err := time.ParseInLocation(dayLayout, key, s.loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func (s *Store[T]) load(path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("daylog: read %s: %w", filepath.Base(path), err)
	}

	var env fileEnvelope
	if err := bson.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: decode envelope: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported format version %d", ErrCorrupt, filepath.Base(path), env.Version)
	}
	if env.Alg != s.cipher.Algorithm() {
		return nil, fmt.Errorf("%w: %s: sealed with %q, store uses %q", ErrCorrupt, filepath.Base(path), env.Alg, s.cipher.Algorithm())
	}

	plain, err := s.cipher.Open(envelope.Sealed{Ciphertext: env.Data, Nonce: env.Nonce, Tag: env.Tag})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}

	var p payload[T]
	if err := bson.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: decode records: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return p.Records, nil
}

func (s *Store[T]) save(path, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	plain, err := bson.Marshal(payload[T]{Schema: formatVersion, Day: key, Records: records})
	if err != nil {
		return fmt.Errorf("daylog: encode records: %w", err)
	}

	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		return fmt.Errorf("daylog: seal: %w", err)
	}

	raw, err := bson.Marshal(fileEnvelope{
		Version: formatVersion,
		Alg:     s.cipher.Algorithm(),
		Nonce:   sealed.Nonce,
		Tag:     sealed.Tag,
		Data:    sealed.Ciphertext,
	})
	if err != nil {
		return fmt.Errorf("daylog: encode envelope: %w", err)
	}

	if err := atomicfile.Write(path, raw, 0o600); err != nil {
		return fmt.Errorf("daylog: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store[T]) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Store[T]) addDays(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, s.loc)
}

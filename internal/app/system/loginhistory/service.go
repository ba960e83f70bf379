// internal/app/system/loginhistory/service.go
package loginhistory

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/dalemusser/stratadues/internal/app/store/daylog"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRetentionDays is how long partitions are kept by CleanupOldHistory.
	DefaultRetentionDays = 30

	// DefaultDaysBack applies when a query does not name a range.
	DefaultDaysBack = 7
)

// Store is the partition store the service writes through.
type Store = daylog.Store[models.LoginHistoryEntry]

// Config holds optional Service settings.
type Config struct {
	RetentionDays int
	Now           func() time.Time // defaults to time.Now
	NewID         func() string    // defaults to uuid.NewString
}

// Outcome is the result of one authentication attempt.
type Outcome struct {
	Success       bool
	FailureReason string
}

// Query selects a page of history.
type Query struct {
	DaysBack int    // calendar days including today (DefaultDaysBack when <= 0)
	Limit    int    // page size; <= 0 returns everything after Offset
	Offset   int    // entries to skip
	Role     string // only entries with this role when non-empty
}

// Page is one page of history, newest first.
type Page struct {
	Entries    []models.LoginHistoryEntry `json:"entries"`
	TotalCount int                        `json:"totalCount"`
	HasMore    bool                       `json:"hasMore"`
}

// Stats aggregates history over a range of days.
type Stats struct {
	TotalLogins                   int     `json:"totalLogins"`
	SuccessfulLogins              int     `json:"successfulLogins"`
	FailedLogins                  int     `json:"failedLogins"`
	UniqueUsers                   int     `json:"uniqueUsers"`
	AdminLogins                   int     `json:"adminLogins"`
	MemberLogins                  int     `json:"memberLogins"`
	AverageSessionDurationMinutes float64 `json:"averageSessionDuration"`
}

// Service records and queries login history.
type Service struct {
	store     *Store
	logger    *zap.Logger
	retention int
	now       func() time.Time
	newID     func() string
}

// New creates a Service on top of store.
func New(store *Store, logger *zap.Logger, cfg Config) *Service {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		store:     store,
		logger:    logger,
		retention: cfg.RetentionDays,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
}

// RecordAttempt appends an entry for one login attempt to today's partition
// and returns its id for logout correlation. A storage failure is returned to
// the caller; the attempt is then not audited.
func (s *Service) RecordAttempt(ctx context.Context, who models.Identity, outcome Outcome, from models.Provenance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Partitions store millisecond precision; truncate so the returned entry
	// and the stored one agree.
	ts := s.now().UTC().Truncate(time.Millisecond)

	entry := models.LoginHistoryEntry{
		Schema:    models.LoginHistorySchema,
		ID:        s.newID(),
		UserID:    who.UserID,
		UserEmail: who.Email,
		UserName:  who.Name,
		UserRole:  who.Role,
		Timestamp: ts,
		IPAddress: from.IPAddress,
		UserAgent: from.UserAgent,
		Success:   outcome.Success,
	}
	if !outcome.Success {
		entry.FailureReason = outcome.FailureReason
	}

	if err := s.store.AppendOne(ts, entry); err != nil {
		s.logger.Error("failed to record login attempt",
			zap.String("user_id", who.UserID),
			zap.Bool("success", outcome.Success),
			zap.Error(err))
		return "", err
	}
	return entry.ID, nil
}

// RecordLogout closes out the entry with the given id, looking in today's and
// yesterday's partitions since a session may span midnight. An unknown id or
// an entry that is already closed is not an error; found reports whether an
// entry was updated.
func (s *Service) RecordLogout(ctx context.Context, id string) (found bool, err error) {
	if id == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	found, err = s.store.UpdateMatching(s.store.Dates(2),
		func(e models.LoginHistoryEntry) bool { return e.ID == id && !e.LoggedOut() },
		func(e *models.LoginHistoryEntry) { e.CloseOut(at) },
	)
	if err != nil {
		s.logger.Error("failed to record logout", zap.String("login_record_id", id), zap.Error(err))
		return false, err
	}
	if !found {
		s.logger.Debug("logout without open login record", zap.String("login_record_id", id))
	}
	return found, nil
}

// QueryHistory returns a page of entries across the requested days, newest
// first. Unreadable partitions are logged and skipped so the view still
// renders.
func (s *Service) QueryHistory(ctx context.Context, q Query) Page {
	if q.DaysBack <= 0 {
		q.DaysBack = DefaultDaysBack
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	entries := s.collect(ctx, q.DaysBack, q.Role)
	total := len(entries)

	start := min(q.Offset, total)
	end := total
	if q.Limit > 0 && q.Limit < total-start {
		end = start + q.Limit
	}

	return Page{
		Entries:    entries[start:end],
		TotalCount: total,
		HasMore:    end < total,
	}
}

// UserHistory returns the most recent entries of one user.
func (s *Service) UserHistory(ctx context.Context, userID string, daysBack, limit int) []models.LoginHistoryEntry {
	out := []models.LoginHistoryEntry{}
	for _, e := range s.QueryHistory(ctx, Query{DaysBack: daysBack}).Entries {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ComputeStats aggregates the requested days. The average session duration
// only counts entries closed out with a positive duration.
func (s *Service) ComputeStats(ctx context.Context, daysBack int) Stats {
	page := s.QueryHistory(ctx, Query{DaysBack: daysBack})

	var st Stats
	users := make(map[string]struct{})
	var durationSum, durationCount int

	for _, e := range page.Entries {
		st.TotalLogins++
		if e.Success {
			st.SuccessfulLogins++
		} else {
			st.FailedLogins++
		}
		switch e.UserRole {
		case models.RoleAdmin:
			st.AdminLogins++
		case models.RoleMember:
			st.MemberLogins++
		}
		if key := userKey(e); key != "" {
			users[key] = struct{}{}
		}
		if e.SessionDuration != nil && *e.SessionDuration > 0 {
			durationSum += *e.SessionDuration
			durationCount++
		}
	}

	st.UniqueUsers = len(users)
	if durationCount > 0 {
		avg := float64(durationSum) / float64(durationCount)
		st.AverageSessionDurationMinutes = math.Round(avg*10) / 10
	}
	return st
}

// CleanupOldHistory removes partitions older than the retention window.
func (s *Service) CleanupOldHistory(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed, err := s.store.Cleanup(s.retention)
	if err != nil {
		s.logger.Error("login history cleanup failed", zap.Int("removed", removed), zap.Error(err))
		return removed, err
	}
	return removed, nil
}

// collect concatenates partitions (newest day first, insertion order within
// a day), filters by role, and stable-sorts by timestamp descending.
func (s *Service) collect(ctx context.Context, daysBack int, role string) []models.LoginHistoryEntry {
	parts, err := s.store.ListDateRange(daysBack)
	if err != nil {
		s.logger.Error("login history partially unreadable",
			zap.Int("days_back", daysBack),
			zap.Int("readable_days", len(parts)),
			zap.Error(err))
	}
	if ctx.Err() != nil {
		return []models.LoginHistoryEntry{}
	}

	var entries []models.LoginHistoryEntry
	for _, p := range parts {
		for _, e := range p.Records {
			if role != "" && e.UserRole != role {
				continue
			}
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if entries == nil {
		entries = []models.LoginHistoryEntry{}
	}
	return entries
}

// userKey identifies the user behind an entry; attempts against unknown
// accounts have no user id and fall back to the email that was tried.
func userKey(e models.LoginHistoryEntry) string {
	if e.UserID != "" {
		return "id:" + e.UserID
	}
	if e.UserEmail != "" {
		return "email:" + e.UserEmail
	}
	return ""
}

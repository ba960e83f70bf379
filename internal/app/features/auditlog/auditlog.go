// internal/app/features/auditlog/auditlog.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratadues/internal/app/store/audit"
	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const pageSize = 50

// Querier reads stored audit events.
type Querier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// Handler provides audit log handlers.
type Handler struct {
	events Querier
	logger *zap.Logger
}

// NewHandler creates a new audit log Handler.
func NewHandler(events Querier, logger *zap.Logger) *Handler {
	return &Handler{events: events, logger: logger}
}

// listResponse is one page of audit events.
type listResponse struct {
	Events     []audit.Event `json:"events"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	Total      int64         `json:"total"`
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	authEvents := []string{
		audit.EventLoginSuccess,
		audit.EventLoginFailedUserNotFound,
		audit.EventLoginFailedWrongPassword,
		audit.EventLoginFailedUserDisabled,
		audit.EventLoginLockedOut,
		audit.EventAccountLocked,
		audit.EventLogout,
	}

	adminEvents := []string{
		audit.EventAccountUnlocked,
		audit.EventAllAccountsUnlocked,
		audit.EventProfilePictureReplaced,
		audit.EventProfilePictureRemoved,
		audit.EventHistoryCleanup,
	}

	switch category {
	case audit.CategoryAuth:
		return authEvents
	case audit.CategoryAdmin:
		return adminEvents
	case "":
		all := make([]string, 0, len(authEvents)+len(adminEvents))
		all = append(all, authEvents...)
		all = append(all, adminEvents...)
		return all
	default:
		return nil
	}
}

// Routes returns a chi.Router with audit log routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/event-types", h.eventTypes)
	return r
}

// eventTypes serves GET /event-types?category=
func (h *Handler) eventTypes(w http.ResponseWriter, r *http.Request) {
	types := eventTypesForCategory(strings.TrimSpace(r.URL.Query().Get("category")))
	if types == nil {
		jsonutil.BadRequest(w, "unknown category")
		return
	}
	jsonutil.OK(w, map[string][]string{"eventTypes": types})
}

// list serves GET /?category=&event_type=&user_id=&start_date=&end_date=&tz=&page=
// Dates are calendar days (YYYY-MM-DD) in tz, UTC when tz is absent.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	if eventTypesForCategory(category) == nil {
		jsonutil.BadRequest(w, "unknown category")
		return
	}

	page, err := jsonutil.QueryInt(r, "page", 1)
	if err != nil || page < 1 || page > math.MaxInt32/pageSize {
		jsonutil.BadRequest(w, "page must be a positive integer")
		return
	}

	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			jsonutil.BadRequest(w, "unknown timezone")
			return
		}
	}

	filter := audit.QueryFilter{
		UserID:    strings.TrimSpace(q.Get("user_id")),
		Category:  category,
		EventType: strings.TrimSpace(q.Get("event_type")),
		Limit:     pageSize,
		Offset:    int64((page - 1) * pageSize),
	}
	if s := strings.TrimSpace(q.Get("start_date")); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			jsonutil.BadRequest(w, "start_date must be YYYY-MM-DD")
			return
		}
		filter.StartTime = &t
	}
	if s := strings.TrimSpace(q.Get("end_date")); s != "" {
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			jsonutil.BadRequest(w, "end_date must be YYYY-MM-DD")
			return
		}
		// End of day
		endOfDay := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.EndTime = &endOfDay
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", zap.Error(err))
		jsonutil.InternalError(w, "failed to query audit events")
		return
	}

	total, err := h.events.CountByFilter(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to count audit events", zap.Error(err))
		total = 0
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}

	jsonutil.OK(w, listResponse{
		Events:     events,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	})
}

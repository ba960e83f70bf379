// internal/app/features/loginhistory/loginhistory.go
package loginhistory

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"net/http"

	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/loginhistory"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxDaysBack bounds how many partitions one request may read.
const maxDaysBack = 366

// Handler serves login history over the admin API.
type Handler struct {
	history *loginhistory.Service
	logger  *zap.Logger
}

// NewHandler creates a new login history Handler.
func NewHandler(history *loginhistory.Service, logger *zap.Logger) *Handler {
	return &Handler{history: history, logger: logger}
}

// Routes returns a chi.Router with login history routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/users/{userID}", h.user)
	return r
}

// list serves GET /?days=&limit=&offset=&role=
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(w, r)
	if !ok {
		return
	}
	limit, err := jsonutil.QueryInt(r, "limit", 50)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	offset, err := jsonutil.QueryInt(r, "offset", 0)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	role := r.URL.Query().Get("role")
	if role != "" && !models.IsValidRole(role) {
		jsonutil.BadRequest(w, "unknown role")
		return
	}

	page := h.history.QueryHistory(r.Context(), loginhistory.Query{
		DaysBack: days,
		Limit:    limit,
		Offset:   offset,
		Role:     role,
	})
	jsonutil.OK(w, page)
}

// stats serves GET /stats?days=
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(w, r)
	if !ok {
		return
	}
	jsonutil.OK(w, h.history.ComputeStats(r.Context(), days))
}

// user serves GET /users/{userID}?days=&limit=
func (h *Handler) user(w http.ResponseWriter, r *http.Request) {
	days, ok := daysParam(w, r)
	if !ok {
		return
	}
	limit, err := jsonutil.QueryInt(r, "limit", 0)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	entries := h.history.UserHistory(r.Context(), chi.URLParam(r, "userID"), days, limit)
	jsonutil.OK(w, map[string]any{"entries": entries})
}

func daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	days, err := jsonutil.QueryInt(r, "days", loginhistory.DefaultDaysBack)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return 0, false
	}
	if days > maxDaysBack {
		jsonutil.BadRequest(w, "days must be at most 366")
		return 0, false
	}
	return days, true
}

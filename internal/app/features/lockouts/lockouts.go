// internal/app/features/lockouts/lockouts.go
package lockouts

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"net/http"

	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/auth"
	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/lockout"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler exposes the lockout gate to administrators.
type Handler struct {
	gate   *lockout.Gate
	audit  *auditlog.Logger
	logger *zap.Logger
}

// NewHandler creates a new lockouts Handler. audit may be nil.
func NewHandler(gate *lockout.Gate, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{gate: gate, audit: audit, logger: logger}
}

// Routes returns a chi.Router with lockout routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/unlock-all", h.unlockAll)
	r.Get("/{userID}", h.status)
	r.Post("/{userID}/unlock", h.unlock)
	return r
}

// list serves GET / with every currently locked account.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locked, err := h.gate.ListLocked(r.Context())
	if err != nil {
		h.logger.Error("list locked accounts failed", zap.Error(err))
		jsonutil.InternalError(w, "failed to list locked accounts")
		return
	}
	cfg := h.gate.Config()
	jsonutil.OK(w, map[string]any{
		"locked":          locked,
		"threshold":       cfg.Threshold,
		"cooldownSeconds": int(cfg.Cooldown.Seconds()),
	})
}

// status serves GET /{userID}.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.gate.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("lockout status failed", zap.Error(err))
		jsonutil.InternalError(w, "failed to read lockout state")
		return
	}
	jsonutil.OK(w, st)
}

// unlock serves POST /{userID}/unlock.
func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.gate.Unlock(r.Context(), userID); err != nil {
		h.logger.Error("unlock failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to unlock account")
		return
	}
	h.audit.AccountUnlocked(r.Context(), auth.Actor(r), userID)
	jsonutil.NoContent(w)
}

// unlockAll serves POST /unlock-all.
func (h *Handler) unlockAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.gate.UnlockAll(r.Context())
	if err != nil {
		h.logger.Error("unlock all failed", zap.Int("unlocked", n), zap.Error(err))
		jsonutil.InternalError(w, "failed to unlock accounts")
		return
	}
	h.audit.AllAccountsUnlocked(r.Context(), auth.Actor(r), n)
	jsonutil.OK(w, map[string]int{"unlocked": n})
}

// internal/app/features/profile/profile.go
package profile

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"errors"
	"net/http"

	userstore "github.com/dalemusser/stratadues/internal/app/store/users"
	"github.com/dalemusser/stratadues/internal/app/system/auth"
	"github.com/dalemusser/stratadues/internal/app/system/authutil"
	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/signin"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides password handlers.
type Handler struct {
	signin *signin.Service
	logger *zap.Logger
}

// NewHandler creates a new profile Handler.
func NewHandler(svc *signin.Service, logger *zap.Logger) *Handler {
	return &Handler{signin: svc, logger: logger}
}

// Routes returns a chi.Router with profile routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/password-rules", h.passwordRules)
	r.Post("/{userID}/password", h.changePassword)
	r.Post("/{userID}/password/reset", h.resetPassword)
	return r
}

// passwordRules serves GET /password-rules.
func (h *Handler) passwordRules(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"rules": authutil.PasswordRules()})
}

type changeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// changePassword serves POST /{userID}/password.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req changeRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	err := h.signin.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		jsonutil.NoContent(w)
	case errors.Is(err, userstore.ErrNotFound):
		jsonutil.NotFound(w, "user not found")
	case errors.Is(err, signin.ErrWrongPassword):
		jsonutil.ValidationError(w, map[string]string{"currentPassword": err.Error()})
	case errors.Is(err, authutil.ErrPasswordUnchanged),
		errors.Is(err, authutil.ErrPasswordTooShort),
		errors.Is(err, authutil.ErrPasswordTooLong),
		errors.Is(err, authutil.ErrPasswordCommon):
		jsonutil.ValidationError(w, map[string]string{"newPassword": err.Error()})
	default:
		h.logger.Error("password change failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to change password")
	}
}

// resetPassword serves POST /{userID}/password/reset. The generated
// temporary password is returned once and never stored in clear.
func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	temp, err := h.signin.ResetPassword(r.Context(), auth.Actor(r), userID)
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("password reset failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to reset password")
		return
	}
	jsonutil.OK(w, map[string]string{"temporaryPassword": temp})
}

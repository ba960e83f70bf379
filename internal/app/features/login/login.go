// internal/app/features/login/login.go
package login

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/network"
	"github.com/dalemusser/stratadues/internal/app/system/normalize"
	"github.com/dalemusser/stratadues/internal/app/system/signin"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides sign-in handlers for the front end that owns the user's
// browser session. The front end forwards what the user typed along with
// the user's address and agent.
type Handler struct {
	signin *signin.Service
	logger *zap.Logger
}

// NewHandler creates a new login Handler.
func NewHandler(svc *signin.Service, logger *zap.Logger) *Handler {
	return &Handler{signin: svc, logger: logger}
}

// Routes returns a chi.Router with login routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/signin", h.handleSignin)
	r.Post("/signout", h.handleSignout)
	return r
}

type signinRequest struct {
	LoginID   string `json:"loginId"`
	Password  string `json:"password"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}

type signinResponse struct {
	Outcome                string     `json:"outcome"`
	UserID                 string     `json:"userId,omitempty"`
	LoginID                string     `json:"loginId,omitempty"`
	FullName               string     `json:"fullName,omitempty"`
	Role                   string     `json:"role,omitempty"`
	LoginRecordID          string     `json:"loginRecordId,omitempty"`
	RequiresPasswordChange bool       `json:"requiresPasswordChange,omitempty"`
	LockedUntil            *time.Time `json:"lockedUntil,omitempty"`
	HistoryRecorded        bool       `json:"historyRecorded"`
}

// provenance prefers what the front end reports and falls back to the
// request itself.
func provenance(r *http.Request, ip, agent string) models.Provenance {
	p := models.Provenance{IPAddress: strings.TrimSpace(ip), UserAgent: normalize.UserAgent(agent)}
	if p.IPAddress == "" {
		p.IPAddress = network.GetClientIP(r)
	}
	if p.UserAgent == "" {
		p.UserAgent = normalize.UserAgent(r.UserAgent())
	}
	return p
}

// handleSignin serves POST /signin.
// Every evaluated attempt answers 200 with an outcome; credential problems
// are not HTTP errors.
func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	req.LoginID = strings.TrimSpace(req.LoginID)
	if req.LoginID == "" || req.Password == "" {
		jsonutil.ValidationError(w, map[string]string{"loginId": "loginId and password are required"})
		return
	}

	from := provenance(r, req.IPAddress, req.UserAgent)
	res, err := h.signin.Login(r.Context(), signin.Credentials{LoginID: req.LoginID, Password: req.Password}, from)
	recorded := true
	if errors.Is(err, signin.ErrAuditFailed) {
		h.logger.Error("login history write failed", zap.String("login_id", req.LoginID), zap.Error(err))
		recorded = false
	} else if err != nil {
		h.logger.Error("sign-in failed", zap.String("login_id", req.LoginID), zap.Error(err))
		jsonutil.ServiceUnavailable(w, "sign-in is temporarily unavailable")
		return
	}

	resp := signinResponse{
		Outcome:                res.Outcome.String(),
		LoginRecordID:          res.LoginRecordID,
		RequiresPasswordChange: res.RequiresPasswordChange,
		HistoryRecorded:        recorded,
	}
	switch res.Outcome {
	case signin.OutcomeSuccess:
		resp.UserID = res.User.ID.Hex()
		resp.LoginID = res.User.LoginID
		resp.FullName = res.User.FullName
		resp.Role = res.User.Role
	case signin.OutcomeLocked:
		until := res.LockedUntil
		resp.LockedUntil = &until
	}
	jsonutil.OK(w, resp)
}

type signoutRequest struct {
	LoginRecordID string `json:"loginRecordId"`
}

// handleSignout serves POST /signout.
func (h *Handler) handleSignout(w http.ResponseWriter, r *http.Request) {
	var req signoutRequest
	if err := jsonutil.Decode(w, r, &req); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err := h.signin.Logout(r.Context(), strings.TrimSpace(req.LoginRecordID)); err != nil {
		h.logger.Error("logout not recorded", zap.String("login_record_id", req.LoginRecordID), zap.Error(err))
		jsonutil.InternalError(w, "failed to record logout")
		return
	}
	jsonutil.NoContent(w)
}

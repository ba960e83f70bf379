// internal/app/features/pictures/pictures.go
package pictures

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratadues/internal/app/store/blobs"
	"github.com/dalemusser/stratadues/internal/app/system/auditlog"
	"github.com/dalemusser/stratadues/internal/app/system/auth"
	"github.com/dalemusser/stratadues/internal/app/system/imaging"
	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/profilepic"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// formField is the multipart field carrying the upload.
const formField = "image"

// multipartOverhead is allowed on top of the image limit for form framing.
const multipartOverhead = 64 << 10

// Pictures is the profile picture service.
type Pictures interface {
	Replace(ctx context.Context, userID, filename string, data []byte, mimeType string) (*models.ProfilePicture, error)
	Remove(ctx context.Context, userID string) (bool, error)
	Image(ctx context.Context, userID string, v blobs.Variant) ([]byte, *models.ProfilePicture, error)
}

// Handler serves profile pictures over the admin API.
type Handler struct {
	pics     Pictures
	maxBytes int64
	audit    *auditlog.Logger
	logger   *zap.Logger
}

// NewHandler creates a new pictures Handler. maxBytes is the upload limit
// enforced by the image policy; the request body is capped slightly above it
// so oversize uploads still get a policy error. audit may be nil.
func NewHandler(pics Pictures, maxBytes int64, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{pics: pics, maxBytes: maxBytes, audit: audit, logger: logger}
}

// Routes returns a chi.Router with picture routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Put("/{userID}", h.upload)
	r.Get("/{userID}", h.image)
	r.Delete("/{userID}", h.remove)
	return r
}

// upload serves PUT /{userID} with a multipart "image" field.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	file, header, err := r.FormFile(formField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonutil.ValidationError(w, map[string]string{"size": "file exceeds the upload limit"})
			return
		}
		jsonutil.BadRequest(w, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonutil.BadRequest(w, "failed to read upload")
		return
	}

	pic, err := h.pics.Replace(r.Context(), userID, header.Filename, data, header.Header.Get("Content-Type"))
	var verr *imaging.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonutil.ValidationError(w, map[string]string{verr.Field: verr.Reason})
		return
	case errors.Is(err, blobs.ErrInvalidID):
		jsonutil.BadRequest(w, "invalid user id")
		return
	case err != nil:
		h.logger.Error("profile picture upload failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to store picture")
		return
	}

	h.audit.ProfilePictureReplaced(r.Context(), auth.Actor(r), userID, pic.BlobID)
	jsonutil.OK(w, pic)
}

// image serves GET /{userID}?variant=full|thumbnail (default thumbnail).
func (h *Handler) image(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	v := blobs.Thumbnail
	if s := r.URL.Query().Get("variant"); s != "" {
		var ok bool
		if v, ok = blobs.ParseVariant(s); !ok {
			jsonutil.BadRequest(w, "variant must be full or thumbnail")
			return
		}
	}

	data, pic, err := h.pics.Image(r.Context(), userID, v)
	switch {
	case errors.Is(err, profilepic.ErrNoPicture), errors.Is(err, blobs.ErrInvalidID):
		jsonutil.NotFound(w, "no picture")
		return
	case errors.Is(err, blobs.ErrCorrupt):
		h.logger.Error("profile picture unreadable", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "picture is unreadable")
		return
	case err != nil:
		h.logger.Error("profile picture read failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to read picture")
		return
	}

	w.Header().Set("Content-Type", pic.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// remove serves DELETE /{userID}.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	existed, err := h.pics.Remove(r.Context(), userID)
	if errors.Is(err, blobs.ErrInvalidID) {
		jsonutil.NotFound(w, "no picture")
		return
	}
	if err != nil {
		h.logger.Error("profile picture removal failed", zap.String("user_id", userID), zap.Error(err))
		jsonutil.InternalError(w, "failed to remove picture")
		return
	}
	if !existed {
		jsonutil.NotFound(w, "no picture")
		return
	}
	h.audit.ProfilePictureRemoved(r.Context(), auth.Actor(r), userID)
	jsonutil.NoContent(w)
}

package pictures

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/dalemusser/stratadues/internal/app/store/blobs"
	"github.com/dalemusser/stratadues/internal/app/store/profilepictures"
	"github.com/dalemusser/stratadues/internal/app/system/envelope"
	"github.com/dalemusser/stratadues/internal/app/system/imaging"
	"github.com/dalemusser/stratadues/internal/app/system/profilepic"
	"github.com/dalemusser/stratadues/internal/domain/models"
	"github.com/dalemusser/stratadues/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakePictures struct {
	replaceErr error
	imageErr   error
	removed    bool
	gotMime    string
	gotName    string
}

func (f *fakePictures) Replace(_ context.Context, userID, filename string, data []byte, mimeType string) (*models.ProfilePicture, error) {
	f.gotMime, f.gotName = mimeType, filename
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	return &models.ProfilePicture{UserID: userID, BlobID: "b1", MimeType: imaging.OutputType, Size: int64(len(data))}, nil
}

func (f *fakePictures) Remove(context.Context, string) (bool, error) { return f.removed, nil }

func (f *fakePictures) Image(_ context.Context, userID string, v blobs.Variant) ([]byte, *models.ProfilePicture, error) {
	if f.imageErr != nil {
		return nil, nil, f.imageErr
	}
	return []byte("jpeg-" + v.String()), &models.ProfilePicture{UserID: userID, MimeType: imaging.OutputType}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"stored", nil, http.StatusOK, `"blobId":"b1"`},
		{"policy failure", &imaging.ValidationError{Field: "dimensions", Reason: "too small"}, http.StatusBadRequest, `"dimensions":"too small"`},
		{"bad id", blobs.ErrInvalidID, http.StatusBadRequest, "invalid user id"},
		{"storage failure", errors.New("disk full"), http.StatusInternalServerError, "failed to store picture"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pics := &fakePictures{replaceErr: tt.err}
			h := Routes(NewHandler(pics, 1<<20, nil, zap.NewNop()))

			rec := testutil.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "/u1", "me.png", "image/png", []byte("data")))
			rec.AssertStatus(t, tt.wantStatus)
			rec.AssertContains(t, tt.wantBody)
			if pics.gotMime != "image/png" || pics.gotName != "me.png" {
				t.Errorf("Replace got mime %q name %q", pics.gotMime, pics.gotName)
			}
		})
	}
}

func uploadRequest(t *testing.T, target, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	req := testutil.NewUploadRequest(t, target, formField, filename, contentType, data)
	req.Method = http.MethodPut
	return req
}

func TestUpload_BodyTooLarge(t *testing.T) {
	h := Routes(NewHandler(&fakePictures{}, 1024, nil, zap.NewNop()))

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/u1", "big.png", "image/png", make([]byte, 1024+multipartOverhead+1)))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestUpload_MissingField(t *testing.T) {
	h := Routes(NewHandler(&fakePictures{}, 1<<20, nil, zap.NewNop()))

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodPut, "/u1", map[string]string{"image": "no"}))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestImage(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"default thumbnail", "/u1", nil, http.StatusOK, "jpeg-thumbnail"},
		{"full", "/u1?variant=full", nil, http.StatusOK, "jpeg-full"},
		{"bad variant", "/u1?variant=huge", nil, http.StatusBadRequest, ""},
		{"none", "/u1", profilepic.ErrNoPicture, http.StatusNotFound, ""},
		{"corrupt", "/u1?variant=full", blobs.ErrCorrupt, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Routes(NewHandler(&fakePictures{imageErr: tt.err}, 1<<20, nil, zap.NewNop()))

			rec := testutil.NewRecorder()
			h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodGet, tt.target, nil))
			rec.AssertStatus(t, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("Content-Type") != imaging.OutputType {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRemove(t *testing.T) {
	for _, existed := range []bool{true, false} {
		h := Routes(NewHandler(&fakePictures{removed: existed}, 1<<20, nil, zap.NewNop()))

		rec := testutil.NewRecorder()
		h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodDelete, "/u1", nil))
		want := http.StatusNoContent
		if !existed {
			want = http.StatusNotFound
		}
		rec.AssertStatus(t, want)
	}
}

func TestRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	key, _ := envelope.GenerateKey()
	cipher, err := envelope.NewSecretBox(key)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	bs, err := blobs.New(blobs.Config{
		Dir:       dir,
		Cipher:    cipher,
		Processor: imaging.NewPipeline(imaging.DefaultPolicy(), 0),
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := profilepic.New(profilepictures.New(db), bs, profilepic.Config{LockDir: dir}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	h := Routes(NewHandler(svc, imaging.DefaultMaxBytes, nil, zap.NewNop()))
	userID := primitive.NewObjectID().Hex()

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "/"+userID, "me.png", "image/png", pngBytes(t, 300, 200)))
	rec.AssertStatus(t, http.StatusOK)

	var pic models.ProfilePicture
	rec.DecodeJSON(t, &pic)
	if pic.Width != 300 || pic.Height != 200 || pic.Filename != "me.png" {
		t.Errorf("picture = %+v", pic)
	}

	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodGet, "/"+userID+"?variant=thumbnail", nil))
	rec.AssertStatus(t, http.StatusOK)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || cfg.Width != imaging.DefaultThumbnailSize {
		t.Errorf("thumbnail config = %+v, %v", cfg, err)
	}

	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodDelete, "/"+userID, nil))
	rec.AssertStatus(t, http.StatusNoContent)

	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, testutil.NewAPIRequest(t, http.MethodGet, "/"+userID, nil))
	rec.AssertStatus(t, http.StatusNotFound)
}

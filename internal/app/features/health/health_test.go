package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dalemusser/stratadues/internal/app/system/tasks"
	"github.com/dalemusser/stratadues/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func passing(name string) Dependency {
	return Dependency{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name string) Dependency {
	return Dependency{Name: name, Check: func(context.Context) error { return errors.New("down") }}
}

type fakeJobs []tasks.JobStatus

func (f fakeJobs) Statuses() []tasks.JobStatus { return f }

func TestHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		deps       []Dependency
		wantStatus int
		wantBody   string
		wantSvc    map[string]string
	}{
		{"all ok", []Dependency{passing("mongodb"), passing("data_dir")}, http.StatusOK, "ok",
			map[string]string{"mongodb": "ok", "data_dir": "ok"}},
		{"one down", []Dependency{passing("mongodb"), failing("data_dir")}, http.StatusServiceUnavailable, "degraded",
			map[string]string{"mongodb": "ok", "data_dir": "unavailable"}},
		{"no deps", nil, http.StatusOK, "ok", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := fakeJobs{{Name: "login-history-cleanup", Runs: 2}}
			h := NewHandler(zap.NewNop(), jobs, tt.deps...)

			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantBody)
			}
			for k, v := range tt.wantSvc {
				if resp.Services[k] != v {
					t.Errorf("service %s = %q, want %q", k, resp.Services[k], v)
				}
			}
			if len(resp.Jobs) != 1 || resp.Jobs[0].Runs != 2 {
				t.Errorf("jobs = %+v", resp.Jobs)
			}
		})
	}
}

func TestMountRootEndpoints(t *testing.T) {
	tests := []struct {
		path       string
		deps       []Dependency
		wantStatus int
		wantBody   string
	}{
		{"/ready", []Dependency{passing("mongodb")}, http.StatusOK, `{"status":"ready"}`},
		{"/readyz", []Dependency{failing("mongodb")}, http.StatusServiceUnavailable, `{"status":"not ready"}`},
		{"/livez", []Dependency{failing("mongodb")}, http.StatusOK, `{"status":"alive"}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := chi.NewRouter()
			MountRootEndpoints(r, NewHandler(zap.NewNop(), nil, tt.deps...))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	router := Routes(NewHandler(zap.NewNop(), nil, passing("mongodb")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/live status = %d, want 200", rec.Code)
	}
}

func TestDirDependency(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"writable dir", dir, false},
		{"missing", filepath.Join(dir, "nope"), true},
		{"not a dir", file, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DirDependency("data_dir", tt.dir).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dependency left %d entries behind, want only the plain file", len(entries))
	}
}

func TestMongoDependency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	if err := MongoDependency(db.Client()).Check(context.Background()); err != nil {
		t.Errorf("MongoDependency() error = %v", err)
	}
}

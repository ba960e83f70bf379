// internal/app/features/health/health.go
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/jsonutil"
	"github.com/dalemusser/stratadues/internal/app/system/tasks"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Dependency is one dependency check.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// JobLister reports background job state.
type JobLister interface {
	Statuses() []tasks.JobStatus
}

// Handler provides health check endpoints.
type Handler struct {
	deps    []Dependency
	jobs    JobLister
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a new health check Handler. jobs may be nil.
func NewHandler(logger *zap.Logger, jobs JobLister, deps ...Dependency) *Handler {
	return &Handler{
		deps:    deps,
		jobs:    jobs,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// MongoDependency pings the primary.
func MongoDependency(client *mongo.Client) Dependency {
	return Dependency{
		Name: "mongodb",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// DirDependency verifies dir exists and accepts new files. Partition and
// picture writes fail when it does not.
func DirDependency(name, dir string) Dependency {
	return Dependency{
		Name: name,
		Check: func(context.Context) error {
			fi, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			f, err := os.CreateTemp(dir, ".health-*")
			if err != nil {
				return err
			}
			name := f.Name()
			f.Close()
			return os.Remove(filepath.Clean(name))
		},
	}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Jobs     []tasks.JobStatus `json:"jobs,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds /ready, /readyz and /livez directly on the root
// router for Kubernetes health checks.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run checks every dependency and reports whether all passed.
func (h *Handler) run(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	services := make(map[string]string, len(h.deps))
	ok := true
	for _, p := range h.deps {
		if err := p.Check(ctx); err != nil {
			ok = false
			services[p.Name] = "unavailable"
			h.logger.Warn("health check failed", zap.String("service", p.Name), zap.Error(err))
			continue
		}
		services[p.Name] = "ok"
	}
	return services, ok
}

// Check checks every dependency and includes background job state.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	services, ok := h.run(r.Context())
	resp := Response{Status: "ok", Services: services}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Statuses()
	}
	if !ok {
		resp.Status = "degraded"
		jsonutil.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonutil.OK(w, resp)
}

// Ready checks if the service is ready to accept requests.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.run(r.Context()); !ok {
		jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	jsonutil.OK(w, map[string]string{"status": "ready"})
}

// Live checks if the process is alive.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"status": "alive"})
}

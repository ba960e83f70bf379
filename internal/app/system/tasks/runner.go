// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("tasks: unknown job")

// Job represents a scheduled background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	// SkipInitial delays the first run by one Interval instead of running
	// when the runner starts.
	SkipInitial bool
}

// JobStatus is the outcome of the most recent run of a job.
type JobStatus struct {
	Name         string    `json:"name"`
	Interval     string    `json:"interval"`
	Runs         int64     `json:"runs"`
	Running      bool      `json:"running"`
	LastStarted  time.Time `json:"lastStarted,omitzero"`
	LastFinished time.Time `json:"lastFinished,omitzero"`
	LastError    string    `json:"lastError,omitempty"`
}

// Runner manages background job execution.
type Runner struct {
	logger  *zap.Logger
	jobs    []Job
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Int32 // Count of currently executing jobs

	mu     sync.Mutex
	status map[string]*JobStatus
}

// New creates a new task runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger,
		status: make(map[string]*JobStatus),
	}
}

// Register adds a job to the runner. Names must be unique and the interval
// positive.
func (r *Runner) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("tasks: job needs a name and a Run func")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("tasks: job %q: interval must be positive", job.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.status[job.Name]; dup {
		return fmt.Errorf("tasks: job %q registered twice", job.Name)
	}
	r.jobs = append(r.jobs, job)
	r.status[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval.String()}
	return nil
}

// Start begins executing all registered jobs.
// Call Stop to gracefully shutdown.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.runJob(ctx, job)
	}

	r.logger.Info("background task runner started",
		zap.Int("job_count", len(r.jobs)))
}

// Stop gracefully stops all running jobs within the given context's deadline.
// If ctx is cancelled before all jobs complete, it returns ctx.Err().
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		var stillRunning []string
		for _, st := range r.Statuses() {
			if st.Running {
				stillRunning = append(stillRunning, st.Name)
			}
		}
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", stillRunning),
			zap.Int32("running_count", r.running.Load()))
		return ctx.Err()
	}
}

// Statuses returns a snapshot of every registered job, sorted by name.
func (r *Runner) Statuses() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// runJob executes a single job on its interval.
func (r *Runner) runJob(ctx context.Context, job Job) {
	defer r.wg.Done()

	if !job.SkipInitial {
		r.executeJob(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.executeJob(ctx, job)
		}
	}
}

// executeJob runs a job, records its status and logs the result.
func (r *Runner) executeJob(ctx context.Context, job Job) error {
	r.running.Add(1)
	start := time.Now()
	r.update(job.Name, func(st *JobStatus) {
		st.Running = true
		st.LastStarted = start
	})

	r.logger.Debug("job starting", zap.String("job", job.Name))
	err := job.Run(ctx)

	r.running.Add(-1)
	r.update(job.Name, func(st *JobStatus) {
		st.Running = false
		st.Runs++
		st.LastFinished = time.Now()
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})

	if err != nil {
		// Don't log context cancellation as an error during shutdown
		if ctx.Err() != nil {
			r.logger.Debug("job cancelled during shutdown",
				zap.String("job", job.Name),
				zap.Duration("duration", time.Since(start)))
			return err
		}
		r.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}

	r.logger.Debug("job completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) update(name string, fn func(*JobStatus)) {
	r.mu.Lock()
	if st, ok := r.status[name]; ok {
		fn(st)
	}
	r.mu.Unlock()
}

// RunOnce executes a job immediately, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return r.executeJob(ctx, job)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

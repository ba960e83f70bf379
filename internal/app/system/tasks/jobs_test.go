package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/tasks"
	"go.uber.org/zap"
)

type fakeHistory struct {
	removed int
	err     error
}

func (f fakeHistory) CleanupOldHistory(context.Context) (int, error) { return f.removed, f.err }

type reported struct {
	calls   int
	removed int
	err     error
}

func (r *reported) HistoryCleanup(_ context.Context, removed int, err error) {
	r.calls++
	r.removed = removed
	r.err = err
}

type fakePruner struct{ cutoff time.Time }

func (f *fakePruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestHistoryCleanupJob(t *testing.T) {
	diskFull := errors.New("disk full")
	tests := []struct {
		name    string
		history fakeHistory
		wantErr error
	}{
		{"removes partitions", fakeHistory{removed: 2}, nil},
		{"nothing to do", fakeHistory{}, nil},
		{"partial failure", fakeHistory{removed: 1, err: diskFull}, diskFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &reported{}
			job := tasks.HistoryCleanupJob(tt.history, rep, zap.NewNop())
			if job.Interval != 24*time.Hour {
				t.Errorf("Interval = %v, want 24h", job.Interval)
			}

			err := job.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if rep.calls != 1 || rep.removed != tt.history.removed || !errors.Is(rep.err, tt.wantErr) {
				t.Errorf("report = %+v", rep)
			}
		})
	}
}

func TestHistoryCleanupJob_NilReporter(t *testing.T) {
	job := tasks.HistoryCleanupJob(fakeHistory{removed: 1}, nil, zap.NewNop())
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestAuditRetentionJob(t *testing.T) {
	p := &fakePruner{}
	job := tasks.AuditRetentionJob(p, 90*24*time.Hour, zap.NewNop())

	before := time.Now()
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := before.Add(-90 * 24 * time.Hour)
	if d := p.cutoff.Sub(want); d < 0 || d > time.Minute {
		t.Errorf("cutoff = %v, want about %v", p.cutoff, want)
	}
}

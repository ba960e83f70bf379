package lockout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T) (*Gate, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	g, err := New(NewMemoryStore(), Config{Threshold: 5, Cooldown: 15 * time.Minute}, zap.NewNop(), WithClock(clk.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g, clk
}

func TestNew_Defaults(t *testing.T) {
	g, err := New(NewMemoryStore(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Config().Threshold != DefaultThreshold || g.Config().Cooldown != DefaultCooldown {
		t.Errorf("Config() = %+v, want defaults", g.Config())
	}
	if _, err := New(nil, Config{}, nil); err == nil {
		t.Error("New(nil store) should fail")
	}
}

func TestGate_ThresholdAndCooldown(t *testing.T) {
	g, clk := newTestGate(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		d, err := g.CheckAndConsumeAttempt(ctx, "u1", false)
		if err != nil {
			t.Fatal(err)
		}
		if d.Outcome != OutcomeInvalidCredential {
			t.Fatalf("failure %d: Outcome = %v, want invalid_credential", i, d.Outcome)
		}
		if d.RemainingAttempts != 5-i {
			t.Errorf("failure %d: RemainingAttempts = %d, want %d", i, d.RemainingAttempts, 5-i)
		}
	}

	d, _ := g.CheckAndConsumeAttempt(ctx, "u1", false)
	if !d.Locked() || !d.Triggered {
		t.Fatalf("5th failure = %+v, want triggered lock", d)
	}
	wantUntil := clk.Now().Add(15 * time.Minute)
	if !d.LockedUntil.Equal(wantUntil) {
		t.Errorf("LockedUntil = %v, want %v", d.LockedUntil, wantUntil)
	}

	// Correct credential during the cooldown is still rejected.
	clk.Advance(14*time.Minute + 59*time.Second)
	d, _ = g.CheckAndConsumeAttempt(ctx, "u1", true)
	if !d.Locked() || d.Triggered {
		t.Errorf("attempt during cooldown = %+v, want locked (not triggered)", d)
	}

	// At expiry the account reopens and the credential is evaluated.
	clk.Advance(time.Second)
	d, _ = g.CheckAndConsumeAttempt(ctx, "u1", true)
	if d.Outcome != OutcomeAllowed {
		t.Fatalf("attempt at expiry = %+v, want allowed", d)
	}
	st, _ := g.Status(ctx, "u1")
	if st.Locked || st.FailedAttempts != 0 || st.RemainingAttempts != 5 {
		t.Errorf("Status() after reopen = %+v", st)
	}
}

func TestGate_ExpiredLockResetsCounterOnFailure(t *testing.T) {
	g, clk := newTestGate(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		g.CheckAndConsumeAttempt(ctx, "u1", false)
	}
	clk.Advance(16 * time.Minute)

	d, _ := g.CheckAndConsumeAttempt(ctx, "u1", false)
	if d.Outcome != OutcomeInvalidCredential || d.RemainingAttempts != 4 {
		t.Errorf("first failure after expiry = %+v, want invalid with 4 remaining", d)
	}
}

func TestGate_SuccessClearsCounter(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		g.CheckAndConsumeAttempt(ctx, "u1", false)
	}
	if d, _ := g.CheckAndConsumeAttempt(ctx, "u1", true); d.Outcome != OutcomeAllowed {
		t.Fatalf("success = %+v", d)
	}
	for i := 0; i < 4; i++ {
		d, _ := g.CheckAndConsumeAttempt(ctx, "u1", false)
		if d.Locked() {
			t.Fatalf("failure %d after success locked the account; counter was not reset", i+1)
		}
	}
}

func TestGate_UsersAreIndependent(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		g.CheckAndConsumeAttempt(ctx, "u1", false)
	}
	d, _ := g.Allow(ctx, "u2")
	if d.Locked() || d.RemainingAttempts != 5 {
		t.Errorf("Allow(u2) = %+v, want open with 5 remaining", d)
	}
}

func TestGate_Attempt(t *testing.T) {
	g, clk := newTestGate(t)
	ctx := context.Background()

	calls := 0
	wrong := func() (bool, error) { calls++; return false, nil }
	right := func() (bool, error) { calls++; return true, nil }

	for i := 0; i < 5; i++ {
		g.Attempt(ctx, "u1", wrong)
	}
	if calls != 5 {
		t.Fatalf("verify calls = %d, want 5", calls)
	}

	d, err := g.Attempt(ctx, "u1", right)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Locked() {
		t.Errorf("Attempt() while locked = %+v", d)
	}
	if calls != 5 {
		t.Error("verify must not run while the account is locked")
	}

	clk.Advance(15 * time.Minute)
	d, _ = g.Attempt(ctx, "u1", right)
	if d.Outcome != OutcomeAllowed || calls != 6 {
		t.Errorf("Attempt() after cooldown = %+v (calls %d)", d, calls)
	}
}

func TestGate_AttemptVerifyError(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	boom := errors.New("hash failure")

	_, err := g.Attempt(ctx, "u1", func() (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Attempt() error = %v, want %v", err, boom)
	}
	st, _ := g.Status(ctx, "u1")
	if st.FailedAttempts != 0 {
		t.Error("a verify error must not count as a failure")
	}
}

func TestGate_Unlock(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		g.CheckAndConsumeAttempt(ctx, "u1", false)
	}
	if err := g.Unlock(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	st, _ := g.Status(ctx, "u1")
	if st.Locked || st.FailedAttempts != 0 {
		t.Errorf("Status() after Unlock = %+v", st)
	}
	if d, _ := g.CheckAndConsumeAttempt(ctx, "u1", true); d.Outcome != OutcomeAllowed {
		t.Errorf("login after Unlock = %+v", d)
	}
}

func TestGate_UnlockAll(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c"} {
		for i := 0; i < 5; i++ {
			g.CheckAndConsumeAttempt(ctx, u, false)
		}
	}
	g.CheckAndConsumeAttempt(ctx, "d", false) // failing but not locked

	locked, _ := g.ListLocked(ctx)
	if len(locked) != 3 || locked[0].UserID != "a" {
		t.Fatalf("ListLocked() = %+v, want a, b, c", locked)
	}

	n, err := g.UnlockAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("UnlockAll() = %d, want 3", n)
	}
	for _, u := range []string{"a", "b", "c"} {
		if st, _ := g.Status(ctx, u); st.Locked {
			t.Errorf("%s still locked", u)
		}
	}
	if st, _ := g.Status(ctx, "d"); st.FailedAttempts != 1 {
		t.Errorf("UnlockAll touched an unlocked account: %+v", st)
	}
}

func TestGate_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	var mu sync.Mutex
	triggered := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.CheckAndConsumeAttempt(ctx, "u1", false)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Triggered {
				mu.Lock()
				triggered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if triggered != 1 {
		t.Errorf("lock triggered %d times, want 1", triggered)
	}
	st, _ := g.Status(ctx, "u1")
	if !st.Locked || st.FailedAttempts != 5 {
		t.Errorf("Status() = %+v, want locked with 5 failures", st)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{OutcomeAllowed, "allowed"},
		{OutcomeInvalidCredential, "invalid_credential"},
		{OutcomeLocked, "locked"},
		{Outcome(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}

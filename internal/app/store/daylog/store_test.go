package daylog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/envelope"
	"go.uber.org/zap"
)

type rec struct {
	ID   string `bson:"id"`
	Note string `bson:"note"`
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStore(t *testing.T, partitionCap int) (*Store[rec], *clock, string) {
	t.Helper()
	key, err := envelope.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := envelope.NewAEAD(key, []byte("test"))
	if err != nil {
		t.Fatal(err)
	}
	clk := &clock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()
	s, err := New[rec](Config{
		Dir:    dir,
		Prefix: "test-log",
		Cap:    partitionCap,
		Cipher: c,
		Now:    clk.Now,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, clk, dir
}

func TestNew_RequiresCipher(t *testing.T) {
	_, err := New[rec](Config{Dir: t.TempDir()}, zap.NewNop())
	if err == nil {
		t.Error("New() without cipher should fail")
	}
}

func TestLoad_MissingPartitionIsEmpty(t *testing.T) {
	s, _, _ := newTestStore(t, 10)

	got, err := s.Load(s.Today())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() = %d records, want 0", len(got))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	want := []rec{{ID: "a", Note: "first"}, {ID: "b", Note: "second"}}

	if err := s.Save(day, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(day)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load() = %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSave_FileIsEncrypted(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	if err := s.Save(day, []rec{{ID: "x", Note: "plaintext-marker"}}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(s.Path(day))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("plaintext-marker")) {
		t.Error("partition file should not contain plaintext records")
	}
}

func TestPath_Deterministic(t *testing.T) {
	s, _, dir := newTestStore(t, 10)
	day := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
	want := filepath.Join(dir, "test-log-2026-01-02.sealed")
	if got := s.Path(day); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestLoad_CorruptPartition(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	if err := s.Save(day, []rec{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}

	path := s.Path(day)
	raw, _ := os.ReadFile(path)
	raw[len(raw)-5] ^= 0xff
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load(day)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
}

func TestLoad_GarbageFile(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	if err := os.WriteFile(s.Path(day), []byte("not a partition"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(day); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
}

func TestLoad_WrongKey(t *testing.T) {
	s, clk, dir := newTestStore(t, 10)
	if err := s.Save(s.Today(), []rec{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}

	key, _ := envelope.GenerateKey()
	other, _ := envelope.NewAEAD(key, []byte("test"))
	s2, err := New[rec](Config{Dir: dir, Prefix: "test-log", Cipher: other, Now: clk.Now}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Load(s2.Today()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() with another key error = %v, want ErrCorrupt", err)
	}
}

func TestAppendOne_PreservesOrder(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	for i := 0; i < 5; i++ {
		if err := s.AppendOne(day, rec{ID: fmt.Sprint(i)}); err != nil {
			t.Fatalf("AppendOne() error = %v", err)
		}
	}

	got, _ := s.Load(day)
	if len(got) != 5 {
		t.Fatalf("Load() = %d records, want 5", len(got))
	}
	for i, r := range got {
		if r.ID != fmt.Sprint(i) {
			t.Errorf("record %d ID = %q, want %q", i, r.ID, fmt.Sprint(i))
		}
	}
}

func TestAppendOne_EvictsOldestAtCap(t *testing.T) {
	s, _, _ := newTestStore(t, DefaultCap)
	day := s.Today()

	records := make([]rec, DefaultCap)
	for i := range records {
		records[i] = rec{ID: fmt.Sprint(i)}
	}
	if err := s.Save(day, records); err != nil {
		t.Fatal(err)
	}

	if err := s.AppendOne(day, rec{ID: "newest"}); err != nil {
		t.Fatalf("AppendOne() error = %v", err)
	}

	got, _ := s.Load(day)
	if len(got) != DefaultCap {
		t.Fatalf("partition length = %d, want %d", len(got), DefaultCap)
	}
	if got[0].ID != "1" {
		t.Errorf("first record = %q, want %q (oldest evicted)", got[0].ID, "1")
	}
	if got[len(got)-1].ID != "newest" {
		t.Errorf("last record = %q, want newest", got[len(got)-1].ID)
	}
	for _, r := range got {
		if r.ID == "0" {
			t.Error("oldest record should have been evicted")
		}
	}
}

func TestAppendOne_Concurrent(t *testing.T) {
	s, _, _ := newTestStore(t, 1000)
	day := s.Today()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.AppendOne(day, rec{ID: fmt.Sprint(i)}); err != nil {
				t.Errorf("AppendOne() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Load(day)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != writers {
		t.Errorf("partition has %d records, want %d (lost update)", len(got), writers)
	}
}

func TestAppendOne_CorruptPartitionFails(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	day := s.Today()
	if err := os.WriteFile(s.Path(day), []byte("junk"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := s.AppendOne(day, rec{ID: "a"})
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("AppendOne() error = %v, want ErrCorrupt", err)
	}

	// The corrupt file must not be replaced by a partition holding only the new record.
	raw, _ := os.ReadFile(s.Path(day))
	if string(raw) != "junk" {
		t.Error("AppendOne() overwrote a corrupt partition")
	}
}

func TestUpdateMatching(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	dates := s.Dates(2)
	today, yesterday := dates[0], dates[1]

	if err := s.Save(yesterday, []rec{{ID: "y1"}, {ID: "target"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(today, []rec{{ID: "t1"}}); err != nil {
		t.Fatal(err)
	}

	found, err := s.UpdateMatching(dates,
		func(r rec) bool { return r.ID == "target" },
		func(r *rec) { r.Note = "closed" })
	if err != nil {
		t.Fatalf("UpdateMatching() error = %v", err)
	}
	if !found {
		t.Fatal("UpdateMatching() found = false, want true")
	}

	got, _ := s.Load(yesterday)
	if got[1].Note != "closed" {
		t.Errorf("target note = %q, want closed", got[1].Note)
	}
	todayRecs, _ := s.Load(today)
	if len(todayRecs) != 1 || todayRecs[0].Note != "" {
		t.Error("today's partition should be untouched")
	}
}

func TestUpdateMatching_FirstMatchWins(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	dates := s.Dates(2)
	if err := s.Save(dates[0], []rec{{ID: "dup"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(dates[1], []rec{{ID: "dup"}}); err != nil {
		t.Fatal(err)
	}

	n := 0
	found, err := s.UpdateMatching(dates,
		func(r rec) bool { return r.ID == "dup" },
		func(r *rec) { n++; r.Note = "hit" })
	if err != nil || !found {
		t.Fatalf("UpdateMatching() = %v, %v", found, err)
	}
	if n != 1 {
		t.Errorf("mutate called %d times, want 1", n)
	}
	older, _ := s.Load(dates[1])
	if older[0].Note != "" {
		t.Error("older partition should not be touched once a match is found")
	}
}

func TestUpdateMatching_NotFound(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	found, err := s.UpdateMatching(s.Dates(2),
		func(r rec) bool { return r.ID == "missing" },
		func(r *rec) { t.Error("mutate should not be called") })
	if err != nil {
		t.Fatalf("UpdateMatching() error = %v", err)
	}
	if found {
		t.Error("UpdateMatching() found = true for missing record")
	}
	if _, err := os.Stat(s.Path(s.Today())); !os.IsNotExist(err) {
		t.Error("UpdateMatching() should not create partitions")
	}
}

func TestDates(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	got := s.Dates(3)
	want := []string{"2026-03-14", "2026-03-13", "2026-03-12"}
	if len(got) != len(want) {
		t.Fatalf("Dates(3) len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if k := s.DayKey(got[i]); k != want[i] {
			t.Errorf("Dates(3)[%d] = %s, want %s", i, k, want[i])
		}
	}
	if len(s.Dates(0)) != 0 {
		t.Error("Dates(0) should be empty")
	}
}

func TestDayKey_Location(t *testing.T) {
	key, _ := envelope.GenerateKey()
	c, _ := envelope.NewAEAD(key, nil)
	loc := time.FixedZone("UTC+7", 7*3600)
	s, err := New[rec](Config{Dir: t.TempDir(), Cipher: c, Location: loc}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	// 20:00 UTC is already the next day at UTC+7.
	instant := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	if got := s.DayKey(instant); got != "2026-05-02" {
		t.Errorf("DayKey() = %s, want 2026-05-02", got)
	}
}

func TestListDateRange(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	dates := s.Dates(3)
	if err := s.Save(dates[0], []rec{{ID: "today"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(dates[2], []rec{{ID: "two-days-ago"}}); err != nil {
		t.Fatal(err)
	}

	parts, err := s.ListDateRange(3)
	if err != nil {
		t.Fatalf("ListDateRange() error = %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("ListDateRange() = %d partitions, want 3", len(parts))
	}
	if parts[0].Day != "2026-03-14" || parts[0].Records[0].ID != "today" {
		t.Errorf("first partition = %+v, want today", parts[0])
	}
	if len(parts[1].Records) != 0 {
		t.Errorf("missing day should be empty, got %d records", len(parts[1].Records))
	}
	if parts[2].Records[0].ID != "two-days-ago" {
		t.Errorf("last partition = %+v", parts[2])
	}
}

func TestListDateRange_SkipsCorruptDay(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	dates := s.Dates(2)
	if err := s.Save(dates[0], []rec{{ID: "ok"}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(dates[1]), []byte("junk"), 0o600); err != nil {
		t.Fatal(err)
	}

	parts, err := s.ListDateRange(2)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("ListDateRange() error = %v, want ErrCorrupt", err)
	}
	if len(parts) != 1 || parts[0].Records[0].ID != "ok" {
		t.Errorf("ListDateRange() = %+v, want only the readable day", parts)
	}
}

func TestCleanup(t *testing.T) {
	s, _, dir := newTestStore(t, 10)
	today := s.Today()
	keepRecent := s.addDays(today, -29)
	keepEdge := s.addDays(today, -30)
	drop := s.addDays(today, -31)

	for _, d := range []time.Time{today, keepRecent, keepEdge, drop} {
		if err := s.Save(d, []rec{{ID: s.DayKey(d)}}); err != nil {
			t.Fatal(err)
		}
	}
	unrelated := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(unrelated, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed = %d, want 1", removed)
	}

	if _, err := os.Stat(s.Path(drop)); !os.IsNotExist(err) {
		t.Error("partition dated today-31 should be removed")
	}
	if _, err := os.Stat(s.Path(drop) + ".lock"); err != nil {
		t.Errorf("lock sidecar should outlive its partition: %v", err)
	}
	for _, d := range []time.Time{today, keepRecent, keepEdge} {
		if _, err := os.Stat(s.Path(d)); err != nil {
			t.Errorf("partition %s should be kept", s.DayKey(d))
		}
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("Cleanup() must not touch unrelated files")
	}
}

func TestCleanup_RemovesStaleTemps(t *testing.T) {
	s, clk, dir := newTestStore(t, 10)
	tmp := filepath.Join(dir, "test-log-2026-03-14.sealed.tmp-42")
	if err := os.WriteFile(tmp, []byte("half"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := clk.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(tmp, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Cleanup(30); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("stale temp file should be removed")
	}
}

func TestToday_FollowsClock(t *testing.T) {
	s, clk, _ := newTestStore(t, 10)
	clk.Set(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	if got := s.DayKey(s.Today()); got != "2026-12-31" {
		t.Errorf("Today() = %s, want 2026-12-31", got)
	}
	clk.Set(time.Date(2027, 1, 1, 0, 0, 1, 0, time.UTC))
	if got := s.DayKey(s.Today()); got != "2027-01-01" {
		t.Errorf("Today() = %s, want 2027-01-01", got)
	}
}

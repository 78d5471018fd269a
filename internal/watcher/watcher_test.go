package watcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/store"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls int
	err   error
	out   []journal.ExpiredLock
}

func (f *fakeExpirer) ExpireStaleLocks(context.Context) ([]journal.ExpiredLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

func (f *fakeExpirer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_NilExpirer(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	w, err := New(&fakeExpirer{}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.opts.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", w.opts.Interval, DefaultInterval)
	}
}

func TestStart_FailsWhenExpiryUnsupported(t *testing.T) {
	exp := &fakeExpirer{err: journal.ErrExpiryNotSupported}
	w, err := New(exp, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = w.Start(context.Background())
	if !errors.Is(err, journal.ErrExpiryNotSupported) {
		t.Errorf("Start() error = %v, want ErrExpiryNotSupported", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() after failed Start error = %v", err)
	}
}

func TestStart_SweepsOnInterval(t *testing.T) {
	exp := &fakeExpirer{}
	w, err := New(exp, Options{Interval: 20 * time.Millisecond, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if exp.Calls() < 1 {
		t.Error("Start() did not sweep immediately")
	}

	waitFor(t, func() bool { return exp.Calls() >= 3 })

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	calls := exp.Calls()
	time.Sleep(60 * time.Millisecond)
	if exp.Calls() != calls {
		t.Error("sweeps continued after Stop()")
	}
}

func TestStop_BeforeStartAndTwice(t *testing.T) {
	w, err := New(&fakeExpirer{}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v, want nil", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
}

func TestSweep_LogsExpiredLocks(t *testing.T) {
	var logs bytes.Buffer
	exp := &fakeExpirer{out: []journal.ExpiredLock{{Reason: journal.ReasonMaxAge}}}
	w, err := New(exp, Options{Logger: zerolog.New(&logs)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	expired, err := w.Sweep(context.Background())
	if err != nil || len(expired) != 1 {
		t.Fatalf("Sweep() = %v, %v", expired, err)
	}
	if !strings.Contains(logs.String(), `"expired":1`) {
		t.Errorf("sweep result not logged:\n%s", logs.String())
	}
	if w.Sweeps() != 1 {
		t.Errorf("Sweeps() = %d, want 1", w.Sweeps())
	}
}

func TestWatcher_JournalWriteTriggersSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in short mode")
	}

	path := filepath.Join(t.TempDir(), "journal.json")
	exp := &fakeExpirer{}
	w, err := New(exp, Options{Interval: time.Hour, JournalPath: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	waitFor(t, func() bool { return exp.Calls() >= 2 })
}

func TestWatcher_WALWriteTriggersSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in short mode")
	}

	path := filepath.Join(t.TempDir(), "journal.db")
	exp := &fakeExpirer{}
	w, err := New(exp, Options{Interval: time.Hour, JournalPath: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path+"-wal", []byte("wal"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	waitFor(t, func() bool { return exp.Calls() >= 2 })
}

func TestIsJournalFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"journal.db", true},
		{"journal.db-wal", true},
		{"journal.db-shm", false},
		{"journal.db.lock", false},
		{"other.db-wal", false},
	}
	for _, tt := range tests {
		if got := isJournalFile(tt.name, "journal.db"); got != tt.want {
			t.Errorf("isJournalFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestWatcher_ReclaimsAbandonedLock runs the watcher against a real journal:
// a lock whose owner has exited is released by the first sweep.
func TestWatcher_ReclaimsAbandonedLock(t *testing.T) {
	ctx := context.Background()
	f, err := store.NewFactory(store.Options{Path: filepath.Join(t.TempDir(), "journal.json")})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	pkg := journal.PackageIdentity{PackageID: "Acme.Web", Version: "1.0.0"}
	owner := journal.Owner{PID: 999999, Hostname: "tentacle-01"}

	crashed := journal.New(f, zerolog.Nop(), journal.WithOwner(owner))
	crashed.RegisterPackageUse(ctx, pkg, "ServerTasks-1")

	j := journal.New(f, zerolog.Nop(),
		journal.WithOwner(journal.Owner{PID: os.Getpid(), Hostname: "tentacle-01"}),
		journal.WithLiveness(func(pid int) bool { return pid != owner.PID }),
		journal.WithExpiryPolicy(journal.ExpiryPolicy{CheckLiveness: true}),
	)
	w, err := New(j, Options{Interval: time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if j.HasLock(ctx, pkg) {
		t.Error("abandoned lock survived the startup sweep")
	}
}

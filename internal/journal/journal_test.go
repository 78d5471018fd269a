package journal_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/store"
)

var (
	webPkg = journal.PackageIdentity{PackageID: "Acme.Web", Version: "1.0.0"}
	apiPkg = journal.PackageIdentity{PackageID: "Acme.Api", Version: "2.1.0"}
)

func newFactory(t *testing.T, backend store.Backend) *store.Factory {
	t.Helper()
	ext := ".json"
	if backend == store.BackendSQLite {
		ext = ".db"
	}
	f, err := store.NewFactory(store.Options{
		Backend:     backend,
		Path:        filepath.Join(t.TempDir(), "journal"+ext),
		LockTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFactory() failed: %v", err)
	}
	return f
}

func newJournal(t *testing.T, f journal.RepositoryFactory, opts ...journal.Option) (*journal.Journal, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	return journal.New(f, logger, opts...), &buf
}

func eachBackend(t *testing.T, fn func(t *testing.T, f *store.Factory)) {
	for _, b := range []store.Backend{store.BackendJSON, store.BackendSQLite} {
		t.Run(string(b), func(t *testing.T) {
			fn(t, newFactory(t, b))
		})
	}
}

func TestJournal_RegisterTakesLockAndRecordsUsage(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, _ := newJournal(t, f)

		if j.HasLock(ctx, webPkg) {
			t.Fatal("unknown package reported locked")
		}
		if got := j.GetUsage(ctx, webPkg); len(got) != 0 {
			t.Fatalf("unknown package has usage %v", got)
		}

		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")

		if !j.HasLock(ctx, webPkg) {
			t.Error("HasLock() = false after register")
		}
		if got := j.GetUsage(ctx, webPkg); len(got) != 1 {
			t.Errorf("usage count = %d, want 1", len(got))
		}
		if j.HasLock(ctx, apiPkg) {
			t.Error("registering one package locked another")
		}
	})
}

func TestJournal_RepeatedRegisterIsOneLock(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, _ := newJournal(t, f)

		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")

		entry, found, err := j.Lookup(ctx, webPkg)
		if err != nil || !found {
			t.Fatalf("Lookup() = %v, %v", found, err)
		}
		if entry.Locks.Count() != 1 {
			t.Errorf("lock count = %d, want 1", entry.Locks.Count())
		}
		if entry.Usage.Count() != 2 {
			t.Errorf("usage count = %d, want 2", entry.Usage.Count())
		}

		j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")
		if j.HasLock(ctx, webPkg) {
			t.Error("a single deregister should release a repeated registration")
		}
	})
}

func TestJournal_LockedUntilLastTaskDeregisters(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, _ := newJournal(t, f)

		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-2")

		j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")
		if !j.HasLock(ctx, webPkg) {
			t.Error("package unlocked while ServerTasks-2 still holds it")
		}

		j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-2")
		if j.HasLock(ctx, webPkg) {
			t.Error("package still locked after every task deregistered")
		}

		if got := j.GetUsage(ctx, webPkg); len(got) != 2 {
			t.Errorf("usage count = %d after deregistering, want 2", len(got))
		}
	})
}

func TestJournal_DeregisterUnknownIsNoop(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, logs := newJournal(t, f)

		j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")

		entries, err := j.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries() failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("deregistering an unknown package created %d entries", len(entries))
		}

		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
		j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-9")
		if !j.HasLock(ctx, webPkg) {
			t.Error("deregistering an unknown task released another task's lock")
		}

		if strings.Contains(logs.String(), `"level":"error"`) {
			t.Errorf("no-op deregistration logged an error:\n%s", logs)
		}
	})
}

func TestJournal_StateVisibleAcrossInstances(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		first, _ := newJournal(t, f)
		second, _ := newJournal(t, f)

		first.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
		if !second.HasLock(ctx, webPkg) {
			t.Error("lock taken by one instance not visible to another")
		}

		second.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")
		if first.HasLock(ctx, webPkg) {
			t.Error("release by one instance not visible to another")
		}
	})
}

func TestJournal_RecordsOwnerOnLock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	j, _ := newJournal(t, newFactory(t, store.BackendJSON),
		journal.WithClock(func() time.Time { return fixed }),
		journal.WithOwner(journal.Owner{PID: 4242, Hostname: "tentacle-01"}),
	)

	j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")

	entry, _, err := j.Lookup(ctx, webPkg)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	lock, ok := entry.Locks.Get("ServerTasks-1")
	if !ok {
		t.Fatal("lock missing")
	}
	if lock.PID != 4242 || lock.Hostname != "tentacle-01" || !lock.AcquiredAt.Equal(fixed) {
		t.Errorf("lock = %+v", lock)
	}
	if usage := j.GetUsage(ctx, webPkg); len(usage) != 1 || !usage[0].Equal(fixed) {
		t.Errorf("usage = %v, want [%v]", usage, fixed)
	}
}

func TestJournal_RegisterPackageUseByName(t *testing.T) {
	ctx := context.Background()
	j, logs := newJournal(t, newFactory(t, store.BackendJSON))

	j.RegisterPackageUseByName(ctx, " Acme.Web ", "1.0.0", "ServerTasks-1")
	if !j.HasLock(ctx, webPkg) {
		t.Error("RegisterPackageUseByName did not lock the trimmed identity")
	}

	j.RegisterPackageUseByName(ctx, "Acme.Web", "", "ServerTasks-1")
	j.RegisterPackageUseByName(ctx, "Acme.Web", "1.0.0", " ")
	if got := strings.Count(logs.String(), "package retention journal operation failed"); got != 2 {
		t.Errorf("logged %d failures for invalid inputs, want 2:\n%s", got, logs)
	}
}

func TestJournal_ConcurrentRegistrationsAreNotLost(t *testing.T) {
	const tasks = 16
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		setup, _ := newJournal(t, f)
		if _, err := setup.Entries(ctx); err != nil {
			t.Fatalf("Entries() failed: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < tasks; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Each task runs with its own journal, like separate processes.
				j, _ := newJournal(t, f)
				j.RegisterPackageUse(ctx, webPkg, journal.ServerTaskID(fmt.Sprintf("ServerTasks-%d", i)))
			}(i)
		}
		wg.Wait()

		j, _ := newJournal(t, f)
		entry, found, err := j.Lookup(ctx, webPkg)
		if err != nil || !found {
			t.Fatalf("Lookup() = %v, %v", found, err)
		}
		if entry.Locks.Count() != tasks {
			t.Errorf("lock count = %d, want %d", entry.Locks.Count(), tasks)
		}
		if entry.Usage.Count() != tasks {
			t.Errorf("usage count = %d, want %d", entry.Usage.Count(), tasks)
		}
	})
}

// brokenFactory fails every attempt to open the store.
type brokenFactory struct{ err error }

func (b brokenFactory) CreateJournalRepository() (journal.Repository, error) {
	return nil, b.err
}

func TestJournal_FailuresAreContained(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("disk on fire")
	j, logs := newJournal(t, brokenFactory{err: storeErr})

	j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
	j.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")

	if !j.HasLock(ctx, webPkg) {
		t.Error("HasLock() must report locked when the journal cannot be read")
	}
	if got := j.GetUsage(ctx, webPkg); got == nil || len(got) != 0 {
		t.Errorf("GetUsage() = %#v, want empty non-nil slice", got)
	}

	if _, _, err := j.Lookup(ctx, webPkg); !errors.Is(err, storeErr) {
		t.Errorf("Lookup() error = %v, want %v", err, storeErr)
	}
	if _, err := j.Entries(ctx); !errors.Is(err, storeErr) {
		t.Errorf("Entries() error = %v, want %v", err, storeErr)
	}

	out := logs.String()
	for _, op := range []string{`"op":"register"`, `"op":"deregister"`, `"op":"has-lock"`, `"op":"get-usage"`} {
		if !strings.Contains(out, op) {
			t.Errorf("log missing %s:\n%s", op, out)
		}
	}
	if !strings.Contains(out, `"package":"Acme.Web"`) || !strings.Contains(out, "disk on fire") {
		t.Errorf("failure log lacks package or cause:\n%s", out)
	}
}

// failingRepo loads fine but refuses to commit.
type failingRepo struct {
	journal.Repository
	err error
}

func (r failingRepo) Update(ctx context.Context, fn func(journal.Transaction) (bool, error)) error {
	return r.Repository.Update(ctx, func(tx journal.Transaction) (bool, error) {
		if _, err := fn(tx); err != nil {
			return false, err
		}
		return false, r.err
	})
}

type failingFactory struct {
	inner journal.RepositoryFactory
	err   error
}

func (f failingFactory) CreateJournalRepository() (journal.Repository, error) {
	repo, err := f.inner.CreateJournalRepository()
	if err != nil {
		return nil, err
	}
	return failingRepo{Repository: repo, err: f.err}, nil
}

func TestJournal_FailedCommitLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	base := newFactory(t, store.BackendJSON)
	good, _ := newJournal(t, base)
	good.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")

	bad, logs := newJournal(t, failingFactory{inner: base, err: errors.New("write failed")})
	bad.RegisterPackageUse(ctx, webPkg, "ServerTasks-2")
	bad.DeregisterPackageUse(ctx, webPkg, "ServerTasks-1")

	entry, _, err := good.Lookup(ctx, webPkg)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if _, ok := entry.Locks.Get("ServerTasks-1"); !ok || entry.Locks.Count() != 1 {
		t.Errorf("locks after failed commits = %+v, want only ServerTasks-1", entry.Locks.All())
	}
	if entry.Usage.Count() != 1 {
		t.Errorf("usage count = %d, want 1", entry.Usage.Count())
	}
	if strings.Count(logs.String(), "write failed") != 2 {
		t.Errorf("expected both failures logged:\n%s", logs)
	}
}

func TestJournal_NormalizesPaddedInput(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, _ := newJournal(t, f)
		padded := journal.PackageIdentity{PackageID: " Acme.Web ", Version: "1.0.0 "}

		j.RegisterPackageUse(ctx, padded, " ServerTasks-1 ")

		if !j.HasLock(ctx, padded) || !j.HasLock(ctx, webPkg) {
			t.Error("padded and trimmed identities should name the same locked package")
		}
		if got := j.GetUsage(ctx, webPkg); len(got) != 1 {
			t.Errorf("usage count = %d, want 1", len(got))
		}

		// The same package and task, written differently, stay one entry.
		j.RegisterPackageUse(ctx, webPkg, "ServerTasks-1")
		entries, err := j.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries() failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Locks.Count() != 1 {
			t.Fatalf("entries = %+v, want one entry with one lock", entries)
		}

		j.DeregisterPackageUse(ctx, padded, "ServerTasks-1 ")
		if j.HasLock(ctx, webPkg) {
			t.Error("deregister with padded input did not release the lock")
		}
	})
}

func TestJournal_InvalidInputIsContained(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *store.Factory) {
		ctx := context.Background()
		j, logs := newJournal(t, f)
		blank := journal.PackageIdentity{PackageID: " ", Version: "1.0.0"}

		j.RegisterPackageUse(ctx, webPkg, "  ")
		j.RegisterPackageUse(ctx, blank, "ServerTasks-1")
		j.DeregisterPackageUse(ctx, blank, "ServerTasks-1")

		if j.HasLock(ctx, webPkg) {
			t.Error("blank task should not take a lock")
		}
		if j.HasLock(ctx, blank) {
			t.Error("blank identity should never be locked")
		}
		if got := j.GetUsage(ctx, blank); got == nil || len(got) != 0 {
			t.Errorf("GetUsage(blank) = %v, want empty slice", got)
		}
		if _, _, err := j.Lookup(ctx, blank); !errors.Is(err, journal.ErrInvalidIdentity) {
			t.Errorf("Lookup(blank) error = %v, want ErrInvalidIdentity", err)
		}
		if !strings.Contains(logs.String(), "package retention journal operation failed") {
			t.Errorf("invalid input not logged:\n%s", logs.String())
		}

		// The journal must still load and accept valid work afterwards.
		j.RegisterPackageUse(ctx, apiPkg, "ServerTasks-2")
		if !j.HasLock(ctx, apiPkg) {
			t.Error("journal unusable after invalid input")
		}
		entries, err := j.Entries(ctx)
		if err != nil {
			t.Fatalf("Entries() failed: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("entries = %d, want 1", len(entries))
		}
	})
}

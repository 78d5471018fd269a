// Package journal tracks which cached packages are in use by which deployment
// tasks, so that a cleanup pass can tell which package files are safe to
// delete.
//
// Every deployment step runs as its own short-lived process. A step that
// consumes a package registers a lock before it runs and deregisters it when
// it finishes; the journal persists those locks, plus a usage history, across
// processes. Bookkeeping failures never fail a deployment: the Journal logs
// and swallows errors from RegisterPackageUse and DeregisterPackageUse.
package journal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgretain/internal/process"
)

// Journal is the façade other subsystems call.
type Journal struct {
	factory RepositoryFactory
	log     zerolog.Logger
	now     func() time.Time
	policy  ExpiryPolicy
	alive   func(pid int) bool
	owner   Owner
}

// Owner identifies the process recorded on locks taken by this journal.
type Owner struct {
	PID      int
	Hostname string
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithExpiryPolicy sets the stale-lock policy used by ExpireStaleLocks.
func WithExpiryPolicy(p ExpiryPolicy) Option {
	return func(j *Journal) { j.policy = p }
}

// WithOwner sets the process recorded as owner of new locks. The default is
// the current process.
func WithOwner(o Owner) Option {
	return func(j *Journal) { j.owner = o }
}

// WithLiveness overrides the process liveness check.
func WithLiveness(alive func(pid int) bool) Option {
	return func(j *Journal) { j.alive = alive }
}

// New creates a Journal backed by repositories from factory.
func New(factory RepositoryFactory, logger zerolog.Logger, opts ...Option) *Journal {
	j := &Journal{
		factory: factory,
		log:     logger,
		now:     time.Now,
		alive:   process.Alive,
		owner:   Owner{PID: os.Getpid(), Hostname: process.Hostname()},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RegisterPackageUse records a use of pkg by task and takes (or refreshes)
// the task's lock. Failures are logged, never returned.
func (j *Journal) RegisterPackageUse(ctx context.Context, pkg PackageIdentity, task ServerTaskID) {
	norm, id, err := normalize(pkg, task)
	if err != nil {
		j.contain("register", pkg, task, err)
		return
	}
	j.contain("register", norm, id, j.registerPackageUse(ctx, norm, id))
}

// RegisterPackageUseByName is RegisterPackageUse for raw string inputs.
func (j *Journal) RegisterPackageUseByName(ctx context.Context, packageID, version, task string) {
	j.RegisterPackageUse(ctx, PackageIdentity{PackageID: packageID, Version: version}, ServerTaskID(task))
}

// DeregisterPackageUse releases the task's lock on pkg. Unknown packages and
// tasks are a no-op. Failures are logged, never returned.
func (j *Journal) DeregisterPackageUse(ctx context.Context, pkg PackageIdentity, task ServerTaskID) {
	norm, id, err := normalize(pkg, task)
	if err != nil {
		j.contain("deregister", pkg, task, err)
		return
	}
	j.contain("deregister", norm, id, j.deregisterPackageUse(ctx, norm, id))
}

// HasLock reports whether any task holds a lock on pkg. If the journal cannot
// be read the package is reported as locked, so that it is never treated as
// evictable on missing information. An invalid identity names no package and
// is never locked.
func (j *Journal) HasLock(ctx context.Context, pkg PackageIdentity) bool {
	norm, err := NewPackageIdentity(pkg.PackageID, pkg.Version)
	if err != nil {
		j.contain("has-lock", pkg, "", err)
		return false
	}
	entry, found, err := j.lookup(ctx, norm)
	if err != nil {
		j.contain("has-lock", norm, "", err)
		return true
	}
	return found && entry.Locks.HasLock()
}

// GetUsage returns the usage history of pkg, oldest first. Unknown packages,
// invalid identities and read failures yield an empty slice.
func (j *Journal) GetUsage(ctx context.Context, pkg PackageIdentity) []time.Time {
	norm, err := NewPackageIdentity(pkg.PackageID, pkg.Version)
	if err != nil {
		j.contain("get-usage", pkg, "", err)
		return []time.Time{}
	}
	entry, found, err := j.lookup(ctx, norm)
	if err != nil {
		j.contain("get-usage", norm, "", err)
		return []time.Time{}
	}
	if !found {
		return []time.Time{}
	}
	return entry.Usage.GetUsageDetails()
}

// Lookup returns a copy of the entry for pkg. Unlike HasLock and GetUsage it
// returns read errors to the caller.
func (j *Journal) Lookup(ctx context.Context, pkg PackageIdentity) (*JournalEntry, bool, error) {
	norm, err := NewPackageIdentity(pkg.PackageID, pkg.Version)
	if err != nil {
		return nil, false, err
	}
	return j.lookup(ctx, norm)
}

// Entries returns copies of all entries ordered by identity.
func (j *Journal) Entries(ctx context.Context) ([]*JournalEntry, error) {
	repo, err := j.factory.CreateJournalRepository()
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()

	var entries []*JournalEntry
	err = repo.View(ctx, func(tx Transaction) error {
		for _, e := range tx.Entries() {
			entries = append(entries, e.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Policy returns the configured stale-lock policy.
func (j *Journal) Policy() ExpiryPolicy {
	return j.policy
}

func (j *Journal) registerPackageUse(ctx context.Context, pkg PackageIdentity, task ServerTaskID) error {
	repo, err := j.factory.CreateJournalRepository()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()

	now := j.now()
	err = UpdateEntry(ctx, repo, pkg, func(entry *JournalEntry) bool {
		entry.Usage.AddUsage(now)
		entry.Locks.AddLock(Lock{
			TaskID:     task,
			AcquiredAt: now,
			PID:        j.owner.PID,
			Hostname:   j.owner.Hostname,
		})
		return true
	})
	if err != nil {
		return err
	}

	j.log.Debug().
		Str("package", pkg.PackageID).
		Str("version", pkg.Version).
		Str("task", task.String()).
		Msg("registered package use")
	return nil
}

func (j *Journal) deregisterPackageUse(ctx context.Context, pkg PackageIdentity, task ServerTaskID) error {
	repo, err := j.factory.CreateJournalRepository()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()

	removed := false
	err = repo.Update(ctx, func(tx Transaction) (bool, error) {
		entry, found := tx.TryGetJournalEntry(pkg)
		if !found {
			return false, nil
		}
		removed = entry.Locks.RemoveLock(task)
		return removed, nil
	})
	if err != nil {
		return err
	}

	if removed {
		j.log.Debug().
			Str("package", pkg.PackageID).
			Str("version", pkg.Version).
			Str("task", task.String()).
			Msg("deregistered package use")
	}
	return nil
}

func (j *Journal) lookup(ctx context.Context, pkg PackageIdentity) (*JournalEntry, bool, error) {
	repo, err := j.factory.CreateJournalRepository()
	if err != nil {
		return nil, false, fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()
	return LookupEntry(ctx, repo, pkg)
}

// normalize trims pkg and task the way the stores do on load, so that only
// keys that survive a reload are ever written or looked up.
func normalize(pkg PackageIdentity, task ServerTaskID) (PackageIdentity, ServerTaskID, error) {
	norm, err := NewPackageIdentity(pkg.PackageID, pkg.Version)
	if err != nil {
		return pkg, task, err
	}
	id, err := NewServerTaskID(string(task))
	if err != nil {
		return norm, task, fmt.Errorf("%s: %w", norm, err)
	}
	return norm, id, nil
}

// contain is the single place journal errors stop propagating.
func (j *Journal) contain(op string, pkg PackageIdentity, task ServerTaskID, err error) {
	if err == nil {
		return
	}
	ev := j.log.Error().
		Err(err).
		Str("op", op).
		Str("package", pkg.PackageID).
		Str("version", pkg.Version)
	if task != "" {
		ev = ev.Str("task", task.String())
	}
	ev.Msg("package retention journal operation failed")
}

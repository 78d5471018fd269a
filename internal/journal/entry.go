package journal

import (
	"fmt"
	"sort"
	"time"
)

// PackageUsage is the append-only usage history of a package. Insertion order
// is chronological order.
type PackageUsage struct {
	times []time.Time
}

// NewPackageUsage restores a usage history in the given order.
func NewPackageUsage(times []time.Time) PackageUsage {
	u := PackageUsage{}
	for _, t := range times {
		u.AddUsage(t)
	}
	return u
}

// AddUsage records that the package was used at time at.
func (u *PackageUsage) AddUsage(at time.Time) {
	u.times = append(u.times, at.UTC())
}

// GetUsageDetails returns a copy of the usage timestamps, oldest first.
func (u PackageUsage) GetUsageDetails() []time.Time {
	out := make([]time.Time, len(u.times))
	copy(out, u.times)
	return out
}

// Count returns the number of recorded uses.
func (u PackageUsage) Count() int {
	return len(u.times)
}

// Last returns the most recent usage, if any.
func (u PackageUsage) Last() (time.Time, bool) {
	if len(u.times) == 0 {
		return time.Time{}, false
	}
	return u.times[len(u.times)-1], true
}

// First returns the oldest usage, if any.
func (u PackageUsage) First() (time.Time, bool) {
	if len(u.times) == 0 {
		return time.Time{}, false
	}
	return u.times[0], true
}

// Lock is a task's claim on a package.
type Lock struct {
	TaskID     ServerTaskID
	AcquiredAt time.Time

	// PID and Hostname identify the process that owns the task, used for
	// liveness checks. A zero PID means the owner is unknown.
	PID      int
	Hostname string
}

// PackageLocks is the set of held locks, keyed by task.
type PackageLocks struct {
	locks map[ServerTaskID]Lock
}

// NewPackageLocks restores a lock set. Later duplicates replace earlier ones.
func NewPackageLocks(locks []Lock) PackageLocks {
	l := PackageLocks{}
	for _, lock := range locks {
		l.AddLock(lock)
	}
	return l
}

// AddLock adds or refreshes the lock for lock.TaskID. Adding the same task
// twice leaves a single lock carrying the latest acquisition time and owner.
func (l *PackageLocks) AddLock(lock Lock) {
	if l.locks == nil {
		l.locks = make(map[ServerTaskID]Lock)
	}
	lock.AcquiredAt = lock.AcquiredAt.UTC()
	l.locks[lock.TaskID] = lock
}

// RemoveLock removes the task's lock. It reports whether a lock was removed.
func (l *PackageLocks) RemoveLock(task ServerTaskID) bool {
	if _, ok := l.locks[task]; !ok {
		return false
	}
	delete(l.locks, task)
	return true
}

// HasLock reports whether any task holds a lock.
func (l PackageLocks) HasLock() bool {
	return len(l.locks) > 0
}

// Get returns the lock held by task.
func (l PackageLocks) Get(task ServerTaskID) (Lock, bool) {
	lock, ok := l.locks[task]
	return lock, ok
}

// Count returns the number of held locks.
func (l PackageLocks) Count() int {
	return len(l.locks)
}

// All returns the held locks sorted by task id.
func (l PackageLocks) All() []Lock {
	out := make([]Lock, 0, len(l.locks))
	for _, lock := range l.locks {
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// JournalEntry is the unit of persistence: one package with its usage
// history and held locks.
type JournalEntry struct {
	Package PackageIdentity
	Usage   PackageUsage
	Locks   PackageLocks
}

// NewJournalEntry returns an empty entry for pkg.
func NewJournalEntry(pkg PackageIdentity) *JournalEntry {
	return &JournalEntry{Package: pkg}
}

// Clone returns a deep copy of the entry.
func (e *JournalEntry) Clone() *JournalEntry {
	return &JournalEntry{
		Package: e.Package,
		Usage:   NewPackageUsage(e.Usage.times),
		Locks:   NewPackageLocks(e.Locks.All()),
	}
}

// Validate reports whether the entry would load back unchanged: its identity
// and every lock's task id must already be trimmed and non-blank.
func (e *JournalEntry) Validate() error {
	pkg, err := NewPackageIdentity(e.Package.PackageID, e.Package.Version)
	if err != nil {
		return err
	}
	if pkg != e.Package {
		return fmt.Errorf("%w: %q@%q is not trimmed", ErrInvalidIdentity, e.Package.PackageID, e.Package.Version)
	}
	for _, l := range e.Locks.All() {
		task, err := NewServerTaskID(string(l.TaskID))
		if err != nil {
			return fmt.Errorf("lock on %s: %w", pkg, err)
		}
		if task != l.TaskID {
			return fmt.Errorf("lock on %s: %w: %q is not trimmed", pkg, ErrInvalidTaskID, l.TaskID)
		}
	}
	return nil
}

// SortEntries orders entries by package identity.
func SortEntries(entries []*JournalEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Package.Less(entries[j].Package)
	})
}

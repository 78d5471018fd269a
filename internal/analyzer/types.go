package analyzer

import (
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// Retention tiers.
const (
	TierLocked = "locked" // held by a task, never evictable
	TierRecent = "recent" // unlocked, used within the last week
	TierIdle   = "idle"   // unlocked, used within the last 90 days
	TierStale  = "stale"  // unlocked, unused for 90 days or never used
)

// UsageStats represents usage statistics for a package.
type UsageStats struct {
	Package   journal.PackageIdentity
	TotalUses int
	FirstUsed *time.Time
	LastUsed  *time.Time
	DaysSince int    // Days since last used, -1 if never used
	Frequency string // "daily", "weekly", "monthly", "never"
}

// PackageReport is the retention state of one package.
type PackageReport struct {
	Package journal.PackageIdentity
	Locks   []journal.Lock
	Usage   UsageStats
	Tier    string

	// Evictable is false whenever any lock is held.
	Evictable bool
}

// Locked reports whether any task holds the package.
func (r PackageReport) Locked() bool {
	return len(r.Locks) > 0
}

// Summary aggregates a set of reports.
type Summary struct {
	Packages  int
	Locked    int
	Locks     int
	Evictable int
	Uses      int
}

// Filter selects reports for listing. Zero fields match everything.
type Filter struct {
	LockedOnly    bool
	EvictableOnly bool

	// MinIdle keeps packages not used for at least this long.
	MinIdle time.Duration
}

package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// Report builds the retention report for an entry.
func (a *Analyzer) Report(entry *journal.JournalEntry) PackageReport {
	r := PackageReport{
		Package: entry.Package,
		Locks:   entry.Locks.All(),
		Usage:   a.GetUsageStats(entry),
	}

	switch {
	case r.Locked():
		r.Tier = TierLocked
	case r.Usage.DaysSince < 0 || r.Usage.DaysSince > 90:
		r.Tier = TierStale
	case r.Usage.DaysSince > 7:
		r.Tier = TierIdle
	default:
		r.Tier = TierRecent
	}
	r.Evictable = !r.Locked()
	return r
}

// Reports returns a report per journal entry matching f, ordered by identity.
func (a *Analyzer) Reports(ctx context.Context, f Filter) ([]PackageReport, error) {
	entries, err := a.source.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	reports := make([]PackageReport, 0, len(entries))
	for _, e := range entries {
		r := a.Report(e)
		if a.matches(r, f) {
			reports = append(reports, r)
		}
	}
	return reports, nil
}

func (a *Analyzer) matches(r PackageReport, f Filter) bool {
	if f.LockedOnly && !r.Locked() {
		return false
	}
	if f.EvictableOnly && !r.Evictable {
		return false
	}
	if f.MinIdle > 0 && !a.idleFor(r, f.MinIdle) {
		return false
	}
	return true
}

func (a *Analyzer) idleFor(r PackageReport, d time.Duration) bool {
	if r.Usage.LastUsed == nil {
		return true
	}
	return a.now().Sub(*r.Usage.LastUsed) >= d
}

// EvictionCandidates returns unlocked packages not used for at least minIdle,
// least recently used first. Packages that were never used come first.
func (a *Analyzer) EvictionCandidates(ctx context.Context, minIdle time.Duration) ([]PackageReport, error) {
	candidates, err := a.Reports(ctx, Filter{EvictableOnly: true, MinIdle: minIdle})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].Usage.LastUsed, candidates[j].Usage.LastUsed
		switch {
		case li == nil:
			return lj != nil
		case lj == nil:
			return false
		default:
			return li.Before(*lj)
		}
	})
	return candidates, nil
}

// Summarize aggregates reports.
func Summarize(reports []PackageReport) Summary {
	var s Summary
	for _, r := range reports {
		s.Packages++
		s.Locks += len(r.Locks)
		s.Uses += r.Usage.TotalUses
		if r.Locked() {
			s.Locked++
		}
		if r.Evictable {
			s.Evictable++
		}
	}
	return s
}

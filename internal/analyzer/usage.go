package analyzer

import (
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// GetUsageStats returns usage statistics for an entry.
func (a *Analyzer) GetUsageStats(entry *journal.JournalEntry) UsageStats {
	stats := UsageStats{
		Package:   entry.Package,
		TotalUses: entry.Usage.Count(),
		DaysSince: -1,
	}

	if first, ok := entry.Usage.First(); ok {
		stats.FirstUsed = &first
	}
	if last, ok := latestUse(entry.Usage); ok {
		stats.LastUsed = &last
		stats.DaysSince = a.daysSince(last)
	}

	stats.Frequency = a.computeFrequency(stats.LastUsed, stats.TotalUses, stats.FirstUsed)
	return stats
}

// latestUse returns the newest timestamp. Usage is kept in insertion order,
// which can differ from clock order when hosts' clocks disagree.
func latestUse(u journal.PackageUsage) (time.Time, bool) {
	times := u.GetUsageDetails()
	if len(times) == 0 {
		return time.Time{}, false
	}
	latest := times[0]
	for _, t := range times[1:] {
		if t.After(latest) {
			latest = t
		}
	}
	return latest, true
}

func (a *Analyzer) daysSince(t time.Time) int {
	d := int(a.now().Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// computeFrequency determines usage frequency classification.
func (a *Analyzer) computeFrequency(lastUsed *time.Time, totalUses int, firstUsed *time.Time) string {
	if lastUsed == nil || firstUsed == nil {
		return "never"
	}

	daysTracked := a.daysSince(*firstUsed)
	if daysTracked == 0 {
		daysTracked = 1 // Avoid division by zero
	}

	usesPerDay := float64(totalUses) / float64(daysTracked)
	daysSinceLastUse := a.daysSince(*lastUsed)

	// Daily: used in last 7 days and high frequency
	if daysSinceLastUse <= 7 && usesPerDay >= 0.5 {
		return "daily"
	}

	if daysSinceLastUse <= 30 {
		return "weekly"
	}

	if daysSinceLastUse <= 90 {
		return "monthly"
	}

	return "never"
}

// Package output renders pkgretain reports for the terminal.
//
// Tables use box-drawing rules and, when stdout is a terminal and NO_COLOR is
// unset, ANSI colours for retention tiers.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/pkgretain/internal/analyzer"
	"github.com/blackwell-systems/pkgretain/internal/journal"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// RenderReportTable renders one row per package.
func RenderReportTable(reports []analyzer.PackageReport, now time.Time) string {
	if len(reports) == 0 {
		return "No packages in the journal.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-28s %-14s %-6s %-6s %-16s %s\n",
		"Package", "Version", "Locks", "Uses", "Last Used", "Status"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, r := range reports {
		lastUsed := "never"
		if r.Usage.LastUsed != nil {
			lastUsed = formatRelativeTime(*r.Usage.LastUsed, now)
		}
		sb.WriteString(fmt.Sprintf("%-28s %-14s %-6d %-6d %-16s %s\n",
			truncate(r.Package.PackageID, 28),
			truncate(r.Package.Version, 14),
			len(r.Locks),
			r.Usage.TotalUses,
			lastUsed,
			colorize(getTierColor(r.Tier), formatStatus(r))))
	}

	return sb.String()
}

// RenderSummary renders the totals line printed under a report table.
func RenderSummary(s analyzer.Summary) string {
	return fmt.Sprintf("%d packages, %d locked (%d locks), %d evictable, %d recorded uses\n",
		s.Packages, s.Locked, s.Locks, s.Evictable, s.Uses)
}

// RenderEntryDetail renders the locks and usage history of one package.
// At most historyLimit of the newest uses are listed; zero lists all.
func RenderEntryDetail(r analyzer.PackageReport, usage []time.Time, historyLimit int, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Package: %s\n", r.Package.PackageID))
	sb.WriteString(fmt.Sprintf("Version: %s\n", r.Package.Version))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", colorize(getTierColor(r.Tier), formatStatus(r))))
	sb.WriteString(fmt.Sprintf("Usage:   %d uses, frequency %s\n", r.Usage.TotalUses, r.Usage.Frequency))
	sb.WriteString("\n")

	if len(r.Locks) == 0 {
		sb.WriteString("Locks: none\n")
	} else {
		sb.WriteString(fmt.Sprintf("Locks (%d):\n", len(r.Locks)))
		sb.WriteString(RenderLockTable(r.Locks, now))
	}
	sb.WriteString("\n")

	if len(usage) == 0 {
		sb.WriteString("Usage history: none\n")
		return sb.String()
	}

	shown := usage
	if historyLimit > 0 && len(shown) > historyLimit {
		shown = shown[len(shown)-historyLimit:]
		sb.WriteString(fmt.Sprintf("Usage history (latest %d of %d):\n", historyLimit, len(usage)))
	} else {
		sb.WriteString(fmt.Sprintf("Usage history (%d):\n", len(usage)))
	}
	for _, t := range shown {
		sb.WriteString(fmt.Sprintf("  %s  %s\n", t.Local().Format(time.RFC3339), colorize(colorGray, formatRelativeTime(t, now))))
	}
	return sb.String()
}

// RenderLockTable renders held locks with their owners and ages.
func RenderLockTable(locks []journal.Lock, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %-24s %-8s %-20s %s\n", "Task", "PID", "Host", "Acquired"))
	sb.WriteString("  " + strings.Repeat("─", 70) + "\n")
	for _, l := range locks {
		sb.WriteString(fmt.Sprintf("  %-24s %-8s %-20s %s\n",
			truncate(l.TaskID.String(), 24),
			formatPID(l.PID),
			truncate(orUnknown(l.Hostname), 20),
			formatRelativeTime(l.AcquiredAt, now)))
	}
	return sb.String()
}

// RenderExpiredTable renders locks released (or releasable) by expiry.
func RenderExpiredTable(expired []journal.ExpiredLock, now time.Time) string {
	if len(expired) == 0 {
		return "No stale locks found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-28s %-14s %-24s %-16s %s\n",
		"Package", "Version", "Task", "Acquired", "Reason"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")
	for _, e := range expired {
		sb.WriteString(fmt.Sprintf("%-28s %-14s %-24s %-16s %s\n",
			truncate(e.Package.PackageID, 28),
			truncate(e.Package.Version, 14),
			truncate(e.Lock.TaskID.String(), 24),
			formatRelativeTime(e.Lock.AcquiredAt, now),
			e.Reason))
	}
	return sb.String()
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if color != "" && IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

func formatStatus(r analyzer.PackageReport) string {
	if r.Locked() {
		return "locked"
	}
	return r.Tier + ", evictable"
}

func getTierColor(tier string) string {
	switch tier {
	case analyzer.TierLocked:
		return colorRed
	case analyzer.TierRecent:
		return colorYellow
	case analyzer.TierIdle, analyzer.TierStale:
		return colorGreen
	default:
		return ""
	}
}

// formatRelativeTime renders t relative to now, e.g. "3 days ago".
func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if d := now.Sub(t); d >= 0 && d < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func formatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func orUnknown(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/command"
	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/output"
)

// doctorLockTimeout bounds the store lock check.
const doctorLockTimeout = 5 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues with the journal",
	Long: `Runs diagnostic checks on the pkgretain setup.

Checks:
  • Config file is valid
  • Journal is readable
  • Journal store lock can be acquired
  • Stale lock expiry is configured
  • Stale locks waiting to be released
  • Maintenance daemon is running

Exits 1 when a critical check fails and 2 when only warnings were found.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running pkgretain diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: Config
	if _, path, err := loadConfig(); err != nil {
		fmt.Fprintln(out, "✗ Config invalid:", err)
		return errors.New("diagnostics failed")
	} else if _, statErr := os.Stat(path); statErr == nil {
		fmt.Fprintln(out, "✓ Config loaded:", path)
	} else {
		fmt.Fprintln(out, "✓ Using default config (no file at", path+")")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot open journal:", err)
		return errors.New("diagnostics failed")
	}
	ctx := commandContext(cmd)

	// Check 2: Journal readable
	entries, err := e.journal.Entries(ctx)
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot read journal:", err)
		fmt.Fprintln(out, "  Action: Inspect or move aside", e.path)
		criticalIssues++
	} else {
		fmt.Fprintf(out, "✓ Journal readable: %s (%d packages)\n", e.path, len(entries))
	}

	// Check 3: Store lock
	if err := checkStoreLock(ctx, e.factory); err != nil {
		fmt.Fprintln(out, "✗ Cannot acquire journal lock:", err)
		fmt.Fprintln(out, "  Action: Check for a hung pkgretain process holding the journal")
		criticalIssues++
	} else {
		fmt.Fprintln(out, "✓ Journal lock acquirable")
	}

	// Check 4: Expiry policy and stale locks (warnings only)
	if !e.journal.Policy().Enabled() {
		fmt.Fprintln(out, "⚠ Stale lock expiry disabled; locks of crashed tasks are never released")
		fmt.Fprintln(out, "  Action: Set retention.checkLiveness or retention.maxLockAge")
		warningIssues++
	} else if criticalIssues == 0 {
		warningIssues += checkStaleLocks(ctx, out, e.journal)
	}

	// Check 5: Daemon running (warning only)
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		fmt.Fprintln(out, "⚠ Failed to get PID file path:", err)
		warningIssues++
	} else if pid := daemonStatus(pidFile); pid > 0 {
		fmt.Fprintf(out, "✓ Daemon running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(out, "⚠ Daemon not running")
		fmt.Fprintln(out, "  Action: Run 'pkgretain watch --daemon'")
		warningIssues++
	}

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}

	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return errors.New("diagnostics failed")
	}

	fmt.Fprintf(out, "Found %d warning(s). The journal is functional but not fully configured.\n", warningIssues)
	return &command.ExitError{Code: 2}
}

// checkStoreLock takes and releases the store's write lock without writing.
func checkStoreLock(ctx context.Context, factory journal.RepositoryFactory) error {
	ctx, cancel := context.WithTimeout(ctx, doctorLockTimeout)
	defer cancel()

	repo, err := factory.CreateJournalRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	return repo.Update(ctx, func(journal.Transaction) (bool, error) {
		return false, nil
	})
}

func checkStaleLocks(ctx context.Context, out io.Writer, j *journal.Journal) int {
	stale, err := j.PreviewStaleLocks(ctx)
	if err != nil {
		fmt.Fprintln(out, "⚠ Cannot check for stale locks:", err)
		return 1
	}
	if len(stale) == 0 {
		fmt.Fprintln(out, "✓ No stale locks")
		return 0
	}
	fmt.Fprintf(out, "⚠ %d stale lock(s) waiting to be released\n", len(stale))
	fmt.Fprint(out, output.RenderExpiredTable(stale, time.Now()))
	fmt.Fprintln(out, "  Action: Run 'pkgretain expire' or 'pkgretain watch --daemon'")
	return 1
}

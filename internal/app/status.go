package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/analyzer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show journal location, contents and daemon state",
	Long: `Display where the journal lives and what it holds.

Shows:
  • Journal backend and path
  • Number of packages, locked packages and held locks
  • Number of evictable packages and recorded uses
  • Stale lock policy
  • Maintenance daemon state and PID`,
	Example: `  # Check status
  pkgretain status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Journal:   %s (%s)\n", e.path, e.factory.Options().Backend)
	if _, err := os.Stat(e.path); os.IsNotExist(err) {
		fmt.Fprintln(out, "           not created yet (no package has been registered)")
	}

	reports, err := analyzer.New(e.journal).Reports(commandContext(cmd), analyzer.Filter{})
	if err != nil {
		return err
	}
	s := analyzer.Summarize(reports)
	fmt.Fprintf(out, "Packages:  %d (%d locked, %d evictable)\n", s.Packages, s.Locked, s.Evictable)
	fmt.Fprintf(out, "Locks:     %d\n", s.Locks)
	fmt.Fprintf(out, "Uses:      %d\n", s.Uses)

	policy := e.journal.Policy()
	switch {
	case !policy.Enabled():
		fmt.Fprintln(out, "Expiry:    disabled")
	case policy.MaxLockAge > 0 && policy.CheckLiveness:
		fmt.Fprintf(out, "Expiry:    owner exited, or older than %s\n", policy.MaxLockAge)
	case policy.MaxLockAge > 0:
		fmt.Fprintf(out, "Expiry:    older than %s\n", policy.MaxLockAge)
	default:
		fmt.Fprintln(out, "Expiry:    owner exited")
	}

	pidFile, err := getDefaultPIDFile()
	if err != nil {
		return fmt.Errorf("failed to get PID file path: %w", err)
	}
	if pid := daemonStatus(pidFile); pid > 0 {
		fmt.Fprintf(out, "Daemon:    running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(out, "Daemon:    stopped (run 'pkgretain watch --daemon')")
	}
	return nil
}

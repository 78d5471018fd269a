package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/output"
)

var (
	expireDryRun bool

	expireCmd = &cobra.Command{
		Use:   "expire",
		Short: "Release locks abandoned by crashed tasks",
		Long: `Release package locks whose tasks will never deregister.

A lock is stale when its owning process ran on this host and has exited
(retention.checkLiveness), or when it is older than retention.maxLockAge.
With neither rule configured the command fails rather than reporting that
nothing was stale.`,
		Example: `  # Show what would be released
  pkgretain expire --dry-run

  # Release stale locks
  pkgretain expire`,
		Args: cobra.NoArgs,
		RunE: runExpire,
	}
)

func init() {
	expireCmd.Flags().BoolVar(&expireDryRun, "dry-run", false, "report stale locks without releasing them")

	RootCmd.AddCommand(expireCmd)
}

func runExpire(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	spinner := output.NewSpinner("Expiring stale locks").WithTimeout(e.cfg.Journal.LockTimeout)
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()

	var expired []journal.ExpiredLock
	if expireDryRun {
		expired, err = e.journal.PreviewStaleLocks(ctx)
	} else {
		expired, err = e.journal.ExpireStaleLocks(ctx)
	}
	spinner.Stop()

	if errors.Is(err, journal.ErrExpiryNotSupported) {
		return fmt.Errorf("%w\nSet retention.maxLockAge or retention.checkLiveness in the config file", err)
	}
	if err != nil {
		return fmt.Errorf("failed to expire stale locks: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderExpiredTable(expired, time.Now()))
	if len(expired) > 0 {
		if expireDryRun {
			fmt.Fprintf(out, "\n%d stale lock(s) would be released (dry run)\n", len(expired))
		} else {
			fmt.Fprintf(out, "\nReleased %d stale lock(s)\n", len(expired))
		}
	}
	return nil
}

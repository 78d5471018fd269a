package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/analyzer"
	"github.com/blackwell-systems/pkgretain/internal/output"
)

var (
	explainHistory int

	explainCmd = &cobra.Command{
		Use:   "explain <package-id> <version>",
		Short: "Show locks and usage history for a package",
		Long: `Display the retention state of one cached package: whether cleanup may evict
it, the tasks holding locks on it (with owner process, host and age), and its
recorded usage history.`,
		Example: `  # Explain why Acme.Web 1.0.0 is (or is not) evictable
  pkgretain explain Acme.Web 1.0.0

  # Show the full usage history
  pkgretain explain Acme.Web 1.0.0 --history 0`,
		Args: cobra.ExactArgs(2),
		RunE: runExplain,
	}
)

func init() {
	explainCmd.Flags().IntVar(&explainHistory, "history", 10, "number of most recent uses to list (0 for all)")

	RootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	pkg, err := parseIdentity(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	entry, found, err := e.journal.Lookup(commandContext(cmd), pkg)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if !found {
		// Not an error: the journal only knows packages that were registered.
		fmt.Fprintf(cmd.ErrOrStderr(), "No journal entry for %s\n", pkg)
		return nil
	}

	now := time.Now()
	report := analyzer.New(e.journal).WithClock(func() time.Time { return now }).Report(entry)
	fmt.Fprint(cmd.OutOrStdout(), output.RenderEntryDetail(report, entry.Usage.GetUsageDetails(), explainHistory, now))
	return nil
}

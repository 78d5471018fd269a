package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/analyzer"
	"github.com/blackwell-systems/pkgretain/internal/output"
)

var (
	listLocked     bool
	listEvictable  bool
	listIdle       time.Duration
	listCandidates bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List packages in the journal with their retention state",
		Long: `List every package the journal knows, with the number of locks held on it,
its recorded uses, when it was last used and whether cleanup may evict it.

A package is evictable only when no task holds a lock on it. With
--candidates, evictable packages are ordered the way cleanup should consider
them: never-used packages first, then least recently used.`,
		Example: `  # Everything in the journal
  pkgretain list

  # Only packages cleanup must keep
  pkgretain list --locked

  # Eviction order for packages unused for two weeks
  pkgretain list --candidates --idle 336h`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listLocked, "locked", false, "only show locked packages")
	listCmd.Flags().BoolVar(&listEvictable, "evictable", false, "only show evictable packages")
	listCmd.Flags().DurationVar(&listIdle, "idle", 0, "only show packages unused for at least this long")
	listCmd.Flags().BoolVar(&listCandidates, "candidates", false, "show evictable packages in eviction order")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listLocked && (listEvictable || listCandidates) {
		return fmt.Errorf("--locked cannot be combined with --evictable or --candidates")
	}
	if listIdle < 0 {
		return fmt.Errorf("--idle must not be negative")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	now := time.Now()
	a := analyzer.New(e.journal).WithClock(func() time.Time { return now })
	ctx := commandContext(cmd)

	var reports []analyzer.PackageReport
	if listCandidates {
		reports, err = a.EvictionCandidates(ctx, listIdle)
	} else {
		reports, err = a.Reports(ctx, analyzer.Filter{
			LockedOnly:    listLocked,
			EvictableOnly: listEvictable,
			MinIdle:       listIdle,
		})
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderReportTable(reports, now))
	if len(reports) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, output.RenderSummary(analyzer.Summarize(reports)))
	}
	return nil
}

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	journalPath  string
	backendName  string
	logLevelName string

	// RootCmd is the root command for pkgretain
	RootCmd = &cobra.Command{
		Use:   "pkgretain",
		Short: "Package retention journal for deployment package caches",
		Long: `pkgretain records which cached deployment packages are in use, and by which
server tasks, so that cache cleanup never evicts a package a running task still
depends on.

Deployment steps register a use of a package when they start consuming it and
deregister when they finish. While any task holds a lock, the package is not
evictable. Every use is also appended to the package's usage history, which
cleanup can consult to evict the least recently used packages first.

Locks left behind by tasks that crashed are reclaimed by 'pkgretain expire' or
by the maintenance daemon started with 'pkgretain watch --daemon'.

Examples:
  # Lock a package for a task, then release it
  pkgretain register Acme.Web 1.0.0 ServerTasks-1
  pkgretain deregister Acme.Web 1.0.0 ServerTasks-1

  # Run a deployment script with the package locked for its duration
  pkgretain run --package Acme.Web --version 1.0.0 --task ServerTasks-1 -- ./deploy.sh

  # Show packages that cleanup may evict
  pkgretain list --evictable

  # Reclaim locks abandoned by crashed tasks
  pkgretain expire`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "pkgretain: package retention journal for deployment package caches")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Tip: Run 'pkgretain status' to check the journal and daemon.")
			fmt.Fprintln(out, "     Run 'pkgretain list' to view retained packages.")
			fmt.Fprintln(out, "     Run 'pkgretain --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/pkgretain/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "journal path (overrides journal.path)")
	RootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "journal backend: json or sqlite (overrides journal.backend)")
	RootCmd.PersistentFlags().StringVar(&logLevelName, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// globalArgs returns the persistent flags that were set, for passing on to a
// re-executed daemon process.
func globalArgs() []string {
	var args []string
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if journalPath != "" {
		args = append(args, "--journal", journalPath)
	}
	if backendName != "" {
		args = append(args, "--backend", backendName)
	}
	if logLevelName != "" {
		args = append(args, "--log-level", logLevelName)
	}
	return args
}

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/output"
	"github.com/blackwell-systems/pkgretain/internal/watcher"
)

// stopTimeout bounds how long --stop waits for the daemon to exit.
const stopTimeout = 10 * time.Second

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchInterval    time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Periodically release locks abandoned by crashed tasks",
		Long: `Run the journal maintenance loop, which releases stale package locks.

The watcher sweeps the journal at startup, then every --interval, and shortly
after the journal file changes. Each sweep applies the configured retention
policy exactly like 'pkgretain expire'. If no expiry rule is configured the
watcher refuses to start.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  pkgretain watch

  # Run as background daemon, sweeping every minute
  pkgretain watch --daemon --interval 1m

  # Stop running daemon
  pkgretain watch --stop

  # Use custom PID and log files
  pkgretain watch --daemon --pid-file /tmp/watch.pid --log-file /tmp/watch.log`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.pkgretain/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.pkgretain/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", watcher.DefaultInterval, "time between sweeps")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Get default paths if not specified
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}

	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	// Handle stop command
	if watchStop {
		return stopWatchDaemon(cmd)
	}

	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if !e.journal.Policy().Enabled() {
		return fmt.Errorf("%w\nSet retention.maxLockAge or retention.checkLiveness in the config file", journal.ErrExpiryNotSupported)
	}

	// Handle daemon mode
	if watchDaemon {
		return startWatchDaemon(cmd)
	}

	w, err := watcher.New(e.journal, watcher.Options{
		Interval:    watchInterval,
		JournalPath: e.path,
		Logger:      e.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Handle daemon child process
	if watchDaemonChild {
		// stdout and stderr are redirected to the log file
		return w.RunDaemon(commandContext(cmd), watchPIDFile)
	}

	// Run in foreground
	return runWatchForeground(cmd, w)
}

func stopWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile, stopTimeout); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	childArgs := append(globalArgs(),
		"--pid-file", watchPIDFile,
		"--interval", watchInterval.String(),
	)

	spinner := output.NewSpinner("Starting daemon")
	spinner.Start()
	pid, err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs)
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Fprintf(out, "\nStale lock sweeper started (PID %d)\n", pid)
	fmt.Fprintf(out, "  Interval: %s\n", watchInterval)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: pkgretain watch --stop\n")
	return nil
}

func runWatchForeground(cmd *cobra.Command, w *watcher.Watcher) error {
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Fprintf(out, "Sweeping stale locks every %s (press Ctrl+C to stop)...\n", watchInterval)

	<-ctx.Done()
	fmt.Fprintln(out, "\nShutting down...")

	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	fmt.Fprintf(out, "Watcher stopped after %d sweep(s)\n", w.Sweeps())
	return nil
}

// daemonStatus returns the PID of the running daemon, or 0.
func daemonStatus(pidFile string) int {
	if pidFile == "" {
		return 0
	}
	if _, err := os.Stat(pidFile); err != nil {
		return 0
	}
	pid, ok := watcher.DaemonPID(pidFile)
	if !ok {
		return 0
	}
	return pid
}

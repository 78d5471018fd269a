// Package watcher reclaims package locks abandoned by crashed deployment
// tasks.
//
// A task that is killed before it deregisters leaves its lock in the journal,
// and the package can never be evicted. The Watcher sweeps the journal with
// journal.ExpireStaleLocks on a fixed interval (5 minutes by default) and,
// when given the journal path, shortly after each burst of journal writes
// observed through fsnotify. Writes to a SQLite journal's -wal file count as
// journal writes.
//
// Key features:
//   - Sweep at startup; a disabled expiry policy fails Start immediately
//   - Interval sweeps plus debounced sweeps on journal activity
//   - Daemon mode support with PID file management
//   - Graceful shutdown with SIGTERM/SIGINT handling
//
// Example usage:
//
//	j := journal.New(factory, logger, journal.WithExpiryPolicy(policy))
//
//	w, err := watcher.New(j, watcher.Options{JournalPath: path, Logger: logger})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Run in the foreground until SIGTERM
//	if err := w.RunDaemon(ctx, ""); err != nil {
//		log.Fatal(err)
//	}
package watcher

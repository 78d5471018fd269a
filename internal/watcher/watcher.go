package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// DefaultInterval is the time between scheduled sweeps.
const DefaultInterval = 5 * time.Minute

// debounce delays a journal-triggered sweep until writes settle.
const debounce = 2 * time.Second

// Expirer releases stale locks. *journal.Journal implements it.
type Expirer interface {
	ExpireStaleLocks(ctx context.Context) ([]journal.ExpiredLock, error)
}

// Options configure a Watcher.
type Options struct {
	// Interval between scheduled sweeps. Zero means DefaultInterval.
	Interval time.Duration

	// JournalPath, when set, is watched for writes; each burst of writes
	// triggers an extra sweep.
	JournalPath string

	Logger zerolog.Logger
}

// Watcher periodically expires stale package locks.
type Watcher struct {
	expirer Expirer
	opts    Options
	log     zerolog.Logger

	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
	sweeps  atomic.Int64
	trigger chan struct{}
}

// New creates a new Watcher instance.
func New(expirer Expirer, opts Options) (*Watcher, error) {
	if expirer == nil {
		return nil, fmt.Errorf("expirer cannot be nil")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Watcher{
		expirer: expirer,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "watcher").Logger(),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Start runs a first sweep, then sweeps on every interval tick and after
// journal writes until Stop is called or ctx is done. It fails if the first
// sweep fails, so a misconfigured expiry policy stops the watcher at once.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.Sweep(ctx); err != nil {
		return fmt.Errorf("initial sweep: %w", err)
	}

	if w.opts.JournalPath != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		// Watch the directory: commits replace the journal file by rename.
		if err := fsw.Add(filepath.Dir(w.opts.JournalPath)); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch journal directory: %w", err)
		}
		w.fsw = fsw
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.runSweeps(ctx)

	if w.fsw != nil {
		w.wg.Add(1)
		go w.watchJournal(ctx)
	}
	return nil
}

// Stop halts the watcher and waits for an in-flight sweep to finish. It is
// safe to call before Start and more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopped.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if w.fsw != nil {
			err = w.fsw.Close()
		}
		w.wg.Wait()
	})
	return err
}

// Sweeps returns how many sweeps have completed.
func (w *Watcher) Sweeps() int64 {
	return w.sweeps.Load()
}

// Sweep expires stale locks once.
func (w *Watcher) Sweep(ctx context.Context) ([]journal.ExpiredLock, error) {
	expired, err := w.expirer.ExpireStaleLocks(ctx)
	if err != nil {
		return nil, err
	}
	w.sweeps.Add(1)

	if len(expired) > 0 {
		w.log.Info().Int("expired", len(expired)).Msg("released stale package locks")
	} else {
		w.log.Debug().Msg("no stale package locks")
	}
	return expired, nil
}

func (w *Watcher) runSweeps(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}

		if _, err := w.Sweep(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("stale lock sweep failed")
		}
	}
}

// isJournalFile reports whether name is the journal or its SQLite write-ahead
// log. In WAL mode a commit only writes the -wal file until a checkpoint.
func isJournalFile(name, target string) bool {
	return name == target || name == target+"-wal"
}

// watchJournal forwards debounced journal writes to the sweep loop.
func (w *Watcher) watchJournal(ctx context.Context) {
	defer w.wg.Done()

	target := filepath.Base(w.opts.JournalPath)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isJournalFile(filepath.Base(event.Name), target) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug().Str("op", event.Op.String()).Msg("journal changed")
			timer.Reset(debounce)

		case <-timer.C:
			select {
			case w.trigger <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("journal watch error")
		}
	}
}

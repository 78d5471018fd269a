// Package store persists the package retention journal.
//
// Two backends implement journal.Repository:
//   - FileRepository: a single JSON document, written via temp file + rename
//     while holding an flock on a sibling lock file
//   - SQLiteRepository: a SQLite database, written inside BEGIN IMMEDIATE
//     transactions
//
// Both serialize read-modify-write cycles across processes and commit
// atomically, so a reader never observes a partially written journal.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

var (
	// ErrLockTimeout is returned when the store's write lock could not be
	// acquired within the configured timeout.
	ErrLockTimeout = errors.New("timed out waiting for journal lock")
	// ErrCorruptJournal is returned when the durable store cannot be decoded.
	ErrCorruptJournal = errors.New("journal store is corrupt")
	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown journal backend")
)

// Backend names a storage implementation.
type Backend string

const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// DefaultLockTimeout bounds how long a writer waits for another process.
const DefaultLockTimeout = 30 * time.Second

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendJSON, BackendSQLite:
		return b, nil
	case "":
		return BackendJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (must be json or sqlite)", ErrUnknownBackend, name)
	}
}

// Options describe where and how the journal is stored.
type Options struct {
	Backend     Backend
	Path        string
	LockTimeout time.Duration
}

// Factory creates repositories bound to one durable store.
type Factory struct {
	opts Options
}

var _ journal.RepositoryFactory = (*Factory)(nil)

// NewFactory validates opts and returns a Factory.
func NewFactory(opts Options) (*Factory, error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("journal path is required")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	opts.Backend = backend
	return &Factory{opts: opts}, nil
}

// Options returns the factory's resolved options.
func (f *Factory) Options() Options {
	return f.opts
}

// CreateJournalRepository opens a repository on the configured store.
func (f *Factory) CreateJournalRepository() (journal.Repository, error) {
	switch f.opts.Backend {
	case BackendSQLite:
		return NewSQLiteRepository(f.opts.Path, f.opts.LockTimeout)
	default:
		return NewFileRepository(f.opts.Path, f.opts.LockTimeout), nil
	}
}

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// FileRepository stores the journal as a JSON document.
//
// Writers hold an flock on "<path>.lock" for the whole load, mutate, commit
// cycle. Readers take no lock: commits replace the document with a rename,
// so every read sees one complete committed version.
type FileRepository struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
}

var _ journal.Repository = (*FileRepository)(nil)

// NewFileRepository returns a repository for the JSON journal at path.
func NewFileRepository(path string, lockTimeout time.Duration) *FileRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &FileRepository{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: lockTimeout,
	}
}

// Path returns the journal file path.
func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) View(ctx context.Context, fn func(tx journal.Transaction) error) error {
	set, err := r.load()
	if err != nil {
		return err
	}
	return fn(set)
}

func (r *FileRepository) Update(ctx context.Context, fn func(tx journal.Transaction) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	lock := newFileLock(r.lockPath)
	if err := lock.lock(ctx, r.lockTimeout); err != nil {
		return err
	}
	defer lock.unlock()

	set, err := r.load()
	if err != nil {
		return err
	}

	changed, err := fn(set)
	if err != nil || !changed {
		return err
	}

	return r.commit(set)
}

func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) load() (*journal.EntrySet, error) {
	data, err := os.ReadFile(r.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read journal %s: %w", r.path, err)
	}

	entries, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.path, err)
	}

	set, err := journal.NewEntrySet(entries)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", r.path, ErrCorruptJournal, err)
	}
	return set, nil
}

func (r *FileRepository) commit(set *journal.EntrySet) error {
	entries := set.Entries()
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("commit %s: %w", r.path, err)
		}
	}
	data, err := encodeDocument(entries)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("commit %s: %w", r.path, err)
	}
	return nil
}

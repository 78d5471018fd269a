package journal

import (
	"context"
	"errors"
	"fmt"
)

// ErrEntryExists is returned by AddJournalEntry when the identity is already
// present.
var ErrEntryExists = errors.New("journal entry already exists")

// Transaction is one session over the materialized journal. Entries handed out
// by a transaction may be mutated in place; they are only valid inside the
// function the transaction was passed to.
type Transaction interface {
	// TryGetJournalEntry looks up the entry for pkg.
	TryGetJournalEntry(pkg PackageIdentity) (*JournalEntry, bool)

	// AddJournalEntry inserts a new entry. It fails with ErrEntryExists if an
	// entry for the same identity is already present.
	AddJournalEntry(entry *JournalEntry) error

	// Entries returns all entries ordered by identity.
	Entries() []*JournalEntry
}

// Repository loads and persists the full set of journal entries.
type Repository interface {
	// View runs fn against a consistent snapshot of the committed store.
	// Changes made by fn are discarded.
	View(ctx context.Context, fn func(tx Transaction) error) error

	// Update runs fn while holding the store's cross-process write lock.
	// When fn returns (true, nil) the resulting entry set is committed
	// atomically; otherwise nothing is written.
	Update(ctx context.Context, fn func(tx Transaction) (bool, error)) error

	// Close releases resources held by the repository.
	Close() error
}

// RepositoryFactory creates a repository bound to the journal's durable store.
type RepositoryFactory interface {
	CreateJournalRepository() (Repository, error)
}

// UpdateEntry loads the entry for pkg (a new empty entry when absent), applies
// fn and commits if fn reports a change. A new entry is only added to the
// store when fn changed it.
func UpdateEntry(ctx context.Context, repo Repository, pkg PackageIdentity, fn func(entry *JournalEntry) bool) error {
	return repo.Update(ctx, func(tx Transaction) (bool, error) {
		entry, found := tx.TryGetJournalEntry(pkg)
		if !found {
			entry = NewJournalEntry(pkg)
		}
		if !fn(entry) {
			return false, nil
		}
		if !found {
			if err := tx.AddJournalEntry(entry); err != nil {
				return false, fmt.Errorf("add entry for %s: %w", pkg, err)
			}
		}
		return true, nil
	})
}

// LookupEntry returns a copy of the committed entry for pkg.
func LookupEntry(ctx context.Context, repo Repository, pkg PackageIdentity) (*JournalEntry, bool, error) {
	var (
		entry *JournalEntry
		found bool
	)
	err := repo.View(ctx, func(tx Transaction) error {
		e, ok := tx.TryGetJournalEntry(pkg)
		if ok {
			entry, found = e.Clone(), true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, found, nil
}

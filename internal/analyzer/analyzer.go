package analyzer

import (
	"context"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// Source supplies journal entries. *journal.Journal implements it.
type Source interface {
	Entries(ctx context.Context) ([]*journal.JournalEntry, error)
}

// Analyzer computes retention reports and usage statistics for packages.
type Analyzer struct {
	source Source
	now    func() time.Time
}

// New creates a new Analyzer reading from source.
func New(source Source) *Analyzer {
	return &Analyzer{source: source, now: time.Now}
}

// WithClock overrides the analyzer's time source.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

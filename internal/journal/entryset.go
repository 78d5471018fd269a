package journal

import "fmt"

// EntrySet is an in-memory Transaction over a materialized entry set. Store
// implementations load their durable state into an EntrySet, hand it to the
// caller and persist it afterwards.
type EntrySet struct {
	entries map[PackageIdentity]*JournalEntry
	touched map[PackageIdentity]bool
}

// NewEntrySet builds a set from loaded entries. Duplicate identities are
// rejected since they indicate a corrupt store.
func NewEntrySet(entries []*JournalEntry) (*EntrySet, error) {
	s := &EntrySet{
		entries: make(map[PackageIdentity]*JournalEntry, len(entries)),
		touched: make(map[PackageIdentity]bool),
	}
	for _, e := range entries {
		if _, dup := s.entries[e.Package]; dup {
			return nil, fmt.Errorf("%w: duplicate record for %s", ErrEntryExists, e.Package)
		}
		s.entries[e.Package] = e
	}
	return s, nil
}

func (s *EntrySet) TryGetJournalEntry(pkg PackageIdentity) (*JournalEntry, bool) {
	e, ok := s.entries[pkg]
	if ok {
		s.touched[pkg] = true
	}
	return e, ok
}

func (s *EntrySet) AddJournalEntry(entry *JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if _, ok := s.entries[entry.Package]; ok {
		return fmt.Errorf("%w: %s", ErrEntryExists, entry.Package)
	}
	s.entries[entry.Package] = entry
	s.touched[entry.Package] = true
	return nil
}

func (s *EntrySet) Entries() []*JournalEntry {
	out := make([]*JournalEntry, 0, len(s.entries))
	for pkg, e := range s.entries {
		s.touched[pkg] = true
		out = append(out, e)
	}
	SortEntries(out)
	return out
}

// Touched returns the entries handed out or added since the set was built,
// ordered by identity. Only these can have been modified.
func (s *EntrySet) Touched() []*JournalEntry {
	out := make([]*JournalEntry, 0, len(s.touched))
	for pkg := range s.touched {
		out = append(out, s.entries[pkg])
	}
	SortEntries(out)
	return out
}

// Len returns the number of entries.
func (s *EntrySet) Len() int {
	return len(s.entries)
}

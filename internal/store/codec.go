package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

const documentVersion = 1

// document is the on-disk layout of the JSON journal.
type document struct {
	Version int           `json:"version"`
	Entries []entryRecord `json:"entries"`
}

type entryRecord struct {
	PackageID string       `json:"packageId"`
	Version   string       `json:"version"`
	Usage     []time.Time  `json:"usage"`
	Locks     []lockRecord `json:"locks"`
}

type lockRecord struct {
	TaskID     string    `json:"taskId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	PID        int       `json:"pid,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
}

func encodeDocument(entries []*journal.JournalEntry) ([]byte, error) {
	doc := document{
		Version: documentVersion,
		Entries: make([]entryRecord, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, toRecord(e))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal journal: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeDocument(data []byte) ([]*journal.JournalEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptJournal, err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("%w: unsupported document version %d", ErrCorruptJournal, doc.Version)
	}

	entries := make([]*journal.JournalEntry, 0, len(doc.Entries))
	for i, rec := range doc.Entries {
		e, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptJournal, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toRecord(e *journal.JournalEntry) entryRecord {
	rec := entryRecord{
		PackageID: e.Package.PackageID,
		Version:   e.Package.Version,
		Usage:     e.Usage.GetUsageDetails(),
		Locks:     []lockRecord{},
	}
	for _, l := range e.Locks.All() {
		rec.Locks = append(rec.Locks, lockRecord{
			TaskID:     l.TaskID.String(),
			AcquiredAt: l.AcquiredAt,
			PID:        l.PID,
			Hostname:   l.Hostname,
		})
	}
	return rec
}

func fromRecord(rec entryRecord) (*journal.JournalEntry, error) {
	pkg, err := journal.NewPackageIdentity(rec.PackageID, rec.Version)
	if err != nil {
		return nil, err
	}

	locks := make([]journal.Lock, 0, len(rec.Locks))
	for _, l := range rec.Locks {
		task, err := journal.NewServerTaskID(l.TaskID)
		if err != nil {
			return nil, fmt.Errorf("lock on %s: %w", pkg, err)
		}
		locks = append(locks, journal.Lock{
			TaskID:     task,
			AcquiredAt: l.AcquiredAt,
			PID:        l.PID,
			Hostname:   l.Hostname,
		})
	}

	return &journal.JournalEntry{
		Package: pkg,
		Usage:   journal.NewPackageUsage(rec.Usage),
		Locks:   journal.NewPackageLocks(locks),
	}, nil
}

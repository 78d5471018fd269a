package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// querier is satisfied by *sql.Tx and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const timeFormat = time.RFC3339Nano

// loadEntries materializes every entry. It also returns how many usage rows
// each entry had, so saveEntry only appends the new ones.
func loadEntries(ctx context.Context, q querier) (*journal.EntrySet, map[journal.PackageIdentity]int, error) {
	byID := make(map[journal.PackageIdentity]*journal.JournalEntry)
	var order []*journal.JournalEntry

	rows, err := q.QueryContext(ctx, `SELECT package_id, version FROM entries ORDER BY package_id, version`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list entries: %w", err)
	}
	for rows.Next() {
		var id, version string
		if err := rows.Scan(&id, &version); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		pkg, err := journal.NewPackageIdentity(id, version)
		if err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("%w: %v", ErrCorruptJournal, err)
		}
		e := journal.NewJournalEntry(pkg)
		byID[pkg] = e
		order = append(order, e)
	}
	if err := closeRows(rows, "entries"); err != nil {
		return nil, nil, err
	}

	usage := make(map[journal.PackageIdentity][]time.Time)
	rows, err = q.QueryContext(ctx, `SELECT package_id, version, used_at FROM usage ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list usage: %w", err)
	}
	for rows.Next() {
		var pkg journal.PackageIdentity
		var usedAt string
		if err := rows.Scan(&pkg.PackageID, &pkg.Version, &usedAt); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		t, err := time.Parse(timeFormat, usedAt)
		if err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("%w: usage time for %s: %v", ErrCorruptJournal, pkg, err)
		}
		usage[pkg] = append(usage[pkg], t)
	}
	if err := closeRows(rows, "usage"); err != nil {
		return nil, nil, err
	}

	locks := make(map[journal.PackageIdentity][]journal.Lock)
	rows, err = q.QueryContext(ctx, `SELECT package_id, version, task_id, acquired_at, pid, hostname FROM locks ORDER BY task_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list locks: %w", err)
	}
	for rows.Next() {
		var pkg journal.PackageIdentity
		var task, acquiredAt string
		var lock journal.Lock
		if err := rows.Scan(&pkg.PackageID, &pkg.Version, &task, &acquiredAt, &lock.PID, &lock.Hostname); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan lock row: %w", err)
		}
		lock.TaskID = journal.ServerTaskID(task)
		lock.AcquiredAt, err = time.Parse(timeFormat, acquiredAt)
		if err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("%w: lock time for %s: %v", ErrCorruptJournal, pkg, err)
		}
		locks[pkg] = append(locks[pkg], lock)
	}
	if err := closeRows(rows, "locks"); err != nil {
		return nil, nil, err
	}

	counts := make(map[journal.PackageIdentity]int, len(order))
	for _, e := range order {
		e.Usage = journal.NewPackageUsage(usage[e.Package])
		e.Locks = journal.NewPackageLocks(locks[e.Package])
		counts[e.Package] = len(usage[e.Package])
	}

	set, err := journal.NewEntrySet(order)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptJournal, err)
	}
	return set, counts, nil
}

// saveEntry writes one entry. Usage is append-only, so only timestamps past
// storedUsage are inserted; the lock set is replaced.
func saveEntry(ctx context.Context, q querier, e *journal.JournalEntry, storedUsage int) error {
	pkg := e.Package

	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO entries (package_id, version) VALUES (?, ?)`,
		pkg.PackageID, pkg.Version,
	); err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", pkg, err)
	}

	times := e.Usage.GetUsageDetails()
	if storedUsage > len(times) {
		return fmt.Errorf("usage history for %s shrank from %d to %d", pkg, storedUsage, len(times))
	}
	for _, t := range times[storedUsage:] {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO usage (package_id, version, used_at) VALUES (?, ?, ?)`,
			pkg.PackageID, pkg.Version, t.UTC().Format(timeFormat),
		); err != nil {
			return fmt.Errorf("failed to insert usage for %s: %w", pkg, err)
		}
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM locks WHERE package_id = ? AND version = ?`,
		pkg.PackageID, pkg.Version,
	); err != nil {
		return fmt.Errorf("failed to clear locks for %s: %w", pkg, err)
	}
	for _, l := range e.Locks.All() {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO locks (package_id, version, task_id, acquired_at, pid, hostname) VALUES (?, ?, ?, ?, ?, ?)`,
			pkg.PackageID, pkg.Version, l.TaskID.String(), l.AcquiredAt.UTC().Format(timeFormat), l.PID, l.Hostname,
		); err != nil {
			return fmt.Errorf("failed to insert lock %s on %s: %w", l.TaskID, pkg, err)
		}
	}

	return nil
}

func closeRows(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating %s: %w", what, err)
	}
	return rows.Close()
}

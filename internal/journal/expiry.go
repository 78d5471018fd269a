package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExpiryNotSupported is returned by ExpireStaleLocks when no staleness
// rule is configured. Callers depending on expiry to reclaim space must not
// mistake this for "nothing was stale".
var ErrExpiryNotSupported = errors.New("stale lock expiry is not configured: set a maximum lock age or enable liveness checks")

// Reasons recorded on expired locks.
const (
	ReasonOwnerExited = "owner-exited"
	ReasonMaxAge      = "max-age"
)

// ExpiryPolicy decides when a lock was abandoned by its task.
type ExpiryPolicy struct {
	// MaxLockAge expires locks acquired longer ago than this. Zero disables
	// the age rule.
	MaxLockAge time.Duration

	// CheckLiveness expires locks whose owning process ran on this host and
	// is no longer running.
	CheckLiveness bool
}

// Enabled reports whether the policy has at least one rule.
func (p ExpiryPolicy) Enabled() bool {
	return p.MaxLockAge > 0 || p.CheckLiveness
}

// ExpiredLock is a lock released (or, on a dry run, releasable) by expiry.
type ExpiredLock struct {
	Package PackageIdentity
	Lock    Lock
	Reason  string
}

// ExpireStaleLocks releases every lock the policy considers abandoned and
// returns them. Unlike registration it returns errors, and it fails with
// ErrExpiryNotSupported when the policy is empty.
func (j *Journal) ExpireStaleLocks(ctx context.Context) ([]ExpiredLock, error) {
	return j.expire(ctx, false)
}

// PreviewStaleLocks reports what ExpireStaleLocks would release without
// changing the journal.
func (j *Journal) PreviewStaleLocks(ctx context.Context) ([]ExpiredLock, error) {
	return j.expire(ctx, true)
}

func (j *Journal) expire(ctx context.Context, dryRun bool) ([]ExpiredLock, error) {
	if !j.policy.Enabled() {
		j.log.Error().Err(ErrExpiryNotSupported).Msg("cannot expire stale locks")
		return nil, ErrExpiryNotSupported
	}

	repo, err := j.factory.CreateJournalRepository()
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()

	var expired []ExpiredLock
	err = repo.Update(ctx, func(tx Transaction) (bool, error) {
		expired = expired[:0]
		now := j.now()
		for _, entry := range tx.Entries() {
			for _, lock := range entry.Locks.All() {
				reason, stale := j.staleReason(lock, now)
				if !stale {
					continue
				}
				expired = append(expired, ExpiredLock{Package: entry.Package, Lock: lock, Reason: reason})
				if !dryRun {
					entry.Locks.RemoveLock(lock.TaskID)
				}
			}
		}
		return !dryRun && len(expired) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire stale locks: %w", err)
	}

	if !dryRun {
		for _, e := range expired {
			j.log.Warn().
				Str("package", e.Package.PackageID).
				Str("version", e.Package.Version).
				Str("task", e.Lock.TaskID.String()).
				Int("pid", e.Lock.PID).
				Time("acquired_at", e.Lock.AcquiredAt).
				Str("reason", e.Reason).
				Msg("expired stale package lock")
		}
	}
	return expired, nil
}

// staleReason applies the policy to one lock. Liveness is checked first so
// the reported reason is the more specific one.
func (j *Journal) staleReason(lock Lock, now time.Time) (string, bool) {
	if j.policy.CheckLiveness && lock.PID > 0 && lock.Hostname != "" && lock.Hostname == j.owner.Hostname {
		if !j.alive(lock.PID) {
			return ReasonOwnerExited, true
		}
	}
	if j.policy.MaxLockAge > 0 && now.Sub(lock.AcquiredAt) > j.policy.MaxLockAge {
		return ReasonMaxAge, true
	}
	return "", false
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunLockName is the lock guarding a processing run.
const RunLockName = "process_unprocessed_threads"

const lockPollInterval = 200 * time.Millisecond

// Lease is a named, expiring lock row shared by every process using the
// same database. An expired lease can be taken over, so a crashed run
// blocks others for at most its TTL.
type Lease struct {
	db      *DB
	name    string
	owner   string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewLease returns a lease on name. TryLock waits up to timeout; a held
// lease expires after ttl.
func (d *DB) NewLease(name string, ttl, timeout time.Duration) *Lease {
	return &Lease{
		db:      d,
		name:    name,
		owner:   uuid.NewString(),
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

// Owner returns the id written into the lock row.
func (l *Lease) Owner() string {
	return l.owner
}

// TryLock acquires the lease, polling until the timeout elapses. It returns
// false without error while the lease is held, including by this owner.
func (l *Lease) TryLock(ctx context.Context) (bool, error) {
	deadline := l.now().Add(l.timeout)
	for {
		ok, err := l.acquire(ctx)
		if err != nil || ok {
			return ok, err
		}
		if !l.now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *Lease) acquire(ctx context.Context) (bool, error) {
	now := l.now()
	res, err := l.db.conn.ExecContext(ctx, `
		INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?`,
		l.name, l.owner, now.Add(l.ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.name, err)
	}
	return n == 1, nil
}

// Unlock releases the lease if this owner still holds it.
func (l *Lease) Unlock(ctx context.Context) error {
	_, err := l.db.conn.ExecContext(ctx, "DELETE FROM locks WHERE name = ? AND owner = ?", l.name, l.owner)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	return nil
}

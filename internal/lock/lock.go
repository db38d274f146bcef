// Package lock implements the single-writer mutual-exclusion protocol: a
// Postgres advisory lock scoped to one (schema, chain, purpose) triple, held
// on a dedicated connection for the life of the process.
package lock

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
)

const (
	maxRetries    = 4
	maxAttempts   = 1 + maxRetries
	retryInterval = 2 * time.Second
	purpose       = "indexer-writer"
)

// ErrLockBusy is returned when the advisory lock could not be acquired
// after the retry budget is exhausted.
type ErrLockBusy struct {
	LockID int64
}

func (e *ErrLockBusy) Error() string {
	return fmt.Sprintf("lock contention: advisory lock %d held by another process", e.LockID)
}

// Manager owns a single dedicated connection holding a Postgres advisory
// lock for the lifetime of the process (spec §4.1).
type Manager struct {
	conn   *sql.Conn
	closer func() error
	lockID int64
	log    *logger.Logger
}

// ID derives the deterministic signed 64-bit lock identifier from
// SHA-256(schema ":" chain_id ":" purpose)[0..8], per spec §4.1.
func ID(schema string, chainID uint64) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", schema, chainID, purpose)))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Acquire opens a dedicated connection and attempts a non-blocking advisory
// lock. On contention it retries up to maxRetries more times at
// retryInterval (maxAttempts total) to tolerate rolling deployments.
// Failure after the retry budget is fatal (spec §7, "Lock contention").
func Acquire(ctx context.Context, openConn func(ctx context.Context) (*sql.Conn, func() error, error),
	schema string, chainID uint64, log *logger.Logger) (*Manager, error) {
	lockID := ID(schema, chainID)
	elog := log.WithComponent("lock-manager")

	conn, closer, err := openConn(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening dedicated lock connection: %w", err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
			closer()
			return nil, fmt.Errorf("querying pg_try_advisory_lock: %w", err)
		}

		if acquired {
			elog.Event("lock_acquired").Infow("acquired advisory lock", "lock_id", lockID, "attempt", attempt)
			return &Manager{conn: conn, closer: closer, lockID: lockID, log: elog}, nil
		}

		elog.Event("lock_busy_retrying").Warnw("advisory lock busy, retrying",
			"lock_id", lockID, "attempt", attempt, "max_attempts", maxAttempts)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			closer()
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	closer()
	return nil, &ErrLockBusy{LockID: lockID}
}

// LockID returns the derived advisory lock identifier.
func (m *Manager) LockID() int64 { return m.lockID }

// Conn returns the dedicated connection holding the lock, for components
// that need a plain connection rather than a pooled one.
func (m *Manager) Conn() *sql.Conn { return m.conn }

// Release releases the advisory lock and closes the dedicated connection.
// Safe to call once during shutdown; losing the connection without calling
// Release is equivalent to losing the lock and must terminate the process.
func (m *Manager) Release(ctx context.Context) error {
	var released bool
	err := m.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", m.lockID).Scan(&released)
	closeErr := m.closer()
	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}
	if !released {
		m.log.Warnw("advisory unlock reported lock was not held", "lock_id", m.lockID)
	}
	return closeErr
}

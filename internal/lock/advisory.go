// Package lock provides MySQL advisory locking so two builds never write the same catalog.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
)

// ErrLockTimeout is returned when another instance holds the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast duplicate build detection.
	TimeoutShort = 1

	// TimeoutInfinite waits until the lock is acquired. MySQL treats negative values as infinite.
	TimeoutInfinite = -1
)

// maxLockNameLen is the MySQL limit on GET_LOCK names.
const maxLockNameLen = 64

// AdvisoryLock is a named MySQL GET_LOCK held on one pinned connection.
// MySQL scopes the lock to a session, so acquire and release must run on the
// same connection; the lock pins one from the pool while held.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the lock, waiting up to timeoutSeconds.
// It reports false without error when the wait expires.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.conn != nil {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the lock and returns its connection to the pool.
// It reports false without error when the lock was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this thread (not held)
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if a.conn == nil {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// AcquireOrFail acquires the lock with TimeoutShort and wraps ErrLockTimeout
// when another instance is holding it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// WithLock runs fn while holding the lock. The lock is released even if fn panics.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// Release on a fresh context; ctx may already be canceled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// GenerateBuildLockName creates the lock name for building the catalog at output.
// Names follow "shapecat:build:{output}" with unsafe characters replaced by
// underscores. Names longer than MySQL's limit keep a checksum suffix so distinct
// outputs stay distinct.
//
// Example: GenerateBuildLockName("out/catalog.sct") -> "shapecat:build:out_catalog_sct"
func GenerateBuildLockName(output string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, output)

	name := "shapecat:build:" + sanitized
	if len(name) <= maxLockNameLen {
		return name
	}
	suffix := fmt.Sprintf("~%08x", crc32.ChecksumIEEE([]byte(output)))
	return name[:maxLockNameLen-len(suffix)] + suffix
}

// NewBuildLock creates the advisory lock guarding a catalog output path.
//
//	lk := lock.NewBuildLock(db, cfg.Output.Path)
//	if err := lk.AcquireOrFail(ctx); err != nil {
//	    return err
//	}
//	defer lk.ReleaseLock(ctx)
func NewBuildLock(db *sql.DB, output string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateBuildLockName(output))
}

// IsBuildRunning reports whether another instance holds the build lock for output.
// The check is not atomic: the state can change right after it returns.
func IsBuildRunning(ctx context.Context, db *sql.DB, output string) (bool, error) {
	lk := NewBuildLock(db, output)

	acquired, err := lk.AcquireLock(ctx, TimeoutImmediate)
	if err != nil {
		return false, fmt.Errorf("failed to check if build for %q is running: %w", output, err)
	}
	if acquired {
		_, _ = lk.ReleaseLock(ctx)
		return false, nil
	}
	return true, nil
}

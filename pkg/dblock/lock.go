// Package dblock serializes schema migrations across server replicas.
// PostgreSQL deployments use advisory locks; SQLite falls back to an
// insert-or-fail lock table with stale-lock recovery.
package dblock

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// Locker runs a function while holding a named cross-replica lock.
type Locker interface {
	// WithLock blocks until the lock is acquired, runs fn, and releases
	// the lock after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// New creates a Locker for the database dialect. name distinguishes
// independent locks sharing one database.
func New(db *gorm.DB, name string) Locker {
	if db == nil {
		return noopLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &advisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(name))),
		}
	}
	lock := &tableLock{db: db, name: name}
	// Create the lock table up front so concurrent first callers never
	// race on "no such table".
	_ = db.AutoMigrate(&lockRecord{})
	return lock
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func() error) error { return fn() }

// advisoryLock holds a PostgreSQL session advisory lock for the duration
// of fn.
type advisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()
	return fn()
}

type lockRecord struct {
	Name     string    `gorm:"primaryKey;column:name"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (lockRecord) TableName() string { return "registry_locks" }

// tableLock is the non-PostgreSQL fallback: the primary-key insert either
// succeeds and grants the lock or fails because another holder exists.
// Rows older than staleLockAge are treated as crashed holders.
type tableLock struct {
	db   *gorm.DB
	name string
}

const (
	lockMaxRetries   = 30
	lockRetryBackoff = time.Second
	staleLockAge     = 5 * time.Minute
)

func (l *tableLock) WithLock(ctx context.Context, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	row := lockRecord{Name: l.name, LockedBy: hostname}

	acquired := false
	for i := 0; i < lockMaxRetries; i++ {
		l.db.WithContext(ctx).
			Where("name = ? AND locked_at < ?", l.name, time.Now().Add(-staleLockAge)).
			Delete(&lockRecord{})

		row.LockedAt = time.Now()
		result := l.db.WithContext(ctx).Create(&row)
		if result.Error == nil {
			acquired = true
			break
		}
		if i == lockMaxRetries-1 {
			return fmt.Errorf("failed to acquire lock %q after %d retries: %w",
				l.name, lockMaxRetries, result.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock %q", l.name)
	}

	defer func() {
		l.db.Where("name = ?", l.name).Delete(&lockRecord{})
	}()
	return fn()
}

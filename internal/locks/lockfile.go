// Package locks provides cross-process exclusive locks backed by lock files.
package locks

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// DefaultRetryDelay is how often a blocked Lock retries the file lock.
const DefaultRetryDelay = 100 * time.Millisecond

// Lockfile is an exclusive lock on a file path, shared across processes on the same host.
type Lockfile struct {
	*flock.Flock

	logger     log.Logger
	retryDelay time.Duration
}

// Option configures a Lockfile.
type Option func(*Lockfile)

// WithRetryDelay sets the polling interval used while waiting for the lock.
func WithRetryDelay(delay time.Duration) Option {
	return func(lockfile *Lockfile) {
		lockfile.retryDelay = delay
	}
}

// NewLockfile returns an unlocked Lockfile for filename.
func NewLockfile(logger log.Logger, filename string, opts ...Option) *Lockfile {
	lockfile := &Lockfile{
		Flock:      flock.New(filename),
		logger:     logger,
		retryDelay: DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(lockfile)
	}

	return lockfile
}

// Acquire creates a Lockfile for filename and blocks until it is held or ctx is done.
func Acquire(ctx context.Context, logger log.Logger, filename string, opts ...Option) (*Lockfile, error) {
	lockfile := NewLockfile(logger, filename, opts...)

	if err := lockfile.Lock(ctx); err != nil {
		return nil, err
	}

	return lockfile, nil
}

// Lock blocks until the file lock is acquired or ctx is done. The parent directory is
// created if missing.
func (lockfile *Lockfile) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(lockfile.Path()), 0o700); err != nil {
		return errors.New(err)
	}

	lockfile.logger.Tracef("Try to lock file %s", lockfile.Path())

	locked, err := lockfile.TryLockContext(ctx, lockfile.retryDelay)
	if err != nil {
		return errors.WithStackTraceAndPrefix(err, "locking %s", lockfile.Path())
	}

	if !locked {
		return errors.Errorf("unable to lock file %q", lockfile.Path())
	}

	lockfile.logger.Tracef("Locked file %s", lockfile.Path())

	return nil
}

// Unlock releases the lock. Unlocking a Lockfile that is not held is a no-op.
func (lockfile *Lockfile) Unlock() error {
	if !lockfile.Locked() {
		return nil
	}

	lockfile.logger.Tracef("Unlock file %s", lockfile.Path())

	return errors.WithStackTrace(lockfile.Flock.Unlock())
}

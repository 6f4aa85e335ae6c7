// Package lockfile provides advisory file locking used by C1 to guarantee
// single-writer access to a database directory. Grounded on the teacher's
// internal/lockfile (flock wrappers behind storage/dolt's AccessLock),
// including its cross-platform build-tag split.
package lockfile

import (
	"errors"
	"os"
)

// ErrBusy is returned when a conflicting lock is already held by another
// process.
var ErrBusy = errors.New("lockfile: busy, held by another process")

// Lock represents a held advisory lock on a file.
type Lock struct {
	f *os.File
}

// AcquireExclusive opens (creating if necessary) path and takes a
// non-blocking exclusive flock on it. Returns ErrBusy if another process
// already holds it.
func AcquireExclusive(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the underlying file handle.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := funlock(l.f)
	closeErr := l.f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

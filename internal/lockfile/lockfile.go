// Package lockfile provides an exclusive lock keyed on the install path so
// only one update attempt can mutate an installation at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrHeld indicates another update attempt already holds the lock for this
// install path.
var ErrHeld = errors.New("update lock already held")

// lockSuffix is appended to the install path to form the lock file location,
// keeping the lock on the same filesystem as the file it guards.
const lockSuffix = ".lock"

// Lock is a held exclusive lock. Release must be called on every exit path.
type Lock struct {
	path string
}

// Acquire takes the exclusive lock for installPath. It fails with ErrHeld
// (wrapped) when the lock file already exists. The holder's pid is written
// into the file for diagnostics.
func Acquire(installPath string) (*Lock, error) {
	path := installPath + lockSuffix

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder := readHolder(path)
			return nil, fmt.Errorf("%w: %s (held by pid %s)", ErrHeld, path, holder)
		}
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, errors.Join(writeErr, closeErr))
	}

	return &Lock{path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file. Releasing an already-released lock is a
// no-op.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}

// readHolder returns the pid recorded in an existing lock file, or "unknown".
func readHolder(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	pid := string(content)
	if len(pid) > 0 && pid[len(pid)-1] == '\n' {
		pid = pid[:len(pid)-1]
	}
	if pid == "" {
		return "unknown"
	}
	return pid
}

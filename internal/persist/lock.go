package persist

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tentenbyte/stockd/internal/errors"
)

// acquireLock opens the lock file and takes an exclusive, non-blocking
// advisory lock on it. The lock is held for the file's lifetime and released
// by the OS if the process dies.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrapf(errors.ErrLockHeld, "%s", path)
	}

	return f, nil
}

// releaseLock drops the advisory lock by closing the file.
func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}

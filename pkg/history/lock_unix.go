//go:build !windows

package history

import (
	"os"

	"golang.org/x/sys/unix"

	"thoreinstein.com/shist/pkg/errors"
)

// lockFile takes a non-blocking exclusive advisory lock on f. Only the
// owning session's writer holds it; readers never lock.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	return errors.NewLockError(f.Name(), errors.Is(err, unix.EWOULDBLOCK), err)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

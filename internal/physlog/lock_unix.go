//go:build unix

package physlog

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	return errors.Wrap(err, "lock extent file")
}

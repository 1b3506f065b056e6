//go:build !windows

package download

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive acquires a blocking exclusive advisory lock on file (spec
// §4.6 step 4: "POSIX uses a blocking lock"; §9 design note: "On POSIX a
// blocking lock is acceptable").
func lockExclusive(file *os.File) (unlock func(), err error) {
	fd := int(file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("download: acquiring file lock: %w", err)
	}
	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
	}, nil
}

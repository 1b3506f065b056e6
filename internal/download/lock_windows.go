//go:build windows

package download

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockExclusive acquires a non-blocking exclusive lock on file (spec §4.6
// step 4: "Windows uses a non-blocking try-lock (fails with LockFailure if
// held)"; §9 design note: "blocking file locks on Windows do not support
// cancellation").
func lockExclusive(file *os.File) (unlock func(), err error) {
	handle := windows.Handle(file.Fd())
	overlapped := new(windows.Overlapped)

	err = windows.LockFileEx(
		handle,
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		^uint32(0),
		^uint32(0),
		overlapped,
	)
	if err != nil {
		return nil, ErrLockFailure
	}

	return func() {
		_ = windows.UnlockFileEx(handle, 0, ^uint32(0), ^uint32(0), overlapped)
	}, nil
}

//go:build windows

package writer

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// acquireRotationLock acquires an exclusive lock guarding rotation of the
// log file at path, returning a function to release it. Adapted from
// stdx/xlog/rlog's own LockFileEx-based rotation guard.
func acquireRotationLock(path string) (func(), error) {
	lockPath := filepath.Join(filepath.Dir(path), ".ulog-rotate.lock")
	file, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	h := windows.Handle(file.Fd())
	overlapped := windows.Overlapped{}
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &overlapped); err != nil {
		file.Close()
		return nil, err
	}
	return func() {
		windows.UnlockFileEx(h, 0, 1, 0, &overlapped)
		file.Close()
	}, nil
}

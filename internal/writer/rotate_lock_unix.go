//go:build linux || darwin || freebsd || netbsd || openbsd

package writer

import (
	"os"
	"path/filepath"
	"syscall"
)

// acquireRotationLock acquires an exclusive lock guarding rotation of the
// log file at path, returning a function to release it. Adapted from
// stdx/xlog/rlog's own flock-based rotation guard, generalized from a
// fixed "DirPath" config field to the path of whichever file is rotating.
func acquireRotationLock(path string) (func(), error) {
	lockPath := filepath.Join(filepath.Dir(path), ".ulog-rotate.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

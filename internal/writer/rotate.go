package writer

import (
	"fmt"
	"os"
)

// archivePath returns "<base>.<k>" for k in [1, MaxArchives].
func archivePath(base string, k int) string {
	return fmt.Sprintf("%s.%d", base, k)
}

// rotate implements spec.md §4.2's rotation algorithm: close the file,
// delete the oldest archive, shift the rest up by one, rename the base
// file into .1, then open a fresh base file. A single process-local
// Writer never rotates concurrently with itself, but the archive
// directory may be shared with other processes (spec.md §9's writer.go
// analogue), so rotation is guarded by a cross-process file lock exactly
// as the teacher's rlog package guards its own rename sequence.
func (w *Writer) rotate() error {
	unlock, err := acquireRotationLock(w.cfg.Path)
	if err != nil {
		return fmt.Errorf("writer: acquire rotation lock: %w", err)
	}
	defer unlock()

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("writer: close before rotate: %w", err)
		}
		w.file = nil
	}

	if err := rotateArchives(w.cfg.Path, w.cfg.MaxArchives); err != nil {
		// one retry, per spec.md §4.2 and §7
		if err2 := rotateArchives(w.cfg.Path, w.cfg.MaxArchives); err2 != nil {
			return fmt.Errorf("writer: rotate (after retry): %w", err2)
		}
	}

	f, size, err := openAppend(w.cfg.Path)
	if err != nil {
		return fmt.Errorf("writer: reopen after rotate: %w", err)
	}
	w.file = f
	w.size = size
	return nil
}

// rotateArchives performs the rename chain. maxArchives <= 0 means
// rotation is effectively just "truncate the base file" (no archives
// kept).
func rotateArchives(base string, maxArchives int) error {
	if maxArchives <= 0 {
		// No archives kept: discard the current file outright so the
		// caller reopens an empty one.
		if err := os.Remove(base); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", base, err)
		}
		return nil
	}
	oldest := archivePath(base, maxArchives)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("remove %q: %w", oldest, err)
		}
	}
	for k := maxArchives - 1; k >= 1; k-- {
		src := archivePath(base, k)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := archivePath(base, k+1)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("rename %q -> %q: %w", src, dst, err)
		}
	}
	if err := os.Rename(base, archivePath(base, 1)); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", base, archivePath(base, 1), err)
	}
	return nil
}

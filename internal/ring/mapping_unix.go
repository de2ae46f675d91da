//go:build linux || darwin || freebsd || netbsd || openbsd

package ring

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// fileRegion is a Region backed by an anonymous (unlinked) file in
// os.TempDir, mapped MAP_SHARED so both processes see the same pages.
// Using a real (briefly-named) file rather than POSIX shm_open keeps the
// "name" concept in spec.md §4.3 simple: it's just a path the child
// receives as an argv string and opens itself.
type fileRegion struct {
	f    *os.File
	mem  []byte
	size int
}

// CreateRegion creates and maps a new region of the given total size
// (header + ring data), named by path. The caller (the producer) is
// responsible for arranging for the path to be cleaned up once both
// processes have attached.
func CreateRegion(path string, size uint64) (Region, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ring: create region dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ring: create region file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ring: size region file: %w", err)
	}
	mem, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("ring: mmap region: %w", err)
	}
	return &fileRegion{f: f, mem: mem, size: int(size)}, nil
}

// OpenRegion maps an existing region previously created by CreateRegion.
// Called by the writer child with the path it was given on argv.
func OpenRegion(path string, size uint64) (Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ring: open region file: %w", err)
	}
	mem, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap region: %w", err)
	}
	return &fileRegion{f: f, mem: mem, size: int(size)}, nil
}

// RemoveRegionFile unlinks the backing file. Safe to call once both
// processes hold live mappings — the pages stay resident until both
// munmap.
func RemoveRegionFile(path string) error { return os.Remove(path) }

func (fr *fileRegion) Bytes() []byte { return fr.mem }

func (fr *fileRegion) Close() error {
	err := syscall.Munmap(fr.mem)
	if cerr := fr.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ProcessAlive reports whether pid refers to a live process, using the
// null-signal probe (spec.md §4.1/§4.2's "process-existence probe").
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

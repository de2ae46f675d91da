//go:build windows

package ring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winRegion is a Region backed by a named, pagefile-backed Windows file
// mapping — the pagefile-backed equivalent of the anonymous mapping used
// on POSIX, addressed by name instead of path (spec.md §4.3's "name").
type winRegion struct {
	handle windows.Handle
	addr   uintptr
	mem    []byte
}

// CreateRegion creates a new named file mapping of the given total size
// and maps it into this process.
func CreateRegion(name string, size uint64) (Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("ring: region name: %w", err)
	}
	high := uint32(size >> 32)
	low := uint32(size & 0xFFFFFFFF)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, high, low, namePtr)
	if err != nil {
		return nil, fmt.Errorf("ring: CreateFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("ring: MapViewOfFile: %w", err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &winRegion{handle: h, addr: addr, mem: mem}, nil
}

// OpenRegion opens and maps an existing named file mapping created by
// CreateRegion in another process.
func OpenRegion(name string, size uint64) (Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("ring: region name: %w", err)
	}
	h, err := windows.OpenFileMapping(windows.FILE_MAP_WRITE, false, namePtr)
	if err != nil {
		return nil, fmt.Errorf("ring: OpenFileMapping: %w", err)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("ring: MapViewOfFile: %w", err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &winRegion{handle: h, addr: addr, mem: mem}, nil
}

// RemoveRegionFile is a no-op on Windows: named mappings have no backing
// file path to unlink, and the kernel object is released by Close.
func RemoveRegionFile(name string) error { return nil }

func (wr *winRegion) Bytes() []byte { return wr.mem }

func (wr *winRegion) Close() error {
	err := windows.UnmapViewOfFile(wr.addr)
	if cerr := windows.CloseHandle(wr.handle); err == nil {
		err = cerr
	}
	return err
}

// ProcessAlive reports whether pid refers to a live process, mirroring
// the POSIX null-signal probe via OpenProcess + GetExitCodeProcess.
func ProcessAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	const stillActive = 259
	return code == stillActive
}

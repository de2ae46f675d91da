package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashgrove-dev/ulog/internal/backoff"
	"github.com/ashgrove-dev/ulog/internal/frame"
	"github.com/ashgrove-dev/ulog/internal/ring"
)

// memRegion is an in-process Region stand-in, mirroring ring package's
// own test helper, used here to drive Writer.Run end-to-end without a
// real memory mapping.
type memRegion struct{ mem []byte }

func (m *memRegion) Bytes() []byte { return m.mem }
func (m *memRegion) Close() error  { return nil }

func newTestRing(t *testing.T, dataSize uint64) *ring.Ring {
	t.Helper()
	r, err := ring.Init(&memRegion{mem: make([]byte, ring.Layout(dataSize))}, dataSize)
	if err != nil {
		t.Fatalf("ring.Init: %v", err)
	}
	return r
}

func TestWriteFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	w, err := New(Config{Path: path}, newTestRing(t, 512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.consume([]byte("hello")); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := w.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	// 3 + 7 = 10 bytes exceeds the 9-byte threshold, so the second flush
	// rotates "abc" into .1 before writing.
	w, err := New(Config{Path: path, MaxFileSize: 9, MaxArchives: 3}, newTestRing(t, 512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.consume([]byte("abc")); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := w.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.consume([]byte("defghij")); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := w.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "defghij" {
		t.Errorf("latest.log = %q, want %q", got, "defghij")
	}
	archived, _ := os.ReadFile(path + ".1")
	if string(archived) != "abc" {
		t.Errorf(".1 archive = %q, want %q", archived, "abc")
	}
}

func TestArchiveOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	w, err := New(Config{Path: path, MaxFileSize: 4, MaxArchives: 2}, newTestRing(t, 512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, tok := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		if err := w.consume([]byte(tok)); err != nil {
			t.Fatalf("consume: %v", err)
		}
		if err := w.flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no .3 archive with MaxArchives=2")
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected .1 archive to exist: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("expected .2 archive to exist: %v", err)
	}
}

func TestBypassesStagingForLargePayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	w, err := New(Config{Path: path}, newTestRing(t, 8192))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	big := bytes.Repeat([]byte("x"), StagingSize+10)
	if err := w.consume(big); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(w.stage) != 0 {
		t.Errorf("large payload leaked into staging buffer: len=%d", len(w.stage))
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, big) {
		t.Errorf("file contents mismatch for bypassed write")
	}
}

func TestRunConsumesCloseFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	r := newTestRing(t, 512)
	spin := backoff.Default()
	if err := r.Push(frame.LogMsg, []byte("hi"), spin); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.Push(frame.Close, nil, spin); err != nil {
		t.Fatalf("push close: %v", err)
	}

	w, err := New(Config{Path: path}, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Run(os.Getpid()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
}

func TestRunDetectsFramingCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.log")
	r := newTestRing(t, 512)
	// Manually corrupt: push a real frame then overwrite its command byte.
	spin := backoff.Default()
	if err := r.Push(frame.LogMsg, []byte("ok"), spin); err != nil {
		t.Fatalf("push: %v", err)
	}
	r.Slice(0, 1)[0] = 0x7F // unknown command

	w, err := New(Config{Path: path}, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Run(os.Getpid()); err == nil {
		t.Fatalf("expected framing corruption error")
	}
}

// Package writer implements the child process side of the logger: it
// owns the log file (or standard output), polls the shared ring for
// frames, coalesces them into a fixed staging buffer, flushes to disk,
// rotates when the file grows past its archive threshold, and watches
// for the parent process dying so it can drain and exit cleanly instead
// of hanging forever.
package writer

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ashgrove-dev/ulog/internal/frame"
	"github.com/ashgrove-dev/ulog/internal/ring"
)

// StagingSize is the fixed size of the in-memory buffer frames are
// coalesced into before a single file write (spec.md §3).
const StagingSize = 1024

// parentCheckInterval bounds how often the writer re-verifies the parent
// process is still alive (spec.md §4.2: "≤ 1 s").
const parentCheckInterval = 750 * time.Millisecond

// idlePollInterval is how long the writer sleeps when the ring is empty
// before re-checking the write cursor (spec.md §4.2: "sleep briefly").
const idlePollInterval = 2 * time.Millisecond

// Config configures one Writer instance, mirroring the settings the
// producer passed across the bootstrap protocol (spec.md §4.3).
type Config struct {
	Path        string // ignored when Stdout is true
	Stdout      bool
	MaxFileSize int64 // <= 0 disables rotation entirely
	MaxArchives int
}

// State mirrors spec.md §4.2's Starting -> Running -> Draining -> Exited
// lifecycle, published into the ring's status word for the producer to
// observe via Logger.Writer()-style introspection.
type State = byte

const (
	StateStarting = ring.StateStarting
	StateRunning  = ring.StateRunning
	StateDraining = ring.StateDraining
	StateExited   = ring.StateExited
)

// Writer is the consumer half of the pipeline.
type Writer struct {
	cfg    Config
	file   *os.File
	size   int64
	stage  []byte
	ring   *ring.Ring
	pos    uint64
	isTTY  bool
	errLog *log.Logger
}

// New opens the output (file or stdout) and prepares a Writer ready to
// Run against r.
func New(cfg Config, r *ring.Ring) (*Writer, error) {
	w := &Writer{
		cfg:    cfg,
		stage:  make([]byte, 0, StagingSize),
		ring:   r,
		errLog: log.New(os.Stderr, "ulog-writer: ", log.LstdFlags),
	}
	if cfg.Stdout {
		w.isTTY = isTerminalStdout()
	} else {
		f, size, err := openAppend(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("writer: open %q: %w", cfg.Path, err)
		}
		w.file = f
		w.size = size
	}
	return w, nil
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Run executes the main poll loop described in spec.md §4.2 until a
// Close frame is consumed (clean, returns nil) or the parent process
// disappears (clean drain-then-exit, returns nil) or a framing error or
// I/O failure forces an abort (returns a non-nil error; the caller
// should exit non-zero so the producer observes "writer dead").
func (w *Writer) Run(parentPID int) error {
	w.ring.SetStatus(StateRunning, false)
	lastParentCheck := time.Now()

	for {
		write := w.ring.WriteCursor()
		if w.pos == write {
			if time.Since(lastParentCheck) >= parentCheckInterval {
				lastParentCheck = time.Now()
				if !ring.ProcessAlive(parentPID) {
					return w.drainAndExit()
				}
			}
			time.Sleep(idlePollInterval)
			continue
		}

		cmd := frame.Command(w.ring.ByteAt(w.pos))
		if cmd == frame.Pad {
			w.pos += w.ring.DistanceToWrap(w.pos)
			w.ring.Advance(w.pos)
			continue
		}
		if !cmd.Valid() {
			w.ring.SetStatus(StateExited, true)
			w.flush()
			return fmt.Errorf("writer: framing corruption: unknown command %#x", byte(cmd))
		}
		if write-w.pos < uint64(frame.HeaderSize) {
			w.ring.SetStatus(StateExited, true)
			w.flush()
			return fmt.Errorf("writer: framing corruption: truncated header")
		}
		hdr := w.ring.Slice(w.pos, uint64(frame.HeaderSize))
		_, length := frame.DecodeHeader(hdr)
		total := uint64(frame.HeaderSize) + uint64(length)
		if total > write-w.pos {
			w.ring.SetStatus(StateExited, true)
			w.flush()
			return fmt.Errorf("writer: framing corruption: length %d exceeds available bytes", length)
		}
		payload := w.ring.Slice(w.pos+uint64(frame.HeaderSize), uint64(length))

		switch cmd {
		case frame.LogMsg:
			if err := w.consume(payload); err != nil {
				w.ring.SetStatus(StateExited, true)
				return err
			}
		case frame.Close:
			w.ring.SetStatus(StateDraining, false)
			err := w.flushAndClose()
			w.ring.SetStatus(StateExited, err != nil)
			return err
		}

		w.pos += total
		w.ring.Advance(w.pos)

		if time.Since(lastParentCheck) >= parentCheckInterval {
			lastParentCheck = time.Now()
			if !ring.ProcessAlive(parentPID) {
				return w.drainAndExit()
			}
		}
	}
}

// drainAndExit consumes whatever has already been published (preserving
// messages written before a producer crash) then flushes and exits
// cleanly, per spec.md §4.2's parent-liveness behavior.
func (w *Writer) drainAndExit() error {
	w.ring.SetStatus(StateDraining, false)
	for {
		write := w.ring.WriteCursor()
		if w.pos == write {
			break
		}
		cmd := frame.Command(w.ring.ByteAt(w.pos))
		if cmd == frame.Pad {
			w.pos += w.ring.DistanceToWrap(w.pos)
			w.ring.Advance(w.pos)
			continue
		}
		if !cmd.Valid() || write-w.pos < uint64(frame.HeaderSize) {
			break
		}
		hdr := w.ring.Slice(w.pos, uint64(frame.HeaderSize))
		_, length := frame.DecodeHeader(hdr)
		total := uint64(frame.HeaderSize) + uint64(length)
		if total > write-w.pos {
			break
		}
		payload := w.ring.Slice(w.pos+uint64(frame.HeaderSize), uint64(length))
		if cmd == frame.LogMsg {
			_ = w.consume(payload)
		}
		w.pos += total
		w.ring.Advance(w.pos)
		if cmd == frame.Close {
			break
		}
	}
	err := w.flushAndClose()
	w.ring.SetStatus(StateExited, err != nil)
	return err
}

// consume appends payload to the staging buffer, flushing first if it
// would overflow, and bypasses staging entirely for payloads at or above
// StagingSize (spec.md §4.2 item 2).
func (w *Writer) consume(payload []byte) error {
	if len(payload) >= StagingSize {
		if err := w.flush(); err != nil {
			return err
		}
		return w.writeDirect(payload)
	}
	if len(w.stage)+len(payload) > StagingSize {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.stage = append(w.stage, payload...)
	if w.isTTY {
		return w.flush()
	}
	return nil
}

// flush writes any staged bytes out, rotating first if needed.
func (w *Writer) flush() error {
	if len(w.stage) == 0 {
		return nil
	}
	if err := w.rotateIfNeeded(int64(len(w.stage))); err != nil {
		return err
	}
	if err := w.writeOut(w.stage); err != nil {
		return err
	}
	w.size += int64(len(w.stage))
	w.stage = w.stage[:0]
	return nil
}

// writeDirect streams a large payload straight to the output, bypassing
// the staging buffer.
func (w *Writer) writeDirect(payload []byte) error {
	if err := w.rotateIfNeeded(int64(len(payload))); err != nil {
		return err
	}
	if err := w.writeOut(payload); err != nil {
		return err
	}
	w.size += int64(len(payload))
	return nil
}

func (w *Writer) writeOut(p []byte) error {
	var dst io.Writer = os.Stdout
	if w.file != nil {
		dst = w.file
	}
	if _, err := dst.Write(p); err != nil {
		w.errLog.Printf("write failed: %v", err)
		return fmt.Errorf("writer: write: %w", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			w.errLog.Printf("sync failed: %v", err)
			return fmt.Errorf("writer: sync: %w", err)
		}
	}
	return nil
}

func (w *Writer) flushAndClose() error {
	ferr := w.flush()
	var cerr error
	if w.file != nil {
		cerr = w.file.Close()
	}
	if ferr != nil {
		return ferr
	}
	return cerr
}

func (w *Writer) rotateIfNeeded(additional int64) error {
	if w.file == nil || w.cfg.MaxFileSize <= 0 {
		return nil
	}
	if w.size+additional <= w.cfg.MaxFileSize {
		return nil
	}
	return w.rotate()
}

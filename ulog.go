// Package ulog is a low-latency, high-throughput application logging
// library. A Logger formats a line, acquires a slot in a shared-memory
// ring, copies bytes in, and advances a write cursor; a dedicated child
// Writer process drains the ring into a file (or standard output),
// coalescing small frames and rotating the file when it grows past a
// configured threshold.
//
// Usage:
//
//	package main
//
//	import "github.com/ashgrove-dev/ulog"
//
//	logger := ulog.New()
//	if err := logger.Open("./app.log"); err != nil {
//		panic(err)
//	}
//	defer logger.Close()
//
//	logger.Infof("started with config %v", cfg)
//	logger.Errorf("request failed: %v", err)
package ulog

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ashgrove-dev/ulog/internal/backoff"
	"github.com/ashgrove-dev/ulog/internal/frame"
	"github.com/ashgrove-dev/ulog/internal/ring"
)

// Severity letters wired to the formatted-write operations (spec.md §4.1,
// §6); Debug supplements the four spec.md names, carried over from the
// teacher's own debug level.
const (
	severityDebug byte = 'D'
	severityInfo  byte = 'I'
	severityWarn  byte = 'W'
	severityError byte = 'E'
	severityFatal byte = 'F'
)

const (
	defaultRingSize    = 1 << 20 // 1 MiB
	minRingSize        = 1 << 10 // 1 KiB
	maxRingSize        = 1 << 32 // 4 GiB, matching frame's 32-bit length field ceiling
	defaultMaxArchives = 3
	closeTimeout       = 2 * time.Second
	spawnTimeout       = 2 * time.Second
	spawnPollInterval  = 2 * time.Millisecond
)

// WriterStatus is a snapshot of the Writer child's last published
// lifecycle state, returned by Logger.Writer() for health introspection
// (modeled on the teacher's xlog.Logger.Writer() accessor, repurposed here
// since the Writer lives in a separate process rather than behind an
// io.Writer).
type WriterStatus struct {
	State    byte // one of writer.StateStarting/Running/Draining/Exited
	HadError bool
}

// Logger is the producer-side handle described in spec.md §3. It is
// created inert; Open or OpenStdOut starts the Writer and maps the ring.
type Logger struct {
	mu sync.Mutex

	// IncludeDate controls whether formatted lines carry the 42-byte
	// timestamp/severity/tid prefix (spec.md §4.1, §6). Must only be
	// changed while the Logger is not mid-write from another goroutine;
	// the external contract is single-producer.
	IncludeDate bool

	ringSize    uint64
	maxFileSize int64
	maxArchives int

	testPrefix string // internal 42-byte test override, spec.md §3

	lastPathArg string // path argv passed to the writer, or stdoutSentinel

	open       bool
	writerDead bool
	region     ring.Region
	regionPath string
	r          *ring.Ring
	cmd        *exec.Cmd
	spin       *backoff.Spinner
}

// New returns an inert Logger with the spec.md §3 defaults: 1 MiB ring,
// rotation off (archive count 3, no size threshold until one is set),
// dated prefixes enabled.
func New() *Logger {
	return &Logger{
		IncludeDate: true,
		ringSize:    defaultRingSize,
		maxArchives: defaultMaxArchives,
	}
}

// SetRingBufferSize rounds bytes up to a power of two, clamped to a
// minimum of 1 KiB, and must be called before Open (spec.md §4.1). bytes
// beyond maxRingSize is rejected rather than silently clamped, since a
// ring that large would no longer fit the frame length field's range.
func (l *Logger) SetRingBufferSize(bytes uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return fmt.Errorf("ulog: set ring buffer size: %w", ErrAlreadyOpen)
	}
	if bytes > maxRingSize {
		return fmt.Errorf("ulog: ring size %d exceeds maximum %d: %w", bytes, uint64(maxRingSize), ErrInvalidRingSize)
	}
	if bytes < minRingSize {
		bytes = minRingSize
	}
	l.ringSize = nextPowerOfTwo(bytes)
	return nil
}

// SetArchiveSettings configures size-bounded rotation and must be called
// before Open (spec.md §4.1). maxFileSize <= 0 disables rotation.
func (l *Logger) SetArchiveSettings(maxFileSize int64, maxArchives int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return fmt.Errorf("ulog: set archive settings: %w", ErrAlreadyOpen)
	}
	if maxArchives < 0 {
		return fmt.Errorf("ulog: archive count %d: %w", maxArchives, ErrInvalidArchiveSettings)
	}
	l.maxFileSize = maxFileSize
	l.maxArchives = maxArchives
	return nil
}

// Open creates a shared ring and spawns the Writer to append to path
// (spec.md §4.1).
func (l *Logger) Open(path string) error {
	return l.open_(path, false)
}

// OpenStdOut starts the Writer targeting standard output; rotation never
// triggers in this mode (spec.md §4.1).
func (l *Logger) OpenStdOut() error {
	return l.open_(stdoutSentinel, true)
}

func (l *Logger) open_(pathArg string, stdout bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked(pathArg, stdout)
}

// openLocked is the body of Open/OpenStdOut; it assumes l.mu is already
// held, so restartWriter (called from within LogRaw's critical section)
// can reuse it without a reentrant lock.
func (l *Logger) openLocked(pathArg string, stdout bool) error {
	if l.open {
		return fmt.Errorf("ulog: open: %w", ErrAlreadyOpen)
	}

	regionPath := filepath.Join(os.TempDir(), fmt.Sprintf("ulog-%d-%x", os.Getpid(), rand.Uint64()))
	region, err := ring.CreateRegion(regionPath, ring.Layout(l.ringSize))
	if err != nil {
		return fmt.Errorf("ulog: map shared region: %w: %v", ErrMapFailed, err)
	}
	r, err := ring.Init(region, l.ringSize)
	if err != nil {
		region.Close()
		ring.RemoveRegionFile(regionPath)
		return fmt.Errorf("ulog: init ring: %w: %v", ErrMapFailed, err)
	}

	cmd := exec.Command(os.Args[0],
		writerMarker,
		regionPath,
		strconv.FormatUint(l.ringSize, 10),
		pathArg,
		strconv.FormatInt(l.maxFileSize, 10),
		strconv.Itoa(l.maxArchives),
		strconv.Itoa(os.Getpid()),
	)
	cmd.Stderr = os.Stderr
	if stdout {
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Start(); err != nil {
		r.Close()
		ring.RemoveRegionFile(regionPath)
		return fmt.Errorf("ulog: spawn writer: %w: %v", ErrSpawnFailed, err)
	}

	if err := waitForWriterStart(r); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		r.Close()
		ring.RemoveRegionFile(regionPath)
		return fmt.Errorf("ulog: %w: %v", ErrSpawnFailed, err)
	}
	// The child has its own descriptor/mapping open now; the backing
	// file can be unlinked (a no-op on Windows) without disturbing
	// either side's view of the region.
	ring.RemoveRegionFile(regionPath)

	l.region = region
	l.regionPath = regionPath
	l.r = r
	l.cmd = cmd
	l.spin = backoff.Default()
	l.writerDead = false
	l.lastPathArg = pathArg
	l.open = true
	return nil
}

// setTestPrefix pins the 42-byte prefix used by formatted writes,
// bypassing the timestamp/tid computation. Internal only (spec.md §3):
// exercised by this package's own tests, never part of the public API.
func (l *Logger) setTestPrefix(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.testPrefix = p
}

func waitForWriterStart(r *ring.Ring) error {
	deadline := time.Now().Add(spawnTimeout)
	for {
		state, hadErr := r.Status()
		if state == ring.StateRunning {
			return nil
		}
		if state == ring.StateExited {
			if hadErr {
				return fmt.Errorf("writer exited immediately with an error")
			}
			return fmt.Errorf("writer exited immediately")
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("writer did not reach Running within %s", spawnTimeout)
		}
		time.Sleep(spawnPollInterval)
	}
}

// Close submits a Close frame and waits (bounded) for the Writer to exit,
// force-killing it on timeout (spec.md §4.1, §5).
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return fmt.Errorf("ulog: close: %w", ErrClosed)
	}

	pushErr := l.r.Push(frame.Close, nil, l.spin)

	done := make(chan error, 1)
	go func() { done <- l.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		l.cmd.Process.Kill()
		<-done
	}

	closeErr := l.r.Close()
	l.open = false
	l.r = nil
	l.cmd = nil
	l.region = nil

	if pushErr != nil {
		return fmt.Errorf("ulog: close: submit close frame: %w", pushErr)
	}
	return closeErr
}

// Flush blocks until the Writer has drained everything submitted so far,
// without closing the Logger (teacher's xlog.Logger.Flush / rlog.Writer.Flush).
func (l *Logger) Flush() error {
	l.mu.Lock()
	r := l.r
	open := l.open
	l.mu.Unlock()
	if !open {
		return fmt.Errorf("ulog: flush: %w", ErrClosed)
	}
	target := r.WriteCursor()
	deadline := time.Now().Add(closeTimeout)
	for r.ReadCursor() < target {
		if time.Now().After(deadline) {
			return fmt.Errorf("ulog: flush: timed out waiting for writer to drain")
		}
		time.Sleep(spawnPollInterval)
	}
	return nil
}

// Writer reports the Writer child's last published lifecycle state, or
// nil if the Logger is not open (spec.md §4.2 "Writer health surface").
func (l *Logger) Writer() *WriterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	state, hadError := l.r.Status()
	return &WriterStatus{State: state, HadError: hadError}
}

// LogRaw submits b as one frame verbatim, with no prefix prepended
// (spec.md §4.1). It fails synchronously, leaving the ring untouched, if
// b cannot fit in one frame; otherwise it never surfaces an observable
// error to the caller even if the Writer has died.
func (l *Logger) LogRaw(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		if l.writerDead {
			// A failed restart left the Logger closed: drop silently
			// until the next Open.
			return nil
		}
		return fmt.Errorf("ulog: log raw: %w", ErrClosed)
	}
	if uint64(len(b)) > l.r.MaxPayload() {
		return fmt.Errorf("ulog: log raw: %d bytes exceeds max payload %d: %w", len(b), l.r.MaxPayload(), ErrMessageTooLarge)
	}
	if l.writerDead {
		return nil
	}
	if err := l.r.Push(frame.LogMsg, b, l.spin); err != nil {
		l.handleWriterFailure()
	}
	return nil
}

// handleWriterFailure implements spec.md §4.1's failure policy: detect a
// dead Writer, attempt one restart, and otherwise drop subsequent frames
// silently until Close/Open.
func (l *Logger) handleWriterFailure() {
	if l.cmd.Process == nil || ring.ProcessAlive(l.cmd.Process.Pid) {
		// Writer is alive but not draining fast enough; the backoff
		// budget was already exhausted by Push. Diagnose once and move
		// on rather than blocking the caller further.
		fmt.Fprintln(os.Stderr, "ulog: writer not draining, dropping frame")
		return
	}
	if err := l.restartWriter(); err != nil {
		l.writerDead = true
		fmt.Fprintf(os.Stderr, "ulog: writer died, restart failed, dropping further frames: %v\n", err)
	}
}

// restartWriter spawns a fresh region and Writer child in place of a dead
// one. Frames queued in the old ring that the Writer never drained are
// lost, matching spec.md §1's "best-effort only" crash-delivery non-goal.
func (l *Logger) restartWriter() error {
	oldCmd := l.cmd
	if oldCmd != nil {
		oldCmd.Wait()
	}
	if l.r != nil {
		l.r.Close()
	}

	stdout := l.cmd != nil && l.cmd.Stdout == os.Stdout
	pathArg := l.lastPathArg
	l.open = false
	return l.openLocked(pathArg, stdout)
}

// nextPowerOfTwo rounds n up to the next power of two (n itself if
// already one).
func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// --- formatted severities -----------------------------------------------

func (l *Logger) emit(severity byte, msg string) error {
	l.mu.Lock()
	prefix := l.testPrefix
	includeDate := l.IncludeDate
	l.mu.Unlock()
	if !includeDate {
		return l.LogRaw([]byte(msg + eol()))
	}
	if prefix == "" {
		prefix = buildPrefix(severity, goroutineID())
	}
	return l.LogRaw([]byte(prefix + msg + eol()))
}

func (l *Logger) Debug(v ...interface{})                 { l.emit(severityDebug, fmt.Sprint(v...)) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.emit(severityDebug, formatArgs(format, v...)) }

func (l *Logger) Info(v ...interface{})                 { l.emit(severityInfo, fmt.Sprint(v...)) }
func (l *Logger) Infof(format string, v ...interface{}) { l.emit(severityInfo, formatArgs(format, v...)) }

func (l *Logger) Warn(v ...interface{})                 { l.emit(severityWarn, fmt.Sprint(v...)) }
func (l *Logger) Warnf(format string, v ...interface{}) { l.emit(severityWarn, formatArgs(format, v...)) }

func (l *Logger) Error(v ...interface{})                 { l.emit(severityError, fmt.Sprint(v...)) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.emit(severityError, formatArgs(format, v...)) }

// Fatal formats and submits a line exactly like Error, then closes the
// Logger (bounded wait for the Writer to drain) and exits the process
// with status 1 (spec.md §4.1).
func (l *Logger) Fatal(v ...interface{}) {
	l.emit(severityFatal, fmt.Sprint(v...))
	l.Close()
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.emit(severityFatal, formatArgs(format, v...))
	l.Close()
	os.Exit(1)
}

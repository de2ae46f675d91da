// Package ring implements the cross-process single-producer/single-consumer
// byte ring described by the logger's core: a small header (write cursor,
// read cursor, size, reserved/epoch+status word) followed by N bytes of
// ring data, where N is a power of two. The header and data live in one
// contiguous memory-mapped region so both the producer and the writer
// process can address it by the same offsets.
//
// Cursor updates use atomic loads/stores on the mapped bytes themselves
// (not a Go-level mutex) so they work across the process boundary: the
// producer is the sole writer of the write cursor, the writer process is
// the sole writer of the read cursor, and each side only ever reads the
// other's cursor.
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/ashgrove-dev/ulog/internal/frame"
)

// HeaderSize is the fixed header occupying the start of the mapped region:
// 64-bit write cursor, 64-bit read cursor, 64-bit size, 64-bit reserved.
const HeaderSize = 32

const (
	offWrite    = 0
	offRead     = 8
	offSize     = 16
	offReserved = 24 // low 4 bytes: layout epoch. high 4 bytes: status word.
)

// Epoch is bumped whenever the on-wire layout changes incompatibly. A
// writer attaching to a region stamped with a different epoch refuses to
// interpret it, rather than risk silently misreading a stale or foreign
// region.
const Epoch uint32 = 1

// Status bytes packed into the high 4 bytes of the reserved word: byte 0
// is the writer's lifecycle state, byte 1 is a sticky "had an error" flag.
// Advisory only — spec.md's testable invariants never depend on it.
const (
	StateStarting byte = iota
	StateRunning
	StateDraining
	StateExited
)

// Region is the minimal contract a platform-specific shared mapping must
// satisfy: a contiguous, shared, fixed-size byte slice.
type Region interface {
	Bytes() []byte
	Close() error
}

// Ring is a view over a mapped Region, exposing the cursor protocol and
// raw frame placement described in spec.md §3/§4.
type Ring struct {
	region Region
	mem    []byte
	data   []byte
	mask   uint64
}

// Layout computes the total byte count a region of dataSize ring bytes
// needs, header included.
func Layout(dataSize uint64) uint64 { return HeaderSize + dataSize }

// Init formats a freshly mapped region as an empty ring with the given
// data size (must be a power of two) and stamps it with Epoch. Called by
// the producer before the writer child is spawned.
func Init(region Region, dataSize uint64) (*Ring, error) {
	if dataSize < 2 || dataSize&(dataSize-1) != 0 {
		return nil, fmt.Errorf("ring: data size %d must be a power of two", dataSize)
	}
	mem := region.Bytes()
	if uint64(len(mem)) != Layout(dataSize) {
		return nil, fmt.Errorf("ring: region is %d bytes, want %d", len(mem), Layout(dataSize))
	}
	r := &Ring{region: region, mem: mem, data: mem[HeaderSize:], mask: dataSize - 1}
	storeU64(mem, offWrite, 0)
	storeU64(mem, offRead, 0)
	storeU64(mem, offSize, dataSize)
	storeU32(mem, offReserved, Epoch)
	r.setStatus(StateStarting, false)
	return r, nil
}

// Attach views an already-initialized region (created by Init in another
// process) as a Ring, validating its size and epoch. Called by the writer
// after mapping the region the producer named.
func Attach(region Region, dataSize uint64) (*Ring, error) {
	mem := region.Bytes()
	if uint64(len(mem)) != Layout(dataSize) {
		return nil, fmt.Errorf("ring: region is %d bytes, want %d", len(mem), Layout(dataSize))
	}
	gotSize := loadU64(mem, offSize)
	if gotSize != dataSize {
		return nil, fmt.Errorf("ring: header declares size %d, expected %d", gotSize, dataSize)
	}
	gotEpoch := loadU32(mem, offReserved)
	if gotEpoch != Epoch {
		return nil, fmt.Errorf("ring: layout epoch %d does not match %d", gotEpoch, Epoch)
	}
	return &Ring{region: region, mem: mem, data: mem[HeaderSize:], mask: dataSize - 1}, nil
}

// Close releases the underlying mapping.
func (r *Ring) Close() error { return r.region.Close() }

// Cap returns the ring's data capacity in bytes.
func (r *Ring) Cap() uint64 { return r.mask + 1 }

// Status reports the writer's last published lifecycle state and sticky
// error flag, for Logger.Writer()-style introspection. Advisory only.
func (r *Ring) Status() (state byte, hadError bool) {
	word := atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[offReserved+4])))
	return byte(word), word&0x100 != 0
}

// SetStatus publishes the writer's current lifecycle state. Called only
// by the writer process.
func (r *Ring) SetStatus(state byte, hadError bool) { r.setStatus(state, hadError) }

func (r *Ring) setStatus(state byte, hadError bool) {
	word := uint32(state)
	if hadError {
		word |= 0x100
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[offReserved+4])), word)
}

// --- cursor access -----------------------------------------------------

func (r *Ring) loadWrite() uint64    { return loadU64(r.mem, offWrite) }
func (r *Ring) storeWrite(v uint64)  { storeU64(r.mem, offWrite, v) }
func (r *Ring) loadRead() uint64     { return loadU64(r.mem, offRead) }
func (r *Ring) storeRead(v uint64)   { storeU64(r.mem, offRead, v) }

// ReadCursor returns the current read cursor (acquire load). Exposed so a
// producer-side liveness probe can observe whether the consumer is
// stalled (spec.md §4.1: "cursor unmoving while ring full").
func (r *Ring) ReadCursor() uint64 { return r.loadRead() }

// WriteCursor returns the current write cursor (acquire load). Used by
// the writer's poll loop.
func (r *Ring) WriteCursor() uint64 { return r.loadWrite() }

// --- producer-side frame placement --------------------------------------

// Spinner is the minimal interface the ring needs from the backpressure
// backoff strategy, satisfied by internal/backoff.Spinner.
type Spinner interface {
	Reset()
	Next() bool
}

// MaxPayload returns the largest payload Push can ever place in this
// ring. A frame that does not fit in the contiguous space before the
// physical end gets a Pad byte written at the old write index and the
// frame itself relocated to index 0; both writes land before the write
// cursor is published, so the pad byte and the frame's own bytes must
// not overlap physically or the reader will read a clobbered Pad marker
// instead of the frame it guards. That only holds for every write-cursor
// alignment when a frame's total size (header+payload) never exceeds
// half the ring's capacity (spec.md §4.1's wrapSlack reserve) — beyond
// that, some alignments force skip+total past the ring's capacity, or
// force the frame's own write to overwrite the pad byte before it is
// read. See Push.
func (r *Ring) MaxPayload() uint64 {
	half := r.Cap() / 2
	if half < uint64(frame.HeaderSize) {
		return 0
	}
	return half - uint64(frame.HeaderSize)
}

// Push places one frame (cmd + payload) contiguously into the ring,
// spinning on spin when the ring is full, per spec.md's backpressure
// algorithm. It is the sole producer-side entry point and must only ever
// be called by one goroutine at a time (the spec's single-producer
// contract; callers serialize with their own mutex if needed).
func (r *Ring) Push(cmd frame.Command, payload []byte, spin Spinner) error {
	total := uint64(frame.HeaderSize) + uint64(len(payload))
	capN := r.Cap()
	if total > capN/2 {
		return fmt.Errorf("ring: frame of %d bytes exceeds wrap-safe max %d (ring cap %d)", total, capN/2, capN)
	}
	spin.Reset()
	for {
		read := r.loadRead()
		write := r.loadWrite()
		used := write - read
		space := capN - used
		idx := write & r.mask
		contiguous := capN - idx

		skip := uint64(0)
		if contiguous < total {
			skip = contiguous
		}
		if space >= skip+total {
			if skip > 0 {
				r.data[idx] = byte(frame.Pad)
				write += skip
				idx = 0
			}
			frame.EncodeHeader(r.data[idx:idx+uint64(frame.HeaderSize)], cmd, uint32(len(payload)))
			copy(r.data[idx+uint64(frame.HeaderSize):], payload)
			r.storeWrite(write + total) // release: publishes header+payload together
			return nil
		}
		if !spin.Next() {
			return ErrFull
		}
	}
}

// ErrFull is returned by Push when the backpressure spin budget is
// exhausted without the writer making room — the producer's cue to treat
// the writer as unresponsive (spec.md §4.1).
var ErrFull = fmt.Errorf("ring: full, writer not draining")

// --- consumer-side raw access --------------------------------------------

// ByteAt returns the single byte at logical position pos (mod Cap).
// Valid only for pos in [ReadCursor(), WriteCursor()).
func (r *Ring) ByteAt(pos uint64) byte { return r.data[pos&r.mask] }

// Slice returns a contiguous view of n bytes starting at logical position
// pos. Valid only when the caller has established (via the frame
// protocol) that [pos, pos+n) does not cross the physical end of the
// buffer — true for every real frame, since Push always skips to the
// wrap boundary before placing one.
func (r *Ring) Slice(pos, n uint64) []byte {
	idx := pos & r.mask
	return r.data[idx : idx+n]
}

// DistanceToWrap returns how many bytes remain between logical position
// pos and the next physical wrap boundary.
func (r *Ring) DistanceToWrap(pos uint64) uint64 {
	idx := pos & r.mask
	return r.Cap() - idx
}

// Advance publishes newRead as the consumer's progress (release). Called
// only by the writer process after it has fully consumed a frame or pad
// marker.
func (r *Ring) Advance(newRead uint64) { r.storeRead(newRead) }

// --- atomic helpers over mapped memory -----------------------------------

func loadU64(mem []byte, off int) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&mem[off])))
}

func storeU64(mem []byte, off int, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&mem[off])), v)
}

func loadU32(mem []byte, off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&mem[off])))
}

func storeU32(mem []byte, off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&mem[off])), v)
}

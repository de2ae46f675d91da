package ring_test

import (
	"bytes"
	"testing"

	"github.com/ashgrove-dev/ulog/internal/backoff"
	"github.com/ashgrove-dev/ulog/internal/frame"
	"github.com/ashgrove-dev/ulog/internal/ring"
)

// memRegion is an in-process stand-in for a mapped shared region, letting
// these tests exercise the ring's cursor arithmetic without a real
// memory-mapped file.
type memRegion struct{ mem []byte }

func newMemRegion(size uint64) *memRegion { return &memRegion{mem: make([]byte, size)} }
func (m *memRegion) Bytes() []byte        { return m.mem }
func (m *memRegion) Close() error         { return nil }

func newTestRing(t *testing.T, dataSize uint64) *ring.Ring {
	t.Helper()
	r, err := ring.Init(newMemRegion(ring.Layout(dataSize)), dataSize)
	if err != nil {
		t.Fatalf("ring.Init: %v", err)
	}
	return r
}

// drain reads every complete frame currently between the ring's read and
// write cursors, handling Pad wrap markers exactly as the writer process
// would, and returns the concatenated LogMsg payloads.
func drain(t *testing.T, r *ring.Ring, pos *uint64, want int) []byte {
	t.Helper()
	var out bytes.Buffer
	for out.Len() < want {
		write := r.WriteCursor()
		if *pos == write {
			t.Fatalf("ring drained dry before collecting %d bytes (got %d)", want, out.Len())
		}
		cmdByte := r.ByteAt(*pos)
		if frame.Command(cmdByte) == frame.Pad {
			*pos += r.DistanceToWrap(*pos)
			r.Advance(*pos)
			continue
		}
		hdr := r.Slice(*pos, uint64(frame.HeaderSize))
		cmd, length := frame.DecodeHeader(hdr)
		if !cmd.Valid() {
			t.Fatalf("decoded invalid command %v at pos %d", cmd, *pos)
		}
		payload := r.Slice(*pos+uint64(frame.HeaderSize), uint64(length))
		out.Write(payload)
		*pos += uint64(frame.HeaderSize) + uint64(length)
		r.Advance(*pos)
	}
	return out.Bytes()
}

func TestInitRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := ring.Init(newMemRegion(ring.Layout(100)), 100); err == nil {
		t.Fatalf("expected error for non-power-of-two size")
	}
}

func TestPushRejectsOversizedFrame(t *testing.T) {
	r := newTestRing(t, 64)
	spin := backoff.Default()
	if err := r.Push(frame.LogMsg, make([]byte, 64), spin); err == nil {
		t.Fatalf("expected error for oversized frame")
	}
	// ring must be untouched: nothing to drain
	if got := r.WriteCursor(); got != 0 {
		t.Fatalf("write cursor = %d, want 0", got)
	}
	if got := r.ReadCursor(); got != 0 {
		t.Fatalf("read cursor = %d, want 0", got)
	}
}

func TestRoundTripAllSizes(t *testing.T) {
	// Invariant 4: for power-of-two ring sizes and all message lengths up
	// to Ring.MaxPayload(), round-tripping k messages reproduces them
	// exactly. Lengths beyond MaxPayload are skipped here rather
	// than at ring sizes, since half the ring (less the frame header) is
	// the real ceiling Push enforces (see Ring.MaxPayload).
	for _, ringSize := range []uint64{512, 8192} {
		ringSize := ringSize
		t.Run(sizeName(ringSize), func(t *testing.T) {
			r := newTestRing(t, ringSize)
			maxPayload := r.MaxPayload()
			spin := backoff.Default()
			var pos uint64
			var want bytes.Buffer

			lengths := []int{1, 2, 3, 59, 113, 307, 709, 5297}
			const messages = 1000
			seed := 0
			for i := 0; i < messages; i++ {
				n := lengths[i%len(lengths)]
				if uint64(n) > maxPayload {
					continue
				}
				msg := makeMsg(n, seed)
				seed++
				if err := r.Push(frame.LogMsg, msg, spin); err != nil {
					t.Fatalf("push len %d: %v", n, err)
				}
				want.Write(msg)
				// Drain eagerly so a small ring never deadlocks against
				// an unbounded backlog within this synchronous test.
				got := drain(t, r, &pos, want.Len())
				if !bytes.Equal(want.Bytes(), got) {
					t.Fatalf("round-trip mismatch at len %d: got %d bytes, want %d bytes", n, len(got), want.Len())
				}
				want.Reset()
			}
		})
	}
}

func TestPadSkipRoundTrip(t *testing.T) {
	// Force a wrap where the tail does not fit a whole frame, to exercise
	// the Pad marker path explicitly.
	// A 32-byte ring: MaxPayload is 11, so every frame here is at most 16
	// bytes.
	r := newTestRing(t, 32)
	spin := backoff.Default()
	var pos uint64

	// 5(header)+6 = 11 bytes, then 5(header)+11 = 16 bytes: 27 bytes in
	// all, leaving 5 bytes before the 32-byte wrap.
	if err := r.Push(frame.LogMsg, []byte("abcdef"), spin); err != nil {
		t.Fatalf("push: %v", err)
	}
	got := drain(t, r, &pos, 6)
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
	if err := r.Push(frame.LogMsg, []byte("ghijklmnopq"), spin); err != nil {
		t.Fatalf("push: %v", err)
	}
	got = drain(t, r, &pos, 11)
	if string(got) != "ghijklmnopq" {
		t.Fatalf("got %q, want %q", got, "ghijklmnopq")
	}

	// Next push needs 5(header)+4=9 bytes; only 5 remain contiguous before
	// wrap (pos=27..32), forcing a Pad skip to 32 then a contiguous write
	// from 0.
	if err := r.Push(frame.LogMsg, []byte("wxyz"), spin); err != nil {
		t.Fatalf("push: %v", err)
	}
	got = drain(t, r, &pos, 4)
	if string(got) != "wxyz" {
		t.Fatalf("got %q, want %q", got, "wxyz")
	}
}

func TestPushRejectsBeyondHalfCapacity(t *testing.T) {
	// A frame whose total size sits between half the ring and the full
	// ring must still be rejected: Push's wrap-skip design cannot place
	// it safely at every write-cursor alignment (see Ring.MaxPayload).
	r := newTestRing(t, 512)
	spin := backoff.Default()
	if max := r.MaxPayload(); max != 251 {
		t.Fatalf("MaxPayload() = %d, want 251", max)
	}
	if err := r.Push(frame.LogMsg, make([]byte, 300), spin); err == nil {
		t.Fatalf("expected error for 300-byte payload in a 512-byte ring")
	}
}

func sizeName(n uint64) string {
	switch n {
	case 512:
		return "size512"
	case 8192:
		return "size8192"
	default:
		return "sizeOther"
	}
}

// makeMsg matches spec.md §8's MakeMsg: concatenate "<seed> " tokens with
// seed incrementing, a newline after every 20th token, a trailing
// newline, truncated to exactly length bytes.
func makeMsg(length, seed int) []byte {
	var buf bytes.Buffer
	token := seed
	count := 0
	for buf.Len() < length+64 { // generate generously, truncate below
		buf.WriteString(itoa(token))
		buf.WriteByte(' ')
		token++
		count++
		if count%20 == 0 {
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	out := buf.Bytes()
	if len(out) > length {
		out = out[:length]
	}
	for len(out) < length {
		out = append(out, '\n')
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

// Package frame defines the on-ring record format shared by the producer
// and the writer: a one-byte command code, a 4-byte little-endian length,
// and the payload itself.
package frame

import "encoding/binary"

// Command identifies the kind of record carried by a frame.
type Command byte

const (
	// Pad marks a wrap-skip: the ring ran out of contiguous space before
	// the physical end of the buffer, so the producer jumped the write
	// cursor straight to the wrap boundary. It carries no length field —
	// both sides independently compute the skip distance from their own
	// cursor and the ring size. Internal to the wire protocol; never
	// surfaced to producer-side callers.
	Pad Command = 0x00
	// LogMsg carries a fully formatted log line, EOL included.
	LogMsg Command = 0x01
	// Close tells the writer to flush everything buffered and exit.
	Close Command = 0x02
)

// HeaderSize is the fixed cost of a frame before its payload: 1 command
// byte + 4 length bytes.
const HeaderSize = 5

// MaxPayload bounds a single frame's payload so the 4-byte length field
// can never be misread as absurdly large during a framing-corruption check.
const MaxPayload = 1<<32 - 1

// EncodeHeader writes the command and length into the first HeaderSize
// bytes of dst. dst must have length >= HeaderSize.
func EncodeHeader(dst []byte, cmd Command, length uint32) {
	dst[0] = byte(cmd)
	binary.LittleEndian.PutUint32(dst[1:HeaderSize], length)
}

// DecodeHeader reads the command and payload length from the first
// HeaderSize bytes of src. src must have length >= HeaderSize.
func DecodeHeader(src []byte) (cmd Command, length uint32) {
	cmd = Command(src[0])
	length = binary.LittleEndian.Uint32(src[1:HeaderSize])
	return
}

// Valid reports whether cmd is a known command code. Anything else is a
// framing error per spec.
func (c Command) Valid() bool {
	return c == LogMsg || c == Close
}

func (c Command) String() string {
	switch c {
	case LogMsg:
		return "LogMsg"
	case Close:
		return "Close"
	default:
		return "Unknown"
	}
}

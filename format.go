package ulog

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// prefixLayout renders the ISO-8601 portion of the 42-byte prefix
// (spec.md §6): millisecond precision, numeric zone offset. Go's
// reference-time layout happens to render exactly 28 bytes for this
// combination ("2026-07-30T20:13:45.123+0000").
const prefixLayout = "2006-01-02T15:04:05.000-0700"

// eol is the platform line terminator (spec.md §6).
func eol() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// tsCache caches the rendered timestamp prefix for one wall-clock second,
// per spec.md §9's "may cache format results per-millisecond" invitation —
// only the millisecond digits are re-derived between calls landing in the
// same second.
type tsCache struct {
	mu      sync.Mutex
	second  int64
	rendered string
}

var globalTSCache tsCache

// render returns the 28-byte timestamp for now, reusing the cached
// second-granularity prefix when possible.
func (c *tsCache) render(now time.Time) string {
	sec := now.Unix()
	c.mu.Lock()
	defer c.mu.Unlock()
	if sec == c.second && c.rendered != "" {
		return c.withMillis(now)
	}
	c.second = sec
	c.rendered = now.Format(prefixLayout)
	return c.rendered
}

// withMillis substitutes just the millisecond digits into the cached
// render for the current second rather than re-running time.Format on the
// hot path.
func (c *tsCache) withMillis(now time.Time) string {
	base := []byte(c.rendered)
	ms := now.Nanosecond() / int(time.Millisecond)
	// base layout: "2006-01-02T15:04:05.000-0700" -> millis at [20:23]
	const msOff = 20
	base[msOff+0] = byte('0' + ms/100%10)
	base[msOff+1] = byte('0' + ms/10%10)
	base[msOff+2] = byte('0' + ms%10)
	return string(base)
}

// buildPrefix renders the exactly-42-byte prefix described in spec.md §4.1
// and §6: timestamp, severity letter, 8-hex-digit thread id, trailing
// space.
func buildPrefix(severity byte, tid uint32) string {
	ts := globalTSCache.render(time.Now())
	return ts + " [" + string(severity) + "] " + padHex8(tid) + " "
}

func padHex8(v uint32) string {
	s := strconv.FormatUint(uint64(v), 16)
	if len(s) >= 8 {
		return s[len(s)-8:]
	}
	return "00000000"[:8-len(s)] + s
}

// goroutineID extracts the calling goroutine's id from its own stack
// trace header ("goroutine 123 [running]:"). This is the standard
// low-overhead trick for a per-caller id when the runtime exposes no
// public accessor; it stands in for the "thread id" spec.md's prefix
// format names, since Go schedules on goroutines rather than OS threads.
func goroutineID() uint32 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

// formatArgs implements the sole positional placeholder %v (spec.md §6,
// §9): arguments are stringified via a small tagged-variant dispatch
// rather than reflection over arbitrary types; literal percent is %%.
func formatArgs(format string, args ...interface{}) string {
	var out bytes.Buffer
	argi := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i == len(format)-1 {
			out.WriteByte(c)
			continue
		}
		next := format[i+1]
		switch next {
		case '%':
			out.WriteByte('%')
			i++
		case 'v':
			if argi < len(args) {
				out.WriteString(stringify(args[argi]))
				argi++
			} else {
				out.WriteString("%!v(MISSING)")
			}
			i++
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// stringify dispatches on a small set of concrete argument types (spec.md
// §9: "a small set of conversions... not dynamic dispatch over deep
// hierarchies"), falling back to fmt for anything outside that set.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

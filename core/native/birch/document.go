package birch

import (
	"time"
)

// --------------------------------------------------------------------------
// Document Type
// --------------------------------------------------------------------------

// document is one stored entry. It is kept as a value type inside the
// shard maps; every mutation builds a fresh document, so handed-out byte
// slices are never written to again.
type document struct {
	value  []byte
	xattrs []byte
	flags  uint32
	cas    uint64

	// expireAt is a Unix second, 0 meaning no expiry.
	expireAt int64

	// lockedUntil is a Unix nanosecond, 0 meaning unlocked.
	lockedUntil int64
}

func (d document) expiredAt(now time.Time) bool {
	return d.expireAt != 0 && now.Unix() >= d.expireAt
}

func (d document) lockedAt(now time.Time) bool {
	return d.lockedUntil != 0 && now.UnixNano() < d.lockedUntil
}

// absoluteExpiry interprets a wire expiry: values up to thirty days are
// relative to now, larger values are already absolute Unix seconds.
func absoluteExpiry(raw uint32, now time.Time) int64 {
	switch {
	case raw == 0:
		return 0
	case raw <= relativeExpiryCutoff:
		return now.Unix() + int64(raw)
	default:
		return int64(raw)
	}
}

// copyBytes defends the store against callers mutating shared slices.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// --------------------------------------------------------------------------
// Argument Extraction
// --------------------------------------------------------------------------

// The option normalizer produces exact wire types, but the helpers accept
// the common numeric widenings so hand-built argument maps in tests work
// too.

func argUint64(args map[string]any, name string) (uint64, bool) {
	switch n := args[name].(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func argUint32(args map[string]any, name string) (uint32, bool) {
	n, ok := argUint64(args, name)
	if !ok || n > 1<<32-1 {
		return 0, false
	}
	return uint32(n), true
}

func argBytes(args map[string]any, name string) ([]byte, bool) {
	b, ok := args[name].([]byte)
	return b, ok
}

func argString(args map[string]any, name string) (string, bool) {
	s, ok := args[name].(string)
	return s, ok
}

func argBool(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func argSlice(args map[string]any, name string) ([]any, bool) {
	s, ok := args[name].([]any)
	return s, ok
}

package options

import (
	"fmt"
	"time"
)

// Shared transform functions used by the backend option tables. Each is a
// TransformFunc: pure over its input except where noted, returning a plain
// error when the value is outside its domain (the normalizer codes it).

// relativeExpiryCutoff is the largest expiry the wire carries as a relative
// duration; anything longer is converted to an absolute Unix timestamp,
// anchored at call time.
const relativeExpiryCutoff = 30 * 24 * time.Hour

// DurationToMicros converts a positive time.Duration into whole microseconds.
func DurationToMicros(v any) (any, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("expected time.Duration, got %T", v)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", d)
	}
	return uint32(d / time.Microsecond), nil
}

// DurationToSecs converts a positive time.Duration into whole seconds,
// rounding fractions up so short locks never round to zero.
func DurationToSecs(v any) (any, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("expected time.Duration, got %T", v)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", d)
	}
	secs := uint32(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs, nil
}

// ExpiryToUnix converts an expiry given as time.Duration or time.Time into
// the uint32 seconds representation the wire expects: zero means no expiry
// and is dropped, durations up to thirty days stay relative, anything longer
// (and any time.Time) becomes an absolute Unix timestamp.
func ExpiryToUnix(v any) (any, error) {
	switch t := v.(type) {
	case time.Duration:
		if t == 0 {
			return nil, nil
		}
		if t < 0 {
			return nil, fmt.Errorf("expiry must not be negative, got %v", t)
		}
		if t > relativeExpiryCutoff {
			return uint32(time.Now().Add(t).Unix()), nil
		}
		secs := uint32(t / time.Second)
		if t%time.Second != 0 || secs == 0 {
			secs++
		}
		return secs, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return uint32(t.Unix()), nil
	default:
		return nil, fmt.Errorf("expected time.Duration or time.Time, got %T", v)
	}
}

// Uint64 asserts a uint64 value, dropping zero. Used for CAS guards where
// zero means "no guard".
func Uint64(v any) (any, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("expected uint64, got %T", v)
	}
	if n == 0 {
		return nil, nil
	}
	return n, nil
}

// Bool asserts a bool value, dropping false.
func Bool(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	if !b {
		return nil, nil
	}
	return true, nil
}

// String asserts a non-empty string value.
func String(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// Int64 asserts an int64 value, passing zero through (a counter delta of
// zero is still meaningful to reject later, not to drop).
func Int64(v any) (any, error) {
	n, ok := v.(int64)
	if !ok {
		return nil, fmt.Errorf("expected int64, got %T", v)
	}
	return n, nil
}

package subdoc

import (
	"encoding/json"

	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Fragments
// --------------------------------------------------------------------------

// Flag is the bitmask rendering of a Spec's flag fields.
type Flag uint8

const (
	FlagCreateParents Flag = 1 << iota
	FlagXAttr
	FlagExpandMacros
)

// Fragment is the backend-neutral compiled form of one Spec. Backends render
// fragments into their wire request shape; the payload is final.
type Fragment struct {
	Op      Op
	Path    string
	Flags   Flag
	Payload []byte
}

// --------------------------------------------------------------------------
// Compilation
// --------------------------------------------------------------------------

// Compile turns an ordered spec list into wire fragments.
//
// Array-mutation payloads are JSON-encoded and stripped of the enclosing
// array brackets, because the wire appends each element individually rather
// than accepting a JSON array. Other value-bearing opcodes go through the
// transcoder; the content tag is discarded since sub-document payloads are
// implicitly JSON. Spec construction errors surface here, before any wire
// request exists.
func Compile(specs []Spec, tc transcoder.ITranscoder) ([]Fragment, error) {
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrInvalidArgument, "at least one spec is required")
	}

	frags := make([]Fragment, 0, len(specs))
	for i, s := range specs {
		if s.err != nil {
			return nil, errors.Newf(errors.ErrInvalidArgument, "spec %d: %v", i, s.err)
		}

		frag := Fragment{Op: s.Op, Path: s.Path}
		if s.CreateParents {
			frag.Flags |= FlagCreateParents
		}
		if s.XAttr {
			frag.Flags |= FlagXAttr
		}
		if s.ExpandMacros {
			frag.Flags |= FlagExpandMacros
		}

		switch {
		case s.multi:
			payload, err := stripArrayBrackets(s.value)
			if err != nil {
				return nil, errors.Newf(errors.ErrInvalidArgument, "spec %d (%s): %v", i, s.Op, err)
			}
			frag.Payload = payload
		case s.Op == OpCounter:
			payload, err := json.Marshal(s.value)
			if err != nil {
				return nil, errors.Newf(errors.ErrInvalidArgument, "spec %d (%s): %v", i, s.Op, err)
			}
			frag.Payload = payload
		case s.hasValue:
			payload, _, err := tc.Encode(s.value)
			if err != nil {
				if errors.Coded(err) {
					return nil, err
				}
				return nil, errors.Newf(errors.ErrValueFormat, "spec %d (%s): %v", i, s.Op, err)
			}
			frag.Payload = payload
		}

		frags = append(frags, frag)
	}

	return frags, nil
}

// stripArrayBrackets JSON-encodes the sequence and removes exactly the first
// and last byte, the enclosing brackets. encoding/json emits compact
// ASCII-safe output, so the brackets are always single bytes at the ends.
func stripArrayBrackets(values any) ([]byte, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	if len(payload) < 2 || payload[0] != '[' || payload[len(payload)-1] != ']' {
		return nil, errors.Newf(errors.ErrInternal,
			"array payload did not encode to a JSON array: %q", payload)
	}
	return payload[1 : len(payload)-1], nil
}

// --------------------------------------------------------------------------
// mutate_in preconditions
// --------------------------------------------------------------------------

// ValidateMutateIn checks the call-level preconditions of a mutate_in before
// anything is compiled: preserve-expiry cannot ride next to an explicit
// expiry, and cannot combine with insert store semantics.
func ValidateMutateIn(sem options.StoreSemantics, preserveExpiry, hasExpiry bool, specs []Spec) error {
	if preserveExpiry && hasExpiry {
		return errors.New(errors.ErrInvalidArgument,
			"preserve_expiry cannot be combined with an explicit expiry")
	}
	if preserveExpiry && sem == options.StoreSemanticsInsert {
		return errors.New(errors.ErrInvalidArgument,
			"preserve_expiry cannot be combined with insert store semantics")
	}
	for i, s := range specs {
		if s.Op.IsLookup() {
			return errors.Newf(errors.ErrInvalidArgument,
				"spec %d: %s is a lookup operation, not a mutation", i, s.Op)
		}
	}
	return nil
}

// ValidateLookupIn checks that every spec of a lookup_in call reads.
func ValidateLookupIn(specs []Spec) error {
	for i, s := range specs {
		if !s.Op.IsLookup() {
			return errors.Newf(errors.ErrInvalidArgument,
				"spec %d: %s is a mutation, not a lookup", i, s.Op)
		}
	}
	return nil
}

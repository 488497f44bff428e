package subdoc

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Opcodes
// --------------------------------------------------------------------------

// Op identifies one sub-document operation.
type Op uint8

const (
	OpGet Op = iota
	OpExists
	OpCount
	OpInsert
	OpUpsert
	OpReplace
	OpRemove
	OpArrayPushLast
	OpArrayPushFirst
	OpArrayInsert
	OpArrayAddUnique
	OpCounter
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpExists:
		return "exists"
	case OpCount:
		return "count"
	case OpInsert:
		return "insert"
	case OpUpsert:
		return "upsert"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	case OpArrayPushLast:
		return "arrayPushLast"
	case OpArrayPushFirst:
		return "arrayPushFirst"
	case OpArrayInsert:
		return "arrayInsert"
	case OpArrayAddUnique:
		return "arrayAddUnique"
	case OpCounter:
		return "counter"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}

// IsLookup reports whether the opcode reads instead of mutates.
func (o Op) IsLookup() bool {
	return o == OpGet || o == OpExists || o == OpCount
}

// --------------------------------------------------------------------------
// Spec variants
// --------------------------------------------------------------------------

// Spec is one sub-document operation. Build it through the constructor of
// its opcode; a malformed construction is recorded on the Spec and surfaces
// when the list is compiled, before anything reaches a wire.
type Spec struct {
	Op            Op
	Path          string
	CreateParents bool
	XAttr         bool
	ExpandMacros  bool

	value    any
	hasValue bool
	multi    bool
	err      error
}

// SpecOption adjusts the flag fields of a Spec under construction.
type SpecOption func(*Spec)

// CreateParents makes the mutation create missing intermediate elements of
// the path.
func CreateParents() SpecOption {
	return func(s *Spec) { s.CreateParents = true }
}

// XAttr addresses the extended-attribute section of the document.
func XAttr() SpecOption {
	return func(s *Spec) { s.XAttr = true }
}

// ExpandMacros expands server-side macros inside the payload.
func ExpandMacros() SpecOption {
	return func(s *Spec) { s.ExpandMacros = true }
}

func newSpec(op Op, path string, opts []SpecOption) Spec {
	s := Spec{Op: op, Path: path}
	for _, opt := range opts {
		opt(&s)
	}
	if path == "" && op != OpGet && op != OpExists && op != OpCount && op != OpRemove {
		// an empty path means full-document for lookups and remove; every
		// other opcode needs a real path
		s.err = fmt.Errorf("%s spec requires a path", op)
	}
	return s
}

// Get reads the value at path. An empty path reads the whole document.
func Get(path string, opts ...SpecOption) Spec {
	return newSpec(OpGet, path, opts)
}

// Exists checks whether path exists.
func Exists(path string, opts ...SpecOption) Spec {
	return newSpec(OpExists, path, opts)
}

// Count returns the element count of the array or object at path.
func Count(path string, opts ...SpecOption) Spec {
	return newSpec(OpCount, path, opts)
}

// Insert writes value at path, failing if the path already exists.
func Insert(path string, value any, opts ...SpecOption) Spec {
	s := newSpec(OpInsert, path, opts)
	s.value, s.hasValue = value, true
	return s
}

// Upsert writes value at path, creating or replacing it.
func Upsert(path string, value any, opts ...SpecOption) Spec {
	s := newSpec(OpUpsert, path, opts)
	s.value, s.hasValue = value, true
	return s
}

// Replace overwrites the value at path, failing if the path does not exist.
func Replace(path string, value any, opts ...SpecOption) Spec {
	s := newSpec(OpReplace, path, opts)
	s.value, s.hasValue = value, true
	return s
}

// Remove deletes the value at path.
func Remove(path string, opts ...SpecOption) Spec {
	return newSpec(OpRemove, path, opts)
}

// ArrayPushLast appends the values to the array at path, one element each.
func ArrayPushLast(path string, values []any, opts ...SpecOption) Spec {
	return newArraySpec(OpArrayPushLast, path, values, opts)
}

// ArrayPushFirst prepends the values to the array at path, one element each.
func ArrayPushFirst(path string, values []any, opts ...SpecOption) Spec {
	return newArraySpec(OpArrayPushFirst, path, values, opts)
}

// ArrayInsert inserts the values into the array position addressed by path
// (the path carries the index, e.g. "tags[2]").
func ArrayInsert(path string, values []any, opts ...SpecOption) Spec {
	return newArraySpec(OpArrayInsert, path, values, opts)
}

// ArrayAddUnique appends the values to the array at path, failing for any
// element already present.
func ArrayAddUnique(path string, values []any, opts ...SpecOption) Spec {
	return newArraySpec(OpArrayAddUnique, path, values, opts)
}

func newArraySpec(op Op, path string, values []any, opts []SpecOption) Spec {
	s := newSpec(op, path, opts)
	if len(values) == 0 {
		s.err = fmt.Errorf("%s spec requires at least one value", op)
		return s
	}
	s.value, s.hasValue, s.multi = values, true, true
	return s
}

// Counter adjusts the numeric value at path by delta, which must not be
// zero.
func Counter(path string, delta int64, opts ...SpecOption) Spec {
	s := newSpec(OpCounter, path, opts)
	if delta == 0 {
		s.err = fmt.Errorf("counter spec requires a non-zero delta")
		return s
	}
	s.value, s.hasValue = delta, true
	return s
}

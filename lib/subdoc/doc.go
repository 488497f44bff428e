// Package subdoc implements the sub-document operation specs and their
// compilation into backend-neutral wire fragments.
//
// A Spec is a tagged variant per opcode, built through a constructor that
// validates its shape (array mutations require a non-empty sequence, counter
// requires a non-zero delta). Compile turns an ordered spec list into
// Fragments: opcode, path, flag bits, and the encoded payload. Each backend
// renders fragments into its own request shape.
//
// Array-mutation payloads get special treatment: the wire appends each
// element individually, so the sequence is JSON-encoded and the enclosing
// brackets of the array are stripped, leaving a comma-separated fragment.
//
// Example:
//
//	frags, err := subdoc.Compile([]subdoc.Spec{
//	    subdoc.Upsert("name", "x"),
//	    subdoc.ArrayPushLast("tags", []any{"a", "b"}),
//	}, transcoder.NewDefaultTranscoder())
//
// Compilation is pure; it performs no I/O.
package subdoc

// Package options implements the logical option model shared by every
// operation: a per-call bag of logical option values, the three-tier merge
// that builds it, and the normalizer that turns it into a backend wire map
// by way of a static per-operation table.
//
// Overview:
//
//   - Values is the merged per-call option bag (logical key -> value). It is
//     created per call and discarded afterwards; caller-supplied option
//     structs are never mutated.
//   - Table maps logical keys to wire fields. One static table exists per
//     (backend, operation) pair, declared in the backend packages and never
//     mutated at runtime.
//   - Normalize applies a table to a merged bag: declared defaults are
//     filled in, every present logical key is transformed and written under
//     its wire key, and keys unknown to the table are dropped. The opaque
//     raw bag (KeyRaw) is the only passthrough.
//
// The package also holds the value types that travel through option bags in
// both directions: durability requirements, store semantics, scan
// consistency, and mutation tokens.
//
// Example:
//
//	merged := options.Merge(defaults, positional, overrides)
//	wire, err := options.Normalize(table, merged)
//
// All functions are pure; nothing in this package performs I/O.
package options

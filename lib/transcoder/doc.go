// Package transcoder implements the value codecs between application values
// and wire payloads.
//
// A transcoder turns a value into (payload bytes, content tag) and back. The
// tag is the logical content class; each backend maps it onto its own wire
// representation (the native engine uses 32-bit format flags, the gateway a
// content-type enum), so tag numbers never appear on the wire directly.
//
// Transcoders are capability-scoped, not universal: each variant accepts a
// fixed set of input types and decodes a fixed set of tags, and rejects
// everything else with a ValueFormat error instead of guessing.
//
//   - Default: JSON-marshalable values; rejects raw []byte on encode and
//     decodes only JSON payloads.
//   - RawJSON: pre-encoded JSON given as []byte or string, passed through
//     without parsing in either direction.
//   - RawString: UTF-8 strings.
//   - RawBinary: raw bytes.
//
// All transcoders are stateless and safe for concurrent use.
package transcoder

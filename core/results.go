package core

import (
	"encoding/json"

	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// The uniform result types. Backend decoders build them through the New*
// constructors; they are immutable afterwards. A decoder never builds a
// partial result: a failed call produces an error and no result object.

// --------------------------------------------------------------------------
// Document results
// --------------------------------------------------------------------------

// GetResult is the outcome of a get variant. The payload stays encoded
// until ContentAs decodes it through the call's transcoder.
type GetResult struct {
	cas     Cas
	payload []byte
	tag     transcoder.Tag
	tc      transcoder.ITranscoder
}

// NewGetResult builds a GetResult; tc decodes the payload on demand.
func NewGetResult(cas Cas, payload []byte, tag transcoder.Tag, tc transcoder.ITranscoder) *GetResult {
	return &GetResult{cas: cas, payload: payload, tag: tag, tc: tc}
}

func (r *GetResult) Cas() Cas {
	return r.cas
}

// ContentAs decodes the document content into out.
func (r *GetResult) ContentAs(out any) error {
	return r.tc.Decode(r.payload, r.tag, out)
}

// MutationResult is the outcome of a document mutation.
type MutationResult struct {
	cas   Cas
	token *options.MutationToken
}

func NewMutationResult(cas Cas, token *options.MutationToken) *MutationResult {
	return &MutationResult{cas: cas, token: token}
}

func (r *MutationResult) Cas() Cas {
	return r.cas
}

// MutationToken returns the causality marker of the mutation, nil when the
// backend returned none.
func (r *MutationResult) MutationToken() *options.MutationToken {
	return r.token
}

// ExistsResult is the outcome of an existence check.
type ExistsResult struct {
	cas    Cas
	exists bool
}

func NewExistsResult(cas Cas, exists bool) *ExistsResult {
	return &ExistsResult{cas: cas, exists: exists}
}

func (r *ExistsResult) Cas() Cas {
	return r.cas
}

func (r *ExistsResult) Exists() bool {
	return r.exists
}

// CounterResult is the outcome of an increment or decrement.
type CounterResult struct {
	cas     Cas
	content uint64
	token   *options.MutationToken
}

func NewCounterResult(cas Cas, content uint64, token *options.MutationToken) *CounterResult {
	return &CounterResult{cas: cas, content: content, token: token}
}

func (r *CounterResult) Cas() Cas {
	return r.cas
}

// Content returns the counter value after the operation.
func (r *CounterResult) Content() uint64 {
	return r.content
}

func (r *CounterResult) MutationToken() *options.MutationToken {
	return r.token
}

// --------------------------------------------------------------------------
// Sub-document results
// --------------------------------------------------------------------------

// LookupInEntry is one per-index outcome inside a LookupInResult.
type LookupInEntry struct {
	Value []byte
	Err   error
}

// LookupInResult is the outcome of a lookup_in call. Entries decode lazily:
// only the index a caller asks for is ever parsed.
type LookupInResult struct {
	cas     Cas
	entries []LookupInEntry
}

func NewLookupInResult(cas Cas, entries []LookupInEntry) *LookupInResult {
	return &LookupInResult{cas: cas, entries: entries}
}

func (r *LookupInResult) Cas() Cas {
	return r.cas
}

// Exists reports whether the spec at index succeeded, which for an exists
// spec means the path is present.
func (r *LookupInResult) Exists(index int) bool {
	if index < 0 || index >= len(r.entries) {
		return false
	}
	return r.entries[index].Err == nil
}

// ContentAs decodes the entry at index into out. The per-index error of a
// failed path (for example PathNotFound) surfaces here and only here.
func (r *LookupInResult) ContentAs(index int, out any) error {
	if index < 0 || index >= len(r.entries) {
		return errors.Newf(errors.ErrInvalidArgument,
			"lookup index %d out of range (%d specs)", index, len(r.entries))
	}
	entry := r.entries[index]
	if entry.Err != nil {
		return entry.Err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return errors.Newf(errors.ErrValueFormat,
			"lookup entry %d is not valid JSON: %v", index, err)
	}
	return nil
}

// MutateInEntry is one per-index outcome inside a MutateInResult. Only
// counter specs produce content.
type MutateInEntry struct {
	Value []byte
}

// MutateInResult is the outcome of a mutate_in call.
type MutateInResult struct {
	cas     Cas
	token   *options.MutationToken
	entries []MutateInEntry
}

func NewMutateInResult(cas Cas, token *options.MutationToken, entries []MutateInEntry) *MutateInResult {
	return &MutateInResult{cas: cas, token: token, entries: entries}
}

func (r *MutateInResult) Cas() Cas {
	return r.cas
}

func (r *MutateInResult) MutationToken() *options.MutationToken {
	return r.token
}

// ContentAs decodes the entry at index into out; only counter specs return
// content.
func (r *MutateInResult) ContentAs(index int, out any) error {
	if index < 0 || index >= len(r.entries) {
		return errors.Newf(errors.ErrInvalidArgument,
			"mutation index %d out of range (%d specs)", index, len(r.entries))
	}
	entry := r.entries[index]
	if entry.Value == nil {
		return errors.Newf(errors.ErrInvalidArgument,
			"mutation entry %d carries no content", index)
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return errors.Newf(errors.ErrValueFormat,
			"mutation entry %d is not valid JSON: %v", index, err)
	}
	return nil
}

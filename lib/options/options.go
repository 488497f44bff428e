package options

import (
	"github.com/couchkit/couchkit/lib/errors"
)

// --------------------------------------------------------------------------
// Logical option keys
// --------------------------------------------------------------------------

// Key names a logical option. Facade option structs resolve into these;
// backend tables translate them into wire keys.
type Key string

const (
	KeyTimeout        Key = "timeout"
	KeyExpiry         Key = "expiry"
	KeyCas            Key = "cas"
	KeyDurability     Key = "durability"
	KeyPreserveExpiry Key = "preserve_expiry"
	KeyStoreSemantics Key = "store_semantics"
	KeyAccessDeleted  Key = "access_deleted"
	KeyContentTag     Key = "content_tag"
	KeyLockTime       Key = "lock_time"

	// binary counter options
	KeyDelta   Key = "delta"
	KeyInitial Key = "initial"

	// query options
	KeyNamedParams      Key = "named_parameters"
	KeyPositionalParams Key = "positional_parameters"
	KeyScanConsistency  Key = "scan_consistency"
	KeyConsistentWith   Key = "consistent_with"
	KeyReadonly         Key = "readonly"
	KeyAdhoc            Key = "adhoc"
	KeyClientContextID  Key = "client_context_id"
	KeyMetrics          Key = "metrics"
	KeyQueryContext     Key = "query_context"

	// diagnostics options
	KeyReportID     Key = "report_id"
	KeyServiceTypes Key = "service_types"

	// KeyTranscoder carries the call's transcoder through the bag. No table
	// declares it, so it never reaches a wire map; the backend reads it to
	// decode the response payload.
	KeyTranscoder Key = "transcoder"

	// KeyRaw is the opaque passthrough bag: a map[string]any whose entries
	// are copied into the wire map verbatim, bypassing the table.
	KeyRaw Key = "raw"
)

// --------------------------------------------------------------------------
// Values and merge
// --------------------------------------------------------------------------

// Values is the merged per-call option bag.
type Values map[Key]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge overlays the given tiers into a fresh bag, later tiers winning on
// conflict. Nil tiers are skipped; the inputs are never mutated.
func Merge(tiers ...Values) Values {
	out := make(Values)
	for _, tier := range tiers {
		for k, val := range tier {
			out[k] = val
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Static tables
// --------------------------------------------------------------------------

// TransformFunc converts a logical option value into its wire value. It must
// be pure. Returning (nil, nil) drops the option from the wire map.
type TransformFunc func(v any) (any, error)

// WireField describes how one logical key appears on the wire.
type WireField struct {
	// Wire is the wire key the transformed value is written under.
	Wire string

	// Transform converts the logical value. A nil Transform passes the
	// value through unchanged.
	Transform TransformFunc

	// Default, when non-nil, joins the merge as the lowest tier.
	Default any

	// Spread marks a transform that returns a map[string]any to be merged
	// into the wire map instead of written under a single key. Durability
	// needs this on the native path where the two requirement shapes use
	// different wire keys.
	Spread bool
}

// Table is the static option table of one (backend, operation) pair.
// Tables are package-level values built at init and never mutated.
type Table map[Key]WireField

// --------------------------------------------------------------------------
// Normalizer
// --------------------------------------------------------------------------

// Normalize applies a static table to a merged option bag and produces the
// wire-argument map.
//
// Declared defaults fill in absent keys first. Every present key that the
// table knows is transformed and written under its wire key; keys the table
// does not know are dropped. KeyRaw is copied verbatim. A failing transform
// surfaces as an InvalidArgument error naming the logical key and the
// received value; transform errors that already carry a code are re-raised
// unchanged.
func Normalize(table Table, merged Values) (map[string]any, error) {
	effective := merged
	cloned := false
	for k, field := range table {
		if field.Default == nil {
			continue
		}
		if _, ok := effective[k]; ok {
			continue
		}
		if !cloned {
			// copy on first default so the caller's bag stays untouched
			effective = merged.Clone()
			cloned = true
		}
		effective[k] = field.Default
	}

	wire := make(map[string]any, len(effective))
	for k, val := range effective {
		if k == KeyRaw {
			raw, ok := val.(map[string]any)
			if !ok {
				return nil, errors.Newf(errors.ErrInvalidArgument,
					"option %q: expected map[string]any, got %T", k, val)
			}
			for rk, rv := range raw {
				wire[rk] = rv
			}
			continue
		}

		field, ok := table[k]
		if !ok {
			continue
		}

		out := val
		if field.Transform != nil {
			var err error
			out, err = field.Transform(val)
			if err != nil {
				if errors.Coded(err) {
					return nil, err
				}
				return nil, errors.Newf(errors.ErrInvalidArgument,
					"option %q: %v (value %v)", k, err, val)
			}
		}
		if out == nil {
			continue
		}

		if field.Spread {
			spread, ok := out.(map[string]any)
			if !ok {
				return nil, errors.Newf(errors.ErrInvalidArgument,
					"option %q: spread transform returned %T", k, out)
			}
			for sk, sv := range spread {
				wire[sk] = sv
			}
			continue
		}
		wire[field.Wire] = out
	}

	return wire, nil
}

package options

import (
	"github.com/couchkit/couchkit/lib/errors"
)

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

// DurabilityLevel is a server-enforced durability requirement: the mutation
// is acknowledged only once the named replication/persistence quorum holds.
type DurabilityLevel uint8

const (
	DurabilityLevelNone DurabilityLevel = iota
	DurabilityLevelMajority
	DurabilityLevelMajorityAndPersistToActive
	DurabilityLevelPersistToMajority
)

func (l DurabilityLevel) String() string {
	switch l {
	case DurabilityLevelNone:
		return "none"
	case DurabilityLevelMajority:
		return "majority"
	case DurabilityLevelMajorityAndPersistToActive:
		return "majorityAndPersistToActive"
	case DurabilityLevelPersistToMajority:
		return "persistToMajority"
	default:
		return "invalid"
	}
}

// Durability carries one of the two requirement shapes: a server level, or
// client observe counts (persist to N nodes, replicate to M replicas).
// Setting both shapes on one call is invalid.
type Durability struct {
	Level       DurabilityLevel
	PersistTo   uint8
	ReplicateTo uint8
}

// IsZero reports whether no durability requirement is set at all.
func (d Durability) IsZero() bool {
	return d.Level == DurabilityLevelNone && d.PersistTo == 0 && d.ReplicateTo == 0
}

// Validate checks shape exclusivity and count ranges.
func (d Durability) Validate() error {
	if d.Level > DurabilityLevelPersistToMajority {
		return errors.Newf(errors.ErrInvalidArgument, "unknown durability level %d", d.Level)
	}
	if d.Level != DurabilityLevelNone && (d.PersistTo != 0 || d.ReplicateTo != 0) {
		return errors.New(errors.ErrInvalidArgument,
			"durability level and persist/replicate counts are mutually exclusive")
	}
	if d.PersistTo > 4 {
		return errors.Newf(errors.ErrInvalidArgument, "persist_to must be 0..4, got %d", d.PersistTo)
	}
	if d.ReplicateTo > 3 {
		return errors.Newf(errors.ErrInvalidArgument, "replicate_to must be 0..3, got %d", d.ReplicateTo)
	}
	return nil
}

// --------------------------------------------------------------------------
// Store semantics and scan consistency
// --------------------------------------------------------------------------

// StoreSemantics selects the document-level behavior of a mutate_in call.
type StoreSemantics uint8

const (
	// StoreSemanticsReplace mutates an existing document (the default).
	StoreSemanticsReplace StoreSemantics = iota
	// StoreSemanticsUpsert creates the document if it does not exist.
	StoreSemanticsUpsert
	// StoreSemanticsInsert requires that the document does not exist yet.
	StoreSemanticsInsert
)

func (s StoreSemantics) String() string {
	switch s {
	case StoreSemanticsReplace:
		return "replace"
	case StoreSemanticsUpsert:
		return "upsert"
	case StoreSemanticsInsert:
		return "insert"
	default:
		return "invalid"
	}
}

// ScanConsistency selects the index consistency a query runs at.
type ScanConsistency uint8

const (
	ScanConsistencyUnset ScanConsistency = iota
	// ScanConsistencyNotBounded runs against whatever the index has seen.
	ScanConsistencyNotBounded
	// ScanConsistencyRequestPlus waits for the index to catch up to the
	// request time.
	ScanConsistencyRequestPlus
)

func (s ScanConsistency) String() string {
	switch s {
	case ScanConsistencyNotBounded:
		return "not_bounded"
	case ScanConsistencyRequestPlus:
		return "request_plus"
	default:
		return "unset"
	}
}

package core

import (
	"time"

	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
)

// ICollectionCore is the per-collection contract a backend implements. The
// public facade builds the merged option bag, encodes values and compiles
// sub-document specs, then delegates here; the implementation normalizes the
// bag against its own static tables, performs the backend call, and decodes
// the raw response into the uniform result types.
//
// Every method blocks until the backend responds.
type ICollectionCore interface {
	// Get reads a document.
	Get(key string, opts options.Values) (*GetResult, error)
	// GetAndTouch reads a document and resets its expiry (KeyExpiry).
	GetAndTouch(key string, opts options.Values) (*GetResult, error)
	// GetAndLock reads a document and write-locks it (KeyLockTime).
	GetAndLock(key string, opts options.Values) (*GetResult, error)
	// Unlock releases a lock held with the given CAS.
	Unlock(key string, cas Cas, opts options.Values) error
	// Touch resets a document's expiry without reading it.
	Touch(key string, opts options.Values) (*MutationResult, error)
	// Exists checks for a document without reading it.
	Exists(key string, opts options.Values) (*ExistsResult, error)

	// Upsert stores a document regardless of prior existence.
	Upsert(key string, payload []byte, opts options.Values) (*MutationResult, error)
	// Insert stores a document that must not exist yet.
	Insert(key string, payload []byte, opts options.Values) (*MutationResult, error)
	// Replace overwrites a document that must exist (KeyCas guards).
	Replace(key string, payload []byte, opts options.Values) (*MutationResult, error)
	// Remove deletes a document (KeyCas guards).
	Remove(key string, opts options.Values) (*MutationResult, error)

	// LookupIn reads document fragments by path.
	LookupIn(key string, frags []subdoc.Fragment, opts options.Values) (*LookupInResult, error)
	// MutateIn mutates document fragments by path (KeyStoreSemantics).
	MutateIn(key string, frags []subdoc.Fragment, opts options.Values) (*MutateInResult, error)

	// Append/Prepend splice raw bytes onto a binary document.
	Append(key string, payload []byte, opts options.Values) (*MutationResult, error)
	Prepend(key string, payload []byte, opts options.Values) (*MutationResult, error)
	// Increment/Decrement adjust an ASCII counter document
	// (KeyDelta, KeyInitial, KeyExpiry).
	Increment(key string, opts options.Values) (*CounterResult, error)
	Decrement(key string, opts options.Values) (*CounterResult, error)
}

// IClusterCore is the per-cluster contract a backend implements: handle
// binding, query, diagnostics, and the management surface.
type IClusterCore interface {
	// Collection binds a collection handle. Pure; performs no I/O.
	Collection(bucket, scope, collection string) ICollectionCore

	// Query executes a statement. The returned result is lazy: no row is
	// fetched before its first Next call.
	Query(statement string, opts options.Values) (*QueryResult, error)

	// Ping actively checks service endpoints; bucket may be empty for a
	// cluster-level ping.
	Ping(bucket string, opts options.Values) (*PingResult, error)
	// Diagnostics reports known connection states without performing I/O.
	Diagnostics(opts options.Values) (*DiagnosticsResult, error)

	// bucket management
	CreateBucket(settings BucketSettings, opts options.Values) error
	DropBucket(name string, opts options.Values) error
	FlushBucket(name string, opts options.Values) error
	GetBucket(name string, opts options.Values) (*BucketSettings, error)
	GetAllBuckets(opts options.Values) ([]BucketSettings, error)

	// scope/collection management
	CreateScope(bucket, scope string, opts options.Values) error
	DropScope(bucket, scope string, opts options.Values) error
	CreateCollection(bucket, scope, collection string, opts options.Values) error
	DropCollection(bucket, scope, collection string, opts options.Values) error
	GetAllScopes(bucket string, opts options.Values) ([]ScopeSpec, error)

	// query index management
	CreateQueryIndex(bucket string, def IndexDefinition, opts options.Values) error
	DropQueryIndex(bucket, name string, opts options.Values) error
	GetAllQueryIndexes(bucket string, opts options.Values) ([]QueryIndex, error)

	Close() error
}

// IQueryRows is the backend-side row stream behind a QueryResult. NextRow
// returns io.EOF once the stream is drained; MetaData is valid afterwards.
type IQueryRows interface {
	NextRow() ([]byte, error)
	MetaData() ([]byte, error)
	Close() error
}

// --------------------------------------------------------------------------
// Management value types
// --------------------------------------------------------------------------

// BucketSettings describes a bucket for management operations.
type BucketSettings struct {
	Name         string
	BucketType   string
	RAMQuotaMB   uint64
	NumReplicas  uint32
	FlushEnabled bool
}

// ScopeSpec describes a scope and its collections.
type ScopeSpec struct {
	Name        string
	Collections []CollectionSpec
}

// CollectionSpec describes a collection inside a scope.
type CollectionSpec struct {
	Name      string
	ScopeName string
	MaxExpiry time.Duration
}

// IndexDefinition describes a query index to create.
type IndexDefinition struct {
	Name           string
	IsPrimary      bool
	Fields         []string
	IgnoreIfExists bool
}

// QueryIndex describes an existing query index.
type QueryIndex struct {
	Name      string
	Keyspace  string
	IsPrimary bool
	State     string
	Fields    []string
}

package client

import (
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Collection
// --------------------------------------------------------------------------

// Collection is the key-value operation handle. Construction performs no
// I/O and never fails; an empty name anywhere in the path surfaces as
// InvalidArgument on first use.
type Collection struct {
	cluster *Cluster
	bucket  string
	scope   string
	name    string

	core core.ICollectionCore
	err  error
}

func newCollection(c *Cluster, bucket, scope, name string) *Collection {
	col := &Collection{cluster: c, bucket: bucket, scope: scope, name: name}
	switch {
	case bucket == "":
		col.err = errors.New(errors.ErrInvalidArgument, "bucket name must not be empty")
	case scope == "":
		col.err = errors.New(errors.ErrInvalidArgument, "scope name must not be empty")
	case name == "":
		col.err = errors.New(errors.ErrInvalidArgument, "collection name must not be empty")
	default:
		col.core = c.core.Collection(bucket, scope, name)
	}
	return col
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// ScopeName returns the name of the scope this collection lives in.
func (c *Collection) ScopeName() string { return c.scope }

// BucketName returns the name of the bucket this collection lives in.
func (c *Collection) BucketName() string { return c.bucket }

// Binary returns the binary operation view of this collection.
func (c *Collection) Binary() *BinaryCollection {
	return &BinaryCollection{col: c}
}

// callOptions folds the variadic tail and injects the cluster defaults.
func (c *Collection) callOptions(opts []interface{}) (options.Values, error) {
	if c.err != nil {
		return nil, c.err
	}
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	c.cluster.fillDefaults(vals)
	return vals, nil
}

// encode runs the call's transcoder over the value and records the content
// tag for the backend. callOptions has filled the transcoder in already.
func encode(vals options.Values, value interface{}) ([]byte, error) {
	tc, _ := vals[options.KeyTranscoder].(transcoder.ITranscoder)
	payload, tag, err := tc.Encode(value)
	if err != nil {
		return nil, err
	}
	vals[options.KeyContentTag] = tag
	return payload, nil
}

// --------------------------------------------------------------------------
// Read operations
// --------------------------------------------------------------------------

// Get reads a document.
func (c *Collection) Get(key string, opts ...interface{}) (res *core.GetResult, err error) {
	defer c.cluster.meterOp("get")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Get(key, vals)
}

// GetAndTouch reads a document and resets its expiry in one call.
func (c *Collection) GetAndTouch(key string, expiry time.Duration, opts ...interface{}) (res *core.GetResult, err error) {
	defer c.cluster.meterOp("get_and_touch")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	vals[options.KeyExpiry] = expiry
	return c.core.GetAndTouch(key, vals)
}

// GetAndLock reads a document and write-locks it for the given time.
// Mutations against the document need the returned CAS until Unlock or the
// lock expires.
func (c *Collection) GetAndLock(key string, lockTime time.Duration, opts ...interface{}) (res *core.GetResult, err error) {
	defer c.cluster.meterOp("get_and_lock")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	vals[options.KeyLockTime] = lockTime
	return c.core.GetAndLock(key, vals)
}

// Unlock releases a lock taken by GetAndLock.
func (c *Collection) Unlock(key string, cas core.Cas, opts ...interface{}) (err error) {
	defer c.cluster.meterOp("unlock")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return err
	}
	return c.core.Unlock(key, cas, vals)
}

// Touch resets a document's expiry without reading it.
func (c *Collection) Touch(key string, expiry time.Duration, opts ...interface{}) (res *core.MutationResult, err error) {
	defer c.cluster.meterOp("touch")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	vals[options.KeyExpiry] = expiry
	return c.core.Touch(key, vals)
}

// Exists checks for a document without reading it.
func (c *Collection) Exists(key string, opts ...interface{}) (res *core.ExistsResult, err error) {
	defer c.cluster.meterOp("exists")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Exists(key, vals)
}

// --------------------------------------------------------------------------
// Full-document mutations
// --------------------------------------------------------------------------

// Upsert stores a document regardless of prior existence.
func (c *Collection) Upsert(key string, value interface{}, opts ...interface{}) (res *core.MutationResult, err error) {
	defer c.cluster.meterOp("upsert")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	payload, err := encode(vals, value)
	if err != nil {
		return nil, err
	}
	return c.core.Upsert(key, payload, vals)
}

// Insert stores a document that must not exist yet.
func (c *Collection) Insert(key string, value interface{}, opts ...interface{}) (res *core.MutationResult, err error) {
	defer c.cluster.meterOp("insert")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	payload, err := encode(vals, value)
	if err != nil {
		return nil, err
	}
	return c.core.Insert(key, payload, vals)
}

// Replace overwrites a document that must exist. A CAS option guards
// against concurrent changes.
func (c *Collection) Replace(key string, value interface{}, opts ...interface{}) (res *core.MutationResult, err error) {
	defer c.cluster.meterOp("replace")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	payload, err := encode(vals, value)
	if err != nil {
		return nil, err
	}
	return c.core.Replace(key, payload, vals)
}

// Remove deletes a document. A CAS option guards against concurrent
// changes.
func (c *Collection) Remove(key string, opts ...interface{}) (res *core.MutationResult, err error) {
	defer c.cluster.meterOp("remove")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Remove(key, vals)
}

// --------------------------------------------------------------------------
// Sub-document operations
// --------------------------------------------------------------------------

// LookupIn reads fragments of a document by path. Entry errors surface per
// entry on the result, not from this call.
func (c *Collection) LookupIn(key string, specs []subdoc.Spec, opts ...interface{}) (res *core.LookupInResult, err error) {
	defer c.cluster.meterOp("lookup_in")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := subdoc.ValidateLookupIn(specs); err != nil {
		return nil, err
	}
	tc, _ := vals[options.KeyTranscoder].(transcoder.ITranscoder)
	frags, err := subdoc.Compile(specs, tc)
	if err != nil {
		return nil, err
	}
	return c.core.LookupIn(key, frags, vals)
}

// MutateIn mutates fragments of a document by path, atomically as a whole.
// Call-level preconditions are checked before the backend is involved.
func (c *Collection) MutateIn(key string, specs []subdoc.Spec, opts ...interface{}) (res *core.MutateInResult, err error) {
	defer c.cluster.meterOp("mutate_in")(&err)
	vals, err := c.callOptions(opts)
	if err != nil {
		return nil, err
	}
	sem, _ := vals[options.KeyStoreSemantics].(options.StoreSemantics)
	preserve, _ := vals[options.KeyPreserveExpiry].(bool)
	_, hasExpiry := vals[options.KeyExpiry]
	if err := subdoc.ValidateMutateIn(sem, preserve, hasExpiry, specs); err != nil {
		return nil, err
	}
	tc, _ := vals[options.KeyTranscoder].(transcoder.ITranscoder)
	frags, err := subdoc.Compile(specs, tc)
	if err != nil {
		return nil, err
	}
	return c.core.MutateIn(key, frags, vals)
}

// --------------------------------------------------------------------------
// BinaryCollection
// --------------------------------------------------------------------------

// BinaryCollection exposes the byte-splice and counter operations of a
// collection. Payloads pass through untranscoded.
type BinaryCollection struct {
	col *Collection
}

// Append splices raw bytes onto the end of a binary document.
func (b *BinaryCollection) Append(key string, value []byte, opts ...interface{}) (res *core.MutationResult, err error) {
	defer b.col.cluster.meterOp("append")(&err)
	vals, err := b.col.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return b.col.core.Append(key, value, vals)
}

// Prepend splices raw bytes onto the start of a binary document.
func (b *BinaryCollection) Prepend(key string, value []byte, opts ...interface{}) (res *core.MutationResult, err error) {
	defer b.col.cluster.meterOp("prepend")(&err)
	vals, err := b.col.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return b.col.core.Prepend(key, value, vals)
}

// Increment adds the delta option (default 1) to an ASCII counter document.
// Without an initial option the counter must already exist.
func (b *BinaryCollection) Increment(key string, opts ...interface{}) (res *core.CounterResult, err error) {
	defer b.col.cluster.meterOp("increment")(&err)
	vals, err := b.col.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return b.col.core.Increment(key, vals)
}

// Decrement subtracts the delta option (default 1) from an ASCII counter
// document, stopping at zero.
func (b *BinaryCollection) Decrement(key string, opts ...interface{}) (res *core.CounterResult, err error) {
	defer b.col.cluster.meterOp("decrement")(&err)
	vals, err := b.col.callOptions(opts)
	if err != nil {
		return nil, err
	}
	return b.col.core.Decrement(key, vals)
}

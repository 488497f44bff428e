package gateway

import (
	"context"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
)

// collectionCore executes key-value operations for one collection over the
// shared gateway channel. All fields are immutable after construction, so a
// single instance serves any number of goroutines.
type collectionCore struct {
	kv         *kvClient
	bucket     string
	scope      string
	collection string

	// lowest merge tier; durableDefaults applies when the call carries a
	// durability requirement and no explicit timeout
	defaults        options.Values
	durableDefaults options.Values
}

var _ core.ICollectionCore = (*collectionCore)(nil)

// merge overlays the call options onto the matching defaults tier.
func (c *collectionCore) merge(opts options.Values) options.Values {
	base := c.defaults
	if d, ok := opts[options.KeyDurability].(options.Durability); ok && !d.IsZero() {
		if _, hasTimeout := opts[options.KeyTimeout]; !hasTimeout {
			base = c.durableDefaults
		}
	}
	return options.Merge(base, opts)
}

// prepare normalizes the merged bag and opens the call context carrying the
// timeout as its deadline.
func (c *collectionCore) prepare(table options.Table,
	opts options.Values) (map[string]any, context.Context, context.CancelFunc, error) {

	args, err := options.Normalize(table, c.merge(opts))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := callContext(args)
	return args, ctx, cancel, nil
}

func (c *collectionCore) ref(key string) DocumentRef {
	return DocumentRef{
		BucketName:     c.bucket,
		ScopeName:      c.scope,
		CollectionName: c.collection,
		Key:            key,
	}
}

func (c *collectionCore) errContext(key string) errors.KeyValueErrorContext {
	return errors.KeyValueErrorContext{
		Bucket:     c.bucket,
		Scope:      c.scope,
		Collection: c.collection,
		Key:        key,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see core.ICollectionCore)
// --------------------------------------------------------------------------

func (c *collectionCore) Get(key string, opts options.Values) (*core.GetResult, error) {
	_, ctx, cancel, err := c.prepare(getTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Get(ctx, &GetRequest{DocumentRef: c.ref(key)})
	if err != nil {
		return nil, mapKVError(err, "Get", false, c.errContext(key))
	}
	return decodeGetResponse(res, core.TranscoderFrom(opts)), nil
}

func (c *collectionCore) GetAndTouch(key string, opts options.Values) (*core.GetResult, error) {
	args, ctx, cancel, err := c.prepare(getAndTouchTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.GetAndTouch(ctx, &GetAndTouchRequest{
		DocumentRef: c.ref(key),
		Expiry:      argUint32(args, "expiry"),
	})
	if err != nil {
		return nil, mapKVError(err, "GetAndTouch", true, c.errContext(key))
	}
	return decodeGetResponse(res, core.TranscoderFrom(opts)), nil
}

func (c *collectionCore) GetAndLock(key string, opts options.Values) (*core.GetResult, error) {
	args, ctx, cancel, err := c.prepare(getAndLockTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.GetAndLock(ctx, &GetAndLockRequest{
		DocumentRef: c.ref(key),
		LockTime:    argUint32(args, "lock_time"),
	})
	if err != nil {
		return nil, mapKVError(err, "GetAndLock", false, c.errContext(key))
	}
	return decodeGetResponse(res, core.TranscoderFrom(opts)), nil
}

func (c *collectionCore) Unlock(key string, cas core.Cas, opts options.Values) error {
	if cas == 0 {
		return errors.New(errors.ErrInvalidArgument, "unlock requires the lock's cas")
	}
	_, ctx, cancel, err := c.prepare(unlockTable, opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = c.kv.Unlock(ctx, &UnlockRequest{DocumentRef: c.ref(key), Cas: uint64(cas)})
	return mapKVError(err, "Unlock", true, c.errContext(key))
}

func (c *collectionCore) Touch(key string, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(touchTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Touch(ctx, &TouchRequest{
		DocumentRef: c.ref(key),
		Expiry:      argUint32(args, "expiry"),
	})
	if err != nil {
		return nil, mapKVError(err, "Touch", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Exists(key string, opts options.Values) (*core.ExistsResult, error) {
	_, ctx, cancel, err := c.prepare(existsTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Exists(ctx, &ExistsRequest{DocumentRef: c.ref(key)})
	if err != nil {
		return nil, mapKVError(err, "Exists", false, c.errContext(key))
	}
	return core.NewExistsResult(core.Cas(res.Cas), res.Result), nil
}

func (c *collectionCore) Upsert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(upsertTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Upsert(ctx, &UpsertRequest{
		DocumentRef:     c.ref(key),
		Content:         payload,
		ContentType:     argString(args, "content_type"),
		Expiry:          argUint32(args, "expiry"),
		PreserveExpiry:  argBool(args, "preserve_expiry"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Upsert", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Insert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(insertTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Insert(ctx, &InsertRequest{
		DocumentRef:     c.ref(key),
		Content:         payload,
		ContentType:     argString(args, "content_type"),
		Expiry:          argUint32(args, "expiry"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Insert", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Replace(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(replaceTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Replace(ctx, &ReplaceRequest{
		DocumentRef:     c.ref(key),
		Content:         payload,
		ContentType:     argString(args, "content_type"),
		Cas:             argUint64(args, "cas"),
		Expiry:          argUint32(args, "expiry"),
		PreserveExpiry:  argBool(args, "preserve_expiry"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Replace", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Remove(key string, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(removeTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Remove(ctx, &RemoveRequest{
		DocumentRef:     c.ref(key),
		Cas:             argUint64(args, "cas"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Remove", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) LookupIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.LookupInResult, error) {
	args, ctx, cancel, err := c.prepare(lookupInTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.LookupIn(ctx, &LookupInRequest{
		DocumentRef:   c.ref(key),
		Specs:         fragsToSpecs(frags),
		AccessDeleted: argBool(args, "access_deleted"),
	})
	if err != nil {
		return nil, mapKVError(err, "LookupIn", false, c.errContext(key))
	}
	return decodeLookupInResponse(res), nil
}

func (c *collectionCore) MutateIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.MutateInResult, error) {
	args, ctx, cancel, err := c.prepare(mutateInTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.MutateIn(ctx, &MutateInRequest{
		DocumentRef:     c.ref(key),
		Specs:           fragsToSpecs(frags),
		StoreSemantic:   argString(args, "store_semantic"),
		Cas:             argUint64(args, "cas"),
		Expiry:          argUint32(args, "expiry"),
		PreserveExpiry:  argBool(args, "preserve_expiry"),
		AccessDeleted:   argBool(args, "access_deleted"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "MutateIn", true, c.errContext(key))
	}
	return decodeMutateInResponse(res, c.bucket), nil
}

func (c *collectionCore) Append(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(appendTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Append(ctx, &AppendRequest{
		DocumentRef:     c.ref(key),
		Content:         payload,
		Cas:             argUint64(args, "cas"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Append", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Prepend(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	args, ctx, cancel, err := c.prepare(prependTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Prepend(ctx, &PrependRequest{
		DocumentRef:     c.ref(key),
		Content:         payload,
		Cas:             argUint64(args, "cas"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Prepend", true, c.errContext(key))
	}
	return decodeMutationResponse(res, c.bucket), nil
}

func (c *collectionCore) Increment(key string, opts options.Values) (*core.CounterResult, error) {
	args, ctx, cancel, err := c.prepare(incrementTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Increment(ctx, &IncrementRequest{
		DocumentRef:     c.ref(key),
		Delta:           argUint64(args, "delta"),
		Initial:         initialArg(args),
		Expiry:          argUint32(args, "expiry"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Increment", true, c.errContext(key))
	}
	return decodeCounterResponse(res, c.bucket), nil
}

func (c *collectionCore) Decrement(key string, opts options.Values) (*core.CounterResult, error) {
	args, ctx, cancel, err := c.prepare(decrementTable, opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := c.kv.Decrement(ctx, &DecrementRequest{
		DocumentRef:     c.ref(key),
		Delta:           argUint64(args, "delta"),
		Initial:         initialArg(args),
		Expiry:          argUint32(args, "expiry"),
		DurabilityLevel: argString(args, "durability_level"),
	})
	if err != nil {
		return nil, mapKVError(err, "Decrement", true, c.errContext(key))
	}
	return decodeCounterResponse(res, c.bucket), nil
}

// initialArg keeps the absent/zero distinction of a counter's initial value.
func initialArg(args map[string]any) *uint64 {
	if n, ok := args["initial"].(uint64); ok {
		return &n
	}
	return nil
}

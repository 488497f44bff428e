package native

import (
	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
)

// collectionCore executes key-value operations for one collection over a
// shared engine connection. It is cheap: all fields are immutable after
// construction, so a single instance serves any number of goroutines.
type collectionCore struct {
	conn       IEngineConn
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

// invoke normalizes, adds the operation's fixed args and performs the
// engine call, mapping any failure.
func (c *collectionCore) invoke(op OpCode, key string, table options.Table,
	opts options.Values, extra map[string]any) (map[string]any, error) {

	args, err := options.Normalize(table, c.merge(opts))
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		args[k] = v
	}
	res, err := c.conn.Invoke(c.bucket, c.scope, c.collection, key, op, args)
	if err != nil {
		return nil, mapKVError(err, op, c.bucket, c.scope, c.collection, key)
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see core.ICollectionCore)
// --------------------------------------------------------------------------

func (c *collectionCore) Get(key string, opts options.Values) (*core.GetResult, error) {
	res, err := c.invoke(OpGet, key, getTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeGetResult(res, core.TranscoderFrom(opts))
}

func (c *collectionCore) GetAndTouch(key string, opts options.Values) (*core.GetResult, error) {
	res, err := c.invoke(OpGetAndTouch, key, getAndTouchTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeGetResult(res, core.TranscoderFrom(opts))
}

func (c *collectionCore) GetAndLock(key string, opts options.Values) (*core.GetResult, error) {
	res, err := c.invoke(OpGetAndLock, key, getAndLockTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeGetResult(res, core.TranscoderFrom(opts))
}

func (c *collectionCore) Unlock(key string, cas core.Cas, opts options.Values) error {
	if cas == 0 {
		return errors.New(errors.ErrInvalidArgument, "unlock requires the lock's cas")
	}
	_, err := c.invoke(OpUnlock, key, unlockTable, opts, map[string]any{
		"cas": uint64(cas),
	})
	return err
}

func (c *collectionCore) Touch(key string, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpTouch, key, touchTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Exists(key string, opts options.Values) (*core.ExistsResult, error) {
	res, err := c.invoke(OpExists, key, existsTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeExistsResult(res)
}

func (c *collectionCore) Upsert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpUpsert, key, upsertTable, opts, map[string]any{
		"value": payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Insert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpInsert, key, insertTable, opts, map[string]any{
		"value": payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Replace(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpReplace, key, replaceTable, opts, map[string]any{
		"value": payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Remove(key string, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpRemove, key, removeTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) LookupIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.LookupInResult, error) {
	res, err := c.invoke(OpLookupIn, key, lookupInTable, opts, map[string]any{
		"specs": fragsToArgs(frags),
	})
	if err != nil {
		return nil, err
	}
	return decodeLookupInResult(res)
}

func (c *collectionCore) MutateIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.MutateInResult, error) {
	res, err := c.invoke(OpMutateIn, key, mutateInTable, opts, map[string]any{
		"specs": fragsToArgs(frags),
	})
	if err != nil {
		return nil, err
	}
	return decodeMutateInResult(res, c.bucket)
}

func (c *collectionCore) Append(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpAppend, key, appendTable, opts, map[string]any{
		"value": payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Prepend(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	res, err := c.invoke(OpPrepend, key, prependTable, opts, map[string]any{
		"value": payload,
	})
	if err != nil {
		return nil, err
	}
	return decodeMutationResult(res, c.bucket)
}

func (c *collectionCore) Increment(key string, opts options.Values) (*core.CounterResult, error) {
	res, err := c.invoke(OpIncrement, key, incrementTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeCounterResult(res, c.bucket)
}

func (c *collectionCore) Decrement(key string, opts options.Values) (*core.CounterResult, error) {
	res, err := c.invoke(OpDecrement, key, decrementTable, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeCounterResult(res, c.bucket)
}

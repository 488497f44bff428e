package birch

import (
	"math"
	"strconv"
	"time"

	"github.com/couchkit/couchkit/core/native"
)

// --------------------------------------------------------------------------
// Invoke Dispatch
// --------------------------------------------------------------------------

// Interface Methods (docu see native.IEngineConn)

func (c *connImpl) Invoke(bucket, scope, collection, key string, op native.OpCode, args map[string]any) (map[string]any, error) {
	if c.closed.Load() {
		return nil, errClosed()
	}

	switch op {
	case native.OpCreateBucket, native.OpDropBucket, native.OpFlushBucket,
		native.OpGetBucket, native.OpGetAllBuckets,
		native.OpCreateScope, native.OpDropScope,
		native.OpCreateCollection, native.OpDropCollection, native.OpGetAllScopes,
		native.OpCreateQueryIndex, native.OpDropQueryIndex, native.OpGetAllQueryIndexes:
		return c.manage(op, args)
	}

	bs, ee := c.resolve(bucket, scope, collection)
	if ee != nil {
		return nil, ee
	}
	composite := compositeKey(bucket, scope, collection, key)
	sh := c.shardFor(composite)
	now := time.Now()

	switch op {
	case native.OpGet:
		return c.get(sh, composite, now)
	case native.OpGetAndTouch:
		return c.getAndTouch(sh, composite, args, now)
	case native.OpGetAndLock:
		return c.getAndLock(sh, composite, args, now)
	case native.OpUnlock:
		return c.unlock(sh, composite, args, now)
	case native.OpTouch:
		return c.touch(sh, bs, key, composite, args, now)
	case native.OpExists:
		return c.exists(sh, composite, now)
	case native.OpUpsert:
		return c.store(sh, bs, key, composite, args, now, storeUpsert)
	case native.OpInsert:
		return c.store(sh, bs, key, composite, args, now, storeInsert)
	case native.OpReplace:
		return c.store(sh, bs, key, composite, args, now, storeReplace)
	case native.OpRemove:
		return c.remove(sh, bs, key, composite, args, now)
	case native.OpAppend:
		return c.splice(sh, bs, key, composite, args, now, false)
	case native.OpPrepend:
		return c.splice(sh, bs, key, composite, args, now, true)
	case native.OpIncrement:
		return c.counter(sh, bs, key, composite, args, now, false)
	case native.OpDecrement:
		return c.counter(sh, bs, key, composite, args, now, true)
	case native.OpLookupIn:
		return c.lookupIn(sh, composite, args, now)
	case native.OpMutateIn:
		return c.mutateIn(sh, bs, key, composite, args, now)
	default:
		return nil, failf(native.StatusNotSupported, "operation %s is not supported", op)
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// readDoc loads a live document. Expired entries are reaped on sight so
// reads between sweeper runs stay correct.
func (c *connImpl) readDoc(sh *shard, composite string, now time.Time) (document, bool) {
	doc, ok := sh.data.Load(composite)
	if !ok {
		return document{}, false
	}
	if doc.expiredAt(now) {
		sh.data.Compute(composite, func(old document, loaded bool) (document, bool) {
			return old, !loaded || old.expiredAt(now)
		})
		return document{}, false
	}
	return doc, true
}

func errNotFound() *native.EngineError {
	return failf(native.StatusDocumentNotFound, "document not found")
}

func (c *connImpl) get(sh *shard, composite string, now time.Time) (map[string]any, error) {
	doc, ok := c.readDoc(sh, composite, now)
	if !ok {
		return nil, errNotFound()
	}
	cas := doc.cas
	if doc.lockedAt(now) {
		// locked documents report an obfuscated cas
		cas = ^uint64(0)
	}
	return map[string]any{
		"cas":   cas,
		"value": copyBytes(doc.value),
		"flags": doc.flags,
	}, nil
}

func (c *connImpl) exists(sh *shard, composite string, now time.Time) (map[string]any, error) {
	doc, ok := c.readDoc(sh, composite, now)
	res := map[string]any{"exists": ok, "cas": uint64(0)}
	if ok {
		res["cas"] = doc.cas
	}
	return res, nil
}

func (c *connImpl) getAndTouch(sh *shard, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	expiry, _ := argUint32(args, "expiry")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		if !loaded || doc.expiredAt(now) {
			ee = errNotFound()
			return doc, true
		}
		if doc.lockedAt(now) {
			ee = errLocked()
			return doc, false
		}
		doc.expireAt = absoluteExpiry(expiry, now)
		doc.cas = c.nextCas()
		res = map[string]any{
			"cas":   doc.cas,
			"value": copyBytes(doc.value),
			"flags": doc.flags,
		}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

func (c *connImpl) getAndLock(sh *shard, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	lockSecs, ok := argUint32(args, "lock_time")
	if !ok || lockSecs == 0 {
		lockSecs = uint32(defaultLockTime / time.Second)
	}
	if lockSecs > uint32(maxLockTime/time.Second) {
		lockSecs = uint32(maxLockTime / time.Second)
	}

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		if !loaded || doc.expiredAt(now) {
			ee = errNotFound()
			return doc, true
		}
		if doc.lockedAt(now) {
			ee = errLocked()
			return doc, false
		}
		doc.lockedUntil = now.Add(time.Duration(lockSecs) * time.Second).UnixNano()
		doc.cas = c.nextCas()
		res = map[string]any{
			"cas":   doc.cas,
			"value": copyBytes(doc.value),
			"flags": doc.flags,
		}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

func (c *connImpl) unlock(sh *shard, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	cas, _ := argUint64(args, "cas")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		switch {
		case !loaded || doc.expiredAt(now):
			ee = errNotFound()
			return doc, true
		case !doc.lockedAt(now):
			ee = failf(native.StatusDocumentExists, "cas mismatch: document is not locked")
			return doc, false
		case cas != doc.cas:
			ee = errLocked()
			return doc, false
		}
		doc.lockedUntil = 0
		res = map[string]any{"cas": doc.cas}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Full-Document Mutations
// --------------------------------------------------------------------------

type storeMode int

const (
	storeUpsert storeMode = iota
	storeInsert
	storeReplace
)

// checkWriteLock applies the lock rules shared by every mutation: a
// locked document only admits writes carrying the lock's cas, and such a
// write releases the lock.
func checkWriteLock(doc *document, cas uint64, now time.Time) *native.EngineError {
	if !doc.lockedAt(now) {
		return nil
	}
	if cas == 0 || cas != doc.cas {
		return errLocked()
	}
	doc.lockedUntil = 0
	return nil
}

func (c *connImpl) touch(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	expiry, _ := argUint32(args, "expiry")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		if !loaded || doc.expiredAt(now) {
			ee = errNotFound()
			return doc, true
		}
		if doc.lockedAt(now) {
			ee = errLocked()
			return doc, false
		}
		doc.expireAt = absoluteExpiry(expiry, now)
		doc.cas = c.nextCas()
		res = map[string]any{
			"cas":            doc.cas,
			"mutation_token": bs.nextToken(key),
		}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

func (c *connImpl) store(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time, mode storeMode) (map[string]any, error) {
	value, ok := argBytes(args, "value")
	if !ok {
		return nil, failf(native.StatusInvalidArgs, "store operation missing value")
	}
	if len(value) > maxValueBytes {
		return nil, failf(native.StatusValueTooLarge, "value too large: %d bytes", len(value))
	}
	flags, _ := argUint32(args, "flags")
	expiry, hasExpiry := argUint32(args, "expiry")
	preserve := argBool(args, "preserve_expiry")
	cas, _ := argUint64(args, "cas")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		live := loaded && !doc.expiredAt(now)
		switch mode {
		case storeInsert:
			if live {
				ee = failf(native.StatusDocumentExists, "document already exists")
				return doc, false
			}
		case storeReplace:
			if !live {
				ee = errNotFound()
				return doc, true
			}
		}
		if live {
			if ee = checkWriteLock(&doc, cas, now); ee != nil {
				return doc, false
			}
			if mode == storeReplace && cas != 0 && cas != doc.cas {
				ee = failf(native.StatusDocumentExists, "cas mismatch")
				return doc, false
			}
		}

		next := document{
			value: copyBytes(value),
			flags: flags,
			cas:   c.nextCas(),
		}
		switch {
		case hasExpiry:
			next.expireAt = absoluteExpiry(expiry, now)
		case preserve && live:
			next.expireAt = doc.expireAt
		}
		res = map[string]any{
			"cas":            next.cas,
			"mutation_token": bs.nextToken(key),
		}
		return next, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

func (c *connImpl) remove(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	cas, _ := argUint64(args, "cas")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		if !loaded || doc.expiredAt(now) {
			ee = errNotFound()
			return doc, true
		}
		if ee = checkWriteLock(&doc, cas, now); ee != nil {
			return doc, false
		}
		if cas != 0 && cas != doc.cas {
			ee = failf(native.StatusDocumentExists, "cas mismatch")
			return doc, false
		}
		res = map[string]any{
			"cas":            c.nextCas(),
			"mutation_token": bs.nextToken(key),
		}
		return doc, true
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Binary Mutations
// --------------------------------------------------------------------------

func (c *connImpl) splice(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time, front bool) (map[string]any, error) {
	value, ok := argBytes(args, "value")
	if !ok {
		return nil, failf(native.StatusInvalidArgs, "adjoin operation missing value")
	}
	cas, _ := argUint64(args, "cas")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		if !loaded || doc.expiredAt(now) {
			ee = errNotFound()
			return doc, true
		}
		if ee = checkWriteLock(&doc, cas, now); ee != nil {
			return doc, false
		}
		if cas != 0 && cas != doc.cas {
			ee = failf(native.StatusDocumentExists, "cas mismatch")
			return doc, false
		}
		if len(doc.value)+len(value) > maxValueBytes {
			ee = failf(native.StatusValueTooLarge, "value too large: %d bytes", len(doc.value)+len(value))
			return doc, false
		}

		body := make([]byte, 0, len(doc.value)+len(value))
		if front {
			body = append(append(body, value...), doc.value...)
		} else {
			body = append(append(body, doc.value...), value...)
		}
		doc.value = body
		doc.cas = c.nextCas()
		res = map[string]any{
			"cas":            doc.cas,
			"mutation_token": bs.nextToken(key),
		}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

func (c *connImpl) counter(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time, negative bool) (map[string]any, error) {
	delta, ok := argUint64(args, "delta")
	if !ok {
		delta = 1
	}
	initial, hasInitial := argUint64(args, "initial")
	expiry, hasExpiry := argUint32(args, "expiry")

	var res map[string]any
	var ee *native.EngineError
	sh.data.Compute(composite, func(doc document, loaded bool) (document, bool) {
		live := loaded && !doc.expiredAt(now)
		if !live {
			if !hasInitial {
				ee = errNotFound()
				return doc, true
			}
			next := document{
				value: []byte(strconv.FormatUint(initial, 10)),
				cas:   c.nextCas(),
			}
			if hasExpiry {
				next.expireAt = absoluteExpiry(expiry, now)
			}
			res = map[string]any{
				"cas":            next.cas,
				"content":        initial,
				"mutation_token": bs.nextToken(key),
			}
			return next, false
		}

		if doc.lockedAt(now) {
			ee = errLocked()
			return doc, false
		}
		cur, err := strconv.ParseUint(string(doc.value), 10, 64)
		if err != nil {
			ee = failf(native.StatusDeltaInvalid, "delta badval: document is not a number")
			return doc, false
		}
		var val uint64
		if negative {
			if cur < delta {
				val = 0
			} else {
				val = cur - delta
			}
		} else {
			if cur > math.MaxUint64-delta {
				ee = failf(native.StatusNumberTooBig, "counter overflow")
				return doc, false
			}
			val = cur + delta
		}
		doc.value = []byte(strconv.FormatUint(val, 10))
		doc.cas = c.nextCas()
		if hasExpiry {
			doc.expireAt = absoluteExpiry(expiry, now)
		}
		res = map[string]any{
			"cas":            doc.cas,
			"content":        val,
			"mutation_token": bs.nextToken(key),
		}
		return doc, false
	})
	if ee != nil {
		return nil, ee
	}
	return res, nil
}

package birch

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/core/native"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// partitionCount is the number of virtual partitions per bucket used
	// for mutation token sequence numbers.
	partitionCount = 64

	// relativeExpiryCutoff mirrors the wire convention: expiry values up to
	// thirty days (in seconds) are relative to now, larger values are
	// absolute Unix timestamps.
	relativeExpiryCutoff = 30 * 24 * 60 * 60

	// maxValueBytes is the largest document body the engine accepts.
	maxValueBytes = 20 << 20

	// defaultLockTime and maxLockTime bound write locks.
	defaultLockTime = 15 * time.Second
	maxLockTime     = 30 * time.Second

	// sweepInterval is the default period of the expiry sweeper.
	sweepInterval = time.Second
)

func init() {
	native.RegisterEngine("birch", NewEngine())
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// engineImpl hands out isolated in-memory connections.
type engineImpl struct{}

// NewEngine returns the birch engine. The engine itself is stateless;
// every Connect call creates a fresh, isolated store.
func NewEngine() native.IEngine {
	return &engineImpl{}
}

// Connect builds the store sized by the connection string's num_shards
// option and pre-creates the default bucket namespace.
//
// Thread-safety: the returned connection is safe for concurrent use.
func (e *engineImpl) Connect(spec connstr.ConnSpec, creds core.Credentials) (native.IEngineConn, error) {
	numShards, err := spec.NumShards()
	if err != nil {
		return nil, err
	}
	if numShards == 0 {
		numShards = runtime.NumCPU()
	}

	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = &shard{data: xsync.NewMapOf[string, document]()}
	}

	c := &connImpl{
		spec:    spec,
		creds:   creds,
		shards:  shards,
		buckets: xsync.NewMapOf[string, *bucketState](),
		done:    make(chan struct{}),
	}
	// seed the CAS sequence so restarts never reuse a CAS
	c.casSeq.Store(uint64(time.Now().UnixNano()))

	bucket := spec.Bucket
	if bucket == "" {
		bucket = "default"
	}
	c.createBucketState(core.BucketSettings{Name: bucket, BucketType: "membase"})

	go c.sweep()
	return c, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// connImpl is one live store. All engine state hangs off it.
type connImpl struct {
	spec  connstr.ConnSpec
	creds core.Credentials

	shards  []*shard
	buckets *xsync.MapOf[string, *bucketState]

	casSeq   atomic.Uint64
	querySeq atomic.Uint64
	closed   atomic.Bool
	done     chan struct{}
}

// shard is one partition of the document store.
type shard struct {
	data *xsync.MapOf[string, document]
}

// bucketState is the namespace metadata and sequence state of one bucket.
type bucketState struct {
	settings core.BucketSettings
	uuid     uint64
	seqnos   []atomic.Uint64
	scopes   *xsync.MapOf[string, *scopeState]
	indexes  *xsync.MapOf[string, indexMeta]
}

type scopeState struct {
	collections *xsync.MapOf[string, *collectionMeta]
}

type collectionMeta struct {
	maxExpirySecs uint32
}

type indexMeta struct {
	name      string
	fields    []string
	isPrimary bool
}

// nextCas returns a fresh CAS value, unique per connection.
func (c *connImpl) nextCas() uint64 {
	return c.casSeq.Add(1)
}

// compositeKey is the store key of one document.
func compositeKey(bucket, scope, collection, key string) string {
	return bucket + "\x00" + scope + "\x00" + collection + "\x00" + key
}

// shardFor picks the shard of a composite key.
func (c *connImpl) shardFor(composite string) *shard {
	h := fnv.New64a()
	h.Write([]byte(composite))
	return c.shards[h.Sum64()%uint64(len(c.shards))]
}

// partitionOf maps a document key onto its virtual partition.
func partitionOf(key string) uint16 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return uint16(h.Sum32() % partitionCount)
}

// nextToken bumps the partition sequence of the key and renders the
// mutation token the result decoders expect.
func (b *bucketState) nextToken(key string) map[string]any {
	pid := partitionOf(key)
	seq := b.seqnos[pid].Add(1)
	return map[string]any{
		"partition_id":   uint64(pid),
		"partition_uuid": b.uuid,
		"seqno":          seq,
		"bucket":         b.settings.Name,
	}
}

// --------------------------------------------------------------------------
// Namespace Resolution
// --------------------------------------------------------------------------

// createBucketState registers a bucket with its default scope and
// collection. Returns false if the bucket already exists.
func (c *connImpl) createBucketState(settings core.BucketSettings) bool {
	state := &bucketState{
		settings: settings,
		uuid:     c.nextCas(),
		seqnos:   make([]atomic.Uint64, partitionCount),
		scopes:   xsync.NewMapOf[string, *scopeState](),
		indexes:  xsync.NewMapOf[string, indexMeta](),
	}
	defaultScope := &scopeState{collections: xsync.NewMapOf[string, *collectionMeta]()}
	defaultScope.collections.Store("_default", &collectionMeta{})
	state.scopes.Store("_default", defaultScope)

	_, loaded := c.buckets.LoadOrStore(settings.Name, state)
	return !loaded
}

// resolve checks that the namespace path exists and returns the bucket
// state. The scope and collection checks keep unknown-namespace failures
// distinguishable from missing documents.
func (c *connImpl) resolve(bucket, scope, collection string) (*bucketState, *native.EngineError) {
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	ss, ok := bs.scopes.Load(scope)
	if !ok {
		return nil, failf(native.StatusScopeNotFound, "scope %q not found", scope)
	}
	if _, ok := ss.collections.Load(collection); !ok {
		return nil, failf(native.StatusCollectionNotFound, "collection %q not found", collection)
	}
	return bs, nil
}

// --------------------------------------------------------------------------
// Expiry Sweeper
// --------------------------------------------------------------------------

// sweep periodically deletes expired documents. Reads check expiry on
// their own, so the sweeper only reclaims memory.
func (c *connImpl) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			for _, sh := range c.shards {
				var expired []string
				sh.data.Range(func(key string, doc document) bool {
					if doc.expiredAt(now) {
						expired = append(expired, key)
					}
					return true
				})
				for _, key := range expired {
					sh.data.Compute(key, func(doc document, loaded bool) (document, bool) {
						// re-check: the doc may have been replaced since
						return doc, !loaded || doc.expiredAt(now)
					})
				}
			}
		}
	}
}

// --------------------------------------------------------------------------
// Error Helpers
// --------------------------------------------------------------------------

func failf(code int, format string, args ...any) *native.EngineError {
	return &native.EngineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// errLocked is the canonical locked failure, tagged with its retry reason.
func errLocked() *native.EngineError {
	return &native.EngineError{
		Code:    native.StatusDocumentLocked,
		Message: "document is locked",
		Context: map[string]any{"retry_reasons": []string{"key_value_locked"}},
	}
}

func errClosed() *native.EngineError {
	return failf(native.StatusTemporaryFailure, "connection is closed")
}

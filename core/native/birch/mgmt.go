package birch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/native"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Management Operations
// --------------------------------------------------------------------------

func (c *connImpl) manage(op native.OpCode, args map[string]any) (map[string]any, error) {
	switch op {
	case native.OpCreateBucket:
		return c.createBucket(args)
	case native.OpDropBucket:
		return c.dropBucket(args)
	case native.OpFlushBucket:
		return c.flushBucket(args)
	case native.OpGetBucket:
		return c.getBucket(args)
	case native.OpGetAllBuckets:
		return c.getAllBuckets()
	case native.OpCreateScope:
		return c.createScope(args)
	case native.OpDropScope:
		return c.dropScope(args)
	case native.OpCreateCollection:
		return c.createCollection(args)
	case native.OpDropCollection:
		return c.dropCollection(args)
	case native.OpGetAllScopes:
		return c.getAllScopes(args)
	case native.OpCreateQueryIndex:
		return c.createQueryIndex(args)
	case native.OpDropQueryIndex:
		return c.dropQueryIndex(args)
	case native.OpGetAllQueryIndexes:
		return c.getAllQueryIndexes(args)
	default:
		return nil, failf(native.StatusNotSupported, "operation %s is not supported", op)
	}
}

// deleteByPrefix drops every document whose composite key starts with
// prefix, across all shards.
func (c *connImpl) deleteByPrefix(prefix string) {
	for _, sh := range c.shards {
		var doomed []string
		sh.data.Range(func(composite string, _ document) bool {
			if strings.HasPrefix(composite, prefix) {
				doomed = append(doomed, composite)
			}
			return true
		})
		for _, composite := range doomed {
			sh.data.Delete(composite)
		}
	}
}

// --------------------------------------------------------------------------
// Buckets
// --------------------------------------------------------------------------

func bucketSettingsMap(s core.BucketSettings) map[string]any {
	return map[string]any{
		"name":          s.Name,
		"bucket_type":   s.BucketType,
		"ram_quota_mb":  s.RAMQuotaMB,
		"num_replicas":  s.NumReplicas,
		"flush_enabled": s.FlushEnabled,
	}
}

func (c *connImpl) createBucket(args map[string]any) (map[string]any, error) {
	name, _ := argString(args, "name")
	if name == "" {
		return nil, failf(native.StatusInvalidArgs, "bucket name is required")
	}
	settings := core.BucketSettings{Name: name}
	settings.BucketType, _ = argString(args, "bucket_type")
	if settings.BucketType == "" {
		settings.BucketType = "membase"
	}
	settings.RAMQuotaMB, _ = argUint64(args, "ram_quota_mb")
	if settings.RAMQuotaMB == 0 {
		settings.RAMQuotaMB = 100
	}
	if replicas, ok := argUint32(args, "num_replicas"); ok {
		settings.NumReplicas = replicas
	}
	settings.FlushEnabled = argBool(args, "flush_enabled")

	if !c.createBucketState(settings) {
		return nil, failf(native.StatusInvalidArgs, "bucket %q already exists", name)
	}
	return map[string]any{}, nil
}

func (c *connImpl) dropBucket(args map[string]any) (map[string]any, error) {
	name, _ := argString(args, "name")
	if _, ok := c.buckets.LoadAndDelete(name); !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", name)
	}
	c.deleteByPrefix(name + "\x00")
	return map[string]any{}, nil
}

func (c *connImpl) flushBucket(args map[string]any) (map[string]any, error) {
	name, _ := argString(args, "name")
	bs, ok := c.buckets.Load(name)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", name)
	}
	if !bs.settings.FlushEnabled {
		return nil, failf(native.StatusInvalidArgs, "flush is not enabled on bucket %q", name)
	}
	c.deleteByPrefix(name + "\x00")
	return map[string]any{}, nil
}

func (c *connImpl) getBucket(args map[string]any) (map[string]any, error) {
	name, _ := argString(args, "name")
	bs, ok := c.buckets.Load(name)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", name)
	}
	return bucketSettingsMap(bs.settings), nil
}

func (c *connImpl) getAllBuckets() (map[string]any, error) {
	var all []core.BucketSettings
	c.buckets.Range(func(_ string, bs *bucketState) bool {
		all = append(all, bs.settings)
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	buckets := make([]any, len(all))
	for i, s := range all {
		buckets[i] = bucketSettingsMap(s)
	}
	return map[string]any{"buckets": buckets}, nil
}

// --------------------------------------------------------------------------
// Scopes and Collections
// --------------------------------------------------------------------------

func (c *connImpl) createScope(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	scope, _ := argString(args, "scope")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	state := &scopeState{collections: xsync.NewMapOf[string, *collectionMeta]()}
	if _, loaded := bs.scopes.LoadOrStore(scope, state); loaded {
		return nil, failf(native.StatusInvalidArgs, "scope %q already exists", scope)
	}
	return map[string]any{}, nil
}

func (c *connImpl) dropScope(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	scope, _ := argString(args, "scope")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	if scope == "_default" {
		return nil, failf(native.StatusInvalidArgs, "scope %q cannot be dropped", scope)
	}
	if _, ok := bs.scopes.LoadAndDelete(scope); !ok {
		return nil, failf(native.StatusScopeNotFound, "scope %q not found", scope)
	}
	c.deleteByPrefix(bucket + "\x00" + scope + "\x00")
	return map[string]any{}, nil
}

func (c *connImpl) createCollection(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	scope, _ := argString(args, "scope")
	collection, _ := argString(args, "collection")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	ss, ok := bs.scopes.Load(scope)
	if !ok {
		return nil, failf(native.StatusScopeNotFound, "scope %q not found", scope)
	}
	if _, loaded := ss.collections.LoadOrStore(collection, &collectionMeta{}); loaded {
		return nil, failf(native.StatusInvalidArgs, "collection %q already exists", collection)
	}
	return map[string]any{}, nil
}

func (c *connImpl) dropCollection(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	scope, _ := argString(args, "scope")
	collection, _ := argString(args, "collection")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	ss, ok := bs.scopes.Load(scope)
	if !ok {
		return nil, failf(native.StatusScopeNotFound, "scope %q not found", scope)
	}
	if scope == "_default" && collection == "_default" {
		return nil, failf(native.StatusInvalidArgs, "collection %q cannot be dropped", collection)
	}
	if _, ok := ss.collections.LoadAndDelete(collection); !ok {
		return nil, failf(native.StatusCollectionNotFound, "collection %q not found", collection)
	}
	c.deleteByPrefix(bucket + "\x00" + scope + "\x00" + collection + "\x00")
	return map[string]any{}, nil
}

func (c *connImpl) getAllScopes(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}

	type scopeEntry struct {
		name  string
		state *scopeState
	}
	var scopes []scopeEntry
	bs.scopes.Range(func(name string, state *scopeState) bool {
		scopes = append(scopes, scopeEntry{name, state})
		return true
	})
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].name < scopes[j].name })

	out := make([]any, 0, len(scopes))
	for _, s := range scopes {
		var cols []string
		metas := map[string]*collectionMeta{}
		s.state.collections.Range(func(name string, meta *collectionMeta) bool {
			cols = append(cols, name)
			metas[name] = meta
			return true
		})
		sort.Strings(cols)

		colList := make([]any, len(cols))
		for i, name := range cols {
			colList[i] = map[string]any{
				"name":            name,
				"max_expiry_secs": metas[name].maxExpirySecs,
			}
		}
		out = append(out, map[string]any{"name": s.name, "collections": colList})
	}
	return map[string]any{"scopes": out}, nil
}

// --------------------------------------------------------------------------
// Query Indexes
// --------------------------------------------------------------------------

func indexFields(args map[string]any) []string {
	switch v := args["fields"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c *connImpl) createQueryIndex(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	name, _ := argString(args, "name")
	isPrimary := argBool(args, "is_primary")
	if name == "" && isPrimary {
		name = "#primary"
	}
	meta := indexMeta{name: name, fields: indexFields(args), isPrimary: isPrimary}
	if _, loaded := bs.indexes.LoadOrStore(name, meta); loaded {
		return nil, failf(native.StatusQueryIndexExists, "index %q already exists", name)
	}
	return map[string]any{}, nil
}

func (c *connImpl) dropQueryIndex(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}
	name, _ := argString(args, "name")
	if _, ok := bs.indexes.LoadAndDelete(name); !ok {
		return nil, failf(native.StatusQueryIndexNotFound, "index %q not found", name)
	}
	return map[string]any{}, nil
}

func (c *connImpl) getAllQueryIndexes(args map[string]any) (map[string]any, error) {
	bucket, _ := argString(args, "bucket")
	bs, ok := c.buckets.Load(bucket)
	if !ok {
		return nil, failf(native.StatusBucketNotFound, "bucket %q not found", bucket)
	}

	var metas []indexMeta
	bs.indexes.Range(func(_ string, meta indexMeta) bool {
		metas = append(metas, meta)
		return true
	})
	sort.Slice(metas, func(i, j int) bool { return metas[i].name < metas[j].name })

	indexes := make([]any, len(metas))
	for i, meta := range metas {
		fields := make([]any, len(meta.fields))
		for j, f := range meta.fields {
			fields[j] = f
		}
		indexes[i] = map[string]any{
			"name":       meta.name,
			"keyspace":   bucket,
			"is_primary": meta.isPrimary,
			"state":      "online",
			"fields":     fields,
		}
	}
	return map[string]any{"indexes": indexes}, nil
}

// --------------------------------------------------------------------------
// Ping, Diagnostics, Close
// --------------------------------------------------------------------------

// Interface Methods (docu see native.IEngineConn)

func (c *connImpl) Ping(services []core.ServiceType) (map[string]any, error) {
	if c.closed.Load() {
		return nil, errClosed()
	}
	if len(services) == 0 {
		services = []core.ServiceType{core.ServiceKeyValue, core.ServiceQuery, core.ServiceManagement}
	}

	// Probe every requested service concurrently and report the measured
	// per-service latency instead of a constant.
	latencies := make([]uint64, len(services))
	var g errgroup.Group
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			start := time.Now()
			c.probe(svc)
			lat := time.Since(start).Microseconds()
			if lat < 1 {
				lat = 1
			}
			latencies[i] = uint64(lat)
			return nil
		})
	}
	_ = g.Wait() // probes on an open connection do not fail

	out := make(map[string]any, len(services))
	for i, svc := range services {
		out[string(svc)] = c.endpoints(svc, "ok", "latency_us", latencies[i])
	}
	return map[string]any{
		"id":       fmt.Sprintf("birch-ping-%d", c.querySeq.Add(1)),
		"services": out,
	}, nil
}

// probe touches the store structures a service depends on so the measured
// latency reflects a real access path.
func (c *connImpl) probe(svc core.ServiceType) {
	switch svc {
	case core.ServiceKeyValue:
		for _, sh := range c.shards {
			sh.data.Size()
		}
	default:
		c.buckets.Range(func(string, *bucketState) bool { return true })
	}
}

func (c *connImpl) Diagnostics() (map[string]any, error) {
	state := "online"
	endpointState := "connected"
	if c.closed.Load() {
		state = "offline"
		endpointState = "disconnected"
	}
	now := uint64(time.Now().UnixMicro())
	services := make(map[string]any, 3)
	for _, svc := range []core.ServiceType{core.ServiceKeyValue, core.ServiceQuery, core.ServiceManagement} {
		services[string(svc)] = c.endpoints(svc, endpointState, "last_activity_us", now)
	}
	return map[string]any{
		"id":       fmt.Sprintf("birch-diag-%d", c.querySeq.Add(1)),
		"state":    state,
		"services": services,
	}, nil
}

// endpoints renders one endpoint report per configured host for a service.
// Ping reports carry the measured latency in the timing field; diagnostics
// carry the last-activity timestamp in unix microseconds.
func (c *connImpl) endpoints(svc core.ServiceType, state, timingField string, timingValue uint64) []any {
	hosts := c.spec.Hosts
	endpoints := make([]any, 0, len(hosts))
	for i, host := range hosts {
		endpoints = append(endpoints, map[string]any{
			"id":        fmt.Sprintf("%s-%d", svc, i),
			"local":     "in-process",
			"remote":    host.HostPort(),
			"state":     state,
			timingField: timingValue,
		})
	}
	return endpoints
}

func (c *connImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	return nil
}

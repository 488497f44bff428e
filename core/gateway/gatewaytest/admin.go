package gatewaytest

import (
	"sort"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/gateway"
	"github.com/couchkit/couchkit/core/native"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Admin Handlers
// --------------------------------------------------------------------------

func (c *Conn) dispatchAdmin(name string, payload []byte) (any, error) {
	switch name {
	case "Ping":
		return handle(payload, c.ping)
	case "CreateBucket":
		return handle(payload, c.createBucket)
	case "DropBucket":
		return handle(payload, c.dropBucket)
	case "FlushBucket":
		return handle(payload, c.flushBucket)
	case "GetBucket":
		return handle(payload, c.getBucket)
	case "ListBuckets":
		return handle(payload, c.listBuckets)
	case "CreateScope":
		return handle(payload, c.createScope)
	case "DropScope":
		return handle(payload, c.dropScope)
	case "CreateCollection":
		return handle(payload, c.createCollection)
	case "DropCollection":
		return handle(payload, c.dropCollection)
	case "ListScopes":
		return handle(payload, c.listScopes)
	case "CreateIndex":
		return handle(payload, c.createIndex)
	case "DropIndex":
		return handle(payload, c.dropIndex)
	case "ListIndexes":
		return handle(payload, c.listIndexes)
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown method %s", name)
	}
}

func (c *Conn) ping(req *gateway.PingRequest) (any, error) {
	services := make([]core.ServiceType, len(req.ServiceTypes))
	for i, s := range req.ServiceTypes {
		services[i] = core.ServiceType(s)
	}
	res, err := c.conn.Ping(services)
	if err != nil {
		return nil, statusErr(err)
	}

	reportID := req.ReportID
	if reportID == "" {
		reportID, _ = asString(res["id"])
	}
	byService, _ := asMap(res["services"])
	names := make([]string, 0, len(byService))
	for svc := range byService {
		names = append(names, svc)
	}
	sort.Strings(names)

	var reports []gateway.PingServiceReport
	for _, svc := range names {
		endpoints, _ := asSlice(byService[svc])
		for _, raw := range endpoints {
			ep, _ := asMap(raw)
			id, _ := asString(ep["id"])
			remote, _ := asString(ep["remote"])
			state, _ := asString(ep["state"])
			latency, _ := asUint64(ep["latency_us"])
			errMsg, _ := asString(ep["error"])
			reports = append(reports, gateway.PingServiceReport{
				ServiceType: svc,
				ID:          id,
				Remote:      remote,
				State:       state,
				Error:       errMsg,
				LatencyUs:   latency,
			})
		}
	}
	return &gateway.PingResponse{ReportID: reportID, Reports: reports}, nil
}

func (c *Conn) createBucket(req *gateway.CreateBucketRequest) (any, error) {
	_, err := c.manage(native.OpCreateBucket, map[string]any{
		"name":          req.BucketName,
		"bucket_type":   req.BucketType,
		"ram_quota_mb":  req.RAMQuotaMB,
		"num_replicas":  req.NumReplicas,
		"flush_enabled": req.FlushEnabled,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) dropBucket(req *gateway.DropBucketRequest) (any, error) {
	if _, err := c.manage(native.OpDropBucket, map[string]any{"name": req.BucketName}); err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) flushBucket(req *gateway.FlushBucketRequest) (any, error) {
	if _, err := c.manage(native.OpFlushBucket, map[string]any{"name": req.BucketName}); err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) getBucket(req *gateway.GetBucketRequest) (any, error) {
	res, err := c.manage(native.OpGetBucket, map[string]any{"name": req.BucketName})
	if err != nil {
		return nil, err
	}
	return bucketMessage(res), nil
}

func (c *Conn) listBuckets(_ *gateway.ListBucketsRequest) (any, error) {
	res, err := c.manage(native.OpGetAllBuckets, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := asSlice(res["buckets"])
	buckets := make([]gateway.BucketMessage, 0, len(raw))
	for _, r := range raw {
		if m, ok := asMap(r); ok {
			buckets = append(buckets, *bucketMessage(m))
		}
	}
	return &gateway.ListBucketsResponse{Buckets: buckets}, nil
}

func (c *Conn) createScope(req *gateway.CreateScopeRequest) (any, error) {
	_, err := c.manage(native.OpCreateScope, map[string]any{
		"bucket": req.BucketName,
		"scope":  req.ScopeName,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) dropScope(req *gateway.DropScopeRequest) (any, error) {
	_, err := c.manage(native.OpDropScope, map[string]any{
		"bucket": req.BucketName,
		"scope":  req.ScopeName,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) createCollection(req *gateway.CreateCollectionRequest) (any, error) {
	_, err := c.manage(native.OpCreateCollection, map[string]any{
		"bucket":     req.BucketName,
		"scope":      req.ScopeName,
		"collection": req.CollectionName,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) dropCollection(req *gateway.DropCollectionRequest) (any, error) {
	_, err := c.manage(native.OpDropCollection, map[string]any{
		"bucket":     req.BucketName,
		"scope":      req.ScopeName,
		"collection": req.CollectionName,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) listScopes(req *gateway.ListScopesRequest) (any, error) {
	res, err := c.manage(native.OpGetAllScopes, map[string]any{"bucket": req.BucketName})
	if err != nil {
		return nil, err
	}
	raw, _ := asSlice(res["scopes"])
	scopes := make([]gateway.ScopeMessage, 0, len(raw))
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		name, _ := asString(m["name"])
		rawCols, _ := asSlice(m["collections"])
		cols := make([]gateway.CollectionMessage, 0, len(rawCols))
		for _, rc := range rawCols {
			cm, ok := asMap(rc)
			if !ok {
				continue
			}
			colName, _ := asString(cm["name"])
			maxExpiry, _ := asUint32(cm["max_expiry_secs"])
			cols = append(cols, gateway.CollectionMessage{CollectionName: colName, MaxExpiry: maxExpiry})
		}
		scopes = append(scopes, gateway.ScopeMessage{ScopeName: name, Collections: cols})
	}
	return &gateway.ListScopesResponse{Scopes: scopes}, nil
}

func (c *Conn) createIndex(req *gateway.CreateIndexRequest) (any, error) {
	_, err := c.manage(native.OpCreateQueryIndex, map[string]any{
		"bucket":     req.BucketName,
		"name":       req.IndexName,
		"is_primary": req.Primary,
		"fields":     req.Fields,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) dropIndex(req *gateway.DropIndexRequest) (any, error) {
	name := req.IndexName
	if name == "" && req.Primary {
		name = "#primary"
	}
	_, err := c.manage(native.OpDropQueryIndex, map[string]any{
		"bucket": req.BucketName,
		"name":   name,
	})
	if err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) listIndexes(req *gateway.ListIndexesRequest) (any, error) {
	res, err := c.manage(native.OpGetAllQueryIndexes, map[string]any{"bucket": req.BucketName})
	if err != nil {
		return nil, err
	}
	raw, _ := asSlice(res["indexes"])
	indexes := make([]gateway.IndexMessage, 0, len(raw))
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		name, _ := asString(m["name"])
		keyspace, _ := asString(m["keyspace"])
		state, _ := asString(m["state"])
		primary, _ := asBool(m["is_primary"])
		rawFields, _ := asSlice(m["fields"])
		fields := make([]string, 0, len(rawFields))
		for _, f := range rawFields {
			if s, ok := asString(f); ok {
				fields = append(fields, s)
			}
		}
		indexes = append(indexes, gateway.IndexMessage{
			IndexName: name,
			Primary:   primary,
			State:     state,
			Keyspace:  keyspace,
			Fields:    fields,
		})
	}
	return &gateway.ListIndexesResponse{Indexes: indexes}, nil
}

func bucketMessage(m map[string]any) *gateway.BucketMessage {
	name, _ := asString(m["name"])
	bucketType, _ := asString(m["bucket_type"])
	quota, _ := asUint64(m["ram_quota_mb"])
	replicas, _ := asUint32(m["num_replicas"])
	flush, _ := asBool(m["flush_enabled"])
	return &gateway.BucketMessage{
		BucketName:   name,
		FlushEnabled: flush,
		RAMQuotaMB:   quota,
		NumReplicas:  replicas,
		BucketType:   bucketType,
	}
}

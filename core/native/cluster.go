package native

import (
	"io"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/puzpuzpuz/xsync/v3"
)

// clusterCore is the native backend's cluster implementation. One engine
// connection serves all handles derived from it; collection cores are built
// once per namespace path and cached.
type clusterCore struct {
	conn     IEngineConn
	timeouts connstr.Timeouts
	log      logger.ILogger

	collections *xsync.MapOf[string, *collectionCore]
}

var _ core.IClusterCore = (*clusterCore)(nil)

// NewClusterCore connects the engine and returns the cluster core for the
// couchbase(s) schemes. A nil engine selects the registered engine the
// connection string names (the in-process birch engine by default).
func NewClusterCore(spec connstr.ConnSpec, creds core.Credentials, eng IEngine,
	log logger.ILogger) (core.IClusterCore, error) {

	if log == nil {
		log = logger.NopLogger
	}
	if eng == nil {
		var err error
		eng, err = EngineFor(spec.Engine())
		if err != nil {
			return nil, err
		}
	}
	timeouts, err := spec.Timeouts()
	if err != nil {
		return nil, err
	}
	conn, err := eng.Connect(spec, creds)
	if err != nil {
		return nil, mapConnError(err, "connect")
	}
	log.Debugf("native: connected to %s", spec.String())
	return &clusterCore{
		conn:        conn,
		timeouts:    timeouts,
		log:         log,
		collections: xsync.NewMapOf[string, *collectionCore](),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see core.IClusterCore)
// --------------------------------------------------------------------------

func (cc *clusterCore) Collection(bucket, scope, collection string) core.ICollectionCore {
	key := bucket + "/" + scope + "/" + collection
	col, _ := cc.collections.LoadOrCompute(key, func() *collectionCore {
		return &collectionCore{
			conn:       cc.conn,
			bucket:     bucket,
			scope:      scope,
			collection: collection,
			defaults: options.Values{
				options.KeyTimeout: cc.timeouts.KV,
			},
			durableDefaults: options.Values{
				options.KeyTimeout: cc.timeouts.KVDurable,
			},
		}
	})
	return col
}

func (cc *clusterCore) Query(statement string, opts options.Values) (*core.QueryResult, error) {
	merged := options.Merge(options.Values{
		options.KeyTimeout: cc.timeouts.Query,
	}, opts)
	args, err := options.Normalize(queryTable, merged)
	if err != nil {
		return nil, err
	}
	contextID, _ := merged[options.KeyClientContextID].(string)

	return core.NewQueryResult(func() (core.IQueryRows, error) {
		rows, err := cc.conn.Query(statement, args)
		if err != nil {
			return nil, mapQueryError(err, statement, contextID)
		}
		return &mappedRows{inner: rows, statement: statement, contextID: contextID}, nil
	}), nil
}

func (cc *clusterCore) Ping(bucket string, opts options.Values) (*core.PingResult, error) {
	services, _ := opts[options.KeyServiceTypes].([]core.ServiceType)
	raw, err := cc.conn.Ping(services)
	if err != nil {
		return nil, mapConnError(err, "ping")
	}
	res, err := decodePingResult(raw)
	if err != nil {
		return nil, err
	}
	if id, ok := opts[options.KeyReportID].(string); ok && id != "" {
		res.ID = id
	}
	if bucket != "" {
		for _, reports := range res.Services {
			for i := range reports {
				if reports[i].Namespace == "" {
					reports[i].Namespace = bucket
				}
			}
		}
	}
	return res, nil
}

func (cc *clusterCore) Diagnostics(opts options.Values) (*core.DiagnosticsResult, error) {
	raw, err := cc.conn.Diagnostics()
	if err != nil {
		return nil, mapConnError(err, "diagnostics")
	}
	res, err := decodeDiagnosticsResult(raw)
	if err != nil {
		return nil, err
	}
	if id, ok := opts[options.KeyReportID].(string); ok && id != "" {
		res.ID = id
	}
	return res, nil
}

func (cc *clusterCore) Close() error {
	cc.log.Debugf("native: closing connection")
	return cc.conn.Close()
}

// --------------------------------------------------------------------------
// Management Operations
// --------------------------------------------------------------------------

// manage normalizes the shared management options, adds the subject args
// and invokes a management opcode.
func (cc *clusterCore) manage(op OpCode, subject map[string]any,
	opts options.Values, pathParts ...string) (map[string]any, error) {

	merged := options.Merge(options.Values{
		options.KeyTimeout: cc.timeouts.Management,
	}, opts)
	args, err := options.Normalize(managementTable, merged)
	if err != nil {
		return nil, err
	}
	for k, v := range subject {
		args[k] = v
	}
	res, err := cc.conn.Invoke("", "", "", "", op, args)
	if err != nil {
		return nil, mapManagementError(err, op, pathParts...)
	}
	return res, nil
}

func (cc *clusterCore) CreateBucket(settings core.BucketSettings, opts options.Values) error {
	if settings.Name == "" {
		return errors.New(errors.ErrInvalidArgument, "bucket name must not be empty")
	}
	_, err := cc.manage(OpCreateBucket, map[string]any{
		"name":          settings.Name,
		"bucket_type":   settings.BucketType,
		"ram_quota_mb":  settings.RAMQuotaMB,
		"num_replicas":  settings.NumReplicas,
		"flush_enabled": settings.FlushEnabled,
	}, opts, settings.Name)
	return err
}

func (cc *clusterCore) DropBucket(name string, opts options.Values) error {
	_, err := cc.manage(OpDropBucket, map[string]any{"name": name}, opts, name)
	return err
}

func (cc *clusterCore) FlushBucket(name string, opts options.Values) error {
	_, err := cc.manage(OpFlushBucket, map[string]any{"name": name}, opts, name)
	return err
}

func (cc *clusterCore) GetBucket(name string, opts options.Values) (*core.BucketSettings, error) {
	res, err := cc.manage(OpGetBucket, map[string]any{"name": name}, opts, name)
	if err != nil {
		return nil, err
	}
	return decodeBucketSettings(res)
}

func (cc *clusterCore) GetAllBuckets(opts options.Values) ([]core.BucketSettings, error) {
	res, err := cc.manage(OpGetAllBuckets, nil, opts)
	if err != nil {
		return nil, err
	}
	return decodeBucketList(res)
}

func (cc *clusterCore) CreateScope(bucket, scope string, opts options.Values) error {
	_, err := cc.manage(OpCreateScope, map[string]any{
		"bucket": bucket,
		"scope":  scope,
	}, opts, bucket, scope)
	return err
}

func (cc *clusterCore) DropScope(bucket, scope string, opts options.Values) error {
	_, err := cc.manage(OpDropScope, map[string]any{
		"bucket": bucket,
		"scope":  scope,
	}, opts, bucket, scope)
	return err
}

func (cc *clusterCore) CreateCollection(bucket, scope, collection string, opts options.Values) error {
	_, err := cc.manage(OpCreateCollection, map[string]any{
		"bucket":     bucket,
		"scope":      scope,
		"collection": collection,
	}, opts, bucket, scope, collection)
	return err
}

func (cc *clusterCore) DropCollection(bucket, scope, collection string, opts options.Values) error {
	_, err := cc.manage(OpDropCollection, map[string]any{
		"bucket":     bucket,
		"scope":      scope,
		"collection": collection,
	}, opts, bucket, scope, collection)
	return err
}

func (cc *clusterCore) GetAllScopes(bucket string, opts options.Values) ([]core.ScopeSpec, error) {
	res, err := cc.manage(OpGetAllScopes, map[string]any{"bucket": bucket}, opts, bucket)
	if err != nil {
		return nil, err
	}
	return decodeScopeList(res)
}

func (cc *clusterCore) CreateQueryIndex(bucket string, def core.IndexDefinition, opts options.Values) error {
	if def.Name == "" && !def.IsPrimary {
		return errors.New(errors.ErrInvalidArgument, "secondary indexes need a name")
	}
	if !def.IsPrimary && len(def.Fields) == 0 {
		return errors.New(errors.ErrInvalidArgument, "secondary indexes need at least one field")
	}
	_, err := cc.manage(OpCreateQueryIndex, map[string]any{
		"bucket":     bucket,
		"name":       def.Name,
		"is_primary": def.IsPrimary,
		"fields":     def.Fields,
	}, opts, bucket, def.Name)
	if err != nil && def.IgnoreIfExists && errors.Is(err, errors.ErrIndexExists) {
		return nil
	}
	return err
}

func (cc *clusterCore) DropQueryIndex(bucket, name string, opts options.Values) error {
	_, err := cc.manage(OpDropQueryIndex, map[string]any{
		"bucket": bucket,
		"name":   name,
	}, opts, bucket, name)
	return err
}

func (cc *clusterCore) GetAllQueryIndexes(bucket string, opts options.Values) ([]core.QueryIndex, error) {
	res, err := cc.manage(OpGetAllQueryIndexes, map[string]any{"bucket": bucket}, opts, bucket)
	if err != nil {
		return nil, err
	}
	return decodeIndexList(res)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// mapConnError translates connection-level failures (connect, ping,
// diagnostics) that carry no operation subject.
func mapConnError(err error, method string) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if !errors.As(err, &ee) {
		if errors.Coded(err) {
			return err
		}
		return errors.WithContext(
			errors.Wrap(err, "engine failure"),
			errors.ManagementErrorContext{Method: method})
	}
	return errors.WithContext(
		errors.New(resolveCode(ee, kindManagement), ee.Message),
		errors.ManagementErrorContext{Method: method, Body: ee.Message})
}

// mappedRows wraps an engine row stream so mid-iteration failures surface
// through the error mapper instead of leaking raw engine errors.
type mappedRows struct {
	inner     core.IQueryRows
	statement string
	contextID string
}

func (m *mappedRows) NextRow() ([]byte, error) {
	row, err := m.inner.NextRow()
	if err != nil && err != io.EOF {
		return nil, mapQueryError(err, m.statement, m.contextID)
	}
	return row, err
}

func (m *mappedRows) MetaData() ([]byte, error) {
	meta, err := m.inner.MetaData()
	if err != nil {
		return nil, mapQueryError(err, m.statement, m.contextID)
	}
	return meta, nil
}

func (m *mappedRows) Close() error {
	return m.inner.Close()
}

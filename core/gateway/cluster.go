package gateway

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
)

// DefaultPort is the gateway endpoint port used when the connection string
// leaves it unset.
const DefaultPort = 18098

// clusterCore is the gateway backend's cluster implementation. One gRPC
// channel serves all handles derived from it; collection cores are built
// once per namespace path and cached.
type clusterCore struct {
	cc     grpc.ClientConnInterface
	kv     *kvClient
	query  *queryClient
	admin  *adminClient
	target string

	timeouts connstr.Timeouts
	log      logger.ILogger

	collections *xsync.MapOf[string, *collectionCore]
}

var _ core.IClusterCore = (*clusterCore)(nil)

// NewClusterCore returns the cluster core for the protostellar scheme. A nil
// connection dials the gateway named by the spec; tests pass an in-process
// connection instead (see the gatewaytest package).
func NewClusterCore(spec connstr.ConnSpec, creds core.Credentials,
	cc grpc.ClientConnInterface, log logger.ILogger) (core.IClusterCore, error) {

	if log == nil {
		log = logger.NopLogger
	}
	timeouts, err := spec.Timeouts()
	if err != nil {
		return nil, err
	}
	target := dialTarget(spec)
	if cc == nil {
		conn, err := dial(spec, creds, target, timeouts.Connect)
		if err != nil {
			return nil, err
		}
		cc = conn
		log.Debugf("gateway: connected to %s", target)
	}
	return &clusterCore{
		cc:          cc,
		kv:          &kvClient{cc: cc},
		query:       &queryClient{cc: cc},
		admin:       &adminClient{cc: cc},
		target:      target,
		timeouts:    timeouts,
		log:         log,
		collections: xsync.NewMapOf[string, *collectionCore](),
	}, nil
}

// --------------------------------------------------------------------------
// Dialing
// --------------------------------------------------------------------------

// dialTarget picks the endpoint address. The gateway is a single logical
// endpoint, so only the first host is dialed; spreading across several
// gateways is the name service's job.
func dialTarget(spec connstr.ConnSpec) string {
	addr := connstr.Address{Host: "localhost"}
	if len(spec.Hosts) > 0 {
		addr = spec.Hosts[0]
	}
	if addr.Port == 0 {
		addr.Port = DefaultPort
	}
	return addr.HostPort()
}

// transportCredentials builds the TLS side of the channel. The gateway
// always runs TLS; tls_verify=none keeps the encryption but skips peer
// verification, and trust_store_path/cert_path name a CA bundle replacing
// the system roots.
func transportCredentials(spec connstr.ConnSpec, creds core.Credentials) (credentials.TransportCredentials, error) {
	verify, err := spec.TLSVerify()
	if err != nil {
		return nil, err
	}
	if !verify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	caPath := spec.TrustStorePath()
	if caPath == "" {
		caPath = spec.CertPath()
	}
	if caPath == "" {
		caPath = creds.CertPath
	}
	cfg := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, errors.Newf(errors.ErrInvalidArgument,
				"cannot read CA bundle %s: %v", caPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Newf(errors.ErrInvalidArgument,
				"no certificates found in %s", caPath)
		}
		cfg.RootCAs = pool
	}
	return credentials.NewTLS(cfg), nil
}

// basicAuth sends the cluster credentials on every RPC.
type basicAuth struct {
	username string
	password string
}

func (a basicAuth) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	token := base64.StdEncoding.EncodeToString([]byte(a.username + ":" + a.password))
	return map[string]string{"authorization": "Basic " + token}, nil
}

func (a basicAuth) RequireTransportSecurity() bool { return true }

func dial(spec connstr.ConnSpec, creds core.Credentials, target string,
	connectTimeout time.Duration) (*grpc.ClientConn, error) {

	tc, err := transportCredentials(spec, creds)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, target,
		grpc.WithTransportCredentials(tc),
		grpc.WithPerRPCCredentials(basicAuth{username: creds.Username, password: creds.Password}),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, errors.WithContext(
			errors.Newf(errors.ErrServiceUnavailable, "cannot reach gateway at %s: %v", target, err),
			errors.ManagementErrorContext{Method: "connect"})
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see core.IClusterCore)
// --------------------------------------------------------------------------

func (cc *clusterCore) Collection(bucket, scope, collection string) core.ICollectionCore {
	key := bucket + "/" + scope + "/" + collection
	col, _ := cc.collections.LoadOrCompute(key, func() *collectionCore {
		return &collectionCore{
			kv:         cc.kv,
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
		ctx, cancel := callContext(args)
		consistentWith, _ := args["consistent_with"].([]MutationTokenMessage)
		namedParams, _ := args["named_parameters"].(map[string]any)
		positionalParams, _ := args["positional_parameters"].([]any)
		stream, err := cc.query.Query(ctx, &QueryRequest{
			Statement:        statement,
			NamedParams:      namedParams,
			PositionalParams: positionalParams,
			ScanConsistency:  argString(args, "scan_consistency"),
			ConsistentWith:   consistentWith,
			Readonly:         argBool(args, "readonly"),
			Adhoc:            argBool(args, "adhoc"),
			ClientContextID:  argString(args, "client_context_id"),
			Metrics:          argBool(args, "metrics"),
			QueryContext:     argString(args, "query_context"),
		})
		if err != nil {
			cancel()
			return nil, mapQueryError(err, statement, contextID)
		}
		return &gatewayRows{
			stream:    stream,
			cancel:    cancel,
			statement: statement,
			contextID: contextID,
		}, nil
	}), nil
}

func (cc *clusterCore) Ping(bucket string, opts options.Values) (*core.PingResult, error) {
	merged := options.Merge(options.Values{
		options.KeyTimeout: cc.timeouts.Management,
	}, opts)
	args, err := options.Normalize(pingTable, merged)
	if err != nil {
		return nil, err
	}
	ctx, cancel := callContext(args)
	defer cancel()
	serviceTypes, _ := args["service_types"].([]string)
	res, err := cc.admin.Ping(ctx, &PingRequest{
		BucketName:   bucket,
		ReportID:     argString(args, "report_id"),
		ServiceTypes: serviceTypes,
	})
	if err != nil {
		return nil, mapAdminError(err, resourceBucket, "Ping", bucket)
	}
	out := decodePingResponse(res)
	if id := argString(args, "report_id"); id != "" {
		out.ID = id
	}
	if bucket != "" {
		for _, reports := range out.Services {
			for i := range reports {
				if reports[i].Namespace == "" {
					reports[i].Namespace = bucket
				}
			}
		}
	}
	return out, nil
}

// connStater is the slice of *grpc.ClientConn the passive diagnostics need.
// Injected test connections that do not implement it report as connected.
type connStater interface {
	GetState() connectivity.State
}

var diagSeq atomic.Uint64

func (cc *clusterCore) Diagnostics(opts options.Values) (*core.DiagnosticsResult, error) {
	endpointState := core.EndpointStateConnected
	if stater, ok := cc.cc.(connStater); ok {
		switch stater.GetState() {
		case connectivity.Ready:
			endpointState = core.EndpointStateConnected
		case connectivity.Idle, connectivity.Connecting:
			endpointState = core.EndpointStateConnecting
		default:
			endpointState = core.EndpointStateDisconnected
		}
	}
	clusterState := core.ClusterStateOnline
	switch endpointState {
	case core.EndpointStateConnecting:
		clusterState = core.ClusterStateDegraded
	case core.EndpointStateDisconnected:
		clusterState = core.ClusterStateOffline
	}

	id, _ := opts[options.KeyReportID].(string)
	if id == "" {
		id = fmt.Sprintf("gateway-diag-%d", diagSeq.Add(1))
	}
	res := &core.DiagnosticsResult{
		ID:       id,
		State:    clusterState,
		Services: make(map[core.ServiceType][]core.EndpointDiagnostics, 3),
	}
	for _, svc := range []core.ServiceType{core.ServiceKeyValue, core.ServiceQuery, core.ServiceManagement} {
		res.Services[svc] = []core.EndpointDiagnostics{{
			Type:   svc,
			ID:     string(svc) + "-0",
			Remote: cc.target,
			State:  endpointState,
		}}
	}
	return res, nil
}

func (cc *clusterCore) Close() error {
	cc.log.Debugf("gateway: closing channel")
	if closer, ok := cc.cc.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Management Operations
// --------------------------------------------------------------------------

// manageContext normalizes the shared management options into the call
// context carrying the management timeout.
func (cc *clusterCore) manageContext(opts options.Values) (context.Context, context.CancelFunc, error) {
	merged := options.Merge(options.Values{
		options.KeyTimeout: cc.timeouts.Management,
	}, opts)
	args, err := options.Normalize(managementTable, merged)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := callContext(args)
	return ctx, cancel, nil
}

func (cc *clusterCore) CreateBucket(settings core.BucketSettings, opts options.Values) error {
	if settings.Name == "" {
		return errors.New(errors.ErrInvalidArgument, "bucket name must not be empty")
	}
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.CreateBucket(ctx, &CreateBucketRequest{BucketMessage: BucketMessage{
		BucketName:   settings.Name,
		BucketType:   settings.BucketType,
		RAMQuotaMB:   settings.RAMQuotaMB,
		NumReplicas:  settings.NumReplicas,
		FlushEnabled: settings.FlushEnabled,
	}})
	return mapAdminError(err, resourceBucket, "CreateBucket", settings.Name)
}

func (cc *clusterCore) DropBucket(name string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.DropBucket(ctx, &DropBucketRequest{BucketName: name})
	return mapAdminError(err, resourceBucket, "DropBucket", name)
}

func (cc *clusterCore) FlushBucket(name string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.FlushBucket(ctx, &FlushBucketRequest{BucketName: name})
	return mapAdminError(err, resourceBucket, "FlushBucket", name)
}

func (cc *clusterCore) GetBucket(name string, opts options.Values) (*core.BucketSettings, error) {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := cc.admin.GetBucket(ctx, &GetBucketRequest{BucketName: name})
	if err != nil {
		return nil, mapAdminError(err, resourceBucket, "GetBucket", name)
	}
	return decodeBucketMessage(res), nil
}

func (cc *clusterCore) GetAllBuckets(opts options.Values) ([]core.BucketSettings, error) {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := cc.admin.ListBuckets(ctx, &ListBucketsRequest{})
	if err != nil {
		return nil, mapAdminError(err, resourceBucket, "ListBuckets")
	}
	buckets := make([]core.BucketSettings, len(res.Buckets))
	for i := range res.Buckets {
		buckets[i] = *decodeBucketMessage(&res.Buckets[i])
	}
	return buckets, nil
}

func (cc *clusterCore) CreateScope(bucket, scope string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.CreateScope(ctx, &CreateScopeRequest{BucketName: bucket, ScopeName: scope})
	return mapAdminError(err, resourceScope, "CreateScope", bucket, scope)
}

func (cc *clusterCore) DropScope(bucket, scope string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.DropScope(ctx, &DropScopeRequest{BucketName: bucket, ScopeName: scope})
	return mapAdminError(err, resourceScope, "DropScope", bucket, scope)
}

func (cc *clusterCore) CreateCollection(bucket, scope, collection string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.CreateCollection(ctx, &CreateCollectionRequest{
		BucketName:     bucket,
		ScopeName:      scope,
		CollectionName: collection,
	})
	return mapAdminError(err, resourceCollection, "CreateCollection", bucket, scope, collection)
}

func (cc *clusterCore) DropCollection(bucket, scope, collection string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.DropCollection(ctx, &DropCollectionRequest{
		BucketName:     bucket,
		ScopeName:      scope,
		CollectionName: collection,
	})
	return mapAdminError(err, resourceCollection, "DropCollection", bucket, scope, collection)
}

func (cc *clusterCore) GetAllScopes(bucket string, opts options.Values) ([]core.ScopeSpec, error) {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := cc.admin.ListScopes(ctx, &ListScopesRequest{BucketName: bucket})
	if err != nil {
		return nil, mapAdminError(err, resourceScope, "ListScopes", bucket)
	}
	return decodeScopeMessages(res.Scopes), nil
}

func (cc *clusterCore) CreateQueryIndex(bucket string, def core.IndexDefinition, opts options.Values) error {
	if def.Name == "" && !def.IsPrimary {
		return errors.New(errors.ErrInvalidArgument, "secondary indexes need a name")
	}
	if !def.IsPrimary && len(def.Fields) == 0 {
		return errors.New(errors.ErrInvalidArgument, "secondary indexes need at least one field")
	}
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.CreateIndex(ctx, &CreateIndexRequest{
		BucketName: bucket,
		IndexName:  def.Name,
		Primary:    def.IsPrimary,
		Fields:     def.Fields,
	})
	err = mapAdminError(err, resourceIndex, "CreateIndex", bucket, def.Name)
	if err != nil && def.IgnoreIfExists && errors.Is(err, errors.ErrIndexExists) {
		return nil
	}
	return err
}

func (cc *clusterCore) DropQueryIndex(bucket, name string, opts options.Values) error {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = cc.admin.DropIndex(ctx, &DropIndexRequest{BucketName: bucket, IndexName: name})
	return mapAdminError(err, resourceIndex, "DropIndex", bucket, name)
}

func (cc *clusterCore) GetAllQueryIndexes(bucket string, opts options.Values) ([]core.QueryIndex, error) {
	ctx, cancel, err := cc.manageContext(opts)
	if err != nil {
		return nil, err
	}
	defer cancel()
	res, err := cc.admin.ListIndexes(ctx, &ListIndexesRequest{BucketName: bucket})
	if err != nil {
		return nil, mapAdminError(err, resourceIndex, "ListIndexes", bucket)
	}
	return decodeIndexMessages(res.Indexes), nil
}

// --------------------------------------------------------------------------
// Row Stream
// --------------------------------------------------------------------------

// gatewayRows adapts the server stream to the uniform row interface. Chunks
// batch several rows; the final chunk carries the metadata blob. The call
// context is canceled as soon as the stream ends either way, releasing the
// channel's stream slot.
type gatewayRows struct {
	stream    *queryStream
	cancel    context.CancelFunc
	statement string
	contextID string

	pending [][]byte
	meta    []byte
	done    bool
}

func (r *gatewayRows) NextRow() ([]byte, error) {
	for {
		if len(r.pending) > 0 {
			row := r.pending[0]
			r.pending = r.pending[1:]
			return row, nil
		}
		if r.done {
			return nil, io.EOF
		}
		chunk, err := r.stream.Recv()
		if err == io.EOF {
			r.finish()
			return nil, io.EOF
		}
		if err != nil {
			r.finish()
			return nil, mapQueryError(err, r.statement, r.contextID)
		}
		if len(chunk.MetaData) > 0 {
			r.meta = chunk.MetaData
		}
		r.pending = append(r.pending, chunk.Rows...)
	}
}

// MetaData returns the blob captured from the stream's final chunk; nil
// when the stream was abandoned before it arrived.
func (r *gatewayRows) MetaData() ([]byte, error) {
	return r.meta, nil
}

func (r *gatewayRows) Close() error {
	r.finish()
	return nil
}

func (r *gatewayRows) finish() {
	if r.done {
		return
	}
	r.done = true
	r.cancel()
}

package client

import (
	"io"
	"strconv"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/core/gateway"
	"github.com/couchkit/couchkit/core/native"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/couchkit/couchkit/lib/meter"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc"

	// register the default engine for the couchbase(s) schemes
	_ "github.com/couchkit/couchkit/core/native/birch"
)

// defaultName is the name of the default scope and default collection.
const defaultName = "_default"

// --------------------------------------------------------------------------
// Connect options
// --------------------------------------------------------------------------

// clusterConfig collects everything Connect accepts besides the connection
// string.
type clusterConfig struct {
	creds      core.Credentials
	transcoder transcoder.ITranscoder
	log        logger.ILogger
	meter      meter.IMeter
	engine     native.IEngine
	channel    grpc.ClientConnInterface
	timeouts   map[string]time.Duration
}

// ClusterOptions is the positional options struct of Connect. Explicit
// fields win over the equivalent connection string options.
type ClusterOptions struct {
	Username string
	Password string
	// CertPath names a CA bundle used for TLS verification.
	CertPath string

	// Transcoder becomes the cluster default (JSON when nil).
	Transcoder transcoder.ITranscoder
	// Logger receives SDK logs (standard logger on stderr when nil).
	Logger logger.ILogger
	// Meter records per-operation metrics (none when nil).
	Meter meter.IMeter

	// Timeout overrides; zero keeps the connection string's value or the
	// built-in default.
	KVTimeout         time.Duration
	KVDurableTimeout  time.Duration
	QueryTimeout      time.Duration
	ManagementTimeout time.Duration
	ConnectTimeout    time.Duration
}

func (o *ClusterOptions) apply(cfg *clusterConfig) {
	if o == nil {
		return
	}
	if o.Username != "" || o.Password != "" {
		cfg.creds.Username, cfg.creds.Password = o.Username, o.Password
	}
	if o.CertPath != "" {
		cfg.creds.CertPath = o.CertPath
	}
	if o.Transcoder != nil {
		cfg.transcoder = o.Transcoder
	}
	if o.Logger != nil {
		cfg.log = o.Logger
	}
	if o.Meter != nil {
		cfg.meter = o.Meter
	}
	cfg.overrideTimeout("kv_timeout", o.KVTimeout)
	cfg.overrideTimeout("kv_durable_timeout", o.KVDurableTimeout)
	cfg.overrideTimeout("query_timeout", o.QueryTimeout)
	cfg.overrideTimeout("management_timeout", o.ManagementTimeout)
	cfg.overrideTimeout("connect_timeout", o.ConnectTimeout)
}

func (cfg *clusterConfig) overrideTimeout(name string, d time.Duration) {
	if d <= 0 {
		return
	}
	if cfg.timeouts == nil {
		cfg.timeouts = map[string]time.Duration{}
	}
	cfg.timeouts[name] = d
}

// ClusterOption is a functional option of Connect, applied after the
// positional struct.
type ClusterOption func(*clusterConfig)

// OptClusterCredentials sets the username/password pair.
func OptClusterCredentials(username, password string) ClusterOption {
	return func(cfg *clusterConfig) {
		cfg.creds.Username, cfg.creds.Password = username, password
	}
}

// OptClusterCertPath names a CA bundle used for TLS verification.
func OptClusterCertPath(path string) ClusterOption {
	return func(cfg *clusterConfig) { cfg.creds.CertPath = path }
}

// OptClusterTranscoder sets the cluster default transcoder.
func OptClusterTranscoder(tc transcoder.ITranscoder) ClusterOption {
	return func(cfg *clusterConfig) { cfg.transcoder = tc }
}

// OptClusterLogger routes SDK logs to the given logger.
func OptClusterLogger(log logger.ILogger) ClusterOption {
	return func(cfg *clusterConfig) { cfg.log = log }
}

// OptClusterMeter records per-operation metrics into the given meter.
func OptClusterMeter(m meter.IMeter) ClusterOption {
	return func(cfg *clusterConfig) { cfg.meter = m }
}

// OptClusterEngine injects a native engine, replacing the registered engine
// the connection string names. Tests use this to supply instrumented
// engines.
func OptClusterEngine(eng native.IEngine) ClusterOption {
	return func(cfg *clusterConfig) { cfg.engine = eng }
}

// OptClusterGatewayChannel injects a pre-built gRPC channel, skipping the
// dial. Tests use this with the gatewaytest package.
func OptClusterGatewayChannel(cc grpc.ClientConnInterface) ClusterOption {
	return func(cfg *clusterConfig) { cfg.channel = cc }
}

// --------------------------------------------------------------------------
// Connect
// --------------------------------------------------------------------------

// Connect parses the connection string, selects the backend its scheme
// names and builds the cluster around one backend connection. The variadic
// tail accepts one positional *ClusterOptions (only the first is honored)
// and any number of ClusterOption functions, applied in order after it.
func Connect(connStr string, opts ...interface{}) (*Cluster, error) {
	spec, err := connstr.Parse(connStr)
	if err != nil {
		return nil, err
	}
	kind, err := core.SelectBackend(spec.Scheme)
	if err != nil {
		return nil, err
	}

	cfg := clusterConfig{
		transcoder: transcoder.NewDefaultTranscoder(),
		log:        logger.StderrLogger,
		meter:      meter.NopMeter,
	}
	for _, o := range opts {
		if s, ok := o.(*ClusterOptions); ok {
			s.apply(&cfg)
			break
		}
	}
	for _, o := range opts {
		switch t := o.(type) {
		case nil:
		case *ClusterOptions:
		case ClusterOption:
			if t != nil {
				t(&cfg)
			}
		default:
			return nil, errors.Newf(errors.ErrInvalidArgument,
				"unsupported option type %T", o)
		}
	}
	for name, d := range cfg.timeouts {
		spec.Options[name] = strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	}

	var cc core.IClusterCore
	switch kind {
	case core.BackendNativeEngine:
		cc, err = native.NewClusterCore(spec, cfg.creds, cfg.engine, cfg.log)
	case core.BackendProtostellarGateway:
		cc, err = gateway.NewClusterCore(spec, cfg.creds, cfg.channel, cfg.log)
	}
	if err != nil {
		return nil, err
	}

	return &Cluster{
		core:    cc,
		kind:    kind,
		tc:      cfg.transcoder,
		log:     cfg.log,
		meter:   cfg.meter,
		buckets: xsync.NewMapOf[string, *Bucket](),
	}, nil
}

// --------------------------------------------------------------------------
// Cluster
// --------------------------------------------------------------------------

// Cluster is the connected SDK entry point. It owns the backend connection;
// all handles derived from it share that connection and stay valid until
// Close.
type Cluster struct {
	core  core.IClusterCore
	kind  core.BackendKind
	tc    transcoder.ITranscoder
	log   logger.ILogger
	meter meter.IMeter

	buckets *xsync.MapOf[string, *Bucket]
}

// Backend reports which backend the connection string scheme selected.
func (c *Cluster) Backend() core.BackendKind { return c.kind }

// Bucket returns the named bucket handle. Handles are cached: the same name
// yields the same handle. No I/O happens until first use.
func (c *Cluster) Bucket(name string) *Bucket {
	b, _ := c.buckets.LoadOrCompute(name, func() *Bucket {
		return &Bucket{cluster: c, name: name}
	})
	return b
}

// Query executes a statement cluster-wide. The result is lazy and
// forward-only: no row is fetched before the first Next call.
func (c *Cluster) Query(statement string, opts ...interface{}) (res *core.QueryResult, err error) {
	defer c.meterOp("query")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Query(statement, vals)
}

// Ping actively checks service endpoints cluster-wide.
func (c *Cluster) Ping(opts ...interface{}) (res *core.PingResult, err error) {
	defer c.meterOp("ping")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Ping("", vals)
}

// Diagnostics reports the known connection states without performing I/O.
func (c *Cluster) Diagnostics(opts ...interface{}) (res *core.DiagnosticsResult, err error) {
	defer c.meterOp("diagnostics")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.core.Diagnostics(vals)
}

// Buckets returns the bucket management interface.
func (c *Cluster) Buckets() *BucketManager {
	return &BucketManager{cluster: c}
}

// QueryIndexes returns the query index management interface.
func (c *Cluster) QueryIndexes() *QueryIndexManager {
	return &QueryIndexManager{cluster: c}
}

// WriteMetrics dumps the operation metrics collected so far in Prometheus
// text format. Without a configured meter it writes nothing.
func (c *Cluster) WriteMetrics(w io.Writer) {
	c.meter.WritePrometheus(w)
}

// Close releases the backend connection. The cluster and every handle
// derived from it are unusable afterwards.
func (c *Cluster) Close() error {
	return c.core.Close()
}

// fillDefaults injects the cluster-level defaults into a freshly folded
// option bag.
func (c *Cluster) fillDefaults(vals options.Values) {
	if _, ok := vals[options.KeyTranscoder]; !ok {
		vals[options.KeyTranscoder] = c.tc
	}
}

// meterOp starts the meter observation of one facade call; the returned
// func reports it complete.
func (c *Cluster) meterOp(op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		c.meter.Observe(op, *err, time.Since(start))
	}
}

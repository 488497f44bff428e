package client

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/gateway/gatewaytest"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/couchkit/couchkit/lib/meter"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/couchkit/couchkit/lib/transcoder"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

// recorded is one captured backend call.
type recorded struct {
	op      string
	key     string
	payload []byte
	frags   []subdoc.Fragment
	opts    options.Values
}

// fakeCollection records every call and answers with canned results.
type fakeCollection struct {
	calls []recorded
	err   error
}

func (f *fakeCollection) record(op, key string, payload []byte, frags []subdoc.Fragment, opts options.Values) {
	f.calls = append(f.calls, recorded{op: op, key: key, payload: payload, frags: frags, opts: opts})
}

func (f *fakeCollection) last(t *testing.T) recorded {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("no backend call was recorded")
	}
	return f.calls[len(f.calls)-1]
}

// Interface Methods (docu see core.ICollectionCore)

func (f *fakeCollection) Get(key string, opts options.Values) (*core.GetResult, error) {
	f.record("get", key, nil, nil, opts)
	if f.err != nil {
		return nil, f.err
	}
	tc, _ := opts[options.KeyTranscoder].(transcoder.ITranscoder)
	return core.NewGetResult(42, []byte(`{"name":"canned"}`), transcoder.TagJSON, tc), nil
}

func (f *fakeCollection) GetAndTouch(key string, opts options.Values) (*core.GetResult, error) {
	f.record("get_and_touch", key, nil, nil, opts)
	return core.NewGetResult(42, []byte(`{}`), transcoder.TagJSON, transcoder.NewDefaultTranscoder()), f.err
}

func (f *fakeCollection) GetAndLock(key string, opts options.Values) (*core.GetResult, error) {
	f.record("get_and_lock", key, nil, nil, opts)
	return core.NewGetResult(42, []byte(`{}`), transcoder.TagJSON, transcoder.NewDefaultTranscoder()), f.err
}

func (f *fakeCollection) Unlock(key string, cas core.Cas, opts options.Values) error {
	f.record("unlock", key, nil, nil, opts)
	return f.err
}

func (f *fakeCollection) Touch(key string, opts options.Values) (*core.MutationResult, error) {
	f.record("touch", key, nil, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) Exists(key string, opts options.Values) (*core.ExistsResult, error) {
	f.record("exists", key, nil, nil, opts)
	return core.NewExistsResult(42, true), f.err
}

func (f *fakeCollection) Upsert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	f.record("upsert", key, payload, nil, opts)
	if f.err != nil {
		return nil, f.err
	}
	return core.NewMutationResult(43, nil), nil
}

func (f *fakeCollection) Insert(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	f.record("insert", key, payload, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) Replace(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	f.record("replace", key, payload, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) Remove(key string, opts options.Values) (*core.MutationResult, error) {
	f.record("remove", key, nil, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) LookupIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.LookupInResult, error) {
	f.record("lookup_in", key, nil, frags, opts)
	return core.NewLookupInResult(42, nil), f.err
}

func (f *fakeCollection) MutateIn(key string, frags []subdoc.Fragment, opts options.Values) (*core.MutateInResult, error) {
	f.record("mutate_in", key, nil, frags, opts)
	return core.NewMutateInResult(43, nil, nil), f.err
}

func (f *fakeCollection) Append(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	f.record("append", key, payload, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) Prepend(key string, payload []byte, opts options.Values) (*core.MutationResult, error) {
	f.record("prepend", key, payload, nil, opts)
	return core.NewMutationResult(43, nil), f.err
}

func (f *fakeCollection) Increment(key string, opts options.Values) (*core.CounterResult, error) {
	f.record("increment", key, nil, nil, opts)
	return core.NewCounterResult(43, 1, nil), f.err
}

func (f *fakeCollection) Decrement(key string, opts options.Values) (*core.CounterResult, error) {
	f.record("decrement", key, nil, nil, opts)
	return core.NewCounterResult(43, 0, nil), f.err
}

// fakeCore hands out one shared fakeCollection and records the cluster-level
// calls.
type fakeCore struct {
	col       *fakeCollection
	bindings  []string
	queryOpts options.Values
	indexDefs []core.IndexDefinition
	closed    bool
}

func newFakeCore() *fakeCore {
	return &fakeCore{col: &fakeCollection{}}
}

// Interface Methods (docu see core.IClusterCore)

func (f *fakeCore) Collection(bucket, scope, collection string) core.ICollectionCore {
	f.bindings = append(f.bindings, bucket+"/"+scope+"/"+collection)
	return f.col
}

func (f *fakeCore) Query(statement string, opts options.Values) (*core.QueryResult, error) {
	f.queryOpts = opts
	return core.NewQueryResult(func() (core.IQueryRows, error) {
		return nil, errors.New(errors.ErrInternal, "fake has no rows")
	}), nil
}

func (f *fakeCore) Ping(bucket string, opts options.Values) (*core.PingResult, error) {
	return &core.PingResult{ID: "fake"}, nil
}

func (f *fakeCore) Diagnostics(opts options.Values) (*core.DiagnosticsResult, error) {
	return &core.DiagnosticsResult{ID: "fake", State: core.ClusterStateOnline}, nil
}

func (f *fakeCore) CreateBucket(settings core.BucketSettings, opts options.Values) error { return nil }
func (f *fakeCore) DropBucket(name string, opts options.Values) error                    { return nil }
func (f *fakeCore) FlushBucket(name string, opts options.Values) error                   { return nil }
func (f *fakeCore) GetBucket(name string, opts options.Values) (*core.BucketSettings, error) {
	return &core.BucketSettings{Name: name}, nil
}
func (f *fakeCore) GetAllBuckets(opts options.Values) ([]core.BucketSettings, error) {
	return nil, nil
}

func (f *fakeCore) CreateScope(bucket, scope string, opts options.Values) error { return nil }
func (f *fakeCore) DropScope(bucket, scope string, opts options.Values) error   { return nil }
func (f *fakeCore) CreateCollection(bucket, scope, collection string, opts options.Values) error {
	return nil
}
func (f *fakeCore) DropCollection(bucket, scope, collection string, opts options.Values) error {
	return nil
}
func (f *fakeCore) GetAllScopes(bucket string, opts options.Values) ([]core.ScopeSpec, error) {
	return nil, nil
}

func (f *fakeCore) CreateQueryIndex(bucket string, def core.IndexDefinition, opts options.Values) error {
	f.indexDefs = append(f.indexDefs, def)
	return nil
}
func (f *fakeCore) DropQueryIndex(bucket, name string, opts options.Values) error { return nil }
func (f *fakeCore) GetAllQueryIndexes(bucket string, opts options.Values) ([]core.QueryIndex, error) {
	return nil, nil
}

func (f *fakeCore) Close() error {
	f.closed = true
	return nil
}

var _ core.IClusterCore = (*fakeCore)(nil)
var _ core.ICollectionCore = (*fakeCollection)(nil)

// newFakeCluster builds a cluster facade around a fake backend core.
func newFakeCluster(fc *fakeCore) *Cluster {
	return &Cluster{
		core:    fc,
		kind:    core.BackendNativeEngine,
		tc:      transcoder.NewDefaultTranscoder(),
		log:     logger.NopLogger,
		meter:   meter.NopMeter,
		buckets: xsync.NewMapOf[string, *Bucket](),
	}
}

func fakeCollectionHandle(fc *fakeCore) *Collection {
	return newFakeCluster(fc).Bucket("travel").Scope("inventory").Collection("airline")
}

// --------------------------------------------------------------------------
// Option folding
// --------------------------------------------------------------------------

func TestFoldHonorsOnlyFirstStruct(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.Get("k",
		&GetOptions{Timeout: 7 * time.Second},
		&GetOptions{Timeout: 9 * time.Second})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d := fc.col.last(t).opts[options.KeyTimeout]; d != 7*time.Second {
		t.Errorf("timeout = %v, want the first struct's 7s", d)
	}
}

func TestFunctionalOptionOverridesStruct(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	// argument order must not matter: functional options always win
	_, err := col.Get("k",
		WithTimeout(3*time.Second),
		&GetOptions{Timeout: 7 * time.Second})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d := fc.col.last(t).opts[options.KeyTimeout]; d != 3*time.Second {
		t.Errorf("timeout = %v, want the functional option's 3s", d)
	}
}

func TestFoldRejectsUnsupportedTypes(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.Get("k", 42)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(fc.col.calls) != 0 {
		t.Error("backend was called despite the fold error")
	}
}

func TestFoldToleratesNils(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.Get("k", nil, (*GetOptions)(nil), Option(nil))
	if err != nil {
		t.Fatalf("get with nil options: %v", err)
	}
	if len(fc.col.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fc.col.calls))
	}
}

func TestZeroStructFieldsStayUnset(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	if _, err := col.Remove("k", &RemoveOptions{}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	opts := fc.col.last(t).opts
	if _, ok := opts[options.KeyCas]; ok {
		t.Error("zero cas leaked into the option bag")
	}
	if _, ok := opts[options.KeyDurability]; ok {
		t.Error("zero durability leaked into the option bag")
	}
}

func TestCounterInitialPointerDistinguishesZero(t *testing.T) {
	fc := newFakeCore()
	bin := fakeCollectionHandle(fc).Binary()

	if _, err := bin.Increment("ctr", &CounterOptions{}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, ok := fc.col.last(t).opts[options.KeyInitial]; ok {
		t.Error("nil Initial produced a seed")
	}

	zero := uint64(0)
	if _, err := bin.Increment("ctr", &CounterOptions{Initial: &zero}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if v, ok := fc.col.last(t).opts[options.KeyInitial]; !ok || v != uint64(0) {
		t.Errorf("initial = %v (present %v), want explicit 0", v, ok)
	}
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func TestUpsertEncodesThroughClusterTranscoder(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.Upsert("k", map[string]string{"name": "x"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	call := fc.col.last(t)
	if string(call.payload) != `{"name":"x"}` {
		t.Errorf("payload = %s", call.payload)
	}
	if tag := call.opts[options.KeyContentTag]; tag != transcoder.TagJSON {
		t.Errorf("content tag = %v, want JSON", tag)
	}
}

func TestCallTranscoderOverridesDefault(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.Upsert("k", "plain text", WithTranscoder(transcoder.NewRawStringTranscoder()))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	call := fc.col.last(t)
	if string(call.payload) != "plain text" {
		t.Errorf("payload = %s", call.payload)
	}
	if tag := call.opts[options.KeyContentTag]; tag != transcoder.TagString {
		t.Errorf("content tag = %v, want String", tag)
	}
}

func TestEncodeFailureSkipsBackend(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	// the raw string transcoder refuses non-string values
	_, err := col.Upsert("k", 99, WithTranscoder(transcoder.NewRawStringTranscoder()))
	if !errors.Is(err, errors.ErrValueFormat) {
		t.Fatalf("expected ValueFormat, got %v", err)
	}
	if len(fc.col.calls) != 0 {
		t.Error("backend was called despite the encode error")
	}
}

func TestGetDecodesWithCallTranscoder(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	res, err := col.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out map[string]string
	if err := res.ContentAs(&out); err != nil {
		t.Fatalf("content_as: %v", err)
	}
	if out["name"] != "canned" {
		t.Errorf("decoded = %v", out)
	}
}

// --------------------------------------------------------------------------
// Expiry plumbing
// --------------------------------------------------------------------------

func TestPositionalDurationsReachTheBag(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	if _, err := col.GetAndTouch("k", time.Hour); err != nil {
		t.Fatalf("get_and_touch: %v", err)
	}
	if d := fc.col.last(t).opts[options.KeyExpiry]; d != time.Hour {
		t.Errorf("expiry = %v", d)
	}

	if _, err := col.GetAndLock("k", 15*time.Second); err != nil {
		t.Fatalf("get_and_lock: %v", err)
	}
	if d := fc.col.last(t).opts[options.KeyLockTime]; d != 15*time.Second {
		t.Errorf("lock time = %v", d)
	}

	if _, err := col.Touch("k", time.Minute); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if d := fc.col.last(t).opts[options.KeyExpiry]; d != time.Minute {
		t.Errorf("expiry = %v", d)
	}
}

// --------------------------------------------------------------------------
// Sub-document preconditions
// --------------------------------------------------------------------------

func TestMutateInChecksPreconditions(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)
	specs := []subdoc.Spec{subdoc.Upsert("a", 1)}

	cases := []struct {
		name string
		opts []interface{}
	}{
		{"preserve expiry conflicts with expiry", []interface{}{
			WithPreserveExpiry(), WithExpiry(time.Hour),
		}},
		{"preserve expiry conflicts with insert semantics", []interface{}{
			WithPreserveExpiry(), WithStoreSemantics(options.StoreSemanticsInsert),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := col.MutateIn("k", specs, tc.opts...)
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
	if len(fc.col.calls) != 0 {
		t.Error("backend was called despite precondition failures")
	}
}

func TestMutateInRejectsLookupSpecs(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.MutateIn("k", []subdoc.Spec{subdoc.Get("a")})
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(fc.col.calls) != 0 {
		t.Error("backend was called")
	}
}

func TestLookupInRejectsMutationSpecs(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.LookupIn("k", []subdoc.Spec{subdoc.Upsert("a", 1)})
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(fc.col.calls) != 0 {
		t.Error("backend was called")
	}
}

func TestLookupInCompilesSpecs(t *testing.T) {
	fc := newFakeCore()
	col := fakeCollectionHandle(fc)

	_, err := col.LookupIn("k", []subdoc.Spec{
		subdoc.Get("name"),
		subdoc.Exists("tags"),
	})
	if err != nil {
		t.Fatalf("lookup_in: %v", err)
	}
	call := fc.col.last(t)
	if len(call.frags) != 2 {
		t.Fatalf("fragments = %d, want 2", len(call.frags))
	}
}

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

func TestEmptyNamesSurfaceOnFirstUse(t *testing.T) {
	cluster := newFakeCluster(newFakeCore())

	cases := []struct {
		name string
		col  *Collection
	}{
		{"empty bucket", cluster.Bucket("").DefaultCollection()},
		{"empty scope", cluster.Bucket("travel").Scope("").Collection("airline")},
		{"empty collection", cluster.Bucket("travel").Scope("inventory").Collection("")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.col.Get("k")
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestBucketHandlesAreCached(t *testing.T) {
	cluster := newFakeCluster(newFakeCore())

	if cluster.Bucket("travel") != cluster.Bucket("travel") {
		t.Error("same name returned different bucket handles")
	}
	if cluster.Bucket("travel") == cluster.Bucket("beer") {
		t.Error("different names share a handle")
	}
}

func TestCollectionBindsEagerly(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)

	cluster.Bucket("travel").Scope("inventory").Collection("airline")
	if len(fc.bindings) != 1 || fc.bindings[0] != "travel/inventory/airline" {
		t.Errorf("bindings = %v", fc.bindings)
	}

	cluster.Bucket("travel").DefaultCollection()
	if got := fc.bindings[len(fc.bindings)-1]; got != "travel/_default/_default" {
		t.Errorf("default binding = %q", got)
	}
}

// --------------------------------------------------------------------------
// Query context
// --------------------------------------------------------------------------

func TestScopeQueryInjectsContext(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)

	_, err := cluster.Bucket("travel").Scope("inventory").Query("SELECT META().id FROM airline")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if qc := fc.queryOpts[options.KeyQueryContext]; qc != "default:`travel`.`inventory`" {
		t.Errorf("query context = %q", qc)
	}
}

func TestScopeQueryRespectsExplicitContext(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)

	_, err := cluster.Bucket("travel").Scope("inventory").
		Query("SELECT META().id FROM airline", WithQueryContext("default:`beer`.`brewery`"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if qc := fc.queryOpts[options.KeyQueryContext]; qc != "default:`beer`.`brewery`" {
		t.Errorf("query context = %q", qc)
	}
}

func TestClusterQueryLeavesContextUnset(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)

	if _, err := cluster.Query("SELECT 1"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, ok := fc.queryOpts[options.KeyQueryContext]; ok {
		t.Error("cluster query set a query context")
	}
}

// --------------------------------------------------------------------------
// Index managers
// --------------------------------------------------------------------------

func TestCreatePrimaryIndexBuildsDefinition(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)
	mgr := cluster.QueryIndexes()

	err := mgr.CreatePrimaryIndex("travel", &CreatePrimaryIndexOptions{
		CustomName:     "my_primary",
		IgnoreIfExists: true,
	})
	if err != nil {
		t.Fatalf("create primary: %v", err)
	}
	def := fc.indexDefs[len(fc.indexDefs)-1]
	if !def.IsPrimary || def.Name != "my_primary" || !def.IgnoreIfExists {
		t.Errorf("definition = %+v", def)
	}

	if err := mgr.CreateIndex("travel", "by_country", []string{"country", "name"}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	def = fc.indexDefs[len(fc.indexDefs)-1]
	if def.IsPrimary || def.Name != "by_country" || len(def.Fields) != 2 {
		t.Errorf("definition = %+v", def)
	}
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func TestFacadeCallsAreMetered(t *testing.T) {
	fc := newFakeCore()
	cluster := newFakeCluster(fc)
	cluster.meter = meter.New()
	col := cluster.Bucket("travel").DefaultCollection()

	if _, err := col.Get("k"); err != nil {
		t.Fatalf("get: %v", err)
	}
	fc.col.err = errors.New(errors.ErrDocumentNotFound, "missing")
	if _, err := col.Get("k"); err == nil {
		t.Fatal("expected the canned error")
	}

	var buf bytes.Buffer
	cluster.WriteMetrics(&buf)
	out := buf.String()
	for _, want := range []string{
		`couchkit_operations_total{op="get",outcome="ok"} 1`,
		`couchkit_operations_total{op="get",outcome="DocumentNotFound"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output is missing %q:\n%s", want, out)
		}
	}
}

func TestNopMeterByDefault(t *testing.T) {
	cluster := newFakeCluster(newFakeCore())
	col := cluster.Bucket("travel").DefaultCollection()

	if _, err := col.Get("k"); err != nil {
		t.Fatalf("get: %v", err)
	}
	var buf bytes.Buffer
	cluster.WriteMetrics(&buf)
	if buf.Len() != 0 {
		t.Errorf("nop meter wrote %q", buf.String())
	}
}

// --------------------------------------------------------------------------
// Connect
// --------------------------------------------------------------------------

func TestConnectSelectsNativeBackend(t *testing.T) {
	cluster, err := Connect("couchbase://localhost/travel",
		OptClusterLogger(logger.NopLogger))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cluster.Close()

	if cluster.Backend() != core.BackendNativeEngine {
		t.Errorf("backend = %v", cluster.Backend())
	}
	// the connection is live: the bucket named in the connection string
	// accepts operations immediately
	if _, err := cluster.Bucket("travel").DefaultCollection().Upsert("k", 1); err != nil {
		t.Errorf("upsert: %v", err)
	}
}

func TestConnectSelectsGatewayBackend(t *testing.T) {
	conn, err := gatewaytest.Dial("protostellar://localhost/travel", core.Credentials{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	cluster, err := Connect("protostellar://localhost/travel",
		OptClusterLogger(logger.NopLogger),
		OptClusterGatewayChannel(conn))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cluster.Close()

	if cluster.Backend() != core.BackendProtostellarGateway {
		t.Errorf("backend = %v", cluster.Backend())
	}
	if _, err := cluster.Bucket("travel").DefaultCollection().Upsert("k", 1); err != nil {
		t.Errorf("upsert: %v", err)
	}
}

func TestConnectRejectsUnknownScheme(t *testing.T) {
	_, err := Connect("ftp://localhost")
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestConnectRejectsUnsupportedOptionTypes(t *testing.T) {
	_, err := Connect("couchbase://localhost", "bogus")
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestConnectTimeoutOverridesWinOverConnStr(t *testing.T) {
	cluster, err := Connect("couchbase://localhost/travel?kv_timeout=60",
		&ClusterOptions{KVTimeout: 100 * time.Millisecond},
		OptClusterLogger(logger.NopLogger))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cluster.Close()

	if _, err := cluster.Bucket("travel").DefaultCollection().Upsert("k", 1); err != nil {
		t.Errorf("upsert: %v", err)
	}
}

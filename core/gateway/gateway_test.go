package gateway

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/couchkit/couchkit/lib/transcoder"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

// rpc records one call: the full method path, the typed request the stub
// sent, and the call context (for deadline assertions).
type rpc struct {
	method string
	req    any
	ctx    context.Context
}

// fakeChannel stands in for the gRPC channel. Replies replay through a JSON
// round trip, same as the real codec; err (when set) fails every call.
type fakeChannel struct {
	calls []rpc
	reply any
	err   error

	chunks  []*QueryResponse
	recvErr error
	stream  *fakeStream
}

func (f *fakeChannel) Invoke(ctx context.Context, method string, req, reply any, _ ...grpc.CallOption) error {
	f.calls = append(f.calls, rpc{method: method, req: req, ctx: ctx})
	if f.err != nil {
		return f.err
	}
	if f.reply == nil {
		return nil
	}
	raw, err := json.Marshal(f.reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, reply)
}

func (f *fakeChannel) NewStream(ctx context.Context, _ *grpc.StreamDesc, method string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	f.calls = append(f.calls, rpc{method: method, ctx: ctx})
	if f.err != nil {
		return nil, f.err
	}
	f.stream = &fakeStream{ctx: ctx, chunks: f.chunks, recvErr: f.recvErr}
	return f.stream, nil
}

// fakeStream feeds scripted row chunks; recvErr (when set) fires after the
// chunks instead of io.EOF.
type fakeStream struct {
	ctx     context.Context
	sent    any
	chunks  []*QueryResponse
	pos     int
	recvErr error
}

func (s *fakeStream) Header() (metadata.MD, error) { return nil, nil }
func (s *fakeStream) Trailer() metadata.MD         { return nil }
func (s *fakeStream) CloseSend() error             { return nil }
func (s *fakeStream) Context() context.Context     { return s.ctx }

func (s *fakeStream) SendMsg(m any) error {
	s.sent = m
	return nil
}

func (s *fakeStream) RecvMsg(m any) error {
	if s.pos >= len(s.chunks) {
		if s.recvErr != nil {
			return s.recvErr
		}
		return io.EOF
	}
	*(m.(*QueryResponse)) = *s.chunks[s.pos]
	s.pos++
	return nil
}

func newTestCollection(ch *fakeChannel) *collectionCore {
	return &collectionCore{
		kv:              &kvClient{cc: ch},
		bucket:          "travel",
		scope:           "inventory",
		collection:      "airline",
		defaults:        options.Values{options.KeyTimeout: 2500 * time.Millisecond},
		durableDefaults: options.Values{options.KeyTimeout: 10 * time.Second},
	}
}

func newTestCluster(ch *fakeChannel) *clusterCore {
	return &clusterCore{
		cc:     ch,
		kv:     &kvClient{cc: ch},
		query:  &queryClient{cc: ch},
		admin:  &adminClient{cc: ch},
		target: "localhost:18098",
		timeouts: connstr.Timeouts{
			KV:         2500 * time.Millisecond,
			KVDurable:  10 * time.Second,
			Query:      75 * time.Second,
			Management: 75 * time.Second,
		},
		log:         logger.NopLogger,
		collections: xsync.NewMapOf[string, *collectionCore](),
	}
}

// --------------------------------------------------------------------------
// Request Building Tests
// --------------------------------------------------------------------------

func TestUpsertRequestFields(t *testing.T) {
	ch := &fakeChannel{reply: &MutationResponse{
		Cas:           7,
		MutationToken: &MutationTokenMessage{PartitionID: 12, PartitionUUID: 99, SeqNo: 3},
	}}
	col := newTestCollection(ch)

	res, err := col.Upsert("k1", []byte(`{"v":1}`), options.Values{
		options.KeyContentTag:     transcoder.TagJSON,
		options.KeyExpiry:         90 * time.Second,
		options.KeyPreserveExpiry: true,
		options.KeyDurability:     options.Durability{Level: options.DurabilityLevelMajority},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if len(ch.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(ch.calls))
	}
	if got := ch.calls[0].method; got != kvMethodPrefix+"Upsert" {
		t.Errorf("method = %q", got)
	}
	req := ch.calls[0].req.(*UpsertRequest)
	if req.BucketName != "travel" || req.ScopeName != "inventory" ||
		req.CollectionName != "airline" || req.Key != "k1" {
		t.Errorf("document ref = %+v", req.DocumentRef)
	}
	if string(req.Content) != `{"v":1}` {
		t.Errorf("content = %q", req.Content)
	}
	if req.ContentType != ContentTypeJSON {
		t.Errorf("content type = %q", req.ContentType)
	}
	if req.Expiry != 90 {
		t.Errorf("expiry = %d, want 90 relative seconds", req.Expiry)
	}
	if !req.PreserveExpiry {
		t.Error("preserve_expiry not set")
	}
	if req.DurabilityLevel != DurabilityMajority {
		t.Errorf("durability = %q", req.DurabilityLevel)
	}

	// the durable timeout tier applies: deadline well past the 2.5s default
	deadline, ok := ch.calls[0].ctx.Deadline()
	if !ok {
		t.Fatal("call context has no deadline")
	}
	if remaining := time.Until(deadline); remaining < 5*time.Second {
		t.Errorf("deadline in %v, want the durable tier", remaining)
	}

	if res.Cas() != 7 {
		t.Errorf("cas = %d", res.Cas())
	}
	token := res.MutationToken()
	if token == nil || token.PartitionID != 12 || token.SequenceNumber != 3 {
		t.Fatalf("token = %+v", token)
	}
	if token.BucketName != "travel" {
		t.Errorf("token bucket = %q, want collection fill-in", token.BucketName)
	}
}

func TestTimeoutBecomesDeadline(t *testing.T) {
	ch := &fakeChannel{reply: &GetResponse{Cas: 1, Content: []byte(`{}`)}}
	col := newTestCollection(ch)

	_, err := col.Get("k1", options.Values{options.KeyTimeout: time.Second})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	deadline, ok := ch.calls[0].ctx.Deadline()
	if !ok {
		t.Fatal("call context has no deadline")
	}
	if remaining := time.Until(deadline); remaining > time.Second || remaining < 100*time.Millisecond {
		t.Errorf("deadline in %v, want roughly 1s", remaining)
	}

	// the deadline travels in the context only, never in the message
	raw, err := json.Marshal(ch.calls[0].req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if _, ok := wire["timeout"]; ok {
		t.Error("timeout leaked into the wire message")
	}
}

func TestDurabilityShapesRejected(t *testing.T) {
	tests := []struct {
		name string
		d    options.Durability
		want errors.Code
	}{
		{
			name: "observe counts have no gateway rendering",
			d:    options.Durability{PersistTo: 1, ReplicateTo: 2},
			want: errors.ErrFeatureUnavailable,
		},
		{
			name: "explicit level none",
			d:    options.Durability{Level: options.DurabilityLevelNone},
			want: errors.ErrInvalidArgument,
		},
		{
			name: "both shapes at once",
			d:    options.Durability{Level: options.DurabilityLevelMajority, PersistTo: 1},
			want: errors.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			col := newTestCollection(ch)
			_, err := col.Remove("k1", options.Values{options.KeyDurability: tt.d})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want code %s", err, tt.want)
			}
			if len(ch.calls) != 0 {
				t.Error("rejected options must not reach the channel")
			}
		})
	}
}

func TestMutateInStoreSemantics(t *testing.T) {
	frags := []subdoc.Fragment{{Op: subdoc.OpUpsert, Path: "a", Payload: []byte("1")}}

	tests := []struct {
		name string
		sem  options.StoreSemantics
		want string
	}{
		{"replace is the protocol default", options.StoreSemanticsReplace, ""},
		{"upsert", options.StoreSemanticsUpsert, StoreSemanticUpsert},
		{"insert", options.StoreSemanticsInsert, StoreSemanticInsert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{reply: &MutateInResponse{Cas: 3}}
			col := newTestCollection(ch)
			_, err := col.MutateIn("k1", frags, options.Values{
				options.KeyStoreSemantics: tt.sem,
			})
			if err != nil {
				t.Fatalf("mutate_in failed: %v", err)
			}
			req := ch.calls[0].req.(*MutateInRequest)
			if req.StoreSemantic != tt.want {
				t.Errorf("store_semantic = %q, want %q", req.StoreSemantic, tt.want)
			}
			if len(req.Specs) != 1 || req.Specs[0].Op != "upsert" || req.Specs[0].Path != "a" {
				t.Errorf("specs = %+v", req.Specs)
			}
		})
	}
}

func TestCounterInitialKeepsAbsence(t *testing.T) {
	ch := &fakeChannel{reply: &CounterResponse{Content: 1, Cas: 2}}
	col := newTestCollection(ch)

	if _, err := col.Increment("n", options.Values{}); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	req := ch.calls[0].req.(*IncrementRequest)
	if req.Delta != 1 {
		t.Errorf("delta = %d, want default 1", req.Delta)
	}
	if req.Initial != nil {
		t.Errorf("initial = %v, want unset", *req.Initial)
	}

	if _, err := col.Increment("n", options.Values{options.KeyInitial: uint64(0)}); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	req = ch.calls[1].req.(*IncrementRequest)
	if req.Initial == nil || *req.Initial != 0 {
		t.Errorf("initial = %v, want explicit zero", req.Initial)
	}
}

func TestUnknownOptionsDropped(t *testing.T) {
	ch := &fakeChannel{reply: &GetResponse{Cas: 1, Content: []byte(`{}`)}}
	col := newTestCollection(ch)

	if _, err := col.Get("k1", options.Values{"made_up": 42}); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(ch.calls) != 1 {
		t.Fatal("call did not reach the channel")
	}
}

// --------------------------------------------------------------------------
// Result Decoding Tests
// --------------------------------------------------------------------------

func TestGetDecodesContentType(t *testing.T) {
	ch := &fakeChannel{reply: &GetResponse{
		Content:     []byte("plain text"),
		ContentType: ContentTypeString,
		Cas:         4,
	}}
	col := newTestCollection(ch)

	res, err := col.Get("k1", options.Values{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Cas() != 4 {
		t.Errorf("cas = %d", res.Cas())
	}
	var out string
	if err := res.ContentAs(&out); err != nil {
		t.Fatalf("content decode failed: %v", err)
	}
	if out != "plain text" {
		t.Errorf("content = %q", out)
	}
}

func TestLookupInEntryErrors(t *testing.T) {
	ch := &fakeChannel{reply: &LookupInResponse{
		Cas: 9,
		Entries: []LookupInEntryMessage{
			{Content: []byte(`"SFO"`)},
			{Status: EntryStatusPathNotFound, Message: "path not found"},
			{Status: EntryStatusInvalidArgument, Message: "path is malformed"},
		},
	}}
	col := newTestCollection(ch)

	res, err := col.LookupIn("k1", []subdoc.Fragment{
		{Op: subdoc.OpGet, Path: "airport"},
		{Op: subdoc.OpGet, Path: "missing"},
		{Op: subdoc.OpGet, Path: "]["},
	}, options.Values{})
	if err != nil {
		t.Fatalf("lookup_in failed: %v", err)
	}

	var airport string
	if err := res.ContentAs(0, &airport); err != nil || airport != "SFO" {
		t.Errorf("entry 0 = %q, %v", airport, err)
	}
	var out any
	if err := res.ContentAs(1, &out); !errors.Is(err, errors.ErrPathNotFound) {
		t.Errorf("entry 1 err = %v, want PathNotFound", err)
	}
	if err := res.ContentAs(2, &out); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("entry 2 err = %v, want InvalidArgument", err)
	}
	if res.Exists(1) {
		t.Error("failed entry reported as existing")
	}
}

// --------------------------------------------------------------------------
// Status Mapping Tests
// --------------------------------------------------------------------------

func TestKVStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     codes.Code
		mutation bool
		want     errors.Code
	}{
		{"not found", codes.NotFound, false, errors.ErrDocumentNotFound},
		{"already exists", codes.AlreadyExists, true, errors.ErrDocumentExists},
		{"aborted is a cas mismatch", codes.Aborted, true, errors.ErrCasMismatch},
		{"failed precondition is a cas mismatch", codes.FailedPrecondition, true, errors.ErrCasMismatch},
		{"unimplemented", codes.Unimplemented, false, errors.ErrFeatureUnavailable},
		{"invalid argument", codes.InvalidArgument, true, errors.ErrInvalidArgument},
		{"read deadline", codes.DeadlineExceeded, false, errors.ErrTimeout},
		{"mutation deadline is ambiguous", codes.DeadlineExceeded, true, errors.ErrAmbiguousTimeout},
		{"unauthenticated", codes.Unauthenticated, false, errors.ErrAuthentication},
		{"unavailable", codes.Unavailable, false, errors.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{err: status.Error(tt.code, "nope")}
			col := newTestCollection(ch)
			var err error
			if tt.mutation {
				_, err = col.Upsert("k1", []byte(`{}`), options.Values{})
			} else {
				_, err = col.Get("k1", options.Values{})
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want code %s", err, tt.want)
			}
		})
	}
}

func TestKVErrorContext(t *testing.T) {
	ch := &fakeChannel{err: status.Error(codes.NotFound, "no doc")}
	col := newTestCollection(ch)

	_, err := col.Get("missing-key", options.Values{})
	if !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Fatalf("expected DocumentNotFound, got %v", err)
	}
	kvctx, ok := errors.ContextOf(err).(errors.KeyValueErrorContext)
	if !ok {
		t.Fatalf("expected KeyValueErrorContext, got %#v", errors.ContextOf(err))
	}
	if kvctx.Key != "missing-key" || kvctx.Bucket != "travel" {
		t.Errorf("context = %+v", kvctx)
	}
	if kvctx.StatusCode != int(codes.NotFound) {
		t.Errorf("status code = %d", kvctx.StatusCode)
	}
}

func TestUnmappedStatusKeepsTransportDetails(t *testing.T) {
	ch := &fakeChannel{err: status.Error(codes.DataLoss, "torn write")}
	col := newTestCollection(ch)

	_, err := col.Get("k1", options.Values{})
	if !errors.Is(err, errors.ErrInternal) {
		t.Fatalf("expected Internal, got %v", err)
	}
	gctx, ok := errors.ContextOf(err).(errors.GatewayErrorContext)
	if !ok {
		t.Fatalf("expected GatewayErrorContext, got %#v", errors.ContextOf(err))
	}
	if gctx.Status != "DataLoss" || gctx.Method != "Get" {
		t.Errorf("context = %+v", gctx)
	}
}

// --------------------------------------------------------------------------
// Cluster Core Tests
// --------------------------------------------------------------------------

func TestCollectionHandlesCached(t *testing.T) {
	cc := newTestCluster(&fakeChannel{})

	a := cc.Collection("travel", "inventory", "airline")
	b := cc.Collection("travel", "inventory", "airline")
	if a != b {
		t.Error("same namespace path must share one collection core")
	}
	if c := cc.Collection("travel", "inventory", "hotel"); c == a {
		t.Error("distinct paths must not share cores")
	}
}

func TestClusterQueryStreamsRows(t *testing.T) {
	meta := []byte(`{"requestID":"gw-42","clientContextID":"ctx-7","status":"success",` +
		`"metrics":{"elapsedTime":"1.5ms","executionTime":"1.2ms","resultCount":3,"resultSize":33}}`)
	ch := &fakeChannel{chunks: []*QueryResponse{
		{Rows: [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`)}},
		{Rows: [][]byte{[]byte(`{"n":3}`)}, MetaData: meta},
	}}
	cc := newTestCluster(ch)

	res, err := cc.Query("SELECT n FROM travel", options.Values{
		options.KeyReadonly:        true,
		options.KeyScanConsistency: options.ScanConsistencyRequestPlus,
		options.KeyClientContextID: "ctx-7",
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	var got []int
	for res.Next() {
		var row struct {
			N int `json:"n"`
		}
		if err := res.Row(&row); err != nil {
			t.Fatalf("row decode failed: %v", err)
		}
		got = append(got, row.N)
	}
	if res.Err() != nil {
		t.Fatalf("iteration failed: %v", res.Err())
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("rows = %v", got)
	}

	md, err := res.MetaData()
	if err != nil {
		t.Fatalf("metadata missing: %v", err)
	}
	if md.RequestID != "gw-42" || md.Metrics.ResultCount != 3 {
		t.Errorf("meta = %+v", md)
	}
	if md.Metrics.ElapsedTime != 1500*time.Microsecond {
		t.Errorf("elapsed = %v", md.Metrics.ElapsedTime)
	}

	req := ch.stream.sent.(*QueryRequest)
	if req.Statement != "SELECT n FROM travel" {
		t.Errorf("statement = %q", req.Statement)
	}
	if !req.Readonly || req.ScanConsistency != ScanConsistencyRequestPlus {
		t.Errorf("request = %+v", req)
	}
}

func TestClusterQueryMapsStartErrors(t *testing.T) {
	ch := &fakeChannel{err: status.Error(codes.NotFound, "keyspace travel not found")}
	cc := newTestCluster(ch)

	res, err := cc.Query("SELECT 1", options.Values{
		options.KeyClientContextID: "ctx-1",
	})
	if err != nil {
		t.Fatalf("query construction failed: %v", err)
	}
	if res.Next() {
		t.Fatal("Next succeeded despite start failure")
	}
	if !errors.Is(res.Err(), errors.ErrBucketNotFound) {
		t.Fatalf("expected BucketNotFound, got %v", res.Err())
	}
	qctx, ok := errors.ContextOf(res.Err()).(errors.QueryErrorContext)
	if !ok {
		t.Fatalf("expected QueryErrorContext, got %#v", errors.ContextOf(res.Err()))
	}
	if qctx.Statement != "SELECT 1" || qctx.ClientContextID != "ctx-1" {
		t.Errorf("context = %+v", qctx)
	}
	if qctx.FirstErrorCode != uint32(codes.NotFound) {
		t.Errorf("first error code = %d", qctx.FirstErrorCode)
	}
}

func TestQueryMidStreamFailure(t *testing.T) {
	ch := &fakeChannel{
		chunks:  []*QueryResponse{{Rows: [][]byte{[]byte(`{"n":1}`)}}},
		recvErr: status.Error(codes.Unavailable, "node drained"),
	}
	cc := newTestCluster(ch)

	res, err := cc.Query("SELECT n FROM travel", options.Values{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	rows := 0
	for res.Next() {
		rows++
	}
	if rows != 1 {
		t.Errorf("rows before failure = %d", rows)
	}
	if !errors.Is(res.Err(), errors.ErrServiceUnavailable) {
		t.Errorf("err = %v, want ServiceUnavailable", res.Err())
	}
}

func TestPingDecodes(t *testing.T) {
	ch := &fakeChannel{reply: &PingResponse{
		ReportID: "gw-report",
		Reports: []PingServiceReport{{
			ServiceType: "kv",
			ID:          "ep-1",
			Remote:      "localhost:18098",
			State:       "ok",
			LatencyUs:   1500,
		}},
	}}
	cc := newTestCluster(ch)

	res, err := cc.Ping("travel", options.Values{
		options.KeyReportID: "my-report",
	})
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if res.ID != "my-report" {
		t.Errorf("id = %q, want report id override", res.ID)
	}
	eps := res.Services[core.ServiceKeyValue]
	if len(eps) != 1 {
		t.Fatalf("kv endpoints = %d", len(eps))
	}
	if eps[0].State != core.PingStateOK || eps[0].Latency != 1500*time.Microsecond {
		t.Errorf("endpoint = %+v", eps[0])
	}
	if eps[0].Namespace != "travel" {
		t.Errorf("namespace = %q, want bucket fill-in", eps[0].Namespace)
	}

	req := ch.calls[0].req.(*PingRequest)
	if req.ReportID != "my-report" || req.BucketName != "travel" {
		t.Errorf("request = %+v", req)
	}
}

// downChannel reports a failed gRPC channel for diagnostics.
type downChannel struct {
	fakeChannel
}

func (d *downChannel) GetState() connectivity.State { return connectivity.TransientFailure }

func TestDiagnosticsReflectsChannelState(t *testing.T) {
	cc := newTestCluster(&fakeChannel{})
	res, err := cc.Diagnostics(options.Values{})
	if err != nil {
		t.Fatalf("diagnostics failed: %v", err)
	}
	if res.State != core.ClusterStateOnline {
		t.Errorf("state = %v, want online for a stateless channel", res.State)
	}
	eps := res.Services[core.ServiceKeyValue]
	if len(eps) != 1 || eps[0].Remote != "localhost:18098" {
		t.Errorf("kv endpoints = %+v", eps)
	}

	down := newTestCluster(&fakeChannel{})
	down.cc = &downChannel{}
	res, err = down.Diagnostics(options.Values{})
	if err != nil {
		t.Fatalf("diagnostics failed: %v", err)
	}
	if res.State != core.ClusterStateOffline {
		t.Errorf("state = %v, want offline on transient failure", res.State)
	}
}

// --------------------------------------------------------------------------
// Management Tests
// --------------------------------------------------------------------------

func TestManagementValidations(t *testing.T) {
	ch := &fakeChannel{}
	cc := newTestCluster(ch)

	tests := []struct {
		name string
		call func() error
	}{
		{"bucket without name", func() error {
			return cc.CreateBucket(core.BucketSettings{}, options.Values{})
		}},
		{"secondary index without name", func() error {
			return cc.CreateQueryIndex("travel", core.IndexDefinition{Fields: []string{"a"}}, options.Values{})
		}},
		{"secondary index without fields", func() error {
			return cc.CreateQueryIndex("travel", core.IndexDefinition{Name: "idx"}, options.Values{})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, errors.ErrInvalidArgument) {
				t.Fatalf("err = %v, want InvalidArgument", err)
			}
		})
	}
	if len(ch.calls) != 0 {
		t.Error("invalid management calls must not reach the channel")
	}
}

func TestCreateQueryIndexIgnoreIfExists(t *testing.T) {
	ch := &fakeChannel{err: status.Error(codes.AlreadyExists, "index idx exists")}
	cc := newTestCluster(ch)

	def := core.IndexDefinition{Name: "idx", Fields: []string{"a"}}
	if err := cc.CreateQueryIndex("travel", def, options.Values{}); !errors.Is(err, errors.ErrIndexExists) {
		t.Fatalf("err = %v, want IndexExists", err)
	}

	def.IgnoreIfExists = true
	if err := cc.CreateQueryIndex("travel", def, options.Values{}); err != nil {
		t.Fatalf("ignore_if_exists must swallow the exists error, got %v", err)
	}
}

func TestAdminStatusRefinement(t *testing.T) {
	tests := []struct {
		name string
		call func(cc *clusterCore) error
		want errors.Code
	}{
		{"bucket not found", func(cc *clusterCore) error {
			_, err := cc.GetBucket("nope", options.Values{})
			return err
		}, errors.ErrBucketNotFound},
		{"scope not found", func(cc *clusterCore) error {
			return cc.DropScope("travel", "inventory", options.Values{})
		}, errors.ErrScopeNotFound},
		{"collection not found", func(cc *clusterCore) error {
			return cc.DropCollection("travel", "inventory", "airline", options.Values{})
		}, errors.ErrCollectionNotFound},
		{"index not found", func(cc *clusterCore) error {
			return cc.DropQueryIndex("travel", "idx", options.Values{})
		}, errors.ErrIndexNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{err: status.Error(codes.NotFound, "missing")}
			cc := newTestCluster(ch)
			if err := tt.call(cc); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want code %s", err, tt.want)
			}
		})
	}
}

func TestAdminErrorContext(t *testing.T) {
	ch := &fakeChannel{err: status.Error(codes.NotFound, "missing scope")}
	cc := newTestCluster(ch)

	err := cc.DropScope("travel", "inventory", options.Values{})
	if !errors.Is(err, errors.ErrScopeNotFound) {
		t.Fatalf("expected ScopeNotFound, got %v", err)
	}
	mctx, ok := errors.ContextOf(err).(errors.ManagementErrorContext)
	if !ok {
		t.Fatalf("expected ManagementErrorContext, got %#v", errors.ContextOf(err))
	}
	if mctx.Method != "DropScope" || mctx.Path != "travel/inventory" {
		t.Errorf("context = %+v", mctx)
	}
}

func TestGetAllScopesDecodes(t *testing.T) {
	ch := &fakeChannel{reply: &ListScopesResponse{Scopes: []ScopeMessage{
		{ScopeName: "_default", Collections: []CollectionMessage{{CollectionName: "_default"}}},
		{ScopeName: "inventory", Collections: []CollectionMessage{
			{CollectionName: "airline", MaxExpiry: 60},
		}},
	}}}
	cc := newTestCluster(ch)

	scopes, err := cc.GetAllScopes("travel", options.Values{})
	if err != nil {
		t.Fatalf("get all scopes failed: %v", err)
	}
	if len(scopes) != 2 || scopes[1].Name != "inventory" {
		t.Fatalf("scopes = %+v", scopes)
	}
	col := scopes[1].Collections[0]
	if col.Name != "airline" || col.ScopeName != "inventory" {
		t.Errorf("collection = %+v", col)
	}
	if col.MaxExpiry != time.Minute {
		t.Errorf("max expiry = %v", col.MaxExpiry)
	}
}

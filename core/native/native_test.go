package native

import (
	"io"
	"testing"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type invocation struct {
	bucket, scope, collection, key string
	op                             OpCode
	args                           map[string]any
}

// fakeConn records invocations and replays canned results.
type fakeConn struct {
	last    invocation
	result  map[string]any
	err     error
	qRows   [][]byte
	qMeta   []byte
	qErr    error
	closed  bool
	pings   map[string]any
	pingErr error
}

func (f *fakeConn) Invoke(bucket, scope, collection, key string, op OpCode, args map[string]any) (map[string]any, error) {
	f.last = invocation{bucket, scope, collection, key, op, args}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeConn) Query(statement string, args map[string]any) (core.IQueryRows, error) {
	if f.qErr != nil {
		return nil, f.qErr
	}
	return &fakeRows{rows: f.qRows, meta: f.qMeta}, nil
}

func (f *fakeConn) Ping(services []core.ServiceType) (map[string]any, error) {
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	return f.pings, nil
}

func (f *fakeConn) Diagnostics() (map[string]any, error) {
	return f.pings, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type fakeRows struct {
	rows [][]byte
	meta []byte
	pos  int
}

func (f *fakeRows) NextRow() ([]byte, error) {
	if f.pos >= len(f.rows) {
		return nil, io.EOF
	}
	row := f.rows[f.pos]
	f.pos++
	return row, nil
}

func (f *fakeRows) MetaData() ([]byte, error) { return f.meta, nil }
func (f *fakeRows) Close() error              { return nil }

func newTestCollection(conn *fakeConn) *collectionCore {
	return &collectionCore{
		conn:            conn,
		bucket:          "travel",
		scope:           "inventory",
		collection:      "airline",
		defaults:        options.Values{options.KeyTimeout: 2500 * time.Millisecond},
		durableDefaults: options.Values{options.KeyTimeout: 10 * time.Second},
	}
}

// --------------------------------------------------------------------------
// Option Table Tests
// --------------------------------------------------------------------------

func TestUpsertArgsNormalization(t *testing.T) {
	conn := &fakeConn{result: map[string]any{"cas": uint64(7)}}
	col := newTestCollection(conn)

	_, err := col.Upsert("k1", []byte(`{"v":1}`), options.Values{
		options.KeyContentTag: transcoder.TagJSON,
		options.KeyExpiry:     90 * time.Second,
		options.KeyDurability: options.Durability{Level: options.DurabilityLevelMajority},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	args := conn.last.args
	if got := args["timeout"]; got != uint32(10_000_000) {
		t.Errorf("durable default timeout = %v, want 10s in micros", got)
	}
	if got := args["flags"]; got != uint32(2<<24) {
		t.Errorf("flags = %v, want json common flags", got)
	}
	if got := args["expiry"]; got != uint32(90) {
		t.Errorf("expiry = %v, want 90", got)
	}
	if got := args["durability_level"]; got != "majority" {
		t.Errorf("durability_level = %v", got)
	}
	if _, ok := args["persist_to"]; ok {
		t.Error("level durability must not emit persist_to")
	}
	if string(args["value"].([]byte)) != `{"v":1}` {
		t.Errorf("value = %s", args["value"])
	}
	if conn.last.op != OpUpsert || conn.last.key != "k1" {
		t.Errorf("invocation = %+v", conn.last)
	}
	if conn.last.bucket != "travel" || conn.last.scope != "inventory" || conn.last.collection != "airline" {
		t.Errorf("namespace = %s/%s/%s", conn.last.bucket, conn.last.scope, conn.last.collection)
	}
}

func TestClientDurabilityShape(t *testing.T) {
	conn := &fakeConn{result: map[string]any{"cas": uint64(7)}}
	col := newTestCollection(conn)

	_, err := col.Remove("k1", options.Values{
		options.KeyDurability: options.Durability{PersistTo: 1, ReplicateTo: 2},
	})
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	args := conn.last.args
	if got := args["persist_to"]; got != uint8(1) {
		t.Errorf("persist_to = %v", got)
	}
	if got := args["replicate_to"]; got != uint8(2) {
		t.Errorf("replicate_to = %v", got)
	}
	if _, ok := args["durability_level"]; ok {
		t.Error("count durability must not emit durability_level")
	}
}

func TestBothDurabilityShapesRejected(t *testing.T) {
	conn := &fakeConn{result: map[string]any{"cas": uint64(7)}}
	col := newTestCollection(conn)

	_, err := col.Remove("k1", options.Values{
		options.KeyDurability: options.Durability{
			Level:     options.DurabilityLevelMajority,
			PersistTo: 1,
		},
	})
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if conn.last.op != 0 {
		t.Error("invalid options must fail before the engine call")
	}
}

func TestCounterDefaults(t *testing.T) {
	conn := &fakeConn{result: map[string]any{"cas": uint64(1), "content": uint64(5)}}
	col := newTestCollection(conn)

	res, err := col.Increment("counter", options.Values{})
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if conn.last.args["delta"] != uint64(1) {
		t.Errorf("delta = %v, want default 1", conn.last.args["delta"])
	}
	if _, ok := conn.last.args["initial"]; ok {
		t.Error("unset initial must not reach the wire")
	}
	if res.Content() != 5 {
		t.Errorf("content = %d", res.Content())
	}

	_, err = col.Increment("counter", options.Values{
		options.KeyDelta:   uint64(4),
		options.KeyInitial: uint64(0),
	})
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if conn.last.args["delta"] != uint64(4) {
		t.Errorf("delta = %v", conn.last.args["delta"])
	}
	if conn.last.args["initial"] != uint64(0) {
		t.Errorf("initial = %v, want explicit 0 kept", conn.last.args["initial"])
	}
}

func TestUnknownOptionsDropped(t *testing.T) {
	conn := &fakeConn{result: map[string]any{
		"cas": uint64(3), "value": []byte(`{}`), "flags": uint32(2 << 24),
	}}
	col := newTestCollection(conn)

	_, err := col.Get("k1", options.Values{
		options.KeyDurability: options.Durability{Level: options.DurabilityLevelMajority},
		options.KeyExpiry:     time.Minute,
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, ok := conn.last.args["durability_level"]; ok {
		t.Error("get must drop durability")
	}
	if _, ok := conn.last.args["expiry"]; ok {
		t.Error("get must drop expiry")
	}
}

// --------------------------------------------------------------------------
// Sub-document Tests
// --------------------------------------------------------------------------

func TestLookupInRoundTrip(t *testing.T) {
	conn := &fakeConn{result: map[string]any{
		"cas": uint64(12),
		"specs": []any{
			map[string]any{"status": 0, "value": []byte(`"SFO"`)},
			map[string]any{"status": StatusPathNotFound, "error": "path not found"},
		},
	}}
	col := newTestCollection(conn)

	frags, err := subdoc.Compile([]subdoc.Spec{
		subdoc.Get("airport"),
		subdoc.Get("missing"),
	}, transcoder.NewDefaultTranscoder())
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	res, err := col.LookupIn("k1", frags, options.Values{})
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	specs := conn.last.args["specs"].([]any)
	if len(specs) != 2 {
		t.Fatalf("specs len = %d", len(specs))
	}
	first := specs[0].(map[string]any)
	if first["op"] != "get" || first["path"] != "airport" {
		t.Errorf("spec[0] = %v", first)
	}

	if !res.Exists(0) {
		t.Error("entry 0 should exist")
	}
	var airport string
	if err := res.ContentAs(0, &airport); err != nil || airport != "SFO" {
		t.Errorf("entry 0 = %q, %v", airport, err)
	}
	if res.Exists(1) {
		t.Error("entry 1 should not exist")
	}
	var missing any
	if err := res.ContentAs(1, &missing); !errors.Is(err, errors.ErrPathNotFound) {
		t.Errorf("entry 1 error = %v, want PathNotFound", err)
	}
}

// --------------------------------------------------------------------------
// Error Mapping Tests
// --------------------------------------------------------------------------

func TestErrorMappingPrecedence(t *testing.T) {
	tests := []struct {
		name string
		op   OpCode
		err  *EngineError
		want errors.Code
	}{
		{
			name: "message pattern wins over reasons and code",
			op:   OpReplace,
			err: &EngineError{
				Code:    StatusDocumentNotFound,
				Message: "cas mismatch on replace",
				Context: map[string]any{"retry_reasons": []string{"key_value_locked"}},
			},
			want: errors.ErrCasMismatch,
		},
		{
			name: "retry reason wins over code",
			op:   OpUpsert,
			err: &EngineError{
				Code:    StatusDocumentNotFound,
				Message: "operation failed",
				Context: map[string]any{"retry_reasons": []string{"key_value_locked"}},
			},
			want: errors.ErrDocumentLocked,
		},
		{
			name: "numeric code fallback",
			op:   OpGet,
			err:  &EngineError{Code: StatusDocumentNotFound, Message: "no such key"},
			want: errors.ErrDocumentNotFound,
		},
		{
			name: "generic fallback",
			op:   OpGet,
			err:  &EngineError{Code: 0x9999, Message: "weird"},
			want: errors.ErrInternal,
		},
		{
			name: "mutation timeout is ambiguous",
			op:   OpUpsert,
			err:  &EngineError{Code: StatusTimeout, Message: "deadline expired"},
			want: errors.ErrAmbiguousTimeout,
		},
		{
			name: "read timeout is unambiguous",
			op:   OpGet,
			err:  &EngineError{Code: StatusTimeout, Message: "deadline expired"},
			want: errors.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapKVError(tt.err, tt.op, "b", "s", "c", "k")
			if !errors.Is(mapped, tt.want) {
				t.Errorf("mapped = %v, want code %s", mapped, tt.want)
			}
		})
	}
}

func TestKVErrorContext(t *testing.T) {
	conn := &fakeConn{err: &EngineError{
		Code:    StatusDocumentNotFound,
		Message: "no such key",
		Context: map[string]any{"retry_reasons": []any{"circuit_breaker_open"}},
	}}
	col := newTestCollection(conn)

	_, err := col.Remove("missing-key", options.Values{})
	if !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Fatalf("expected DocumentNotFound, got %v", err)
	}
	ctx, ok := errors.ContextOf(err).(errors.KeyValueErrorContext)
	if !ok {
		t.Fatalf("expected KeyValueErrorContext, got %#v", errors.ContextOf(err))
	}
	if ctx.Key != "missing-key" || ctx.Bucket != "travel" {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.StatusCode != StatusDocumentNotFound {
		t.Errorf("status = %#x", ctx.StatusCode)
	}
	if len(ctx.RetryReasons) != 1 || ctx.RetryReasons[0] != "circuit_breaker_open" {
		t.Errorf("retry reasons = %v", ctx.RetryReasons)
	}
}

func TestUnlockRequiresCas(t *testing.T) {
	conn := &fakeConn{}
	col := newTestCollection(conn)

	err := col.Unlock("k1", 0, options.Values{})
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if conn.last.op != 0 {
		t.Error("zero cas must fail before the engine call")
	}
}

// --------------------------------------------------------------------------
// Cluster Core Tests
// --------------------------------------------------------------------------

func TestClusterQueryMapsErrors(t *testing.T) {
	conn := &fakeConn{qErr: &EngineError{
		Code:    StatusQueryIndexNotFound,
		Message: "index `idx` not found",
	}}
	cc := &clusterCore{
		conn:        conn,
		timeouts:    connstr.Timeouts{Query: time.Minute},
		log:         nil,
		collections: nil,
	}

	res, err := cc.Query("SELECT 1", options.Values{
		options.KeyClientContextID: "ctx-1",
	})
	if err != nil {
		t.Fatalf("query construction failed: %v", err)
	}
	if res.Next() {
		t.Fatal("Next succeeded despite start failure")
	}
	if !errors.Is(res.Err(), errors.ErrIndexNotFound) {
		t.Fatalf("expected IndexNotFound, got %v", res.Err())
	}
	qctx, ok := errors.ContextOf(res.Err()).(errors.QueryErrorContext)
	if !ok {
		t.Fatalf("expected QueryErrorContext, got %#v", errors.ContextOf(res.Err()))
	}
	if qctx.Statement != "SELECT 1" || qctx.ClientContextID != "ctx-1" {
		t.Errorf("context = %+v", qctx)
	}
}

func TestClusterPingDecodes(t *testing.T) {
	conn := &fakeConn{pings: map[string]any{
		"id": "engine-report",
		"services": map[string]any{
			"kv": []any{map[string]any{
				"id":         "ep-1",
				"remote":     "localhost:11210",
				"state":      "ok",
				"latency_us": uint64(1500),
			}},
		},
	}}
	cc := &clusterCore{conn: conn, timeouts: connstr.Timeouts{}}

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
	if eps[0].State != core.PingStateOK {
		t.Errorf("state = %v", eps[0].State)
	}
	if eps[0].Latency != 1500*time.Microsecond {
		t.Errorf("latency = %v", eps[0].Latency)
	}
	if eps[0].Namespace != "travel" {
		t.Errorf("namespace = %q, want bucket fill-in", eps[0].Namespace)
	}
}

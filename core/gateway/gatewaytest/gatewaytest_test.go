package gatewaytest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/gateway"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	conn, err := Dial("protostellar://local/travel", core.Credentials{Username: "tester", Password: "secret"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func docRef(key string) gateway.DocumentRef {
	return gateway.DocumentRef{BucketName: "travel", ScopeName: "_default", CollectionName: "_default", Key: key}
}

func mustUpsert(t *testing.T, conn *Conn, key string, content []byte) *gateway.MutationResponse {
	t.Helper()
	var res gateway.MutationResponse
	err := conn.Invoke(context.Background(), kvPrefix+"Upsert", &gateway.UpsertRequest{
		DocumentRef: docRef(key),
		Content:     content,
	}, &res)
	if err != nil {
		t.Fatalf("upsert %s failed: %v", key, err)
	}
	return &res
}

// --------------------------------------------------------------------------
// Unary Round Trips
// --------------------------------------------------------------------------

func TestUpsertGetRoundTrip(t *testing.T) {
	conn := newTestConn(t)

	var up gateway.MutationResponse
	err := conn.Invoke(context.Background(), kvPrefix+"Upsert", &gateway.UpsertRequest{
		DocumentRef: docRef("k1"),
		Content:     []byte("hello"),
		ContentType: gateway.ContentTypeString,
	}, &up)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if up.Cas == 0 {
		t.Error("upsert cas is zero")
	}
	if up.MutationToken == nil || up.MutationToken.BucketName != "travel" {
		t.Errorf("mutation token = %+v, want bucket travel", up.MutationToken)
	}

	var got gateway.GetResponse
	if err := conn.Invoke(context.Background(), kvPrefix+"Get", &gateway.GetRequest{DocumentRef: docRef("k1")}, &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got.Content, []byte("hello")) {
		t.Errorf("content = %q, want hello", got.Content)
	}
	if got.ContentType != gateway.ContentTypeString {
		t.Errorf("content type = %q, want STRING", got.ContentType)
	}
	if got.Cas != up.Cas {
		t.Errorf("get cas = %d, want %d", got.Cas, up.Cas)
	}
}

func TestCounterRoundTrip(t *testing.T) {
	conn := newTestConn(t)

	initial := uint64(10)
	var res gateway.CounterResponse
	err := conn.Invoke(context.Background(), kvPrefix+"Increment", &gateway.IncrementRequest{
		DocumentRef: docRef("ctr"),
		Delta:       5,
		Initial:     &initial,
	}, &res)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if res.Content != 10 {
		t.Errorf("first increment content = %d, want initial 10", res.Content)
	}

	err = conn.Invoke(context.Background(), kvPrefix+"Increment", &gateway.IncrementRequest{
		DocumentRef: docRef("ctr"),
		Delta:       5,
	}, &res)
	if err != nil {
		t.Fatalf("second increment failed: %v", err)
	}
	if res.Content != 15 {
		t.Errorf("second increment content = %d, want 15", res.Content)
	}

	// no initial on a missing document is a not-found failure
	err = conn.Invoke(context.Background(), kvPrefix+"Increment", &gateway.IncrementRequest{
		DocumentRef: docRef("missing-ctr"),
		Delta:       1,
	}, &res)
	if status.Code(err) != codes.NotFound {
		t.Errorf("increment without initial = %v, want NotFound", err)
	}
}

// --------------------------------------------------------------------------
// Status Translation
// --------------------------------------------------------------------------

func TestStatusTranslation(t *testing.T) {
	conn := newTestConn(t)
	up := mustUpsert(t, conn, "doc", []byte(`{"v":1}`))

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{
			name: "missing document",
			call: func() error {
				var res gateway.GetResponse
				return conn.Invoke(context.Background(), kvPrefix+"Get",
					&gateway.GetRequest{DocumentRef: docRef("missing")}, &res)
			},
			want: codes.NotFound,
		},
		{
			name: "cas mismatch",
			call: func() error {
				var res gateway.MutationResponse
				return conn.Invoke(context.Background(), kvPrefix+"Replace",
					&gateway.ReplaceRequest{DocumentRef: docRef("doc"), Content: []byte(`{}`), Cas: up.Cas + 1}, &res)
			},
			want: codes.Aborted,
		},
		{
			name: "insert duplicate",
			call: func() error {
				var res gateway.MutationResponse
				return conn.Invoke(context.Background(), kvPrefix+"Insert",
					&gateway.InsertRequest{DocumentRef: docRef("doc"), Content: []byte(`{}`)}, &res)
			},
			want: codes.AlreadyExists,
		},
		{
			name: "unknown bucket",
			call: func() error {
				var res gateway.GetResponse
				ref := gateway.DocumentRef{BucketName: "nope", ScopeName: "_default", CollectionName: "_default", Key: "k"}
				return conn.Invoke(context.Background(), kvPrefix+"Get",
					&gateway.GetRequest{DocumentRef: ref}, &res)
			},
			want: codes.NotFound,
		},
		{
			name: "invalid durability level",
			call: func() error {
				var res gateway.MutationResponse
				return conn.Invoke(context.Background(), kvPrefix+"Upsert",
					&gateway.UpsertRequest{DocumentRef: docRef("doc"), Content: []byte(`{}`), DurabilityLevel: "EVERYWHERE"}, &res)
			},
			want: codes.InvalidArgument,
		},
		{
			name: "duplicate scope",
			call: func() error {
				var res gateway.EmptyResponse
				req := &gateway.CreateScopeRequest{BucketName: "travel", ScopeName: "_default"}
				return conn.Invoke(context.Background(), adminPrefix+"CreateScope", req, &res)
			},
			want: codes.AlreadyExists,
		},
		{
			name: "unknown method",
			call: func() error {
				var res gateway.EmptyResponse
				return conn.Invoke(context.Background(), kvPrefix+"Explode", &gateway.GetRequest{}, &res)
			},
			want: codes.Unimplemented,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if status.Code(err) != tc.want {
				t.Errorf("status = %v (%v), want %v", status.Code(err), err, tc.want)
			}
		})
	}
}

func TestDurabilityLevelAccepted(t *testing.T) {
	conn := newTestConn(t)

	var res gateway.MutationResponse
	err := conn.Invoke(context.Background(), kvPrefix+"Upsert", &gateway.UpsertRequest{
		DocumentRef:     docRef("durable"),
		Content:         []byte(`{}`),
		DurabilityLevel: gateway.DurabilityMajority,
	}, &res)
	if err != nil {
		t.Fatalf("durable upsert failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Sub-Document Entries
// --------------------------------------------------------------------------

func TestLookupInEntryStatuses(t *testing.T) {
	conn := newTestConn(t)
	mustUpsert(t, conn, "doc", []byte(`{"a":1}`))

	var res gateway.LookupInResponse
	err := conn.Invoke(context.Background(), kvPrefix+"LookupIn", &gateway.LookupInRequest{
		DocumentRef: docRef("doc"),
		Specs: []gateway.SpecMessage{
			{Op: "get", Path: "a"},
			{Op: "get", Path: "missing"},
		},
	}, &res)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Entries))
	}
	if res.Entries[0].Status != "" || !bytes.Equal(res.Entries[0].Content, []byte("1")) {
		t.Errorf("entry 0 = %+v, want content 1", res.Entries[0])
	}
	if res.Entries[1].Status != gateway.EntryStatusPathNotFound {
		t.Errorf("entry 1 status = %q, want PATH_NOT_FOUND", res.Entries[1].Status)
	}
}

// --------------------------------------------------------------------------
// Query Stream
// --------------------------------------------------------------------------

func runQuery(t *testing.T, conn *Conn, req *gateway.QueryRequest) []*gateway.QueryResponse {
	t.Helper()
	stream, err := conn.NewStream(context.Background(), nil, queryMethod)
	if err != nil {
		t.Fatalf("new stream failed: %v", err)
	}
	if err := stream.SendMsg(req); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	var chunks []*gateway.QueryResponse
	for {
		chunk := new(gateway.QueryResponse)
		err := stream.RecvMsg(chunk)
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("recv failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestQueryStreamChunks(t *testing.T) {
	conn := newTestConn(t)
	for i := 0; i < rowsPerChunk+6; i++ {
		mustUpsert(t, conn, fmt.Sprintf("doc-%03d", i), []byte(`{"kind":"x"}`))
	}

	chunks := runQuery(t, conn, &gateway.QueryRequest{Statement: "SELECT META().id FROM travel"})
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if len(chunks[0].Rows) != rowsPerChunk || len(chunks[0].MetaData) != 0 {
		t.Errorf("first chunk: %d rows, meta %d bytes; want full chunk without meta",
			len(chunks[0].Rows), len(chunks[0].MetaData))
	}
	if len(chunks[1].Rows) != 6 || len(chunks[1].MetaData) == 0 {
		t.Errorf("final chunk: %d rows, meta %d bytes; want 6 rows with meta",
			len(chunks[1].Rows), len(chunks[1].MetaData))
	}
}

func TestQuerySyntaxError(t *testing.T) {
	conn := newTestConn(t)

	stream, err := conn.NewStream(context.Background(), nil, queryMethod)
	if err != nil {
		t.Fatalf("new stream failed: %v", err)
	}
	err = stream.SendMsg(&gateway.QueryRequest{Statement: "DELETE EVERYTHING"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("status = %v (%v), want InvalidArgument", status.Code(err), err)
	}
}

func TestNewStreamUnknownMethod(t *testing.T) {
	conn := newTestConn(t)
	_, err := conn.NewStream(context.Background(), nil, adminPrefix+"Watch")
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("status = %v, want Unimplemented", status.Code(err))
	}
}

// --------------------------------------------------------------------------
// Admin Round Trips
// --------------------------------------------------------------------------

func TestScopeLifecycle(t *testing.T) {
	conn := newTestConn(t)

	var empty gateway.EmptyResponse
	err := conn.Invoke(context.Background(), adminPrefix+"CreateScope",
		&gateway.CreateScopeRequest{BucketName: "travel", ScopeName: "inventory"}, &empty)
	if err != nil {
		t.Fatalf("create scope failed: %v", err)
	}
	err = conn.Invoke(context.Background(), adminPrefix+"CreateCollection",
		&gateway.CreateCollectionRequest{BucketName: "travel", ScopeName: "inventory", CollectionName: "airline"}, &empty)
	if err != nil {
		t.Fatalf("create collection failed: %v", err)
	}

	var scopes gateway.ListScopesResponse
	err = conn.Invoke(context.Background(), adminPrefix+"ListScopes",
		&gateway.ListScopesRequest{BucketName: "travel"}, &scopes)
	if err != nil {
		t.Fatalf("list scopes failed: %v", err)
	}
	byName := map[string][]gateway.CollectionMessage{}
	for _, s := range scopes.Scopes {
		byName[s.ScopeName] = s.Collections
	}
	if _, ok := byName["_default"]; !ok {
		t.Error("default scope missing from listing")
	}
	cols, ok := byName["inventory"]
	if !ok || len(cols) != 1 || cols[0].CollectionName != "airline" {
		t.Errorf("inventory scope = %+v, want collection airline", cols)
	}
}

func TestPingReport(t *testing.T) {
	conn := newTestConn(t)

	var res gateway.PingResponse
	err := conn.Invoke(context.Background(), adminPrefix+"Ping",
		&gateway.PingRequest{ReportID: "report-7", ServiceTypes: []string{"kv"}}, &res)
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if res.ReportID != "report-7" {
		t.Errorf("report id = %q, want report-7", res.ReportID)
	}
	if len(res.Reports) == 0 {
		t.Fatal("no service reports")
	}
	for _, r := range res.Reports {
		if r.ServiceType != "kv" {
			t.Errorf("service = %q, want kv only", r.ServiceType)
		}
		if r.State != "ok" {
			t.Errorf("state = %q, want ok", r.State)
		}
	}
}

package birch

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/core/native"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestConn(t *testing.T) *connImpl {
	t.Helper()
	spec, err := connstr.Parse("couchbase://localhost/travel")
	if err != nil {
		t.Fatalf("parsing connection string: %v", err)
	}
	conn, err := NewEngine().Connect(spec, core.Credentials{Username: "tester", Password: "secret"})
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*connImpl)
}

func invoke(t *testing.T, c *connImpl, op native.OpCode, key string, args map[string]any) map[string]any {
	t.Helper()
	res, err := c.Invoke("travel", "_default", "_default", key, op, args)
	if err != nil {
		t.Fatalf("%s %q: unexpected error: %v", op, key, err)
	}
	return res
}

// wantEngineError asserts err is an engine error; code -1 and an empty
// fragment skip their respective checks.
func wantEngineError(t *testing.T, err error, code int, msgPart string) *native.EngineError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an engine error, got nil")
	}
	var ee *native.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected an engine error, got %T: %v", err, err)
	}
	if code >= 0 && ee.Code != code {
		t.Fatalf("expected status %#x, got %#x (%s)", code, ee.Code, ee.Message)
	}
	if msgPart != "" && !strings.Contains(ee.Message, msgPart) {
		t.Fatalf("message %q does not contain %q", ee.Message, msgPart)
	}
	return ee
}

func resUint64(t *testing.T, res map[string]any, field string) uint64 {
	t.Helper()
	v, ok := argUint64(res, field)
	if !ok {
		t.Fatalf("result field %q missing or not numeric: %#v", field, res[field])
	}
	return v
}

func resBytes(t *testing.T, res map[string]any, field string) []byte {
	t.Helper()
	b, ok := res[field].([]byte)
	if !ok {
		t.Fatalf("result field %q missing or not bytes: %#v", field, res[field])
	}
	return b
}

func loadDoc(t *testing.T, c *connImpl, key string) document {
	t.Helper()
	composite := compositeKey("travel", "_default", "_default", key)
	doc, ok := c.shardFor(composite).data.Load(composite)
	if !ok {
		t.Fatalf("document %q is not in the store", key)
	}
	return doc
}

// --------------------------------------------------------------------------
// KV Basics
// --------------------------------------------------------------------------

func TestKVRoundTrip(t *testing.T) {
	c := newTestConn(t)
	body := []byte(`{"code":"SFO"}`)

	up := invoke(t, c, native.OpUpsert, "airport_sfo", map[string]any{
		"value": body,
		"flags": uint32(2 << 24),
	})
	cas := resUint64(t, up, "cas")
	if cas == 0 {
		t.Fatal("upsert returned a zero cas")
	}
	token, ok := up["mutation_token"].(map[string]any)
	if !ok {
		t.Fatalf("upsert returned no mutation token: %#v", up)
	}
	if name, _ := token["bucket"].(string); name != "travel" {
		t.Errorf("token bucket: got %q, want %q", name, "travel")
	}
	if seq, _ := argUint64(token, "seqno"); seq == 0 {
		t.Error("token seqno is zero")
	}

	got := invoke(t, c, native.OpGet, "airport_sfo", nil)
	if !bytes.Equal(resBytes(t, got, "value"), body) {
		t.Errorf("get value: got %s, want %s", got["value"], body)
	}
	if flags, _ := argUint32(got, "flags"); flags != 2<<24 {
		t.Errorf("get flags: got %#x, want %#x", flags, uint32(2<<24))
	}
	if getCas := resUint64(t, got, "cas"); getCas != cas {
		t.Errorf("get cas: got %d, want %d", getCas, cas)
	}

	ex := invoke(t, c, native.OpExists, "airport_sfo", nil)
	if exists, _ := ex["exists"].(bool); !exists {
		t.Error("exists: got false for a stored document")
	}

	rm := invoke(t, c, native.OpRemove, "airport_sfo", nil)
	if rmCas := resUint64(t, rm, "cas"); rmCas == cas {
		t.Error("remove did not advance the cas")
	}

	_, err := c.Invoke("travel", "_default", "_default", "airport_sfo", native.OpGet, nil)
	wantEngineError(t, err, native.StatusDocumentNotFound, "not found")

	ex = invoke(t, c, native.OpExists, "airport_sfo", nil)
	if exists, _ := ex["exists"].(bool); exists {
		t.Error("exists: got true after remove")
	}
}

func TestStoreGuards(t *testing.T) {
	c := newTestConn(t)
	body := []byte(`{"n":1}`)
	up := invoke(t, c, native.OpUpsert, "guarded", map[string]any{"value": body})
	cas := resUint64(t, up, "cas")

	tests := []struct {
		name string
		op   native.OpCode
		key  string
		args map[string]any
		code int
		msg  string
	}{
		{
			name: "insert over existing document",
			op:   native.OpInsert, key: "guarded",
			args: map[string]any{"value": body},
			code: native.StatusDocumentExists, msg: "already exists",
		},
		{
			name: "replace of missing document",
			op:   native.OpReplace, key: "nothere",
			args: map[string]any{"value": body},
			code: native.StatusDocumentNotFound, msg: "not found",
		},
		{
			name: "replace with stale cas",
			op:   native.OpReplace, key: "guarded",
			args: map[string]any{"value": body, "cas": cas + 17},
			code: native.StatusDocumentExists, msg: "cas mismatch",
		},
		{
			name: "remove with stale cas",
			op:   native.OpRemove, key: "guarded",
			args: map[string]any{"cas": cas + 17},
			code: native.StatusDocumentExists, msg: "cas mismatch",
		},
		{
			name: "store without value",
			op:   native.OpUpsert, key: "guarded",
			args: nil,
			code: native.StatusInvalidArgs, msg: "missing value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke("travel", "_default", "_default", tt.key, tt.op, tt.args)
			wantEngineError(t, err, tt.code, tt.msg)
		})
	}

	// the guards above must not have touched the document
	got := invoke(t, c, native.OpGet, "guarded", nil)
	if resUint64(t, got, "cas") != cas {
		t.Error("a failed guard mutated the document")
	}

	rep := invoke(t, c, native.OpReplace, "guarded", map[string]any{
		"value": []byte(`{"n":2}`),
		"cas":   cas,
	})
	if resUint64(t, rep, "cas") == cas {
		t.Error("replace did not advance the cas")
	}
}

func TestValueTooLarge(t *testing.T) {
	c := newTestConn(t)
	huge := make([]byte, maxValueBytes+1)
	_, err := c.Invoke("travel", "_default", "_default", "huge", native.OpUpsert,
		map[string]any{"value": huge})
	wantEngineError(t, err, native.StatusValueTooLarge, "value too large")
}

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

func TestLockLifecycle(t *testing.T) {
	c := newTestConn(t)
	invoke(t, c, native.OpUpsert, "locked", map[string]any{"value": []byte(`1`)})

	gl := invoke(t, c, native.OpGetAndLock, "locked", map[string]any{"lock_time": uint32(10)})
	lockCas := resUint64(t, gl, "cas")

	got := invoke(t, c, native.OpGet, "locked", nil)
	if resUint64(t, got, "cas") != ^uint64(0) {
		t.Errorf("get on a locked document leaked the cas: %d", resUint64(t, got, "cas"))
	}
	if !bytes.Equal(resBytes(t, got, "value"), []byte(`1`)) {
		t.Error("locked document is no longer readable")
	}

	_, err := c.Invoke("travel", "_default", "_default", "locked", native.OpUpsert,
		map[string]any{"value": []byte(`2`)})
	ee := wantEngineError(t, err, native.StatusDocumentLocked, "document is locked")
	reasons := ee.RetryReasons()
	if len(reasons) != 1 || reasons[0] != "key_value_locked" {
		t.Errorf("retry reasons: got %v, want [key_value_locked]", reasons)
	}

	_, err = c.Invoke("travel", "_default", "_default", "locked", native.OpGetAndLock,
		map[string]any{"lock_time": uint32(10)})
	wantEngineError(t, err, native.StatusDocumentLocked, "")

	// a write carrying the lock's cas goes through and releases the lock
	rep := invoke(t, c, native.OpReplace, "locked", map[string]any{
		"value": []byte(`3`),
		"cas":   lockCas,
	})
	if resUint64(t, rep, "cas") == ^uint64(0) {
		t.Error("replace result carries the obfuscated cas")
	}
	got = invoke(t, c, native.OpGet, "locked", nil)
	if resUint64(t, got, "cas") == ^uint64(0) {
		t.Error("document is still locked after a cas-bearing write")
	}
}

func TestUnlockStates(t *testing.T) {
	c := newTestConn(t)
	invoke(t, c, native.OpUpsert, "doc", map[string]any{"value": []byte(`1`)})
	gl := invoke(t, c, native.OpGetAndLock, "doc", map[string]any{"lock_time": uint32(10)})
	lockCas := resUint64(t, gl, "cas")

	_, err := c.Invoke("travel", "_default", "_default", "doc", native.OpUnlock,
		map[string]any{"cas": lockCas + 1})
	wantEngineError(t, err, native.StatusDocumentLocked, "document is locked")

	ul := invoke(t, c, native.OpUnlock, "doc", map[string]any{"cas": lockCas})
	if resUint64(t, ul, "cas") != lockCas {
		t.Errorf("unlock cas: got %d, want %d", resUint64(t, ul, "cas"), lockCas)
	}

	_, err = c.Invoke("travel", "_default", "_default", "doc", native.OpUnlock,
		map[string]any{"cas": lockCas})
	wantEngineError(t, err, native.StatusDocumentExists, "not locked")

	_, err = c.Invoke("travel", "_default", "_default", "ghost", native.OpUnlock,
		map[string]any{"cas": uint64(1)})
	wantEngineError(t, err, native.StatusDocumentNotFound, "")
}

func TestLockTimeBounds(t *testing.T) {
	c := newTestConn(t)
	invoke(t, c, native.OpUpsert, "doc", map[string]any{"value": []byte(`1`)})

	before := time.Now()
	invoke(t, c, native.OpGetAndLock, "doc", map[string]any{"lock_time": uint32(3600)})
	doc := loadDoc(t, c, "doc")

	limit := before.Add(maxLockTime + time.Second).UnixNano()
	if doc.lockedUntil > limit {
		t.Errorf("lock time was not capped: lockedUntil %d, limit %d", doc.lockedUntil, limit)
	}
	if doc.lockedUntil < before.Add(defaultLockTime).UnixNano() {
		t.Errorf("capped lock expires before the default window: %d", doc.lockedUntil)
	}
}

// --------------------------------------------------------------------------
// Counters
// --------------------------------------------------------------------------

func TestCounters(t *testing.T) {
	c := newTestConn(t)

	_, err := c.Invoke("travel", "_default", "_default", "visits", native.OpIncrement, nil)
	wantEngineError(t, err, native.StatusDocumentNotFound, "")

	res := invoke(t, c, native.OpIncrement, "visits", map[string]any{"initial": uint64(10)})
	if v := resUint64(t, res, "content"); v != 10 {
		t.Errorf("initial create: got %d, want 10", v)
	}

	res = invoke(t, c, native.OpIncrement, "visits", map[string]any{"delta": uint64(5)})
	if v := resUint64(t, res, "content"); v != 15 {
		t.Errorf("increment by 5: got %d, want 15", v)
	}

	res = invoke(t, c, native.OpDecrement, "visits", map[string]any{"delta": uint64(100)})
	if v := resUint64(t, res, "content"); v != 0 {
		t.Errorf("decrement floors at zero: got %d", v)
	}

	invoke(t, c, native.OpUpsert, "word", map[string]any{"value": []byte(`"hello"`)})
	_, err = c.Invoke("travel", "_default", "_default", "word", native.OpIncrement, nil)
	wantEngineError(t, err, native.StatusDeltaInvalid, "delta badval")

	invoke(t, c, native.OpUpsert, "maxed", map[string]any{"value": []byte("18446744073709551615")})
	_, err = c.Invoke("travel", "_default", "_default", "maxed", native.OpIncrement, nil)
	wantEngineError(t, err, native.StatusNumberTooBig, "counter overflow")
}

// --------------------------------------------------------------------------
// Binary Splices
// --------------------------------------------------------------------------

func TestAppendPrepend(t *testing.T) {
	c := newTestConn(t)

	_, err := c.Invoke("travel", "_default", "_default", "log", native.OpAppend,
		map[string]any{"value": []byte("x")})
	wantEngineError(t, err, native.StatusDocumentNotFound, "")

	invoke(t, c, native.OpUpsert, "log", map[string]any{
		"value": []byte("b"),
		"flags": uint32(3 << 24),
	})
	invoke(t, c, native.OpAppend, "log", map[string]any{"value": []byte("c")})
	invoke(t, c, native.OpPrepend, "log", map[string]any{"value": []byte("a")})

	got := invoke(t, c, native.OpGet, "log", nil)
	if !bytes.Equal(resBytes(t, got, "value"), []byte("abc")) {
		t.Errorf("spliced value: got %q, want %q", got["value"], "abc")
	}
	if flags, _ := argUint32(got, "flags"); flags != 3<<24 {
		t.Errorf("splice changed the flags: %#x", flags)
	}
}

// --------------------------------------------------------------------------
// Expiry
// --------------------------------------------------------------------------

func TestExpiry(t *testing.T) {
	c := newTestConn(t)

	invoke(t, c, native.OpUpsert, "fresh", map[string]any{
		"value":  []byte(`1`),
		"expiry": uint32(90),
	})
	invoke(t, c, native.OpGet, "fresh", nil)
	if doc := loadDoc(t, c, "fresh"); doc.expireAt == 0 {
		t.Error("relative expiry was not recorded")
	}

	past := uint32(time.Now().Add(-time.Hour).Unix())
	invoke(t, c, native.OpUpsert, "stale", map[string]any{
		"value":  []byte(`1`),
		"expiry": past,
	})
	_, err := c.Invoke("travel", "_default", "_default", "stale", native.OpGet, nil)
	wantEngineError(t, err, native.StatusDocumentNotFound, "")
	ex := invoke(t, c, native.OpExists, "stale", nil)
	if exists, _ := ex["exists"].(bool); exists {
		t.Error("exists reports an expired document")
	}

	invoke(t, c, native.OpTouch, "fresh", map[string]any{"expiry": past})
	_, err = c.Invoke("travel", "_default", "_default", "fresh", native.OpGet, nil)
	wantEngineError(t, err, native.StatusDocumentNotFound, "")
}

func TestExpiryPreservation(t *testing.T) {
	c := newTestConn(t)

	invoke(t, c, native.OpUpsert, "doc", map[string]any{
		"value":  []byte(`1`),
		"expiry": uint32(90),
	})
	invoke(t, c, native.OpUpsert, "doc", map[string]any{"value": []byte(`2`)})
	if doc := loadDoc(t, c, "doc"); doc.expireAt != 0 {
		t.Error("a plain upsert must reset the expiry")
	}

	invoke(t, c, native.OpUpsert, "doc", map[string]any{
		"value":  []byte(`3`),
		"expiry": uint32(90),
	})
	invoke(t, c, native.OpUpsert, "doc", map[string]any{
		"value":           []byte(`4`),
		"preserve_expiry": true,
	})
	if doc := loadDoc(t, c, "doc"); doc.expireAt == 0 {
		t.Error("preserve_expiry dropped the expiry")
	}
}

// --------------------------------------------------------------------------
// Namespace Resolution
// --------------------------------------------------------------------------

func TestNamespaceResolution(t *testing.T) {
	c := newTestConn(t)
	tests := []struct {
		name                      string
		bucket, scope, collection string
		code                      int
		msg                       string
	}{
		{"unknown bucket", "nope", "_default", "_default", native.StatusBucketNotFound, `bucket "nope" not found`},
		{"unknown scope", "travel", "nope", "_default", native.StatusScopeNotFound, `scope "nope" not found`},
		{"unknown collection", "travel", "_default", "nope", native.StatusCollectionNotFound, `collection "nope" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke(tt.bucket, tt.scope, tt.collection, "k", native.OpGet, nil)
			wantEngineError(t, err, tt.code, tt.msg)
		})
	}
}

// --------------------------------------------------------------------------
// Closed Connections
// --------------------------------------------------------------------------

func TestCloseRejectsOperations(t *testing.T) {
	c := newTestConn(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	_, err := c.Invoke("travel", "_default", "_default", "k", native.OpGet, nil)
	wantEngineError(t, err, native.StatusTemporaryFailure, "closed")

	_, err = c.Query("SELECT RAW 1", nil)
	wantEngineError(t, err, native.StatusTemporaryFailure, "closed")

	_, err = c.Ping(nil)
	wantEngineError(t, err, native.StatusTemporaryFailure, "closed")
}

package gatewaytest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/core/gateway"
	"github.com/couchkit/couchkit/core/native"
	"github.com/couchkit/couchkit/core/native/birch"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Channel
// --------------------------------------------------------------------------

var (
	kvPrefix    = "/" + gateway.KvServiceName + "/"
	queryMethod = "/" + gateway.QueryServiceName + "/Query"
	adminPrefix = "/" + gateway.AdminServiceName + "/"
)

// Conn is an in-process gateway channel backed by a birch store. It is safe
// for concurrent use.
type Conn struct {
	conn native.IEngineConn
}

var _ grpc.ClientConnInterface = (*Conn)(nil)

// Dial parses the connection string and opens a fresh, isolated store
// behind a gateway-shaped channel.
func Dial(connStr string, creds core.Credentials) (*Conn, error) {
	spec, err := connstr.Parse(connStr)
	if err != nil {
		return nil, err
	}
	conn, err := birch.NewEngine().Connect(spec, creds)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// NewConn wraps an existing engine connection. Useful when a test needs to
// reach the same store through both backends.
func NewConn(conn native.IEngineConn) *Conn {
	return &Conn{conn: conn}
}

// Close shuts the underlying store down. Calls after Close fail with
// codes.Unavailable.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Interface Methods (docu see grpc.ClientConnInterface)

func (c *Conn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return status.Errorf(codes.Internal, "cannot marshal request: %v", err)
	}
	res, err := c.dispatch(method, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return status.Errorf(codes.Internal, "cannot marshal response: %v", err)
	}
	if err := json.Unmarshal(raw, reply); err != nil {
		return status.Errorf(codes.Internal, "cannot unmarshal response: %v", err)
	}
	return nil
}

func (c *Conn) NewStream(ctx context.Context, _ *grpc.StreamDesc, method string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
	if method != queryMethod {
		return nil, status.Errorf(codes.Unimplemented, "unknown stream method %s", method)
	}
	return &queryStream{conn: c, ctx: ctx}, nil
}

// dispatch routes one unary call by its full method path.
func (c *Conn) dispatch(method string, payload []byte) (any, error) {
	switch {
	case strings.HasPrefix(method, kvPrefix):
		return c.dispatchKV(strings.TrimPrefix(method, kvPrefix), payload)
	case strings.HasPrefix(method, adminPrefix):
		return c.dispatchAdmin(strings.TrimPrefix(method, adminPrefix), payload)
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}

// handle decodes one request message and runs its handler.
func handle[Req any](payload []byte, fn func(*Req) (any, error)) (any, error) {
	req := new(Req)
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return fn(req)
}

// invoke runs one key-value engine operation, translating failures into
// status errors.
func (c *Conn) invoke(ref gateway.DocumentRef, op native.OpCode, args map[string]any) (map[string]any, error) {
	res, err := c.conn.Invoke(ref.BucketName, ref.ScopeName, ref.CollectionName, ref.Key, op, args)
	if err != nil {
		return nil, statusErr(err)
	}
	return res, nil
}

// manage runs one management engine operation.
func (c *Conn) manage(op native.OpCode, args map[string]any) (map[string]any, error) {
	res, err := c.conn.Invoke("", "", "", "", op, args)
	if err != nil {
		return nil, statusErr(err)
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Result Accessors
// --------------------------------------------------------------------------

// Engine results arrive in-process, so values keep their native Go types.

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func asUint32(v any) (uint32, bool) {
	n, ok := asUint64(v)
	if !ok || n > 1<<32-1 {
		return 0, false
	}
	return uint32(n), true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	default:
		return nil, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

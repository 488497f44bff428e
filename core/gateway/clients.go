package gateway

import (
	"context"

	"google.golang.org/grpc"
)

// The stub clients below are the complete gRPC surface of the gateway. Each
// wraps the shared connection and exposes one method per RPC; all transport
// concerns (codec, deadlines, auth) arrive through the context and the call
// options. Tests substitute the connection, never the stubs.

const (
	kvMethodPrefix    = "/" + KvServiceName + "/"
	queryMethod       = "/" + QueryServiceName + "/Query"
	adminMethodPrefix = "/" + AdminServiceName + "/"
)

// --------------------------------------------------------------------------
// KV Client
// --------------------------------------------------------------------------

type kvClient struct {
	cc grpc.ClientConnInterface
}

func (c *kvClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, kvMethodPrefix+method, in, out, callOptions...)
}

func (c *kvClient) Get(ctx context.Context, in *GetRequest) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "Get", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) GetAndTouch(ctx context.Context, in *GetAndTouchRequest) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "GetAndTouch", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) GetAndLock(ctx context.Context, in *GetAndLockRequest) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "GetAndLock", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Unlock(ctx context.Context, in *UnlockRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "Unlock", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Touch(ctx context.Context, in *TouchRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Touch", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Exists(ctx context.Context, in *ExistsRequest) (*ExistsResponse, error) {
	out := new(ExistsResponse)
	if err := c.invoke(ctx, "Exists", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Insert(ctx context.Context, in *InsertRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Insert", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Upsert(ctx context.Context, in *UpsertRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Upsert", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Replace(ctx context.Context, in *ReplaceRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Replace", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Remove(ctx context.Context, in *RemoveRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Remove", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Append(ctx context.Context, in *AppendRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Append", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Prepend(ctx context.Context, in *PrependRequest) (*MutationResponse, error) {
	out := new(MutationResponse)
	if err := c.invoke(ctx, "Prepend", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Increment(ctx context.Context, in *IncrementRequest) (*CounterResponse, error) {
	out := new(CounterResponse)
	if err := c.invoke(ctx, "Increment", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) Decrement(ctx context.Context, in *DecrementRequest) (*CounterResponse, error) {
	out := new(CounterResponse)
	if err := c.invoke(ctx, "Decrement", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) LookupIn(ctx context.Context, in *LookupInRequest) (*LookupInResponse, error) {
	out := new(LookupInResponse)
	if err := c.invoke(ctx, "LookupIn", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *kvClient) MutateIn(ctx context.Context, in *MutateInRequest) (*MutateInResponse, error) {
	out := new(MutateInResponse)
	if err := c.invoke(ctx, "MutateIn", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Query Client
// --------------------------------------------------------------------------

var queryStreamDesc = grpc.StreamDesc{
	StreamName:    "Query",
	ServerStreams: true,
}

type queryClient struct {
	cc grpc.ClientConnInterface
}

// Query opens the server stream, sends the single request and half-closes.
// Row chunks arrive through the returned stream's Recv.
func (c *queryClient) Query(ctx context.Context, in *QueryRequest) (*queryStream, error) {
	stream, err := c.cc.NewStream(ctx, &queryStreamDesc, queryMethod, callOptions...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &queryStream{stream}, nil
}

type queryStream struct {
	grpc.ClientStream
}

func (s *queryStream) Recv() (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := s.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Admin Client
// --------------------------------------------------------------------------

type adminClient struct {
	cc grpc.ClientConnInterface
}

func (c *adminClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, adminMethodPrefix+method, in, out, callOptions...)
}

func (c *adminClient) Ping(ctx context.Context, in *PingRequest) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.invoke(ctx, "Ping", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) CreateBucket(ctx context.Context, in *CreateBucketRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "CreateBucket", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) DropBucket(ctx context.Context, in *DropBucketRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "DropBucket", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) FlushBucket(ctx context.Context, in *FlushBucketRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "FlushBucket", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) GetBucket(ctx context.Context, in *GetBucketRequest) (*BucketMessage, error) {
	out := new(BucketMessage)
	if err := c.invoke(ctx, "GetBucket", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) ListBuckets(ctx context.Context, in *ListBucketsRequest) (*ListBucketsResponse, error) {
	out := new(ListBucketsResponse)
	if err := c.invoke(ctx, "ListBuckets", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) CreateScope(ctx context.Context, in *CreateScopeRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "CreateScope", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) DropScope(ctx context.Context, in *DropScopeRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "DropScope", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) CreateCollection(ctx context.Context, in *CreateCollectionRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "CreateCollection", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) DropCollection(ctx context.Context, in *DropCollectionRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "DropCollection", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) ListScopes(ctx context.Context, in *ListScopesRequest) (*ListScopesResponse, error) {
	out := new(ListScopesResponse)
	if err := c.invoke(ctx, "ListScopes", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) CreateIndex(ctx context.Context, in *CreateIndexRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "CreateIndex", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) DropIndex(ctx context.Context, in *DropIndexRequest) (*EmptyResponse, error) {
	out := new(EmptyResponse)
	if err := c.invoke(ctx, "DropIndex", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) ListIndexes(ctx context.Context, in *ListIndexesRequest) (*ListIndexesResponse, error) {
	out := new(ListIndexesResponse)
	if err := c.invoke(ctx, "ListIndexes", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

package gateway

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodec marshals gateway messages as JSON. The gateway endpoint speaks a
// JSON rendering of its message schema, so the codec is forced on every call
// instead of being registered globally; nothing outside this package ever
// negotiates it.
type jsonCodec struct{}

var _ encoding.Codec = jsonCodec{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }

// callOptions rides on every RPC the stub clients issue.
var callOptions = []grpc.CallOption{grpc.ForceCodec(jsonCodec{})}

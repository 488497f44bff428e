/*
Package gateway implements the protostellar backend: the cluster and
collection cores that speak the gateway's gRPC protocol.

The wire surface is deliberately narrow. Request and response messages are
plain Go structs marshaled by a JSON codec that is forced on every call, and
the three stub clients (kv, query, admin) carry nothing but a
grpc.ClientConnInterface and one method per RPC. Production connects through
grpc.Dial with TLS and per-RPC basic auth derived from the connection
string; tests inject an in-process connection (see the gatewaytest
sub-package), so the entire translation layer runs without a network.

Option handling mirrors the native backend: one static options.Table per
operation normalizes the merged bag, and the builders copy the resulting
wire fields onto the typed request. The gateway protocol carries durability
levels only - client persist/replicate counts are rejected as unavailable,
and an explicit level of none has no wire value at all. Timeouts never cross
the wire either; they become the context deadline of the call.

Failures arrive as gRPC status errors and are mapped by status code alone.
Mapped codes surface with the key-value, query or management context of the
failed call; anything unmapped is an internal error carrying the transport
details in a GatewayErrorContext.
*/
package gateway

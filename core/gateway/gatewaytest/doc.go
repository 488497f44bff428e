// Package gatewaytest provides an in-process gateway channel for tests.
//
// Conn implements grpc.ClientConnInterface on top of a birch engine store,
// so a cluster configured for the gateway protocol can run without a
// network or a server binary. Requests and responses cross the boundary as
// JSON, the same rendering the channel codec produces, and engine failures
// come back as gRPC status errors the way a real gateway reports them.
//
// The translation is deliberately lossy in the same places the protocol
// is: only the status code survives an error, so failures that the native
// backend distinguishes by message or retry reason collapse to their
// nearest status here too.
package gatewaytest

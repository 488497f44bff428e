// Package core holds the backend-agnostic contracts of the SDK: the closed
// backend union and its selection from a connection-string scheme, the
// cluster/collection core interfaces both backends implement, and the
// uniform result types every operation decodes into.
//
// Overview:
//
//   - BackendKind is the closed union {NativeEngine, ProtostellarGateway},
//     resolved exactly once when a cluster is constructed. Unknown schemes
//     are rejected there; nothing downstream ever re-dispatches.
//   - IClusterCore and ICollectionCore are the contracts the public facade
//     calls. One concrete implementation exists per backend, in core/native
//     and core/gateway; no backend-specific type crosses these interfaces.
//   - The result types (GetResult, MutationResult, ExistsResult,
//     CounterResult, LookupInResult, MutateInResult, QueryResult,
//     PingResult, DiagnosticsResult) are immutable value objects built by
//     the backend decoders. LookupInResult and QueryResult decode their
//     contents lazily.
//
// The sub-packages core/native and core/gateway contain the two backend
// implementations; core/connstr parses connection strings.
package core

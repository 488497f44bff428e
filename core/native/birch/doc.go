// Package birch is the in-process key-value engine behind the couchbase(s)
// connection schemes. It registers itself under the engine name "birch".
//
// # Overview
//
// birch keeps documents in sharded concurrent maps and implements the full
// engine boundary: CRUD with CAS and expiry, write locks, binary counters
// and append/prepend, sub-document lookups and mutations, a deliberately
// small query evaluator, ping/diagnostics and namespace management
// (buckets, scopes, collections, query indexes).
//
// Documents live under a composite bucket/scope/collection/key. Every
// mutation bumps a connection-wide CAS sequence and a per-partition
// sequence number, so mutation tokens behave like their server-side
// counterparts. A background sweeper removes expired documents; reads
// additionally check expiry so a document never outlives its TTL
// observably.
//
// The engine is meant for embedding and tests, not for persistence: all
// state is in memory and owned by one connection.
//
// # Example
//
//	eng := birch.NewEngine()
//	conn, err := eng.Connect(spec, core.Credentials{})
//	if err != nil {
//		...
//	}
//	res, err := conn.Invoke("travel", "_default", "_default", "a1",
//		native.OpUpsert, map[string]any{"value": []byte(`{"v":1}`)})
package birch

// Package client is the public SDK surface: connect once, navigate to a
// collection, operate.
//
// # Overview
//
// Connect parses the connection string, selects the backend its scheme
// names (couchbase/couchbases run against a native engine, protostellar
// against a gateway channel) and returns a Cluster owning that one
// connection. Bucket, Scope and Collection are cheap navigation handles
// sharing it; none of them performs I/O when constructed.
//
// Every operation takes a variadic options tail mixing one positional
// options struct with functional options:
//
//	res, err := col.Upsert("airline_10", doc,
//		&client.UpsertOptions{Expiry: time.Hour},
//		client.WithDurability(options.DurabilityLevelMajority))
//
// Only the first positional struct is honored; later structs are ignored as
// if absent. Functional options apply after the struct in argument order,
// so they win on conflicting keys. Options an operation does not use are
// silently dropped.
//
// # Example
//
//	cluster, err := client.Connect("couchbase://localhost/travel-sample",
//		&client.ClusterOptions{Username: "app", Password: "secret"})
//	if err != nil {
//		...
//	}
//	defer cluster.Close()
//
//	col := cluster.Bucket("travel-sample").DefaultCollection()
//	if _, err := col.Upsert("airline_10", airline); err != nil {
//		...
//	}
//	res, err := col.Get("airline_10")
//	if err != nil {
//		...
//	}
//	var out airlineDoc
//	err = res.ContentAs(&out)
//
// All failures carry a code from lib/errors (match with errors.Is) and
// exactly one error context (retrieve with errors.ContextOf).
package client

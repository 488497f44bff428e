// Package native implements the backend core for the couchbase:// and
// couchbases:// schemes on top of a pluggable key-value engine.
//
// # Overview
//
// The package translates normalized call options into engine invocations and
// engine results back into the uniform result types of package core. The
// engine itself is abstracted behind IEngine/IEngineConn: the repository
// ships the in-process birch engine as the default implementation, and
// alternative engines register themselves under a name via RegisterEngine.
//
// Every operation follows the same pipeline: merge the call options over the
// cluster defaults, normalize them against the operation's static option
// table, invoke the engine, then either decode the raw result map or map the
// raw engine error onto the shared error taxonomy. Error mapping applies at
// most one rule, in fixed precedence: message pattern, retry reason, numeric
// status code, generic fallback.
//
// # Example
//
//	eng, _ := native.EngineFor("birch")
//	cc, err := native.NewClusterCore(spec, creds, eng, log)
//	if err != nil {
//		...
//	}
//	col := cc.Collection("travel-sample", "_default", "_default")
//	res, err := col.Get("airline_10", options.Values{})
package native

// Package cmd implements the command-line workbench for the couchkit SDK.
// It provides a hierarchical command structure for exercising a cluster
// through either backend.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, upsert, remove, etc.)
//   - query: Commands for running statements and managing query indexes
//   - diag: Commands for ping, diagnostics and bucket management
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See couchkit -help for a list of all commands.
package cmd

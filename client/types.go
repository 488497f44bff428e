package client

import (
	"github.com/couchkit/couchkit/core"
)

// Aliases for the shared value and result types, so everyday use of the SDK
// needs only this package. The types live in core where the backends build
// them.
type (
	Cas = core.Cas

	GetResult      = core.GetResult
	ExistsResult   = core.ExistsResult
	MutationResult = core.MutationResult
	CounterResult  = core.CounterResult
	LookupInResult = core.LookupInResult
	MutateInResult = core.MutateInResult
	QueryResult    = core.QueryResult

	PingResult        = core.PingResult
	DiagnosticsResult = core.DiagnosticsResult
	ServiceType       = core.ServiceType

	BucketSettings = core.BucketSettings
	ScopeSpec      = core.ScopeSpec
	CollectionSpec = core.CollectionSpec
	QueryIndex     = core.QueryIndex
)

// Service type values for PingOptions.ServiceTypes.
const (
	ServiceKeyValue   = core.ServiceKeyValue
	ServiceQuery      = core.ServiceQuery
	ServiceManagement = core.ServiceManagement
)

// Endpoint states reported by Ping.
const (
	PingStateOK      = core.PingStateOK
	PingStateTimeout = core.PingStateTimeout
	PingStateError   = core.PingStateError
)

package native

import (
	"fmt"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/connstr"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Operation Codes
// --------------------------------------------------------------------------

// OpCode identifies one engine operation. Key-value opcodes address a
// document through the bucket/scope/collection/key fields of Invoke;
// management opcodes ignore those fields and take their subject from the
// op args instead.
type OpCode uint8

const (
	OpGet OpCode = iota + 1
	OpGetAndTouch
	OpGetAndLock
	OpUnlock
	OpTouch
	OpExists
	OpUpsert
	OpInsert
	OpReplace
	OpRemove
	OpLookupIn
	OpMutateIn
	OpAppend
	OpPrepend
	OpIncrement
	OpDecrement

	OpCreateBucket
	OpDropBucket
	OpFlushBucket
	OpGetBucket
	OpGetAllBuckets
	OpCreateScope
	OpDropScope
	OpCreateCollection
	OpDropCollection
	OpGetAllScopes
	OpCreateQueryIndex
	OpDropQueryIndex
	OpGetAllQueryIndexes
)

func (o OpCode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpGetAndTouch:
		return "getAndTouch"
	case OpGetAndLock:
		return "getAndLock"
	case OpUnlock:
		return "unlock"
	case OpTouch:
		return "touch"
	case OpExists:
		return "exists"
	case OpUpsert:
		return "upsert"
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	case OpLookupIn:
		return "lookupIn"
	case OpMutateIn:
		return "mutateIn"
	case OpAppend:
		return "append"
	case OpPrepend:
		return "prepend"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	case OpCreateBucket:
		return "createBucket"
	case OpDropBucket:
		return "dropBucket"
	case OpFlushBucket:
		return "flushBucket"
	case OpGetBucket:
		return "getBucket"
	case OpGetAllBuckets:
		return "getAllBuckets"
	case OpCreateScope:
		return "createScope"
	case OpDropScope:
		return "dropScope"
	case OpCreateCollection:
		return "createCollection"
	case OpDropCollection:
		return "dropCollection"
	case OpGetAllScopes:
		return "getAllScopes"
	case OpCreateQueryIndex:
		return "createQueryIndex"
	case OpDropQueryIndex:
		return "dropQueryIndex"
	case OpGetAllQueryIndexes:
		return "getAllQueryIndexes"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Engine Status Codes
// --------------------------------------------------------------------------

// Engine status codes carried by EngineError.Code. The key-value range
// follows the memcached binary protocol status vocabulary; the query range
// follows the query service's numeric error codes; StatusTimeout is
// engine-local since timeouts are detected client-side.
const (
	StatusDocumentNotFound   = 0x01
	StatusDocumentExists     = 0x02
	StatusValueTooLarge      = 0x03
	StatusInvalidArgs        = 0x04
	StatusDeltaInvalid       = 0x06
	StatusBucketNotFound     = 0x08
	StatusDocumentLocked     = 0x09
	StatusAuthFailure        = 0x20
	StatusNotSupported       = 0x83
	StatusTemporaryFailure   = 0x86
	StatusCollectionNotFound = 0x88
	StatusScopeNotFound      = 0x8c
	StatusPathNotFound       = 0xc0
	StatusPathMismatch       = 0xc1
	StatusPathInvalid        = 0xc2
	StatusDocumentNotJSON    = 0xc6
	StatusNumberTooBig       = 0xc7
	StatusDeltaRange         = 0xc8
	StatusPathExists         = 0xc9

	StatusTimeout = 0x200

	StatusQuerySyntax        = 3000
	StatusQueryIndexExists   = 4300
	StatusQueryKeyspaceMiss  = 12003
	StatusQueryIndexNotFound = 12016
)

// --------------------------------------------------------------------------
// Engine Boundary
// --------------------------------------------------------------------------

// IEngine constructs connections from a parsed connection string. Engines
// are expected to be cheap to allocate; all state lives on the connection.
type IEngine interface {

	// Connect establishes a connection to the cluster the spec names.
	// Credential checking happens here, not per call.
	Connect(spec connstr.ConnSpec, creds core.Credentials) (IEngineConn, error)
}

// IEngineConn is one live engine connection. Implementations must be safe
// for concurrent use; the cluster core shares a single connection across
// all collection handles.
type IEngineConn interface {

	// Invoke executes a single key-value or management operation. The args
	// map carries only wire-ready values produced by option normalization.
	// Failures are reported as *EngineError.
	Invoke(bucket, scope, collection, key string, op OpCode, args map[string]any) (map[string]any, error)

	// Query starts a statement and returns a row stream. The stream's
	// MetaData becomes available once the rows are drained.
	Query(statement string, args map[string]any) (core.IQueryRows, error)

	// Ping round-trips each requested service and reports per-endpoint
	// state. An empty service list means all services.
	Ping(services []core.ServiceType) (map[string]any, error)

	// Diagnostics reports the connection states without performing I/O.
	Diagnostics() (map[string]any, error)

	// Close releases the connection. Further calls fail.
	Close() error
}

// --------------------------------------------------------------------------
// Engine Errors
// --------------------------------------------------------------------------

// EngineError is the raw failure shape the engine boundary reports. Code
// carries an engine status code, Context optional structured details
// (including the "retry_reasons" tag list), Info free-form debug data.
type EngineError struct {
	Code    int
	Message string
	Context map[string]any
	Info    map[string]any
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %#x: %s", e.Code, e.Message)
}

// Err returns the numeric engine status code.
func (e *EngineError) Err() int { return e.Code }

// ErrorContext returns the structured error context, nil when absent.
func (e *EngineError) ErrorContext() map[string]any { return e.Context }

// ErrorInfo returns free-form debug details, nil when absent.
func (e *EngineError) ErrorInfo() map[string]any { return e.Info }

// RetryReasons extracts the retry reason tags from the error context.
func (e *EngineError) RetryReasons() []string {
	if e.Context == nil {
		return nil
	}
	switch raw := e.Context["retry_reasons"].(type) {
	case []string:
		return raw
	case []any:
		reasons := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				reasons = append(reasons, s)
			}
		}
		return reasons
	default:
		return nil
	}
}

// --------------------------------------------------------------------------
// Engine Registry
// --------------------------------------------------------------------------

var engineRegistry = xsync.NewMapOf[string, IEngine]()

// RegisterEngine makes an engine available under the given name for the
// connection string's engine option. Later registrations replace earlier
// ones.
func RegisterEngine(name string, eng IEngine) {
	engineRegistry.Store(name, eng)
}

// EngineFor returns the engine registered under the given name.
func EngineFor(name string) (IEngine, error) {
	eng, ok := engineRegistry.Load(name)
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidArgument, "unknown engine %q", name)
	}
	return eng, nil
}

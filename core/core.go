package core

import (
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Backend union
// --------------------------------------------------------------------------

// BackendKind is the closed union of execution backends. It is resolved
// once at cluster construction and never changes afterwards.
type BackendKind uint8

const (
	BackendNativeEngine BackendKind = iota + 1
	BackendProtostellarGateway
)

func (k BackendKind) String() string {
	switch k {
	case BackendNativeEngine:
		return "native"
	case BackendProtostellarGateway:
		return "protostellar"
	default:
		return "unknown"
	}
}

// SelectBackend maps a connection-string scheme onto a backend kind.
func SelectBackend(scheme string) (BackendKind, error) {
	switch scheme {
	case "couchbase", "couchbases":
		return BackendNativeEngine, nil
	case "protostellar":
		return BackendProtostellarGateway, nil
	default:
		return 0, errors.Newf(errors.ErrInvalidArgument,
			"unknown connection string scheme %q", scheme)
	}
}

// --------------------------------------------------------------------------
// Shared value types
// --------------------------------------------------------------------------

// Cas is the compare-and-swap token identifying a document version.
type Cas uint64

// Credentials authenticate a cluster connection.
type Credentials struct {
	Username string
	Password string
	CertPath string
}

// ServiceType names one service a cluster exposes.
type ServiceType string

const (
	ServiceKeyValue   ServiceType = "kv"
	ServiceQuery      ServiceType = "query"
	ServiceManagement ServiceType = "mgmt"
)

// TranscoderFrom pulls the call's transcoder out of the option bag,
// defaulting to the JSON transcoder. Backends use it to decode payloads.
func TranscoderFrom(opts options.Values) transcoder.ITranscoder {
	if tc, ok := opts[options.KeyTranscoder].(transcoder.ITranscoder); ok && tc != nil {
		return tc
	}
	return transcoder.NewDefaultTranscoder()
}

package gatewaytest

import (
	"strings"

	"github.com/couchkit/couchkit/core/native"
	"github.com/couchkit/couchkit/lib/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Status Translation
// --------------------------------------------------------------------------

// numericStatuses maps engine status codes onto the gRPC codes a gateway
// reports. Everything the narrow protocol cannot express decays to a
// coarser code, exactly as it would over a real channel.
var numericStatuses = map[int]codes.Code{
	native.StatusDocumentNotFound:   codes.NotFound,
	native.StatusBucketNotFound:     codes.NotFound,
	native.StatusScopeNotFound:      codes.NotFound,
	native.StatusCollectionNotFound: codes.NotFound,
	native.StatusQueryKeyspaceMiss:  codes.NotFound,
	native.StatusQueryIndexNotFound: codes.NotFound,
	native.StatusPathNotFound:       codes.NotFound,
	native.StatusDocumentExists:     codes.AlreadyExists,
	native.StatusPathExists:         codes.AlreadyExists,
	native.StatusQueryIndexExists:   codes.AlreadyExists,
	native.StatusDocumentLocked:     codes.FailedPrecondition,
	native.StatusNotSupported:       codes.Unimplemented,
	native.StatusTemporaryFailure:   codes.Unavailable,
	native.StatusTimeout:            codes.DeadlineExceeded,
	native.StatusAuthFailure:        codes.Unauthenticated,
	native.StatusInvalidArgs:        codes.InvalidArgument,
	native.StatusQuerySyntax:        codes.InvalidArgument,
	native.StatusPathMismatch:       codes.InvalidArgument,
	native.StatusPathInvalid:        codes.InvalidArgument,
	native.StatusDocumentNotJSON:    codes.InvalidArgument,
	native.StatusDeltaInvalid:       codes.InvalidArgument,
	native.StatusDeltaRange:         codes.InvalidArgument,
	native.StatusNumberTooBig:       codes.OutOfRange,
	native.StatusValueTooLarge:      codes.ResourceExhausted,
}

// statusErr renders an engine failure as the status error a gateway would
// put on the wire. The message probes run first: the engine reuses the
// document-exists status for CAS conflicts and the invalid-args status for
// duplicate namespace entities, and only the message tells those apart.
func statusErr(err error) error {
	var ee *native.EngineError
	if !errors.As(err, &ee) {
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(statusCode(ee), ee.Message)
}

func statusCode(ee *native.EngineError) codes.Code {
	msg := strings.ToLower(ee.Message)
	switch {
	case strings.Contains(msg, "cas mismatch"):
		return codes.Aborted
	case ee.Code == native.StatusInvalidArgs && strings.Contains(msg, "already exists"):
		return codes.AlreadyExists
	}
	if code, ok := numericStatuses[ee.Code]; ok {
		return code
	}
	return codes.Unknown
}

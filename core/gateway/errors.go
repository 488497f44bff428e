package gateway

import (
	"strings"

	"github.com/couchkit/couchkit/lib/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Error Mapping
// --------------------------------------------------------------------------

// The gateway reports every failure as a gRPC status, so mapping dispatches
// on the status code alone; there is no message or retry-reason stage. The
// not-found and already-exists codes are generic on the wire and are refined
// by the resource the RPC addressed.

// resource names the subject of an RPC for status refinement.
type resource uint8

const (
	resourceDocument resource = iota + 1
	resourceQuery
	resourceBucket
	resourceScope
	resourceCollection
	resourceIndex
)

var notFoundCodes = map[resource]errors.Code{
	resourceDocument:   errors.ErrDocumentNotFound,
	resourceQuery:      errors.ErrBucketNotFound,
	resourceBucket:     errors.ErrBucketNotFound,
	resourceScope:      errors.ErrScopeNotFound,
	resourceCollection: errors.ErrCollectionNotFound,
	resourceIndex:      errors.ErrIndexNotFound,
}

var existsCodes = map[resource]errors.Code{
	resourceDocument:   errors.ErrDocumentExists,
	resourceQuery:      errors.ErrIndexExists,
	resourceBucket:     errors.ErrBucketExists,
	resourceScope:      errors.ErrScopeExists,
	resourceCollection: errors.ErrCollectionExists,
	resourceIndex:      errors.ErrIndexExists,
}

// resolveStatus maps one status code. mutation selects the ambiguous timeout
// flavor, since a deadline that fired mid-mutation may have applied
// server-side. The boolean reports whether the code is mapped at all.
func resolveStatus(c codes.Code, res resource, mutation bool) (errors.Code, bool) {
	switch c {
	case codes.NotFound:
		return notFoundCodes[res], true
	case codes.AlreadyExists:
		return existsCodes[res], true
	case codes.InvalidArgument:
		return errors.ErrInvalidArgument, true
	case codes.Unimplemented:
		return errors.ErrFeatureUnavailable, true
	case codes.DeadlineExceeded:
		if mutation {
			return errors.ErrAmbiguousTimeout, true
		}
		return errors.ErrTimeout, true
	case codes.Aborted, codes.FailedPrecondition:
		return errors.ErrCasMismatch, true
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.ErrAuthentication, true
	case codes.Unavailable:
		return errors.ErrServiceUnavailable, true
	default:
		return errors.ErrUncoded, false
	}
}

// unmappedError packages a status outside the dispatch table: the caller
// gets an internal error and the raw transport details ride along for
// logging.
func unmappedError(st *status.Status, method string) error {
	return errors.WithContext(
		errors.New(errors.ErrInternal, st.Message()),
		errors.GatewayErrorContext{
			Status: st.Code().String(),
			Debug:  st.Message(),
			Method: method,
		})
}

// mapKVError translates a failed document RPC into a coded error carrying a
// key-value error context. Errors that already carry a code pass through
// untouched so nothing gets wrapped twice.
func mapKVError(err error, method string, mutation bool, kv errors.KeyValueErrorContext) error {
	if err == nil {
		return nil
	}
	if errors.Coded(err) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.WithContext(errors.Wrap(err, "gateway failure"), kv)
	}
	code, mapped := resolveStatus(st.Code(), resourceDocument, mutation)
	if !mapped {
		return unmappedError(st, method)
	}
	kv.StatusCode = int(st.Code())
	return errors.WithContext(errors.New(code, st.Message()), kv)
}

// mapQueryError translates a failed query RPC, carrying the statement in a
// query error context.
func mapQueryError(err error, statement, clientContextID string) error {
	if err == nil {
		return nil
	}
	if errors.Coded(err) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.WithContext(
			errors.Wrap(err, "gateway failure"),
			errors.QueryErrorContext{Statement: statement, ClientContextID: clientContextID})
	}
	code, mapped := resolveStatus(st.Code(), resourceQuery, false)
	if !mapped {
		return unmappedError(st, "Query")
	}
	return errors.WithContext(
		errors.New(code, st.Message()),
		errors.QueryErrorContext{
			Statement:         statement,
			ClientContextID:   clientContextID,
			FirstErrorCode:    uint32(st.Code()),
			FirstErrorMessage: st.Message(),
		})
}

// mapAdminError translates a failed management RPC, naming the method and
// its subject path in a management error context.
func mapAdminError(err error, res resource, method string, pathParts ...string) error {
	if err == nil {
		return nil
	}
	if errors.Coded(err) {
		return err
	}
	path := strings.Join(pathParts, "/")
	st, ok := status.FromError(err)
	if !ok {
		return errors.WithContext(
			errors.Wrap(err, "gateway failure"),
			errors.ManagementErrorContext{Method: method, Path: path})
	}
	code, mapped := resolveStatus(st.Code(), res, false)
	if !mapped {
		return unmappedError(st, method)
	}
	return errors.WithContext(
		errors.New(code, st.Message()),
		errors.ManagementErrorContext{
			Method: method,
			Path:   path,
			Body:   st.Message(),
		})
}

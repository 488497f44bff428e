package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorContext is the backend-specific diagnostic payload attached to an
// error before it crosses the public facade. Exactly one of the concrete
// types below rides on each raised error; application code can log it
// without knowing which backend served the call.
type ErrorContext interface {
	contextKind() string
}

// KeyValueErrorContext describes a failed document or sub-document call.
type KeyValueErrorContext struct {
	Bucket       string
	Scope        string
	Collection   string
	Key          string
	StatusCode   int
	RetryReasons []string
}

func (KeyValueErrorContext) contextKind() string { return "kv" }

// QueryErrorContext describes a failed query call.
type QueryErrorContext struct {
	Statement         string
	ClientContextID   string
	FirstErrorCode    uint32
	FirstErrorMessage string
}

func (QueryErrorContext) contextKind() string { return "query" }

// ManagementErrorContext describes a failed management call.
type ManagementErrorContext struct {
	Method     string
	Path       string
	HTTPStatus int
	Body       string
}

func (ManagementErrorContext) contextKind() string { return "mgmt" }

// GatewayErrorContext carries the transport-level details of a failed
// gateway call. Status is the textual gRPC code so that callers of this
// package never depend on the transport library.
type GatewayErrorContext struct {
	Status   string
	Debug    string
	Method   string
	Metadata map[string]string
}

func (GatewayErrorContext) contextKind() string { return "gateway" }

// WithContext attaches ctx to err. Attaching to nil returns nil. An error
// already carrying a context keeps the existing one; the first attach wins
// because it happened closest to the failure.
func WithContext(err error, ctx ErrorContext) error {
	if err == nil {
		return nil
	}
	var ce *contextError
	if stderrors.As(err, &ce) {
		return err
	}
	return &contextError{err: err, ctx: ctx}
}

// ContextOf returns the context attached to err, or nil.
func ContextOf(err error) ErrorContext {
	var ce *contextError
	if stderrors.As(err, &ce) {
		return ce.ctx
	}
	return nil
}

type contextError struct {
	err error
	ctx ErrorContext
}

func (ce *contextError) Error() string {
	return fmt.Sprintf("%s (%s context: %+v)", ce.err.Error(), ce.ctx.contextKind(), ce.ctx)
}

func (ce *contextError) Unwrap() error {
	return ce.err
}

// Package errors wraps pkg/errors and adds the coded error taxonomy shared
// by both backends, plus the error context payload attached to every error
// the SDK raises.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error
// independently of how often it was wrapped on the way up. See Is().
type Code string

// The full taxonomy. Both backends map their raw failures onto these codes;
// no other error kinds cross the public facade.
const (
	// validation and value format
	ErrInvalidArgument Code = "InvalidArgument"
	ErrValueFormat     Code = "ValueFormat"

	// document state
	ErrDocumentNotFound Code = "DocumentNotFound"
	ErrDocumentExists   Code = "DocumentExists"
	ErrDocumentLocked   Code = "DocumentLocked"
	ErrCasMismatch      Code = "CasMismatch"
	ErrValueTooLarge    Code = "ValueTooLarge"

	// sub-document state
	ErrPathNotFound    Code = "PathNotFound"
	ErrPathExists      Code = "PathExists"
	ErrPathMismatch    Code = "PathMismatch"
	ErrDocumentNotJSON Code = "DocumentNotJson"
	ErrNumberTooBig    Code = "NumberTooBig"
	ErrDeltaInvalid    Code = "DeltaInvalid"

	// timeouts: Timeout means the operation certainly did not apply,
	// AmbiguousTimeout means a mutation may have applied server-side.
	ErrTimeout          Code = "Timeout"
	ErrAmbiguousTimeout Code = "AmbiguousTimeout"

	// capability and service state
	ErrFeatureUnavailable Code = "FeatureUnavailable"
	ErrAuthentication     Code = "Authentication"
	ErrServiceUnavailable Code = "ServiceUnavailable"
	ErrBucketNotFound     Code = "BucketNotFound"
	ErrBucketExists       Code = "BucketExists"
	ErrScopeNotFound      Code = "ScopeNotFound"
	ErrScopeExists        Code = "ScopeExists"
	ErrCollectionNotFound Code = "CollectionNotFound"
	ErrCollectionExists   Code = "CollectionExists"
	ErrIndexNotFound      Code = "IndexNotFound"
	ErrIndexExists        Code = "IndexExists"

	// fallback
	ErrInternal Code = "Internal"
	ErrUncoded  Code = "Uncoded"
)

// New creates a stack-carrying error with the given code.
func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: errors.Errorf(format, args...).Error(),
	})
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// CodeOf returns the code of err, or ErrUncoded if err carries none.
func CodeOf(err error) Code {
	var ce codedError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

// Coded reports whether err already carries a code from this taxonomy.
// The normalizer uses this to re-raise transform failures unchanged instead
// of wrapping them a second time.
func Coded(err error) bool {
	var ce codedError
	return stderrors.As(err, &ce)
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}

package native

import (
	"regexp"
	"strings"

	"github.com/couchkit/couchkit/lib/errors"
)

// --------------------------------------------------------------------------
// Error Mapping
// --------------------------------------------------------------------------

// opKind buckets opcodes for error mapping. Mutating kinds turn a timeout
// into AmbiguousTimeout since the operation may have applied server-side.
type opKind uint8

const (
	kindRead opKind = iota + 1
	kindMutation
	kindQuery
	kindManagement
)

func (k opKind) mutates() bool { return k == kindMutation }

func opKindOf(op OpCode) opKind {
	switch op {
	case OpGet, OpGetAndLock, OpExists, OpLookupIn:
		return kindRead
	case OpGetAndTouch, OpTouch, OpUnlock, OpUpsert, OpInsert, OpReplace, OpRemove,
		OpMutateIn, OpAppend, OpPrepend, OpIncrement, OpDecrement:
		return kindMutation
	default:
		return kindManagement
	}
}

type patternRule struct {
	re   *regexp.Regexp
	code errors.Code
}

func rule(expr string, code errors.Code) patternRule {
	return patternRule{re: regexp.MustCompile(expr), code: code}
}

// sub-document failures surface on both lookup and mutation paths
var subdocPatterns = []patternRule{
	rule(`(?i)path not found|path does not exist`, errors.ErrPathNotFound),
	rule(`(?i)path already exists`, errors.ErrPathExists),
	rule(`(?i)path mismatch`, errors.ErrPathMismatch),
	rule(`(?i)not json|non-json`, errors.ErrDocumentNotJSON),
	rule(`(?i)number too big|counter overflow`, errors.ErrNumberTooBig),
	rule(`(?i)delta (invalid|out of range|badval)`, errors.ErrDeltaInvalid),
}

// messagePatterns is the first mapping stage: per-kind regexps over the
// engine error text. Order within a kind matters; the first hit wins.
var messagePatterns = map[opKind][]patternRule{
	kindRead: append([]patternRule{
		rule(`(?i)document is locked`, errors.ErrDocumentLocked),
	}, subdocPatterns...),
	kindMutation: append([]patternRule{
		rule(`(?i)cas mismatch`, errors.ErrCasMismatch),
		rule(`(?i)document is locked`, errors.ErrDocumentLocked),
		rule(`(?i)value too large`, errors.ErrValueTooLarge),
	}, subdocPatterns...),
	kindQuery: {
		rule(`(?i)index .*not found|index does not exist`, errors.ErrIndexNotFound),
		rule(`(?i)index .*already exists`, errors.ErrIndexExists),
		rule(`(?i)syntax error`, errors.ErrInvalidArgument),
		rule(`(?i)keyspace not found`, errors.ErrBucketNotFound),
	},
	kindManagement: {
		rule(`(?i)bucket .*already exists`, errors.ErrBucketExists),
		rule(`(?i)bucket .*not found`, errors.ErrBucketNotFound),
		rule(`(?i)scope .*already exists`, errors.ErrScopeExists),
		rule(`(?i)scope .*not found`, errors.ErrScopeNotFound),
		rule(`(?i)collection .*already exists`, errors.ErrCollectionExists),
		rule(`(?i)collection .*not found`, errors.ErrCollectionNotFound),
		rule(`(?i)index .*already exists`, errors.ErrIndexExists),
		rule(`(?i)index .*not found`, errors.ErrIndexNotFound),
	},
}

// retryReasonPatterns is the second stage, matched against each retry
// reason tag in turn.
var retryReasonPatterns = []patternRule{
	rule(`^key_value_locked$`, errors.ErrDocumentLocked),
	rule(`^key_value_temporary_failure$`, errors.ErrServiceUnavailable),
	rule(`^kv_sync_write_in_progress$`, errors.ErrServiceUnavailable),
	rule(`^kv_collection_outdated$`, errors.ErrCollectionNotFound),
}

// numericCodes is the third stage: engine status code to error code,
// fixed data built once.
var numericCodes = map[int]errors.Code{
	StatusDocumentNotFound:   errors.ErrDocumentNotFound,
	StatusDocumentExists:     errors.ErrDocumentExists,
	StatusValueTooLarge:      errors.ErrValueTooLarge,
	StatusInvalidArgs:        errors.ErrInvalidArgument,
	StatusDeltaInvalid:       errors.ErrDeltaInvalid,
	StatusBucketNotFound:     errors.ErrBucketNotFound,
	StatusDocumentLocked:     errors.ErrDocumentLocked,
	StatusAuthFailure:        errors.ErrAuthentication,
	StatusNotSupported:       errors.ErrFeatureUnavailable,
	StatusTemporaryFailure:   errors.ErrServiceUnavailable,
	StatusCollectionNotFound: errors.ErrCollectionNotFound,
	StatusScopeNotFound:      errors.ErrScopeNotFound,
	StatusPathNotFound:       errors.ErrPathNotFound,
	StatusPathMismatch:       errors.ErrPathMismatch,
	StatusPathInvalid:        errors.ErrInvalidArgument,
	StatusDocumentNotJSON:    errors.ErrDocumentNotJSON,
	StatusNumberTooBig:       errors.ErrNumberTooBig,
	StatusDeltaRange:         errors.ErrDeltaInvalid,
	StatusPathExists:         errors.ErrPathExists,
	StatusTimeout:            errors.ErrTimeout,
	StatusQuerySyntax:        errors.ErrInvalidArgument,
	StatusQueryIndexExists:   errors.ErrIndexExists,
	StatusQueryKeyspaceMiss:  errors.ErrBucketNotFound,
	StatusQueryIndexNotFound: errors.ErrIndexNotFound,
}

// resolveCode applies the mapping stages in precedence order and returns
// the first hit. Exactly one stage contributes; stages are never combined.
func resolveCode(ee *EngineError, kind opKind) errors.Code {
	for _, r := range messagePatterns[kind] {
		if r.re.MatchString(ee.Message) {
			return r.code
		}
	}
	for _, reason := range ee.RetryReasons() {
		for _, r := range retryReasonPatterns {
			if r.re.MatchString(reason) {
				return r.code
			}
		}
	}
	if code, ok := numericCodes[ee.Code]; ok {
		if code == errors.ErrTimeout && kind.mutates() {
			return errors.ErrAmbiguousTimeout
		}
		return code
	}
	return errors.ErrInternal
}

// mapKVError translates a raw engine failure into a coded error carrying a
// key-value error context. Errors that already carry a code pass through
// untouched so nothing gets wrapped twice.
func mapKVError(err error, op OpCode, bucket, scope, collection, key string) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if !errors.As(err, &ee) {
		if errors.Coded(err) {
			return err
		}
		return errors.WithContext(
			errors.Wrap(err, "engine failure"),
			errors.KeyValueErrorContext{
				Bucket: bucket, Scope: scope, Collection: collection, Key: key,
			})
	}
	code := resolveCode(ee, opKindOf(op))
	return errors.WithContext(
		errors.New(code, ee.Message),
		errors.KeyValueErrorContext{
			Bucket:       bucket,
			Scope:        scope,
			Collection:   collection,
			Key:          key,
			StatusCode:   ee.Code,
			RetryReasons: ee.RetryReasons(),
		})
}

// mapQueryError translates a raw query failure, carrying the statement in
// a query error context.
func mapQueryError(err error, statement, clientContextID string) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if !errors.As(err, &ee) {
		if errors.Coded(err) {
			return err
		}
		return errors.WithContext(
			errors.Wrap(err, "query failure"),
			errors.QueryErrorContext{Statement: statement, ClientContextID: clientContextID})
	}
	code := resolveCode(ee, kindQuery)
	return errors.WithContext(
		errors.New(code, ee.Message),
		errors.QueryErrorContext{
			Statement:         statement,
			ClientContextID:   clientContextID,
			FirstErrorCode:    uint32(ee.Code),
			FirstErrorMessage: ee.Message,
		})
}

// mapManagementError translates a raw management failure, naming the
// operation and its subject path in a management error context.
func mapManagementError(err error, op OpCode, pathParts ...string) error {
	if err == nil {
		return nil
	}
	path := strings.Join(pathParts, "/")
	var ee *EngineError
	if !errors.As(err, &ee) {
		if errors.Coded(err) {
			return err
		}
		return errors.WithContext(
			errors.Wrap(err, "management failure"),
			errors.ManagementErrorContext{Method: op.String(), Path: path})
	}
	code := resolveCode(ee, kindManagement)
	return errors.WithContext(
		errors.New(code, ee.Message),
		errors.ManagementErrorContext{
			Method: op.String(),
			Path:   path,
			Body:   ee.Message,
		})
}

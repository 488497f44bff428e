package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Static Option Tables
// --------------------------------------------------------------------------

// One table per RPC. Normalization produces the same wire-keyed map as on
// the native path; the request builders then move the known keys onto the
// typed message. The timeout is special: it stays a time.Duration and is
// consumed by callContext, because the gateway protocol carries deadlines
// in the call context rather than in the message.

var getTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
}

var getAndTouchTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:  {Wire: "expiry", Transform: options.ExpiryToUnix},
}

var getAndLockTable = options.Table{
	options.KeyTimeout:  {Wire: "timeout", Transform: durationArg},
	options.KeyLockTime: {Wire: "lock_time", Transform: options.DurationToSecs},
}

var unlockTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
}

var touchTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:  {Wire: "expiry", Transform: options.ExpiryToUnix},
}

var existsTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
}

var upsertTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDurability:     {Wire: "durability_level", Transform: durabilityLevelArg},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyContentTag:     {Wire: "content_type", Transform: tagToContentType},
}

var insertTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:     {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDurability: {Wire: "durability_level", Transform: durabilityLevelArg},
	options.KeyContentTag: {Wire: "content_type", Transform: tagToContentType},
}

var replaceTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyCas:            {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability:     {Wire: "durability_level", Transform: durabilityLevelArg},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyContentTag:     {Wire: "content_type", Transform: tagToContentType},
}

var removeTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: durationArg},
	options.KeyCas:        {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability: {Wire: "durability_level", Transform: durabilityLevelArg},
}

var lookupInTable = options.Table{
	options.KeyTimeout:       {Wire: "timeout", Transform: durationArg},
	options.KeyAccessDeleted: {Wire: "access_deleted", Transform: options.Bool},
}

var mutateInTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyCas:            {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability:     {Wire: "durability_level", Transform: durabilityLevelArg},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyStoreSemantics: {Wire: "store_semantic", Transform: storeSemanticArg},
	options.KeyAccessDeleted:  {Wire: "access_deleted", Transform: options.Bool},
}

var appendTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: durationArg},
	options.KeyCas:        {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability: {Wire: "durability_level", Transform: durabilityLevelArg},
}

var prependTable = appendTable

var incrementTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: durationArg},
	options.KeyExpiry:     {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDelta:      {Wire: "delta", Transform: uint64Keep, Default: uint64(1)},
	options.KeyInitial:    {Wire: "initial", Transform: uint64Keep},
	options.KeyDurability: {Wire: "durability_level", Transform: durabilityLevelArg},
}

var decrementTable = incrementTable

var queryTable = options.Table{
	options.KeyTimeout:          {Wire: "timeout", Transform: durationArg},
	options.KeyNamedParams:      {Wire: "named_parameters", Transform: namedParamsArg},
	options.KeyPositionalParams: {Wire: "positional_parameters", Transform: positionalParamsArg},
	options.KeyScanConsistency:  {Wire: "scan_consistency", Transform: scanConsistencyArg},
	options.KeyConsistentWith:   {Wire: "consistent_with", Transform: consistentWithArg},
	options.KeyReadonly:         {Wire: "readonly", Transform: options.Bool},
	options.KeyAdhoc:            {Wire: "adhoc", Transform: options.Bool},
	options.KeyClientContextID:  {Wire: "client_context_id", Transform: options.String},
	options.KeyMetrics:          {Wire: "metrics", Transform: options.Bool},
	options.KeyQueryContext:     {Wire: "query_context", Transform: options.String},
}

var pingTable = options.Table{
	options.KeyTimeout:      {Wire: "timeout", Transform: durationArg},
	options.KeyReportID:     {Wire: "report_id", Transform: options.String},
	options.KeyServiceTypes: {Wire: "service_types", Transform: serviceTypesArg},
}

var managementTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: durationArg},
}

// --------------------------------------------------------------------------
// Gateway Transforms
// --------------------------------------------------------------------------

// durationArg validates a timeout and keeps it a time.Duration; callContext
// pops it from the wire map before any message is built.
func durationArg(v any) (any, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("expected time.Duration, got %T", v)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", d)
	}
	return d, nil
}

// tagToContentType maps the logical content tag onto the gateway's named
// content types.
func tagToContentType(v any) (any, error) {
	tag, ok := v.(transcoder.Tag)
	if !ok {
		return nil, fmt.Errorf("expected transcoder.Tag, got %T", v)
	}
	switch tag {
	case transcoder.TagJSON:
		return ContentTypeJSON, nil
	case transcoder.TagBinary:
		return ContentTypeBinary, nil
	case transcoder.TagString:
		return ContentTypeString, nil
	default:
		return nil, fmt.Errorf("content tag %v has no gateway content type", tag)
	}
}

// durabilityLevelArg renders a durability requirement as the gateway's level
// name. The protocol has no rendering for client-observed counts, and none
// for an explicit level of none either: callers asking for either get a
// coded error instead of a silently weakened write.
func durabilityLevelArg(v any) (any, error) {
	d, ok := v.(options.Durability)
	if !ok {
		return nil, fmt.Errorf("expected options.Durability, got %T", v)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.PersistTo > 0 || d.ReplicateTo > 0 {
		return nil, errors.New(errors.ErrFeatureUnavailable,
			"the gateway protocol does not support persist_to/replicate_to durability")
	}
	switch d.Level {
	case options.DurabilityLevelMajority:
		return DurabilityMajority, nil
	case options.DurabilityLevelMajorityAndPersistToActive:
		return DurabilityMajorityAndPersistToActive, nil
	case options.DurabilityLevelPersistToMajority:
		return DurabilityPersistToMajority, nil
	default:
		return nil, errors.New(errors.ErrInvalidArgument,
			"durability level none has no gateway value; leave the option unset instead")
	}
}

func storeSemanticArg(v any) (any, error) {
	sem, ok := v.(options.StoreSemantics)
	if !ok {
		return nil, fmt.Errorf("expected options.StoreSemantics, got %T", v)
	}
	switch sem {
	case options.StoreSemanticsReplace:
		// the protocol default
		return nil, nil
	case options.StoreSemanticsUpsert:
		return StoreSemanticUpsert, nil
	case options.StoreSemanticsInsert:
		return StoreSemanticInsert, nil
	default:
		return nil, fmt.Errorf("unknown store semantics %d", sem)
	}
}

func scanConsistencyArg(v any) (any, error) {
	sc, ok := v.(options.ScanConsistency)
	if !ok {
		return nil, fmt.Errorf("expected options.ScanConsistency, got %T", v)
	}
	switch sc {
	case options.ScanConsistencyUnset:
		return nil, nil
	case options.ScanConsistencyNotBounded:
		return ScanConsistencyNotBounded, nil
	case options.ScanConsistencyRequestPlus:
		return ScanConsistencyRequestPlus, nil
	default:
		return nil, fmt.Errorf("unknown scan consistency %d", sc)
	}
}

// consistentWithArg renders a mutation state directly into wire tokens.
func consistentWithArg(v any) (any, error) {
	var tokens []options.MutationToken
	switch ms := v.(type) {
	case *options.MutationState:
		if ms != nil {
			tokens = ms.Tokens
		}
	case options.MutationState:
		tokens = ms.Tokens
	default:
		return nil, fmt.Errorf("expected options.MutationState, got %T", v)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	msgs := make([]MutationTokenMessage, len(tokens))
	for i, t := range tokens {
		msgs[i] = MutationTokenMessage{
			BucketName:    t.BucketName,
			PartitionID:   uint32(t.PartitionID),
			PartitionUUID: t.PartitionUUID,
			SeqNo:         t.SequenceNumber,
		}
	}
	return msgs, nil
}

func serviceTypesArg(v any) (any, error) {
	types, ok := v.([]core.ServiceType)
	if !ok {
		return nil, fmt.Errorf("expected []core.ServiceType, got %T", v)
	}
	if len(types) == 0 {
		return nil, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names, nil
}

func namedParamsArg(v any) (any, error) {
	params, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map[string]any, got %T", v)
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func positionalParamsArg(v any) (any, error) {
	params, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected []any, got %T", v)
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func uint64Keep(v any) (any, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("expected uint64, got %T", v)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Wire Argument Access
// --------------------------------------------------------------------------

// callContext consumes the normalized timeout and turns it into the call's
// context deadline. An absent timeout yields a plain cancelable context.
func callContext(args map[string]any) (context.Context, context.CancelFunc) {
	d, ok := args["timeout"].(time.Duration)
	delete(args, "timeout")
	if !ok {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}

// The request builders read normalized wire values back out of the arg map.
// Transforms produce exact types, so plain assertions suffice; a missing key
// yields the zero value.

func argUint32(args map[string]any, key string) uint32 {
	n, _ := args[key].(uint32)
	return n
}

func argUint64(args map[string]any, key string) uint64 {
	n, _ := args[key].(uint64)
	return n
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

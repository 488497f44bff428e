package native

import (
	"fmt"
	"strconv"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Static Option Tables
// --------------------------------------------------------------------------

// One table per operation. The tables are the complete list of logical
// options the native path accepts for that operation; everything else in
// the merged bag is dropped before the engine sees it.

var getTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
}

var getAndTouchTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:  {Wire: "expiry", Transform: options.ExpiryToUnix},
}

var getAndLockTable = options.Table{
	options.KeyTimeout:  {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyLockTime: {Wire: "lock_time", Transform: options.DurationToSecs},
}

var unlockTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
}

var touchTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:  {Wire: "expiry", Transform: options.ExpiryToUnix},
}

var existsTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
}

var upsertTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDurability:     {Transform: durabilityArgs, Spread: true},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyContentTag:     {Wire: "flags", Transform: tagToFlags},
}

var insertTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:     {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDurability: {Transform: durabilityArgs, Spread: true},
	options.KeyContentTag: {Wire: "flags", Transform: tagToFlags},
}

var replaceTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyCas:            {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability:     {Transform: durabilityArgs, Spread: true},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyContentTag:     {Wire: "flags", Transform: tagToFlags},
}

var removeTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyCas:        {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability: {Transform: durabilityArgs, Spread: true},
}

var lookupInTable = options.Table{
	options.KeyTimeout:       {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyAccessDeleted: {Wire: "access_deleted", Transform: options.Bool},
}

var mutateInTable = options.Table{
	options.KeyTimeout:        {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:         {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyCas:            {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability:     {Transform: durabilityArgs, Spread: true},
	options.KeyPreserveExpiry: {Wire: "preserve_expiry", Transform: options.Bool},
	options.KeyStoreSemantics: {Wire: "store_semantics", Transform: storeSemanticsArg},
	options.KeyAccessDeleted:  {Wire: "access_deleted", Transform: options.Bool},
}

var appendTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyCas:        {Wire: "cas", Transform: options.Uint64},
	options.KeyDurability: {Transform: durabilityArgs, Spread: true},
}

var prependTable = appendTable

var incrementTable = options.Table{
	options.KeyTimeout:    {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyExpiry:     {Wire: "expiry", Transform: options.ExpiryToUnix},
	options.KeyDelta:      {Wire: "delta", Transform: uint64Keep, Default: uint64(1)},
	options.KeyInitial:    {Wire: "initial", Transform: uint64Keep},
	options.KeyDurability: {Transform: durabilityArgs, Spread: true},
}

var decrementTable = incrementTable

var queryTable = options.Table{
	options.KeyTimeout:          {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyNamedParams:      {Wire: "named_parameters", Transform: namedParamsArg},
	options.KeyPositionalParams: {Wire: "positional_parameters", Transform: positionalParamsArg},
	options.KeyScanConsistency:  {Wire: "scan_consistency", Transform: scanConsistencyArg},
	options.KeyConsistentWith:   {Transform: scanVectorsArgs, Spread: true},
	options.KeyReadonly:         {Wire: "readonly", Transform: options.Bool},
	options.KeyAdhoc:            {Wire: "adhoc", Transform: options.Bool},
	options.KeyClientContextID:  {Wire: "client_context_id", Transform: options.String},
	options.KeyMetrics:          {Wire: "metrics", Transform: options.Bool},
	options.KeyQueryContext:     {Wire: "query_context", Transform: options.String},
}

var pingTable = options.Table{
	options.KeyTimeout:      {Wire: "timeout", Transform: options.DurationToMicros},
	options.KeyReportID:     {Wire: "report_id", Transform: options.String},
	options.KeyServiceTypes: {Wire: "service_types", Transform: serviceTypesArg},
}

var diagnosticsTable = options.Table{
	options.KeyReportID: {Wire: "report_id", Transform: options.String},
}

var managementTable = options.Table{
	options.KeyTimeout: {Wire: "timeout", Transform: options.DurationToMicros},
}

// --------------------------------------------------------------------------
// Native Transforms
// --------------------------------------------------------------------------

// tagToFlags maps the logical content tag onto the native common flags
// word. The format lives in the top byte.
func tagToFlags(v any) (any, error) {
	tag, ok := v.(transcoder.Tag)
	if !ok {
		return nil, fmt.Errorf("expected transcoder.Tag, got %T", v)
	}
	switch tag {
	case transcoder.TagJSON:
		return uint32(2 << 24), nil
	case transcoder.TagBinary:
		return uint32(3 << 24), nil
	case transcoder.TagString:
		return uint32(4 << 24), nil
	default:
		return nil, fmt.Errorf("content tag %v has no native flags value", tag)
	}
}

// durabilityArgs spreads a durability requirement into its wire shape:
// server-enforced levels use durability_level, client-observed requirements
// use persist_to/replicate_to. The two shapes never mix.
func durabilityArgs(v any) (any, error) {
	d, ok := v.(options.Durability)
	if !ok {
		return nil, fmt.Errorf("expected options.Durability, got %T", v)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, nil
	}
	if d.Level != options.DurabilityLevelNone {
		return map[string]any{"durability_level": d.Level.String()}, nil
	}
	args := make(map[string]any, 2)
	if d.PersistTo > 0 {
		args["persist_to"] = d.PersistTo
	}
	if d.ReplicateTo > 0 {
		args["replicate_to"] = d.ReplicateTo
	}
	return args, nil
}

func storeSemanticsArg(v any) (any, error) {
	sem, ok := v.(options.StoreSemantics)
	if !ok {
		return nil, fmt.Errorf("expected options.StoreSemantics, got %T", v)
	}
	if sem == options.StoreSemanticsReplace {
		// replace is the engine default
		return nil, nil
	}
	return sem.String(), nil
}

func scanConsistencyArg(v any) (any, error) {
	sc, ok := v.(options.ScanConsistency)
	if !ok {
		return nil, fmt.Errorf("expected options.ScanConsistency, got %T", v)
	}
	if sc == options.ScanConsistencyUnset {
		return nil, nil
	}
	return sc.String(), nil
}

// scanVectorsArgs spreads a mutation state into an at_plus consistency
// requirement with sparse scan vectors keyed by bucket and partition.
func scanVectorsArgs(v any) (any, error) {
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
	vectors := make(map[string]any)
	for _, t := range tokens {
		bucket, ok := vectors[t.BucketName].(map[string]any)
		if !ok {
			bucket = make(map[string]any)
			vectors[t.BucketName] = bucket
		}
		vbid := strconv.FormatUint(uint64(t.PartitionID), 10)
		bucket[vbid] = []any{t.SequenceNumber, strconv.FormatUint(t.PartitionUUID, 10)}
	}
	return map[string]any{
		"scan_consistency": "at_plus",
		"scan_vectors":     vectors,
	}, nil
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

// uint64Keep passes a uint64 through, keeping zero (a counter initial of
// zero is a real value, unlike a zero CAS).
func uint64Keep(v any) (any, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("expected uint64, got %T", v)
	}
	return n, nil
}

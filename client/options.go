package client

import (
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Option folding
// --------------------------------------------------------------------------

// optionStruct is implemented by the positional options structs below.
// apply tolerates a nil receiver so a typed nil pointer reads as "no
// options".
type optionStruct interface {
	apply(options.Values)
}

// Option is a functional option accepted by every operation alongside the
// positional structs. It writes logical keys into the call's option bag;
// keys the operation does not use are dropped during normalization.
type Option func(options.Values)

// foldOptions builds the per-call option bag from the variadic tail. Only
// the first positional options struct is honored, later structs are ignored
// as if absent. Functional options apply afterwards in argument order, so
// they win over the struct on conflicting keys.
func foldOptions(opts []interface{}) (options.Values, error) {
	vals := options.Values{}
	for _, o := range opts {
		if s, ok := o.(optionStruct); ok {
			s.apply(vals)
			break
		}
	}
	for _, o := range opts {
		switch t := o.(type) {
		case nil:
		case optionStruct:
		case Option:
			if t != nil {
				t(vals)
			}
		default:
			return nil, errors.Newf(errors.ErrInvalidArgument,
				"unsupported option type %T", o)
		}
	}
	return vals, nil
}

// firstStruct returns the first positional options struct of type T, for
// the few option fields that configure the call itself rather than the
// option bag.
func firstStruct[T any](opts []interface{}) *T {
	for _, o := range opts {
		if t, ok := o.(*T); ok {
			return t
		}
		if _, ok := o.(optionStruct); ok {
			return nil
		}
	}
	return nil
}

// Struct setters. Zero values mean "unset" and write nothing, so the
// lower merge tiers stay visible.

func setTimeout(v options.Values, d time.Duration) {
	if d > 0 {
		v[options.KeyTimeout] = d
	}
}

func setExpiry(v options.Values, d time.Duration) {
	if d != 0 {
		v[options.KeyExpiry] = d
	}
}

func setCas(v options.Values, cas core.Cas) {
	if cas != 0 {
		v[options.KeyCas] = uint64(cas)
	}
}

func setDurability(v options.Values, d options.Durability) {
	if !d.IsZero() {
		v[options.KeyDurability] = d
	}
}

func setTranscoder(v options.Values, tc transcoder.ITranscoder) {
	if tc != nil {
		v[options.KeyTranscoder] = tc
	}
}

func setBool(v options.Values, k options.Key, b bool) {
	if b {
		v[k] = true
	}
}

func setString(v options.Values, k options.Key, s string) {
	if s != "" {
		v[k] = s
	}
}

// --------------------------------------------------------------------------
// Functional options
// --------------------------------------------------------------------------

// Functional options write their key unconditionally: passing one is always
// an explicit choice, and it overrides the positional struct.

// WithTimeout bounds the call, replacing the cluster default.
func WithTimeout(d time.Duration) Option {
	return func(v options.Values) { v[options.KeyTimeout] = d }
}

// WithExpiry sets a document expiry relative to now. Zero removes a pending
// expiry from the option bag.
func WithExpiry(d time.Duration) Option {
	return func(v options.Values) { v[options.KeyExpiry] = d }
}

// WithExpiryAt sets an absolute document expiry.
func WithExpiryAt(t time.Time) Option {
	return func(v options.Values) { v[options.KeyExpiry] = t }
}

// WithCas guards a mutation against a concurrent change.
func WithCas(cas core.Cas) Option {
	return func(v options.Values) { v[options.KeyCas] = uint64(cas) }
}

// WithDurability requires a server-side durability level.
func WithDurability(level options.DurabilityLevel) Option {
	return func(v options.Values) {
		v[options.KeyDurability] = options.Durability{Level: level}
	}
}

// WithObserveDurability requires the legacy client-observed durability
// shape. The gateway backend rejects it.
func WithObserveDurability(persistTo, replicateTo uint8) Option {
	return func(v options.Values) {
		v[options.KeyDurability] = options.Durability{
			PersistTo:   persistTo,
			ReplicateTo: replicateTo,
		}
	}
}

// WithPreserveExpiry keeps the document's current expiry across a mutation.
func WithPreserveExpiry() Option {
	return func(v options.Values) { v[options.KeyPreserveExpiry] = true }
}

// WithStoreSemantics overrides the document-level semantics of a MutateIn.
func WithStoreSemantics(sem options.StoreSemantics) Option {
	return func(v options.Values) { v[options.KeyStoreSemantics] = sem }
}

// WithAccessDeleted lets a sub-document call see tombstones.
func WithAccessDeleted() Option {
	return func(v options.Values) { v[options.KeyAccessDeleted] = true }
}

// WithTranscoder overrides the cluster transcoder for one call.
func WithTranscoder(tc transcoder.ITranscoder) Option {
	return func(v options.Values) { v[options.KeyTranscoder] = tc }
}

// WithDelta sets the counter step (default 1).
func WithDelta(delta uint64) Option {
	return func(v options.Values) { v[options.KeyDelta] = delta }
}

// WithInitial seeds a counter that does not exist yet; without it the
// counter must already exist.
func WithInitial(initial uint64) Option {
	return func(v options.Values) { v[options.KeyInitial] = initial }
}

// WithNamedParameters binds named query placeholders.
func WithNamedParameters(params map[string]interface{}) Option {
	return func(v options.Values) { v[options.KeyNamedParams] = params }
}

// WithPositionalParameters binds positional query placeholders.
func WithPositionalParameters(params ...interface{}) Option {
	return func(v options.Values) { v[options.KeyPositionalParams] = params }
}

// WithScanConsistency selects the index consistency of a query.
func WithScanConsistency(sc options.ScanConsistency) Option {
	return func(v options.Values) { v[options.KeyScanConsistency] = sc }
}

// WithConsistentWith makes a query observe the given mutations.
func WithConsistentWith(state *options.MutationState) Option {
	return func(v options.Values) { v[options.KeyConsistentWith] = state }
}

// WithReadonly marks a query as non-mutating.
func WithReadonly() Option {
	return func(v options.Values) { v[options.KeyReadonly] = true }
}

// WithAdhoc skips statement preparation.
func WithAdhoc() Option {
	return func(v options.Values) { v[options.KeyAdhoc] = true }
}

// WithClientContextID tags a query for tracing.
func WithClientContextID(id string) Option {
	return func(v options.Values) { v[options.KeyClientContextID] = id }
}

// WithQueryContext sets the query context ("default:`bucket`.`scope`") a
// bare collection name in FROM resolves against. Scope.Query sets it
// implicitly.
func WithQueryContext(qc string) Option {
	return func(v options.Values) { v[options.KeyQueryContext] = qc }
}

// WithMetrics asks the query service for execution metrics.
func WithMetrics() Option {
	return func(v options.Values) { v[options.KeyMetrics] = true }
}

// WithReportID names a ping or diagnostics report.
func WithReportID(id string) Option {
	return func(v options.Values) { v[options.KeyReportID] = id }
}

// WithServiceTypes restricts a ping to the given services.
func WithServiceTypes(services ...core.ServiceType) Option {
	return func(v options.Values) { v[options.KeyServiceTypes] = services }
}

// WithRaw copies entries verbatim into the backend wire map, bypassing the
// option tables. An escape hatch for wire fields this SDK has no option for.
func WithRaw(raw map[string]interface{}) Option {
	return func(v options.Values) { v[options.KeyRaw] = raw }
}

// --------------------------------------------------------------------------
// Positional options structs
// --------------------------------------------------------------------------

// GetOptions are the positional options of Collection.Get.
type GetOptions struct {
	Timeout    time.Duration
	Transcoder transcoder.ITranscoder
}

func (o *GetOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setTranscoder(v, o.Transcoder)
}

// GetAndTouchOptions are the positional options of Collection.GetAndTouch.
type GetAndTouchOptions struct {
	Timeout    time.Duration
	Transcoder transcoder.ITranscoder
}

func (o *GetAndTouchOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setTranscoder(v, o.Transcoder)
}

// GetAndLockOptions are the positional options of Collection.GetAndLock.
type GetAndLockOptions struct {
	Timeout    time.Duration
	Transcoder transcoder.ITranscoder
}

func (o *GetAndLockOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setTranscoder(v, o.Transcoder)
}

// UnlockOptions are the positional options of Collection.Unlock.
type UnlockOptions struct {
	Timeout time.Duration
}

func (o *UnlockOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

// TouchOptions are the positional options of Collection.Touch.
type TouchOptions struct {
	Timeout time.Duration
}

func (o *TouchOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

// ExistsOptions are the positional options of Collection.Exists.
type ExistsOptions struct {
	Timeout time.Duration
}

func (o *ExistsOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

// UpsertOptions are the positional options of Collection.Upsert.
type UpsertOptions struct {
	Timeout        time.Duration
	Expiry         time.Duration
	PreserveExpiry bool
	Durability     options.Durability
	Transcoder     transcoder.ITranscoder
}

func (o *UpsertOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setExpiry(v, o.Expiry)
	setBool(v, options.KeyPreserveExpiry, o.PreserveExpiry)
	setDurability(v, o.Durability)
	setTranscoder(v, o.Transcoder)
}

// InsertOptions are the positional options of Collection.Insert.
type InsertOptions struct {
	Timeout    time.Duration
	Expiry     time.Duration
	Durability options.Durability
	Transcoder transcoder.ITranscoder
}

func (o *InsertOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setExpiry(v, o.Expiry)
	setDurability(v, o.Durability)
	setTranscoder(v, o.Transcoder)
}

// ReplaceOptions are the positional options of Collection.Replace.
type ReplaceOptions struct {
	Timeout        time.Duration
	Expiry         time.Duration
	Cas            core.Cas
	PreserveExpiry bool
	Durability     options.Durability
	Transcoder     transcoder.ITranscoder
}

func (o *ReplaceOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setExpiry(v, o.Expiry)
	setCas(v, o.Cas)
	setBool(v, options.KeyPreserveExpiry, o.PreserveExpiry)
	setDurability(v, o.Durability)
	setTranscoder(v, o.Transcoder)
}

// RemoveOptions are the positional options of Collection.Remove.
type RemoveOptions struct {
	Timeout    time.Duration
	Cas        core.Cas
	Durability options.Durability
}

func (o *RemoveOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setCas(v, o.Cas)
	setDurability(v, o.Durability)
}

// LookupInOptions are the positional options of Collection.LookupIn.
type LookupInOptions struct {
	Timeout       time.Duration
	AccessDeleted bool
}

func (o *LookupInOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setBool(v, options.KeyAccessDeleted, o.AccessDeleted)
}

// MutateInOptions are the positional options of Collection.MutateIn.
type MutateInOptions struct {
	Timeout        time.Duration
	Expiry         time.Duration
	Cas            core.Cas
	PreserveExpiry bool
	StoreSemantics options.StoreSemantics
	AccessDeleted  bool
	Durability     options.Durability
	Transcoder     transcoder.ITranscoder
}

func (o *MutateInOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setExpiry(v, o.Expiry)
	setCas(v, o.Cas)
	setBool(v, options.KeyPreserveExpiry, o.PreserveExpiry)
	if o.StoreSemantics != options.StoreSemanticsReplace {
		v[options.KeyStoreSemantics] = o.StoreSemantics
	}
	setBool(v, options.KeyAccessDeleted, o.AccessDeleted)
	setDurability(v, o.Durability)
	setTranscoder(v, o.Transcoder)
}

// AppendOptions are the positional options of BinaryCollection.Append.
type AppendOptions struct {
	Timeout    time.Duration
	Cas        core.Cas
	Durability options.Durability
}

func (o *AppendOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setCas(v, o.Cas)
	setDurability(v, o.Durability)
}

// PrependOptions are the positional options of BinaryCollection.Prepend.
type PrependOptions struct {
	Timeout    time.Duration
	Cas        core.Cas
	Durability options.Durability
}

func (o *PrependOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setCas(v, o.Cas)
	setDurability(v, o.Durability)
}

// CounterOptions are the positional options of BinaryCollection.Increment
// and Decrement. Initial distinguishes "seed with zero" from "no seed", so
// it is a pointer.
type CounterOptions struct {
	Timeout    time.Duration
	Delta      uint64
	Initial    *uint64
	Expiry     time.Duration
	Durability options.Durability
}

func (o *CounterOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	if o.Delta != 0 {
		v[options.KeyDelta] = o.Delta
	}
	if o.Initial != nil {
		v[options.KeyInitial] = *o.Initial
	}
	setExpiry(v, o.Expiry)
	setDurability(v, o.Durability)
}

// QueryOptions are the positional options of Cluster.Query and Scope.Query.
type QueryOptions struct {
	Timeout              time.Duration
	NamedParameters      map[string]interface{}
	PositionalParameters []interface{}
	ScanConsistency      options.ScanConsistency
	ConsistentWith       *options.MutationState
	Readonly             bool
	Adhoc                bool
	ClientContextID      string
	QueryContext         string
	Metrics              bool
}

func (o *QueryOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	if len(o.NamedParameters) > 0 {
		v[options.KeyNamedParams] = o.NamedParameters
	}
	if len(o.PositionalParameters) > 0 {
		v[options.KeyPositionalParams] = o.PositionalParameters
	}
	if o.ScanConsistency != options.ScanConsistencyUnset {
		v[options.KeyScanConsistency] = o.ScanConsistency
	}
	if o.ConsistentWith != nil {
		v[options.KeyConsistentWith] = o.ConsistentWith
	}
	setBool(v, options.KeyReadonly, o.Readonly)
	setBool(v, options.KeyAdhoc, o.Adhoc)
	setString(v, options.KeyClientContextID, o.ClientContextID)
	setString(v, options.KeyQueryContext, o.QueryContext)
	setBool(v, options.KeyMetrics, o.Metrics)
}

// PingOptions are the positional options of Cluster.Ping and Bucket.Ping.
type PingOptions struct {
	Timeout      time.Duration
	ReportID     string
	ServiceTypes []core.ServiceType
}

func (o *PingOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
	setString(v, options.KeyReportID, o.ReportID)
	if len(o.ServiceTypes) > 0 {
		v[options.KeyServiceTypes] = o.ServiceTypes
	}
}

// DiagnosticsOptions are the positional options of Cluster.Diagnostics.
type DiagnosticsOptions struct {
	ReportID string
}

func (o *DiagnosticsOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setString(v, options.KeyReportID, o.ReportID)
}

// ManagementOptions are the positional options of the manager operations
// that take none beyond a timeout.
type ManagementOptions struct {
	Timeout time.Duration
}

func (o *ManagementOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

// CreatePrimaryIndexOptions are the positional options of
// QueryIndexManager.CreatePrimaryIndex.
type CreatePrimaryIndexOptions struct {
	Timeout        time.Duration
	CustomName     string
	IgnoreIfExists bool
}

func (o *CreatePrimaryIndexOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

// CreateQueryIndexOptions are the positional options of
// QueryIndexManager.CreateIndex.
type CreateQueryIndexOptions struct {
	Timeout        time.Duration
	IgnoreIfExists bool
}

func (o *CreateQueryIndexOptions) apply(v options.Values) {
	if o == nil {
		return
	}
	setTimeout(v, o.Timeout)
}

package gateway

// --------------------------------------------------------------------------
// Service Names
// --------------------------------------------------------------------------

const (
	// KvServiceName is the fully qualified gRPC service for document
	// operations.
	KvServiceName = "couchkit.kv.v1.KvService"

	// QueryServiceName is the fully qualified gRPC service for queries. Its
	// single RPC is server-streaming.
	QueryServiceName = "couchkit.query.v1.QueryService"

	// AdminServiceName is the fully qualified gRPC service for management
	// and health operations.
	AdminServiceName = "couchkit.admin.v1.AdminService"
)

// --------------------------------------------------------------------------
// Wire Enums
// --------------------------------------------------------------------------

// Content type names. Unlike the native path, the gateway protocol carries
// the logical content tag by name instead of packing it into a flags word.
const (
	ContentTypeJSON   = "JSON"
	ContentTypeString = "STRING"
	ContentTypeBinary = "BINARY"
)

// Durability level names. The gateway protocol has no rendering for
// client-observed persist/replicate counts, and the absence of a level is
// expressed by omitting the field rather than by a NONE value.
const (
	DurabilityMajority                   = "MAJORITY"
	DurabilityMajorityAndPersistToActive = "MAJORITY_AND_PERSIST_TO_ACTIVE"
	DurabilityPersistToMajority          = "PERSIST_TO_MAJORITY"
)

// Store semantics names for mutate-in. REPLACE is the protocol default and
// is never sent.
const (
	StoreSemanticUpsert = "UPSERT"
	StoreSemanticInsert = "INSERT"
)

// Scan consistency names for queries.
const (
	ScanConsistencyNotBounded  = "NOT_BOUNDED"
	ScanConsistencyRequestPlus = "REQUEST_PLUS"
)

// Per-entry status names of lookup-in responses. An empty status means the
// entry succeeded.
const (
	EntryStatusPathNotFound    = "PATH_NOT_FOUND"
	EntryStatusPathExists      = "PATH_EXISTS"
	EntryStatusPathMismatch    = "PATH_MISMATCH"
	EntryStatusInvalidArgument = "INVALID_ARGUMENT"
	EntryStatusDocNotJSON      = "DOC_NOT_JSON"
	EntryStatusNumberTooBig    = "NUMBER_TOO_BIG"
	EntryStatusDeltaInvalid    = "DELTA_INVALID"
	EntryStatusInternal        = "INTERNAL"
)

// --------------------------------------------------------------------------
// Shared Messages
// --------------------------------------------------------------------------

// DocumentRef addresses one document. It is embedded in every key-value
// request, so its fields flatten into the request's own wire shape.
type DocumentRef struct {
	BucketName     string `json:"bucket_name"`
	ScopeName      string `json:"scope_name"`
	CollectionName string `json:"collection_name"`
	Key            string `json:"key"`
}

// MutationTokenMessage is the wire form of a mutation token.
type MutationTokenMessage struct {
	BucketName    string `json:"bucket_name"`
	PartitionID   uint32 `json:"partition_id"`
	PartitionUUID uint64 `json:"partition_uuid"`
	SeqNo         uint64 `json:"seq_no"`
}

// MutationResponse is the shared response of every plain mutation RPC.
type MutationResponse struct {
	Cas           uint64                `json:"cas"`
	MutationToken *MutationTokenMessage `json:"mutation_token,omitempty"`
}

// EmptyResponse is the response of RPCs that only succeed or fail.
type EmptyResponse struct{}

// --------------------------------------------------------------------------
// KV Messages
// --------------------------------------------------------------------------

type GetRequest struct {
	DocumentRef
}

type GetResponse struct {
	Content     []byte `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Cas         uint64 `json:"cas"`
}

type GetAndTouchRequest struct {
	DocumentRef
	Expiry uint32 `json:"expiry"`
}

type GetAndLockRequest struct {
	DocumentRef
	LockTime uint32 `json:"lock_time"`
}

type UnlockRequest struct {
	DocumentRef
	Cas uint64 `json:"cas"`
}

type TouchRequest struct {
	DocumentRef
	Expiry uint32 `json:"expiry"`
}

type ExistsRequest struct {
	DocumentRef
}

type ExistsResponse struct {
	Result bool   `json:"result"`
	Cas    uint64 `json:"cas,omitempty"`
}

type InsertRequest struct {
	DocumentRef
	Content         []byte `json:"content"`
	ContentType     string `json:"content_type,omitempty"`
	Expiry          uint32 `json:"expiry,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

type UpsertRequest struct {
	DocumentRef
	Content         []byte `json:"content"`
	ContentType     string `json:"content_type,omitempty"`
	Expiry          uint32 `json:"expiry,omitempty"`
	PreserveExpiry  bool   `json:"preserve_expiry,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

type ReplaceRequest struct {
	DocumentRef
	Content         []byte `json:"content"`
	ContentType     string `json:"content_type,omitempty"`
	Cas             uint64 `json:"cas,omitempty"`
	Expiry          uint32 `json:"expiry,omitempty"`
	PreserveExpiry  bool   `json:"preserve_expiry,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

type RemoveRequest struct {
	DocumentRef
	Cas             uint64 `json:"cas,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

type AppendRequest struct {
	DocumentRef
	Content         []byte `json:"content"`
	Cas             uint64 `json:"cas,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

type PrependRequest struct {
	DocumentRef
	Content         []byte `json:"content"`
	Cas             uint64 `json:"cas,omitempty"`
	DurabilityLevel string `json:"durability_level,omitempty"`
}

// IncrementRequest carries Initial as a pointer: an absent initial makes a
// counter on a missing document fail, which a plain zero could not express.
type IncrementRequest struct {
	DocumentRef
	Delta           uint64  `json:"delta"`
	Initial         *uint64 `json:"initial,omitempty"`
	Expiry          uint32  `json:"expiry,omitempty"`
	DurabilityLevel string  `json:"durability_level,omitempty"`
}

type DecrementRequest struct {
	DocumentRef
	Delta           uint64  `json:"delta"`
	Initial         *uint64 `json:"initial,omitempty"`
	Expiry          uint32  `json:"expiry,omitempty"`
	DurabilityLevel string  `json:"durability_level,omitempty"`
}

type CounterResponse struct {
	Content       uint64                `json:"content"`
	Cas           uint64                `json:"cas"`
	MutationToken *MutationTokenMessage `json:"mutation_token,omitempty"`
}

// SpecMessage is the wire form of one compiled sub-document fragment. The
// content bytes are final: array-mutation payloads are comma-joined element
// lists, not standalone JSON, which is why the field is raw bytes rather
// than an embedded JSON value.
type SpecMessage struct {
	Op      string `json:"op"`
	Path    string `json:"path,omitempty"`
	Flags   uint8  `json:"flags,omitempty"`
	Content []byte `json:"content,omitempty"`
}

type LookupInRequest struct {
	DocumentRef
	Specs         []SpecMessage `json:"specs"`
	AccessDeleted bool          `json:"access_deleted,omitempty"`
}

type LookupInEntryMessage struct {
	Content []byte `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type LookupInResponse struct {
	Cas     uint64                 `json:"cas"`
	Entries []LookupInEntryMessage `json:"entries"`
}

type MutateInRequest struct {
	DocumentRef
	Specs           []SpecMessage `json:"specs"`
	StoreSemantic   string        `json:"store_semantic,omitempty"`
	Cas             uint64        `json:"cas,omitempty"`
	Expiry          uint32        `json:"expiry,omitempty"`
	PreserveExpiry  bool          `json:"preserve_expiry,omitempty"`
	AccessDeleted   bool          `json:"access_deleted,omitempty"`
	DurabilityLevel string        `json:"durability_level,omitempty"`
}

type MutateInEntryMessage struct {
	Content []byte `json:"content,omitempty"`
}

type MutateInResponse struct {
	Cas           uint64                 `json:"cas"`
	MutationToken *MutationTokenMessage  `json:"mutation_token,omitempty"`
	Entries       []MutateInEntryMessage `json:"entries,omitempty"`
}

// --------------------------------------------------------------------------
// Query Messages
// --------------------------------------------------------------------------

type QueryRequest struct {
	Statement        string                 `json:"statement"`
	NamedParams      map[string]any         `json:"named_parameters,omitempty"`
	PositionalParams []any                  `json:"positional_parameters,omitempty"`
	ScanConsistency  string                 `json:"scan_consistency,omitempty"`
	ConsistentWith   []MutationTokenMessage `json:"consistent_with,omitempty"`
	Readonly         bool                   `json:"readonly,omitempty"`
	Adhoc            bool                   `json:"adhoc,omitempty"`
	ClientContextID  string                 `json:"client_context_id,omitempty"`
	Metrics          bool                   `json:"metrics,omitempty"`
	QueryContext     string                 `json:"query_context,omitempty"`
}

// QueryResponse is one chunk of the server stream: a batch of row payloads,
// with the metadata attached to the final chunk only.
type QueryResponse struct {
	Rows     [][]byte `json:"rows,omitempty"`
	MetaData []byte   `json:"meta_data,omitempty"`
}

// --------------------------------------------------------------------------
// Admin Messages
// --------------------------------------------------------------------------

type PingRequest struct {
	BucketName   string   `json:"bucket_name,omitempty"`
	ReportID     string   `json:"report_id,omitempty"`
	ServiceTypes []string `json:"service_types,omitempty"`
}

type PingServiceReport struct {
	ServiceType string `json:"service_type"`
	ID          string `json:"id"`
	Remote      string `json:"remote"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	LatencyUs   uint64 `json:"latency_us"`
}

type PingResponse struct {
	ReportID string              `json:"report_id"`
	Reports  []PingServiceReport `json:"reports"`
}

type BucketMessage struct {
	BucketName   string `json:"bucket_name"`
	FlushEnabled bool   `json:"flush_enabled,omitempty"`
	RAMQuotaMB   uint64 `json:"ram_quota_mb,omitempty"`
	NumReplicas  uint32 `json:"num_replicas,omitempty"`
	BucketType   string `json:"bucket_type,omitempty"`
	MaxExpiry    uint32 `json:"max_expiry_secs,omitempty"`
}

type CreateBucketRequest struct {
	BucketMessage
}

type DropBucketRequest struct {
	BucketName string `json:"bucket_name"`
}

type FlushBucketRequest struct {
	BucketName string `json:"bucket_name"`
}

type GetBucketRequest struct {
	BucketName string `json:"bucket_name"`
}

type ListBucketsRequest struct{}

type ListBucketsResponse struct {
	Buckets []BucketMessage `json:"buckets"`
}

type CreateScopeRequest struct {
	BucketName string `json:"bucket_name"`
	ScopeName  string `json:"scope_name"`
}

type DropScopeRequest struct {
	BucketName string `json:"bucket_name"`
	ScopeName  string `json:"scope_name"`
}

type CreateCollectionRequest struct {
	BucketName     string `json:"bucket_name"`
	ScopeName      string `json:"scope_name"`
	CollectionName string `json:"collection_name"`
	MaxExpiry      uint32 `json:"max_expiry_secs,omitempty"`
}

type DropCollectionRequest struct {
	BucketName     string `json:"bucket_name"`
	ScopeName      string `json:"scope_name"`
	CollectionName string `json:"collection_name"`
}

type CollectionMessage struct {
	CollectionName string `json:"collection_name"`
	MaxExpiry      uint32 `json:"max_expiry_secs,omitempty"`
}

type ScopeMessage struct {
	ScopeName   string              `json:"scope_name"`
	Collections []CollectionMessage `json:"collections"`
}

type ListScopesRequest struct {
	BucketName string `json:"bucket_name"`
}

type ListScopesResponse struct {
	Scopes []ScopeMessage `json:"scopes"`
}

type CreateIndexRequest struct {
	BucketName   string   `json:"bucket_name"`
	IndexName    string   `json:"index_name,omitempty"`
	Primary      bool     `json:"primary,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	Deferred     bool     `json:"deferred,omitempty"`
	QueryContext string   `json:"query_context,omitempty"`
}

type DropIndexRequest struct {
	BucketName   string `json:"bucket_name"`
	IndexName    string `json:"index_name,omitempty"`
	Primary      bool   `json:"primary,omitempty"`
	QueryContext string `json:"query_context,omitempty"`
}

type IndexMessage struct {
	IndexName string   `json:"index_name"`
	Primary   bool     `json:"primary,omitempty"`
	State     string   `json:"state"`
	Keyspace  string   `json:"keyspace"`
	Fields    []string `json:"fields,omitempty"`
	Condition string   `json:"condition,omitempty"`
}

type ListIndexesRequest struct {
	BucketName   string `json:"bucket_name"`
	QueryContext string `json:"query_context,omitempty"`
}

type ListIndexesResponse struct {
	Indexes []IndexMessage `json:"indexes"`
}

// --------------------------------------------------------------------------
// Message Factories
// --------------------------------------------------------------------------

// NewMutationTokenMessage converts a decoded token into its wire form; a nil
// token stays nil.
func NewMutationTokenMessage(bucket string, partitionID uint32, partitionUUID, seqNo uint64) *MutationTokenMessage {
	return &MutationTokenMessage{
		BucketName:    bucket,
		PartitionID:   partitionID,
		PartitionUUID: partitionUUID,
		SeqNo:         seqNo,
	}
}

// NewMutationResponse builds the shared mutation response.
func NewMutationResponse(cas uint64, token *MutationTokenMessage) *MutationResponse {
	return &MutationResponse{Cas: cas, MutationToken: token}
}

// NewLookupInEntry builds one successful lookup entry.
func NewLookupInEntry(content []byte) LookupInEntryMessage {
	return LookupInEntryMessage{Content: content}
}

// NewFailedLookupInEntry builds one failed lookup entry from its status name
// and message.
func NewFailedLookupInEntry(status, message string) LookupInEntryMessage {
	return LookupInEntryMessage{Status: status, Message: message}
}

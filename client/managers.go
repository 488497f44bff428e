package client

import (
	"github.com/couchkit/couchkit/core"
)

// Managers carry the management surface. Operations route through the same
// backend connection as everything else; failures carry a
// ManagementErrorContext.

// --------------------------------------------------------------------------
// BucketManager
// --------------------------------------------------------------------------

// BucketManager manages the cluster's buckets.
type BucketManager struct {
	cluster *Cluster
}

// Create creates a bucket. The settings name must not be empty.
func (m *BucketManager) Create(settings core.BucketSettings, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("create_bucket")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.cluster.core.CreateBucket(settings, vals)
}

// Drop deletes a bucket and everything in it.
func (m *BucketManager) Drop(name string, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("drop_bucket")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.cluster.core.DropBucket(name, vals)
}

// Flush removes all documents from a bucket, keeping its configuration,
// scopes and collections. The bucket must have flushing enabled.
func (m *BucketManager) Flush(name string, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("flush_bucket")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.cluster.core.FlushBucket(name, vals)
}

// Get reads one bucket's settings.
func (m *BucketManager) Get(name string, opts ...interface{}) (res *core.BucketSettings, err error) {
	defer m.cluster.meterOp("get_bucket")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return m.cluster.core.GetBucket(name, vals)
}

// GetAll lists all buckets.
func (m *BucketManager) GetAll(opts ...interface{}) (res []core.BucketSettings, err error) {
	defer m.cluster.meterOp("get_all_buckets")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return m.cluster.core.GetAllBuckets(vals)
}

// --------------------------------------------------------------------------
// CollectionManager
// --------------------------------------------------------------------------

// CollectionManager manages the scopes and collections of one bucket.
type CollectionManager struct {
	bucket *Bucket
}

// CreateScope creates a scope in the bucket.
func (m *CollectionManager) CreateScope(name string, opts ...interface{}) (err error) {
	defer m.bucket.cluster.meterOp("create_scope")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.bucket.cluster.core.CreateScope(m.bucket.name, name, vals)
}

// DropScope deletes a scope and the collections in it.
func (m *CollectionManager) DropScope(name string, opts ...interface{}) (err error) {
	defer m.bucket.cluster.meterOp("drop_scope")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.bucket.cluster.core.DropScope(m.bucket.name, name, vals)
}

// CreateCollection creates a collection inside an existing scope.
func (m *CollectionManager) CreateCollection(scope, name string, opts ...interface{}) (err error) {
	defer m.bucket.cluster.meterOp("create_collection")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.bucket.cluster.core.CreateCollection(m.bucket.name, scope, name, vals)
}

// DropCollection deletes a collection and its documents.
func (m *CollectionManager) DropCollection(scope, name string, opts ...interface{}) (err error) {
	defer m.bucket.cluster.meterOp("drop_collection")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.bucket.cluster.core.DropCollection(m.bucket.name, scope, name, vals)
}

// GetAllScopes lists the bucket's scopes with their collections.
func (m *CollectionManager) GetAllScopes(opts ...interface{}) (res []core.ScopeSpec, err error) {
	defer m.bucket.cluster.meterOp("get_all_scopes")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return m.bucket.cluster.core.GetAllScopes(m.bucket.name, vals)
}

// --------------------------------------------------------------------------
// QueryIndexManager
// --------------------------------------------------------------------------

// QueryIndexManager manages query indexes per bucket.
type QueryIndexManager struct {
	cluster *Cluster
}

// CreatePrimaryIndex creates the bucket's primary index. The backend names
// it #primary unless CreatePrimaryIndexOptions.CustomName says otherwise.
func (m *QueryIndexManager) CreatePrimaryIndex(bucket string, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("create_index")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	def := core.IndexDefinition{IsPrimary: true}
	if o := firstStruct[CreatePrimaryIndexOptions](opts); o != nil {
		def.Name = o.CustomName
		def.IgnoreIfExists = o.IgnoreIfExists
	}
	return m.cluster.core.CreateQueryIndex(bucket, def, vals)
}

// CreateIndex creates a secondary index over the given fields.
func (m *QueryIndexManager) CreateIndex(bucket, name string, fields []string, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("create_index")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	def := core.IndexDefinition{Name: name, Fields: fields}
	if o := firstStruct[CreateQueryIndexOptions](opts); o != nil {
		def.IgnoreIfExists = o.IgnoreIfExists
	}
	return m.cluster.core.CreateQueryIndex(bucket, def, vals)
}

// DropIndex deletes an index by name.
func (m *QueryIndexManager) DropIndex(bucket, name string, opts ...interface{}) (err error) {
	defer m.cluster.meterOp("drop_index")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return err
	}
	return m.cluster.core.DropQueryIndex(bucket, name, vals)
}

// GetAll lists the bucket's indexes.
func (m *QueryIndexManager) GetAll(bucket string, opts ...interface{}) (res []core.QueryIndex, err error) {
	defer m.cluster.meterOp("get_all_indexes")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return m.cluster.core.GetAllQueryIndexes(bucket, vals)
}

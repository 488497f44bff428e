package client

import (
	"fmt"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/options"
)

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

// Bucket is a navigation handle inside one bucket namespace. Construction
// performs no I/O; descendant handles share the cluster connection.
type Bucket struct {
	cluster *Cluster
	name    string
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Scope returns the named scope handle.
func (b *Bucket) Scope(name string) *Scope {
	return &Scope{cluster: b.cluster, bucket: b.name, name: name}
}

// DefaultScope returns the handle of the default scope.
func (b *Bucket) DefaultScope() *Scope {
	return b.Scope(defaultName)
}

// Collection returns a collection handle inside the default scope.
func (b *Bucket) Collection(name string) *Collection {
	return b.DefaultScope().Collection(name)
}

// DefaultCollection returns the default collection of the default scope.
func (b *Bucket) DefaultCollection() *Collection {
	return b.Collection(defaultName)
}

// Collections returns the collection management interface of this bucket.
func (b *Bucket) Collections() *CollectionManager {
	return &CollectionManager{bucket: b}
}

// Ping actively checks service endpoints, stamping the reports with this
// bucket as the namespace.
func (b *Bucket) Ping(opts ...interface{}) (res *core.PingResult, err error) {
	defer b.cluster.meterOp("ping")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	return b.cluster.core.Ping(b.name, vals)
}

// --------------------------------------------------------------------------
// Scope
// --------------------------------------------------------------------------

// Scope is a navigation handle inside one scope.
type Scope struct {
	cluster *Cluster
	bucket  string
	name    string
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// BucketName returns the name of the bucket this scope lives in.
func (s *Scope) BucketName() string { return s.bucket }

// Collection returns the named collection handle.
func (s *Scope) Collection(name string) *Collection {
	return newCollection(s.cluster, s.bucket, s.name, name)
}

// Query executes a statement with this scope as the query context: a bare
// collection name in FROM resolves inside the scope.
func (s *Scope) Query(statement string, opts ...interface{}) (res *core.QueryResult, err error) {
	defer s.cluster.meterOp("query")(&err)
	vals, err := foldOptions(opts)
	if err != nil {
		return nil, err
	}
	if _, ok := vals[options.KeyQueryContext]; !ok {
		vals[options.KeyQueryContext] = fmt.Sprintf("default:`%s`.`%s`", s.bucket, s.name)
	}
	return s.cluster.core.Query(statement, vals)
}

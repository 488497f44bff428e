package core

import (
	"encoding/json"
	"io"
	"time"

	"github.com/couchkit/couchkit/lib/errors"
)

// QueryResult is a lazy, forward-only, non-restartable row sequence. The
// backend call that produces the rows runs on the first Next invocation,
// not at construction; once drained or closed, the result never restarts.
type QueryResult struct {
	start func() (IQueryRows, error)

	rows    IQueryRows
	current []byte
	err     error
	meta    *QueryMetaData
	started bool
	done    bool
}

// NewQueryResult wraps the deferred backend call producing the row stream.
func NewQueryResult(start func() (IQueryRows, error)) *QueryResult {
	return &QueryResult{start: start}
}

// Next advances to the next row, materializing the stream on first use.
// It returns false once the stream is drained or failed; check Err then.
func (r *QueryResult) Next() bool {
	if r.done {
		return false
	}
	if !r.started {
		r.started = true
		rows, err := r.start()
		if err != nil {
			r.err = err
			r.done = true
			return false
		}
		r.rows = rows
	}

	row, err := r.rows.NextRow()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		r.finish()
		return false
	}
	r.current = row
	return true
}

// Row decodes the current row into out.
func (r *QueryResult) Row(out any) error {
	if r.current == nil {
		return errors.New(errors.ErrInvalidArgument, "no current row; call Next first")
	}
	if err := json.Unmarshal(r.current, out); err != nil {
		return errors.Newf(errors.ErrValueFormat, "row is not valid JSON: %v", err)
	}
	return nil
}

// Err returns the error that terminated iteration, if any.
func (r *QueryResult) Err() error {
	return r.err
}

// Close releases the underlying stream early. Safe to call repeatedly.
func (r *QueryResult) Close() error {
	if !r.done {
		r.finish()
	}
	return r.err
}

func (r *QueryResult) finish() {
	r.done = true
	r.current = nil
	if r.rows == nil {
		return
	}
	if raw, err := r.rows.MetaData(); err == nil && raw != nil {
		meta := &QueryMetaData{}
		if err := meta.fromJSON(raw); err == nil {
			r.meta = meta
		}
	}
	if err := r.rows.Close(); err != nil && r.err == nil {
		r.err = err
	}
	r.rows = nil
}

// MetaData returns the query metadata; it is available only after the rows
// have been fully iterated or the result was closed.
func (r *QueryResult) MetaData() (*QueryMetaData, error) {
	if !r.done {
		return nil, errors.New(errors.ErrInvalidArgument,
			"metadata is available after iteration completes")
	}
	if r.meta == nil {
		return nil, errors.New(errors.ErrInvalidArgument, "no metadata was returned")
	}
	return r.meta, nil
}

// QueryMetaData describes the executed query.
type QueryMetaData struct {
	RequestID       string
	ClientContextID string
	Status          string
	Metrics         QueryMetrics
}

// QueryMetrics carries the server-side execution counters.
type QueryMetrics struct {
	ElapsedTime   time.Duration
	ExecutionTime time.Duration
	ResultCount   uint64
	ResultSize    uint64
	MutationCount uint64
	ErrorCount    uint64
}

// wire shape of the metadata blob both backends emit
type queryMetaJSON struct {
	RequestID       string `json:"requestID"`
	ClientContextID string `json:"clientContextID"`
	Status          string `json:"status"`
	Metrics         struct {
		ElapsedTime   string `json:"elapsedTime"`
		ExecutionTime string `json:"executionTime"`
		ResultCount   uint64 `json:"resultCount"`
		ResultSize    uint64 `json:"resultSize"`
		MutationCount uint64 `json:"mutationCount"`
		ErrorCount    uint64 `json:"errorCount"`
	} `json:"metrics"`
}

func (m *QueryMetaData) fromJSON(raw []byte) error {
	var wire queryMetaJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	m.RequestID = wire.RequestID
	m.ClientContextID = wire.ClientContextID
	m.Status = wire.Status
	m.Metrics.ResultCount = wire.Metrics.ResultCount
	m.Metrics.ResultSize = wire.Metrics.ResultSize
	m.Metrics.MutationCount = wire.Metrics.MutationCount
	m.Metrics.ErrorCount = wire.Metrics.ErrorCount
	if d, err := time.ParseDuration(wire.Metrics.ElapsedTime); err == nil {
		m.Metrics.ElapsedTime = d
	}
	if d, err := time.ParseDuration(wire.Metrics.ExecutionTime); err == nil {
		m.Metrics.ExecutionTime = d
	}
	return nil
}

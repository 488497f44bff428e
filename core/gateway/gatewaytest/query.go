package gatewaytest

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/couchkit/couchkit/core/gateway"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// Query Stream
// --------------------------------------------------------------------------

// rowsPerChunk bounds how many rows one stream message carries. Small enough
// that multi-chunk streaming actually happens in tests.
const rowsPerChunk = 64

// queryStream plays the server side of the query RPC. The statement runs
// against the store when the request message arrives; rows are then served
// back in chunks with the metadata attached to the final one.
type queryStream struct {
	conn    *Conn
	ctx     context.Context
	chunks  []*gateway.QueryResponse
	pos     int
	started bool
}

// Interface Methods (docu see grpc.ClientStream)

func (s *queryStream) SendMsg(m any) error {
	if s.started {
		return status.Error(codes.Internal, "request already sent")
	}
	s.started = true
	if err := s.ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return status.Errorf(codes.Internal, "cannot marshal request: %v", err)
	}
	var req gateway.QueryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	args, err := queryArgs(&req)
	if err != nil {
		return err
	}

	rows, err := s.conn.conn.Query(req.Statement, args)
	if err != nil {
		return statusErr(err)
	}
	defer rows.Close()

	var all [][]byte
	for {
		row, err := rows.NextRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			return statusErr(err)
		}
		all = append(all, row)
	}
	meta, err := rows.MetaData()
	if err != nil {
		return statusErr(err)
	}
	s.chunks = chunkRows(all, meta)
	return nil
}

func (s *queryStream) RecvMsg(m any) error {
	if err := s.ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	if s.pos >= len(s.chunks) {
		return io.EOF
	}
	raw, err := json.Marshal(s.chunks[s.pos])
	if err != nil {
		return status.Errorf(codes.Internal, "cannot marshal chunk: %v", err)
	}
	s.pos++
	if err := json.Unmarshal(raw, m); err != nil {
		return status.Errorf(codes.Internal, "cannot unmarshal chunk: %v", err)
	}
	return nil
}

func (s *queryStream) Header() (metadata.MD, error) { return nil, nil }
func (s *queryStream) Trailer() metadata.MD         { return nil }
func (s *queryStream) CloseSend() error             { return nil }
func (s *queryStream) Context() context.Context     { return s.ctx }

// chunkRows batches materialized rows into stream messages. The final chunk
// always exists and carries the metadata, even for an empty result.
func chunkRows(rows [][]byte, meta []byte) []*gateway.QueryResponse {
	var chunks []*gateway.QueryResponse
	for len(rows) > rowsPerChunk {
		chunks = append(chunks, &gateway.QueryResponse{Rows: rows[:rowsPerChunk]})
		rows = rows[rowsPerChunk:]
	}
	return append(chunks, &gateway.QueryResponse{Rows: rows, MetaData: meta})
}

// queryArgs lowers the request message into the engine's query argument
// vocabulary.
func queryArgs(req *gateway.QueryRequest) (map[string]any, error) {
	args := map[string]any{}
	if len(req.NamedParams) > 0 {
		args["named_parameters"] = req.NamedParams
	}
	if len(req.PositionalParams) > 0 {
		args["positional_parameters"] = req.PositionalParams
	}
	switch req.ScanConsistency {
	case "":
	case gateway.ScanConsistencyNotBounded:
		args["scan_consistency"] = "not_bounded"
	case gateway.ScanConsistencyRequestPlus:
		args["scan_consistency"] = "request_plus"
	default:
		return nil, status.Errorf(codes.InvalidArgument, "invalid scan consistency %q", req.ScanConsistency)
	}
	if len(req.ConsistentWith) > 0 {
		vectors := make(map[string]any)
		for _, t := range req.ConsistentWith {
			bucket, ok := vectors[t.BucketName].(map[string]any)
			if !ok {
				bucket = make(map[string]any)
				vectors[t.BucketName] = bucket
			}
			vbid := strconv.FormatUint(uint64(t.PartitionID), 10)
			bucket[vbid] = []any{t.SeqNo, strconv.FormatUint(t.PartitionUUID, 10)}
		}
		args["scan_consistency"] = "at_plus"
		args["scan_vectors"] = vectors
	}
	if req.Readonly {
		args["readonly"] = true
	}
	if req.ClientContextID != "" {
		args["client_context_id"] = req.ClientContextID
	}
	if req.Metrics {
		args["metrics"] = true
	}
	if req.QueryContext != "" {
		args["query_context"] = req.QueryContext
	}
	return args, nil
}

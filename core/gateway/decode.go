package gateway

import (
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/subdoc"
	"github.com/couchkit/couchkit/lib/transcoder"
)

// --------------------------------------------------------------------------
// Result Decoding
// --------------------------------------------------------------------------

// Gateway responses are typed, so decoding is mostly field motion into the
// uniform result types. Everything here is total: a malformed value decays
// to its zero form instead of failing, because the codec already rejected
// anything that was not the message schema.

func contentTypeToTag(ct string) transcoder.Tag {
	switch ct {
	case "", ContentTypeJSON:
		return transcoder.TagJSON
	case ContentTypeString:
		return transcoder.TagString
	case ContentTypeBinary:
		return transcoder.TagBinary
	default:
		return transcoder.TagUnknown
	}
}

func decodeToken(msg *MutationTokenMessage, bucket string) *options.MutationToken {
	if msg == nil {
		return nil
	}
	name := msg.BucketName
	if name == "" {
		name = bucket
	}
	return &options.MutationToken{
		PartitionID:    uint16(msg.PartitionID),
		PartitionUUID:  msg.PartitionUUID,
		SequenceNumber: msg.SeqNo,
		BucketName:     name,
	}
}

func decodeGetResponse(res *GetResponse, tc transcoder.ITranscoder) *core.GetResult {
	return core.NewGetResult(core.Cas(res.Cas), res.Content, contentTypeToTag(res.ContentType), tc)
}

func decodeMutationResponse(res *MutationResponse, bucket string) *core.MutationResult {
	return core.NewMutationResult(core.Cas(res.Cas), decodeToken(res.MutationToken, bucket))
}

func decodeCounterResponse(res *CounterResponse, bucket string) *core.CounterResult {
	return core.NewCounterResult(core.Cas(res.Cas), res.Content, decodeToken(res.MutationToken, bucket))
}

var entryCodes = map[string]errors.Code{
	EntryStatusPathNotFound:    errors.ErrPathNotFound,
	EntryStatusPathExists:      errors.ErrPathExists,
	EntryStatusPathMismatch:    errors.ErrPathMismatch,
	EntryStatusInvalidArgument: errors.ErrInvalidArgument,
	EntryStatusDocNotJSON:      errors.ErrDocumentNotJSON,
	EntryStatusNumberTooBig:    errors.ErrNumberTooBig,
	EntryStatusDeltaInvalid:    errors.ErrDeltaInvalid,
	EntryStatusInternal:        errors.ErrInternal,
}

func entryError(e LookupInEntryMessage) error {
	code, ok := entryCodes[e.Status]
	if !ok {
		code = errors.ErrInternal
	}
	if e.Message != "" {
		return errors.New(code, e.Message)
	}
	return errors.Newf(code, "sub-document entry failed with status %s", e.Status)
}

func decodeLookupInResponse(res *LookupInResponse) *core.LookupInResult {
	entries := make([]core.LookupInEntry, len(res.Entries))
	for i, e := range res.Entries {
		if e.Status != "" {
			entries[i].Err = entryError(e)
			continue
		}
		entries[i].Value = e.Content
	}
	return core.NewLookupInResult(core.Cas(res.Cas), entries)
}

func decodeMutateInResponse(res *MutateInResponse, bucket string) *core.MutateInResult {
	entries := make([]core.MutateInEntry, len(res.Entries))
	for i, e := range res.Entries {
		entries[i].Value = e.Content
	}
	return core.NewMutateInResult(core.Cas(res.Cas), decodeToken(res.MutationToken, bucket), entries)
}

// fragsToSpecs renders compiled sub-document fragments into wire specs.
func fragsToSpecs(frags []subdoc.Fragment) []SpecMessage {
	specs := make([]SpecMessage, len(frags))
	for i, f := range frags {
		specs[i] = SpecMessage{
			Op:      f.Op.String(),
			Path:    f.Path,
			Flags:   uint8(f.Flags),
			Content: f.Payload,
		}
	}
	return specs
}

// --------------------------------------------------------------------------
// Ping / Management Decoding
// --------------------------------------------------------------------------

func microsToDuration(us uint64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func secsToDuration(secs uint32) time.Duration {
	return time.Duration(secs) * time.Second
}

func decodePingState(s string) core.PingState {
	switch s {
	case "ok":
		return core.PingStateOK
	case "timeout":
		return core.PingStateTimeout
	default:
		return core.PingStateError
	}
}

func decodePingResponse(res *PingResponse) *core.PingResult {
	out := &core.PingResult{
		ID:       res.ReportID,
		Services: make(map[core.ServiceType][]core.EndpointPingReport),
	}
	for _, r := range res.Reports {
		svc := core.ServiceType(r.ServiceType)
		out.Services[svc] = append(out.Services[svc], core.EndpointPingReport{
			ID:      r.ID,
			Remote:  r.Remote,
			State:   decodePingState(r.State),
			Error:   r.Error,
			Latency: microsToDuration(r.LatencyUs),
		})
	}
	return out
}

func decodeBucketMessage(msg *BucketMessage) *core.BucketSettings {
	return &core.BucketSettings{
		Name:         msg.BucketName,
		BucketType:   msg.BucketType,
		RAMQuotaMB:   msg.RAMQuotaMB,
		NumReplicas:  msg.NumReplicas,
		FlushEnabled: msg.FlushEnabled,
	}
}

func decodeScopeMessages(msgs []ScopeMessage) []core.ScopeSpec {
	scopes := make([]core.ScopeSpec, len(msgs))
	for i, s := range msgs {
		spec := core.ScopeSpec{
			Name:        s.ScopeName,
			Collections: make([]core.CollectionSpec, len(s.Collections)),
		}
		for j, c := range s.Collections {
			spec.Collections[j] = core.CollectionSpec{
				Name:      c.CollectionName,
				ScopeName: s.ScopeName,
				MaxExpiry: secsToDuration(c.MaxExpiry),
			}
		}
		scopes[i] = spec
	}
	return scopes
}

func decodeIndexMessages(msgs []IndexMessage) []core.QueryIndex {
	indexes := make([]core.QueryIndex, len(msgs))
	for i, m := range msgs {
		indexes[i] = core.QueryIndex{
			Name:      m.IndexName,
			Keyspace:  m.Keyspace,
			IsPrimary: m.Primary,
			State:     m.State,
			Fields:    m.Fields,
		}
	}
	return indexes
}

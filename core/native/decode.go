package native

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

// Engine result maps carry a fixed vocabulary of fields per operation. The
// decoders below turn them into the uniform result types; a malformed map
// is an internal error and never yields a half-built result.

func flagsToTag(flags uint32) transcoder.Tag {
	switch flags >> 24 {
	case 0, 2:
		return transcoder.TagJSON
	case 3:
		return transcoder.TagBinary
	case 4:
		return transcoder.TagString
	default:
		return transcoder.TagUnknown
	}
}

func decodeGetResult(res map[string]any, tc transcoder.ITranscoder) (*core.GetResult, error) {
	cas, ok := asUint64(res["cas"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine get result is missing cas")
	}
	value, ok := asBytes(res["value"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine get result is missing value")
	}
	flags, _ := asUint32(res["flags"])
	return core.NewGetResult(core.Cas(cas), value, flagsToTag(flags), tc), nil
}

func decodeMutationResult(res map[string]any, bucket string) (*core.MutationResult, error) {
	cas, ok := asUint64(res["cas"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine mutation result is missing cas")
	}
	return core.NewMutationResult(core.Cas(cas), decodeMutationToken(res, bucket)), nil
}

func decodeExistsResult(res map[string]any) (*core.ExistsResult, error) {
	exists, ok := asBool(res["exists"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine exists result is missing exists")
	}
	cas, _ := asUint64(res["cas"])
	return core.NewExistsResult(core.Cas(cas), exists), nil
}

func decodeCounterResult(res map[string]any, bucket string) (*core.CounterResult, error) {
	cas, ok := asUint64(res["cas"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine counter result is missing cas")
	}
	content, ok := asUint64(res["content"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine counter result is missing content")
	}
	return core.NewCounterResult(core.Cas(cas), content, decodeMutationToken(res, bucket)), nil
}

func decodeLookupInResult(res map[string]any) (*core.LookupInResult, error) {
	cas, ok := asUint64(res["cas"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine lookup result is missing cas")
	}
	rawSpecs, ok := asSlice(res["specs"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine lookup result is missing specs")
	}
	entries := make([]core.LookupInEntry, len(rawSpecs))
	for i, raw := range rawSpecs {
		entry, ok := asMap(raw)
		if !ok {
			return nil, errors.Newf(errors.ErrInternal, "engine lookup entry %d is malformed", i)
		}
		if status, _ := asInt(entry["status"]); status != 0 {
			entries[i].Err = subdocEntryError(status, entry)
			continue
		}
		value, _ := asBytes(entry["value"])
		entries[i].Value = value
	}
	return core.NewLookupInResult(core.Cas(cas), entries), nil
}

func decodeMutateInResult(res map[string]any, bucket string) (*core.MutateInResult, error) {
	cas, ok := asUint64(res["cas"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine mutate result is missing cas")
	}
	rawSpecs, _ := asSlice(res["specs"])
	entries := make([]core.MutateInEntry, len(rawSpecs))
	for i, raw := range rawSpecs {
		if entry, ok := asMap(raw); ok {
			value, _ := asBytes(entry["value"])
			entries[i].Value = value
		}
	}
	return core.NewMutateInResult(core.Cas(cas), decodeMutationToken(res, bucket), entries), nil
}

// subdocEntryError codes one failed lookup entry from its status, keeping
// the engine's message when it sent one.
func subdocEntryError(status int, entry map[string]any) error {
	code, ok := numericCodes[status]
	if !ok {
		code = errors.ErrInternal
	}
	if msg, found := asString(entry["error"]); found && msg != "" {
		return errors.New(code, msg)
	}
	return errors.Newf(code, "sub-document entry failed with status %#x", status)
}

func decodeMutationToken(res map[string]any, bucket string) *options.MutationToken {
	raw, ok := asMap(res["mutation_token"])
	if !ok {
		return nil
	}
	partitionID, _ := asUint64(raw["partition_id"])
	partitionUUID, _ := asUint64(raw["partition_uuid"])
	seqno, _ := asUint64(raw["seqno"])
	name, ok := asString(raw["bucket"])
	if !ok || name == "" {
		name = bucket
	}
	return &options.MutationToken{
		PartitionID:    uint16(partitionID),
		PartitionUUID:  partitionUUID,
		SequenceNumber: seqno,
		BucketName:     name,
	}
}

// fragsToArgs renders compiled sub-document fragments into the engine's
// specs argument.
func fragsToArgs(frags []subdoc.Fragment) []any {
	specs := make([]any, len(frags))
	for i, f := range frags {
		spec := map[string]any{
			"op":   f.Op.String(),
			"path": f.Path,
		}
		if f.Flags != 0 {
			spec["flags"] = uint8(f.Flags)
		}
		if f.Payload != nil {
			spec["value"] = f.Payload
		}
		specs[i] = spec
	}
	return specs
}

// --------------------------------------------------------------------------
// Ping / Diagnostics Decoding
// --------------------------------------------------------------------------

func decodePingResult(res map[string]any) (*core.PingResult, error) {
	id, _ := asString(res["id"])
	rawServices, ok := asMap(res["services"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine ping result is missing services")
	}
	out := &core.PingResult{
		ID:       id,
		Services: make(map[core.ServiceType][]core.EndpointPingReport, len(rawServices)),
	}
	for svc, raw := range rawServices {
		endpoints, ok := asSlice(raw)
		if !ok {
			continue
		}
		reports := make([]core.EndpointPingReport, 0, len(endpoints))
		for _, rawEp := range endpoints {
			ep, ok := asMap(rawEp)
			if !ok {
				continue
			}
			latency, _ := asUint64(ep["latency_us"])
			epID, _ := asString(ep["id"])
			local, _ := asString(ep["local"])
			remote, _ := asString(ep["remote"])
			namespace, _ := asString(ep["namespace"])
			errMsg, _ := asString(ep["error"])
			state, _ := asString(ep["state"])
			reports = append(reports, core.EndpointPingReport{
				ID:        epID,
				Local:     local,
				Remote:    remote,
				State:     pingStateOf(state),
				Error:     errMsg,
				Namespace: namespace,
				Latency:   time.Duration(latency) * time.Microsecond,
			})
		}
		out.Services[core.ServiceType(svc)] = reports
	}
	return out, nil
}

func pingStateOf(s string) core.PingState {
	switch s {
	case "ok":
		return core.PingStateOK
	case "timeout":
		return core.PingStateTimeout
	default:
		return core.PingStateError
	}
}

func decodeDiagnosticsResult(res map[string]any) (*core.DiagnosticsResult, error) {
	id, _ := asString(res["id"])
	state, _ := asString(res["state"])
	rawServices, ok := asMap(res["services"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine diagnostics result is missing services")
	}
	out := &core.DiagnosticsResult{
		ID:       id,
		State:    clusterStateOf(state),
		Services: make(map[core.ServiceType][]core.EndpointDiagnostics, len(rawServices)),
	}
	for svc, raw := range rawServices {
		endpoints, ok := asSlice(raw)
		if !ok {
			continue
		}
		reports := make([]core.EndpointDiagnostics, 0, len(endpoints))
		for _, rawEp := range endpoints {
			ep, ok := asMap(rawEp)
			if !ok {
				continue
			}
			lastActivity, _ := asUint64(ep["last_activity_us"])
			epID, _ := asString(ep["id"])
			local, _ := asString(ep["local"])
			remote, _ := asString(ep["remote"])
			state, _ := asString(ep["state"])
			reports = append(reports, core.EndpointDiagnostics{
				Type:         core.ServiceType(svc),
				ID:           epID,
				Local:        local,
				Remote:       remote,
				State:        endpointStateOf(state),
				LastActivity: time.UnixMicro(int64(lastActivity)),
			})
		}
		out.Services[core.ServiceType(svc)] = reports
	}
	return out, nil
}

func clusterStateOf(s string) core.ClusterState {
	switch s {
	case "online":
		return core.ClusterStateOnline
	case "degraded":
		return core.ClusterStateDegraded
	default:
		return core.ClusterStateOffline
	}
}

func endpointStateOf(s string) core.EndpointState {
	switch s {
	case "connected":
		return core.EndpointStateConnected
	case "connecting":
		return core.EndpointStateConnecting
	default:
		return core.EndpointStateDisconnected
	}
}

// --------------------------------------------------------------------------
// Management Decoding
// --------------------------------------------------------------------------

func decodeBucketSettings(res map[string]any) (*core.BucketSettings, error) {
	name, ok := asString(res["name"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine bucket settings are missing name")
	}
	bucketType, _ := asString(res["bucket_type"])
	quota, _ := asUint64(res["ram_quota_mb"])
	replicas, _ := asUint64(res["num_replicas"])
	flush, _ := asBool(res["flush_enabled"])
	return &core.BucketSettings{
		Name:         name,
		BucketType:   bucketType,
		RAMQuotaMB:   quota,
		NumReplicas:  uint32(replicas),
		FlushEnabled: flush,
	}, nil
}

func decodeBucketList(res map[string]any) ([]core.BucketSettings, error) {
	raw, ok := asSlice(res["buckets"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine bucket list is malformed")
	}
	out := make([]core.BucketSettings, 0, len(raw))
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		settings, err := decodeBucketSettings(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *settings)
	}
	return out, nil
}

func decodeScopeList(res map[string]any) ([]core.ScopeSpec, error) {
	raw, ok := asSlice(res["scopes"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine scope list is malformed")
	}
	out := make([]core.ScopeSpec, 0, len(raw))
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		name, _ := asString(m["name"])
		scope := core.ScopeSpec{Name: name}
		if cols, ok := asSlice(m["collections"]); ok {
			scope.Collections = make([]core.CollectionSpec, 0, len(cols))
			for _, rawCol := range cols {
				cm, ok := asMap(rawCol)
				if !ok {
					continue
				}
				colName, _ := asString(cm["name"])
				maxExpiry, _ := asUint64(cm["max_expiry_secs"])
				scope.Collections = append(scope.Collections, core.CollectionSpec{
					Name:      colName,
					ScopeName: name,
					MaxExpiry: time.Duration(maxExpiry) * time.Second,
				})
			}
		}
		out = append(out, scope)
	}
	return out, nil
}

func decodeIndexList(res map[string]any) ([]core.QueryIndex, error) {
	raw, ok := asSlice(res["indexes"])
	if !ok {
		return nil, errors.New(errors.ErrInternal, "engine index list is malformed")
	}
	out := make([]core.QueryIndex, 0, len(raw))
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		name, _ := asString(m["name"])
		keyspace, _ := asString(m["keyspace"])
		isPrimary, _ := asBool(m["is_primary"])
		state, _ := asString(m["state"])
		var fields []string
		if rawFields, ok := asSlice(m["fields"]); ok {
			for _, f := range rawFields {
				if s, ok := asString(f); ok {
					fields = append(fields, s)
				}
			}
		}
		out = append(out, core.QueryIndex{
			Name:      name,
			Keyspace:  keyspace,
			IsPrimary: isPrimary,
			State:     state,
			Fields:    fields,
		})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Typed Field Extraction
// --------------------------------------------------------------------------

// The engine boundary hands over map[string]any; these helpers tolerate the
// common numeric widenings without being lenient about kinds.

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func asUint32(v any) (uint32, bool) {
	n, ok := asUint64(v)
	if !ok || n > 1<<32-1 {
		return 0, false
	}
	return uint32(n), true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint16:
		return int(n), true
	case uint8:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

package gatewaytest

import (
	"github.com/couchkit/couchkit/core/gateway"
	"github.com/couchkit/couchkit/core/native"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --------------------------------------------------------------------------
// KV Handlers
// --------------------------------------------------------------------------

func (c *Conn) dispatchKV(name string, payload []byte) (any, error) {
	switch name {
	case "Get":
		return handle(payload, c.get)
	case "GetAndTouch":
		return handle(payload, c.getAndTouch)
	case "GetAndLock":
		return handle(payload, c.getAndLock)
	case "Unlock":
		return handle(payload, c.unlock)
	case "Touch":
		return handle(payload, c.touch)
	case "Exists":
		return handle(payload, c.exists)
	case "Insert":
		return handle(payload, c.insert)
	case "Upsert":
		return handle(payload, c.upsert)
	case "Replace":
		return handle(payload, c.replace)
	case "Remove":
		return handle(payload, c.remove)
	case "Append":
		return handle(payload, c.appendValue)
	case "Prepend":
		return handle(payload, c.prependValue)
	case "Increment":
		return handle(payload, c.increment)
	case "Decrement":
		return handle(payload, c.decrement)
	case "LookupIn":
		return handle(payload, c.lookupIn)
	case "MutateIn":
		return handle(payload, c.mutateIn)
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown method %s", name)
	}
}

func (c *Conn) get(req *gateway.GetRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpGet, nil)
	if err != nil {
		return nil, err
	}
	return getResponse(res), nil
}

func (c *Conn) getAndTouch(req *gateway.GetAndTouchRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpGetAndTouch, map[string]any{"expiry": req.Expiry})
	if err != nil {
		return nil, err
	}
	return getResponse(res), nil
}

func (c *Conn) getAndLock(req *gateway.GetAndLockRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpGetAndLock, map[string]any{"lock_time": req.LockTime})
	if err != nil {
		return nil, err
	}
	return getResponse(res), nil
}

func (c *Conn) unlock(req *gateway.UnlockRequest) (any, error) {
	if _, err := c.invoke(req.DocumentRef, native.OpUnlock, map[string]any{"cas": req.Cas}); err != nil {
		return nil, err
	}
	return &gateway.EmptyResponse{}, nil
}

func (c *Conn) touch(req *gateway.TouchRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpTouch, map[string]any{"expiry": req.Expiry})
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) exists(req *gateway.ExistsRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpExists, nil)
	if err != nil {
		return nil, err
	}
	found, _ := asBool(res["exists"])
	cas, _ := asUint64(res["cas"])
	return &gateway.ExistsResponse{Result: found, Cas: cas}, nil
}

func (c *Conn) insert(req *gateway.InsertRequest) (any, error) {
	args, err := storeArgs(req.Content, req.ContentType, req.Expiry, false, 0, req.DurabilityLevel)
	if err != nil {
		return nil, err
	}
	res, err := c.invoke(req.DocumentRef, native.OpInsert, args)
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) upsert(req *gateway.UpsertRequest) (any, error) {
	args, err := storeArgs(req.Content, req.ContentType, req.Expiry, req.PreserveExpiry, 0, req.DurabilityLevel)
	if err != nil {
		return nil, err
	}
	res, err := c.invoke(req.DocumentRef, native.OpUpsert, args)
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) replace(req *gateway.ReplaceRequest) (any, error) {
	args, err := storeArgs(req.Content, req.ContentType, req.Expiry, req.PreserveExpiry, req.Cas, req.DurabilityLevel)
	if err != nil {
		return nil, err
	}
	res, err := c.invoke(req.DocumentRef, native.OpReplace, args)
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) remove(req *gateway.RemoveRequest) (any, error) {
	if err := checkDurability(req.DurabilityLevel); err != nil {
		return nil, err
	}
	args := map[string]any{}
	if req.Cas != 0 {
		args["cas"] = req.Cas
	}
	res, err := c.invoke(req.DocumentRef, native.OpRemove, args)
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) appendValue(req *gateway.AppendRequest) (any, error) {
	return c.adjoin(req.DocumentRef, native.OpAppend, req.Content, req.Cas, req.DurabilityLevel)
}

func (c *Conn) prependValue(req *gateway.PrependRequest) (any, error) {
	return c.adjoin(req.DocumentRef, native.OpPrepend, req.Content, req.Cas, req.DurabilityLevel)
}

func (c *Conn) adjoin(ref gateway.DocumentRef, op native.OpCode, content []byte, cas uint64, durability string) (any, error) {
	if err := checkDurability(durability); err != nil {
		return nil, err
	}
	args := map[string]any{"value": content}
	if cas != 0 {
		args["cas"] = cas
	}
	res, err := c.invoke(ref, op, args)
	if err != nil {
		return nil, err
	}
	return mutationResponse(res), nil
}

func (c *Conn) increment(req *gateway.IncrementRequest) (any, error) {
	return c.counter(req.DocumentRef, native.OpIncrement, req.Delta, req.Initial, req.Expiry, req.DurabilityLevel)
}

func (c *Conn) decrement(req *gateway.DecrementRequest) (any, error) {
	return c.counter(req.DocumentRef, native.OpDecrement, req.Delta, req.Initial, req.Expiry, req.DurabilityLevel)
}

func (c *Conn) counter(ref gateway.DocumentRef, op native.OpCode, delta uint64, initial *uint64, expiry uint32, durability string) (any, error) {
	if err := checkDurability(durability); err != nil {
		return nil, err
	}
	args := map[string]any{"delta": delta}
	if initial != nil {
		args["initial"] = *initial
	}
	if expiry != 0 {
		args["expiry"] = expiry
	}
	res, err := c.invoke(ref, op, args)
	if err != nil {
		return nil, err
	}
	content, _ := asUint64(res["content"])
	cas, _ := asUint64(res["cas"])
	return &gateway.CounterResponse{Content: content, Cas: cas, MutationToken: tokenMessage(res)}, nil
}

func (c *Conn) lookupIn(req *gateway.LookupInRequest) (any, error) {
	res, err := c.invoke(req.DocumentRef, native.OpLookupIn, map[string]any{"specs": specArgs(req.Specs)})
	if err != nil {
		return nil, err
	}
	cas, _ := asUint64(res["cas"])
	rawEntries, _ := asSlice(res["specs"])
	entries := make([]gateway.LookupInEntryMessage, len(rawEntries))
	for i, raw := range rawEntries {
		entry, _ := asMap(raw)
		if st, _ := asInt(entry["status"]); st != 0 {
			msg, _ := asString(entry["error"])
			entries[i] = gateway.NewFailedLookupInEntry(entryStatusName(st), msg)
			continue
		}
		value, _ := asBytes(entry["value"])
		entries[i] = gateway.NewLookupInEntry(value)
	}
	return &gateway.LookupInResponse{Cas: cas, Entries: entries}, nil
}

func (c *Conn) mutateIn(req *gateway.MutateInRequest) (any, error) {
	if err := checkDurability(req.DurabilityLevel); err != nil {
		return nil, err
	}
	args := map[string]any{"specs": specArgs(req.Specs)}
	switch req.StoreSemantic {
	case "":
	case gateway.StoreSemanticUpsert:
		args["store_semantics"] = "upsert"
	case gateway.StoreSemanticInsert:
		args["store_semantics"] = "insert"
	default:
		return nil, status.Errorf(codes.InvalidArgument, "invalid store semantic %q", req.StoreSemantic)
	}
	if req.Cas != 0 {
		args["cas"] = req.Cas
	}
	if req.Expiry != 0 {
		args["expiry"] = req.Expiry
	}
	if req.PreserveExpiry {
		args["preserve_expiry"] = true
	}
	res, err := c.invoke(req.DocumentRef, native.OpMutateIn, args)
	if err != nil {
		return nil, err
	}
	cas, _ := asUint64(res["cas"])
	rawEntries, _ := asSlice(res["specs"])
	entries := make([]gateway.MutateInEntryMessage, len(rawEntries))
	for i, raw := range rawEntries {
		if entry, ok := asMap(raw); ok {
			value, _ := asBytes(entry["value"])
			entries[i] = gateway.MutateInEntryMessage{Content: value}
		}
	}
	return &gateway.MutateInResponse{Cas: cas, MutationToken: tokenMessage(res), Entries: entries}, nil
}

// --------------------------------------------------------------------------
// KV Translation Helpers
// --------------------------------------------------------------------------

// entryStatusNames maps the engine's per-entry sub-document statuses onto
// the protocol's entry status names.
var entryStatusNames = map[int]string{
	native.StatusPathNotFound:    gateway.EntryStatusPathNotFound,
	native.StatusPathExists:      gateway.EntryStatusPathExists,
	native.StatusPathMismatch:    gateway.EntryStatusPathMismatch,
	native.StatusPathInvalid:     gateway.EntryStatusInvalidArgument,
	native.StatusInvalidArgs:     gateway.EntryStatusInvalidArgument,
	native.StatusDocumentNotJSON: gateway.EntryStatusDocNotJSON,
	native.StatusNumberTooBig:    gateway.EntryStatusNumberTooBig,
	native.StatusDeltaInvalid:    gateway.EntryStatusDeltaInvalid,
	native.StatusDeltaRange:      gateway.EntryStatusDeltaInvalid,
}

func entryStatusName(code int) string {
	if name, ok := entryStatusNames[code]; ok {
		return name
	}
	return gateway.EntryStatusInternal
}

// checkDurability accepts the protocol's level names and rejects everything
// else the way a schema-validating server would.
func checkDurability(level string) error {
	switch level {
	case "", gateway.DurabilityMajority, gateway.DurabilityMajorityAndPersistToActive, gateway.DurabilityPersistToMajority:
		// the store is a single in-process replica, every write is durable
		return nil
	default:
		return status.Errorf(codes.InvalidArgument, "invalid durability level %q", level)
	}
}

func storeArgs(content []byte, contentType string, expiry uint32, preserveExpiry bool, cas uint64, durability string) (map[string]any, error) {
	if err := checkDurability(durability); err != nil {
		return nil, err
	}
	flags, err := contentTypeFlags(contentType)
	if err != nil {
		return nil, err
	}
	args := map[string]any{"value": content, "flags": flags}
	if expiry != 0 {
		args["expiry"] = expiry
	}
	if preserveExpiry {
		args["preserve_expiry"] = true
	}
	if cas != 0 {
		args["cas"] = cas
	}
	return args, nil
}

func specArgs(specs []gateway.SpecMessage) []any {
	out := make([]any, len(specs))
	for i, s := range specs {
		spec := map[string]any{"op": s.Op, "path": s.Path}
		if s.Flags != 0 {
			spec["flags"] = uint64(s.Flags)
		}
		if len(s.Content) > 0 {
			spec["value"] = s.Content
		}
		out[i] = spec
	}
	return out
}

// contentTypeFlags maps the protocol's content type names onto the engine's
// common flags word.
func contentTypeFlags(ct string) (uint32, error) {
	switch ct {
	case "", gateway.ContentTypeJSON:
		return 2 << 24, nil
	case gateway.ContentTypeBinary:
		return 3 << 24, nil
	case gateway.ContentTypeString:
		return 4 << 24, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "invalid content type %q", ct)
	}
}

func flagsContentType(flags uint32) string {
	switch flags >> 24 {
	case 0, 2:
		return gateway.ContentTypeJSON
	case 4:
		return gateway.ContentTypeString
	default:
		return gateway.ContentTypeBinary
	}
}

func getResponse(res map[string]any) *gateway.GetResponse {
	value, _ := asBytes(res["value"])
	flags, _ := asUint32(res["flags"])
	cas, _ := asUint64(res["cas"])
	return &gateway.GetResponse{Content: value, ContentType: flagsContentType(flags), Cas: cas}
}

func mutationResponse(res map[string]any) *gateway.MutationResponse {
	cas, _ := asUint64(res["cas"])
	return gateway.NewMutationResponse(cas, tokenMessage(res))
}

func tokenMessage(res map[string]any) *gateway.MutationTokenMessage {
	raw, ok := asMap(res["mutation_token"])
	if !ok {
		return nil
	}
	pid, _ := asUint32(raw["partition_id"])
	uuid, _ := asUint64(raw["partition_uuid"])
	seqno, _ := asUint64(raw["seqno"])
	bucket, _ := asString(raw["bucket"])
	return gateway.NewMutationTokenMessage(bucket, pid, uuid, seqno)
}

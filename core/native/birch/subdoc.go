package birch

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/couchkit/couchkit/core/native"
	"github.com/couchkit/couchkit/lib/subdoc"
)

// --------------------------------------------------------------------------
// Path Parsing
// --------------------------------------------------------------------------

// pathSeg is one element of a sub-document path: a field name or an array
// index. Negative indexes count from the end of the array.
type pathSeg struct {
	field   string
	index   int
	isIndex bool
}

func parsePath(path string) ([]pathSeg, *native.EngineError) {
	if path == "" {
		return nil, nil
	}
	var segs []pathSeg
	i := 0
	needSeg := true
	for i < len(path) {
		switch c := path[i]; {
		case c == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, errPathInvalid(path)
			}
			n, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil {
				return nil, errPathInvalid(path)
			}
			segs = append(segs, pathSeg{index: n, isIndex: true})
			i += end + 1
			needSeg = false
		case c == '.':
			if needSeg || i+1 >= len(path) {
				return nil, errPathInvalid(path)
			}
			i++
			needSeg = true
		case c == '`':
			end := strings.IndexByte(path[i+1:], '`')
			if end < 0 {
				return nil, errPathInvalid(path)
			}
			segs = append(segs, pathSeg{field: path[i+1 : i+1+end]})
			i += end + 2
			needSeg = false
		default:
			if !needSeg {
				return nil, errPathInvalid(path)
			}
			end := i
			for end < len(path) && path[end] != '.' && path[end] != '[' && path[end] != '`' {
				end++
			}
			segs = append(segs, pathSeg{field: path[i:end]})
			i = end
			needSeg = false
		}
	}
	if needSeg {
		return nil, errPathInvalid(path)
	}
	return segs, nil
}

func normIndex(idx, length int) int {
	if idx < 0 {
		return length + idx
	}
	return idx
}

func errPathNotFound(path string) *native.EngineError {
	return failf(native.StatusPathNotFound, "sub-document path does not exist: %s", path)
}

func errPathExists(path string) *native.EngineError {
	return failf(native.StatusPathExists, "sub-document path already exists: %s", path)
}

func errPathMismatch(path string) *native.EngineError {
	return failf(native.StatusPathMismatch, "sub-document path mismatch: %s", path)
}

func errPathInvalid(path string) *native.EngineError {
	return failf(native.StatusPathInvalid, "invalid sub-document path: %s", path)
}

// decodeJSON keeps numbers as json.Number so counter values survive a
// decode/encode round trip bit for bit.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Spec Arguments
// --------------------------------------------------------------------------

type subSpec struct {
	op    string
	path  string
	flags uint8
	value []byte
}

func (s subSpec) hasFlag(f subdoc.Flag) bool {
	return s.flags&uint8(f) != 0
}

func parseSpecArgs(args map[string]any) ([]subSpec, *native.EngineError) {
	raw, ok := argSlice(args, "specs")
	if !ok || len(raw) == 0 {
		return nil, failf(native.StatusInvalidArgs, "sub-document operation needs specs")
	}
	specs := make([]subSpec, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, failf(native.StatusInvalidArgs, "spec %d is malformed", i)
		}
		specs[i].op, _ = argString(m, "op")
		specs[i].path, _ = argString(m, "path")
		if f, ok := argUint64(m, "flags"); ok {
			specs[i].flags = uint8(f)
		}
		specs[i].value, _ = argBytes(m, "value")
	}
	return specs, nil
}

func subEntry(value []byte) map[string]any {
	return map[string]any{"status": 0, "value": value}
}

func subEntryError(ee *native.EngineError) map[string]any {
	return map[string]any{"status": ee.Code, "error": ee.Message}
}

// --------------------------------------------------------------------------
// Lookup Evaluation
// --------------------------------------------------------------------------

func (c *connImpl) lookupIn(sh *shard, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	specs, ee := parseSpecArgs(args)
	if ee != nil {
		return nil, ee
	}
	doc, ok := c.readDoc(sh, composite, now)
	if !ok {
		return nil, errNotFound()
	}

	var body, xattrs any
	var haveBody, haveXattrs bool
	entries := make([]any, len(specs))
	for i, s := range specs {
		var root any
		if s.hasFlag(subdoc.FlagXAttr) {
			if !haveXattrs {
				raw := doc.xattrs
				if len(raw) == 0 {
					raw = []byte("{}")
				}
				var err error
				if xattrs, err = decodeJSON(raw); err != nil {
					return nil, failf(native.StatusDocumentNotJSON, "document xattrs are not json")
				}
				haveXattrs = true
			}
			root = xattrs
		} else {
			if !haveBody {
				var err error
				if body, err = decodeJSON(doc.value); err != nil {
					return nil, failf(native.StatusDocumentNotJSON, "document is not json")
				}
				haveBody = true
			}
			root = body
		}
		entries[i] = evalLookup(root, s)
	}
	return map[string]any{"cas": doc.cas, "specs": entries}, nil
}

// walkPath follows segs down from node, failing with path-not-found for
// missing elements and path-mismatch for wrong container kinds.
func walkPath(node any, segs []pathSeg, path string) (any, *native.EngineError) {
	for _, seg := range segs {
		if seg.isIndex {
			arr, ok := node.([]any)
			if !ok {
				return nil, errPathMismatch(path)
			}
			idx := normIndex(seg.index, len(arr))
			if idx < 0 || idx >= len(arr) {
				return nil, errPathNotFound(path)
			}
			node = arr[idx]
			continue
		}
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		child, ok := obj[seg.field]
		if !ok {
			return nil, errPathNotFound(path)
		}
		node = child
	}
	return node, nil
}

func evalLookup(root any, s subSpec) map[string]any {
	segs, ee := parsePath(s.path)
	if ee != nil {
		return subEntryError(ee)
	}
	val, ee := walkPath(root, segs, s.path)
	if ee != nil {
		return subEntryError(ee)
	}

	switch s.op {
	case "get":
		raw, err := json.Marshal(val)
		if err != nil {
			return subEntryError(failf(native.StatusInvalidArgs, "value at %q cannot be rendered", s.path))
		}
		return subEntry(raw)
	case "exists":
		return subEntry([]byte("true"))
	case "count":
		switch v := val.(type) {
		case []any:
			return subEntry([]byte(strconv.Itoa(len(v))))
		case map[string]any:
			return subEntry([]byte(strconv.Itoa(len(v))))
		default:
			return subEntryError(errPathMismatch(s.path))
		}
	default:
		return subEntryError(failf(native.StatusInvalidArgs, "opcode %q is not a lookup", s.op))
	}
}

// --------------------------------------------------------------------------
// Mutation Evaluation
// --------------------------------------------------------------------------

func (c *connImpl) mutateIn(sh *shard, bs *bucketState, key, composite string, args map[string]any, now time.Time) (map[string]any, error) {
	specs, ee := parseSpecArgs(args)
	if ee != nil {
		return nil, ee
	}
	cas, _ := argUint64(args, "cas")
	expiry, hasExpiry := argUint32(args, "expiry")
	semantics, _ := argString(args, "store_semantics")

	var res map[string]any
	var failure *native.EngineError
	sh.data.Compute(composite, func(old document, loaded bool) (document, bool) {
		live := loaded && !old.expiredAt(now)
		fail := func(e *native.EngineError) (document, bool) {
			failure = e
			return old, !live
		}

		switch semantics {
		case "insert":
			if live {
				return fail(failf(native.StatusDocumentExists, "document already exists"))
			}
		case "upsert":
		default:
			if !live {
				return fail(errNotFound())
			}
		}

		doc := old
		if live {
			if e := checkWriteLock(&doc, cas, now); e != nil {
				return fail(e)
			}
			if cas != 0 && cas != doc.cas {
				return fail(failf(native.StatusDocumentExists, "cas mismatch"))
			}
		} else {
			doc = document{value: freshDocBody(specs), flags: 2 << 24}
		}

		body, err := decodeJSON(doc.value)
		if err != nil {
			return fail(failf(native.StatusDocumentNotJSON, "document is not json"))
		}
		var xattrs any = map[string]any{}
		if len(doc.xattrs) > 0 {
			if xattrs, err = decodeJSON(doc.xattrs); err != nil {
				return fail(failf(native.StatusDocumentNotJSON, "document xattrs are not json"))
			}
		}

		entries := make([]any, len(specs))
		removeDoc := false
		for i, s := range specs {
			if s.hasFlag(subdoc.FlagExpandMacros) {
				return fail(failf(native.StatusNotSupported, "macro expansion is not supported"))
			}
			if s.op == "remove" && s.path == "" {
				if s.hasFlag(subdoc.FlagXAttr) {
					xattrs = map[string]any{}
				} else {
					removeDoc = true
				}
				entries[i] = map[string]any{}
				continue
			}

			root := body
			if s.hasFlag(subdoc.FlagXAttr) {
				root = xattrs
			}
			newRoot, entry, e := evalMutation(root, s)
			if e != nil {
				return fail(e)
			}
			if s.hasFlag(subdoc.FlagXAttr) {
				xattrs = newRoot
			} else {
				body = newRoot
			}
			entries[i] = entry
		}

		if removeDoc {
			res = map[string]any{
				"cas":            c.nextCas(),
				"mutation_token": bs.nextToken(key),
				"specs":          entries,
			}
			return old, true
		}

		raw, err := json.Marshal(body)
		if err != nil {
			return fail(failf(native.StatusInvalidArgs, "document cannot be rendered"))
		}
		if len(raw) > maxValueBytes {
			return fail(failf(native.StatusValueTooLarge, "value too large: %d bytes", len(raw)))
		}
		doc.value = raw
		doc.xattrs = nil
		if xraw, err := json.Marshal(xattrs); err == nil && string(xraw) != "{}" {
			doc.xattrs = xraw
		}
		if hasExpiry {
			doc.expireAt = absoluteExpiry(expiry, now)
		}
		doc.cas = c.nextCas()
		res = map[string]any{
			"cas":            doc.cas,
			"mutation_token": bs.nextToken(key),
			"specs":          entries,
		}
		return doc, false
	})
	if failure != nil {
		return nil, failure
	}
	return res, nil
}

// freshDocBody picks the root shape of an implicitly created document: an
// array when the first body mutation targets the root with an array
// opcode, an object otherwise.
func freshDocBody(specs []subSpec) []byte {
	for _, s := range specs {
		if s.hasFlag(subdoc.FlagXAttr) {
			continue
		}
		if s.path == "" && strings.HasPrefix(s.op, "array") {
			return []byte("[]")
		}
		return []byte("{}")
	}
	return []byte("{}")
}

func evalMutation(root any, s subSpec) (any, map[string]any, *native.EngineError) {
	segs, ee := parsePath(s.path)
	if ee != nil {
		return root, nil, ee
	}
	create := s.hasFlag(subdoc.FlagCreateParents)

	switch s.op {
	case "insert", "upsert", "replace":
		if len(segs) == 0 {
			return root, nil, errPathInvalid(s.path)
		}
		val, err := decodeJSON(s.value)
		if err != nil {
			return root, nil, failf(native.StatusInvalidArgs, "spec payload for %q is not json", s.path)
		}
		newRoot, ee := editPath(root, segs, s.path, create, setField(s.op, s.path, val))
		return newRoot, map[string]any{}, ee

	case "remove":
		newRoot, ee := editPath(root, segs, s.path, false, removeField(s.path))
		return newRoot, map[string]any{}, ee

	case "arrayPushLast", "arrayPushFirst", "arrayAddUnique":
		vals, ee := multiValues(s)
		if ee != nil {
			return root, nil, ee
		}
		if len(segs) == 0 {
			newRoot, ee := adjoinArray(root, true, create, s.op, s.path, vals)
			return newRoot, map[string]any{}, ee
		}
		newRoot, ee := editPath(root, segs, s.path, create, adjoinField(s.op, s.path, create, vals))
		return newRoot, map[string]any{}, ee

	case "arrayInsert":
		vals, ee := multiValues(s)
		if ee != nil {
			return root, nil, ee
		}
		if len(segs) == 0 || !segs[len(segs)-1].isIndex {
			return root, nil, errPathInvalid(s.path)
		}
		newRoot, ee := editPath(root, segs, s.path, false, spliceArray(s.path, vals))
		return newRoot, map[string]any{}, ee

	case "counter":
		delta, err := strconv.ParseInt(strings.TrimSpace(string(s.value)), 10, 64)
		if err != nil || delta == 0 {
			return root, nil, failf(native.StatusDeltaInvalid, "delta invalid: %q", s.value)
		}
		if len(segs) == 0 {
			return root, nil, errPathInvalid(s.path)
		}
		var entry map[string]any
		newRoot, ee := editPath(root, segs, s.path, create, counterField(s.path, delta, &entry))
		return newRoot, entry, ee

	default:
		return root, nil, failf(native.StatusInvalidArgs, "opcode %q is not a mutation", s.op)
	}
}

func multiValues(s subSpec) ([]any, *native.EngineError) {
	wrapped := make([]byte, 0, len(s.value)+2)
	wrapped = append(append(append(wrapped, '['), s.value...), ']')
	vals, err := decodeJSON(wrapped)
	list, ok := vals.([]any)
	if err != nil || !ok || len(list) == 0 {
		return nil, failf(native.StatusInvalidArgs, "spec payload for %q is not a json element list", s.path)
	}
	return list, nil
}

// --------------------------------------------------------------------------
// Tree Editing
// --------------------------------------------------------------------------

// editPath walks to the container holding the last path segment, applies
// edit to it, and writes modified containers back up the walk. When create
// is set, missing intermediate fields become objects, or arrays when the
// following segment is an index.
func editPath(node any, segs []pathSeg, path string, create bool,
	edit func(parent any, seg pathSeg) (any, *native.EngineError)) (any, *native.EngineError) {

	if len(segs) == 1 {
		return edit(node, segs[0])
	}
	seg := segs[0]
	if seg.isIndex {
		arr, ok := node.([]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		idx := normIndex(seg.index, len(arr))
		if idx < 0 || idx >= len(arr) {
			return nil, errPathNotFound(path)
		}
		child, ee := editPath(arr[idx], segs[1:], path, create, edit)
		if ee != nil {
			return nil, ee
		}
		arr[idx] = child
		return arr, nil
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return nil, errPathMismatch(path)
	}
	child, ok := obj[seg.field]
	if !ok {
		if !create {
			return nil, errPathNotFound(path)
		}
		if segs[1].isIndex {
			child = []any{}
		} else {
			child = map[string]any{}
		}
	}
	child, ee := editPath(child, segs[1:], path, create, edit)
	if ee != nil {
		return nil, ee
	}
	obj[seg.field] = child
	return obj, nil
}

// setField is the edit for insert, upsert and replace. Insert is a
// dictionary add: it refuses existing fields and array slots outright.
func setField(op, path string, val any) func(any, pathSeg) (any, *native.EngineError) {
	return func(parent any, seg pathSeg) (any, *native.EngineError) {
		if seg.isIndex {
			if op == "insert" {
				return nil, errPathMismatch(path)
			}
			arr, ok := parent.([]any)
			if !ok {
				return nil, errPathMismatch(path)
			}
			idx := normIndex(seg.index, len(arr))
			if idx < 0 || idx >= len(arr) {
				return nil, errPathNotFound(path)
			}
			arr[idx] = val
			return arr, nil
		}
		obj, ok := parent.(map[string]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		_, exists := obj[seg.field]
		switch {
		case op == "insert" && exists:
			return nil, errPathExists(path)
		case op == "replace" && !exists:
			return nil, errPathNotFound(path)
		}
		obj[seg.field] = val
		return obj, nil
	}
}

func removeField(path string) func(any, pathSeg) (any, *native.EngineError) {
	return func(parent any, seg pathSeg) (any, *native.EngineError) {
		if seg.isIndex {
			arr, ok := parent.([]any)
			if !ok {
				return nil, errPathMismatch(path)
			}
			idx := normIndex(seg.index, len(arr))
			if idx < 0 || idx >= len(arr) {
				return nil, errPathNotFound(path)
			}
			return append(arr[:idx:idx], arr[idx+1:]...), nil
		}
		obj, ok := parent.(map[string]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		if _, exists := obj[seg.field]; !exists {
			return nil, errPathNotFound(path)
		}
		delete(obj, seg.field)
		return obj, nil
	}
}

// adjoinArray applies a push or add-unique to the array value itself.
func adjoinArray(target any, exists, create bool, op, path string, vals []any) (any, *native.EngineError) {
	var arr []any
	switch {
	case !exists:
		if !create {
			return nil, errPathNotFound(path)
		}
		arr = []any{}
	default:
		var ok bool
		arr, ok = target.([]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
	}

	switch op {
	case "arrayPushFirst":
		arr = append(append(make([]any, 0, len(arr)+len(vals)), vals...), arr...)
	case "arrayAddUnique":
		for _, v := range vals {
			for _, e := range arr {
				if reflect.DeepEqual(e, v) {
					return nil, errPathExists(path)
				}
			}
			arr = append(arr, v)
		}
	default:
		arr = append(arr, vals...)
	}
	return arr, nil
}

func adjoinField(op, path string, create bool, vals []any) func(any, pathSeg) (any, *native.EngineError) {
	return func(parent any, seg pathSeg) (any, *native.EngineError) {
		if seg.isIndex {
			arr, ok := parent.([]any)
			if !ok {
				return nil, errPathMismatch(path)
			}
			idx := normIndex(seg.index, len(arr))
			if idx < 0 || idx >= len(arr) {
				return nil, errPathNotFound(path)
			}
			out, ee := adjoinArray(arr[idx], true, create, op, path, vals)
			if ee != nil {
				return nil, ee
			}
			arr[idx] = out
			return arr, nil
		}
		obj, ok := parent.(map[string]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		target, exists := obj[seg.field]
		out, ee := adjoinArray(target, exists, create, op, path, vals)
		if ee != nil {
			return nil, ee
		}
		obj[seg.field] = out
		return obj, nil
	}
}

// spliceArray is the arrayInsert edit: the final segment is the insertion
// index and the parent is the array, with index == length meaning append.
func spliceArray(path string, vals []any) func(any, pathSeg) (any, *native.EngineError) {
	return func(parent any, seg pathSeg) (any, *native.EngineError) {
		arr, ok := parent.([]any)
		if !ok {
			return nil, errPathMismatch(path)
		}
		idx := normIndex(seg.index, len(arr))
		if idx < 0 || idx > len(arr) {
			return nil, errPathNotFound(path)
		}
		out := make([]any, 0, len(arr)+len(vals))
		out = append(out, arr[:idx]...)
		out = append(out, vals...)
		out = append(out, arr[idx:]...)
		return out, nil
	}
}

// counterField adjusts the integer at the final field, creating it from
// zero when absent, and reports the new value through entry.
func counterField(path string, delta int64, entry *map[string]any) func(any, pathSeg) (any, *native.EngineError) {
	return func(parent any, seg pathSeg) (any, *native.EngineError) {
		if seg.isIndex {
			return nil, errPathMismatch(path)
		}
		obj, ok := parent.(map[string]any)
		if !ok {
			return nil, errPathMismatch(path)
		}

		var base int64
		if cur, exists := obj[seg.field]; exists {
			num, ok := cur.(json.Number)
			if !ok {
				return nil, errPathMismatch(path)
			}
			v, err := num.Int64()
			if err != nil {
				if strings.ContainsAny(num.String(), ".eE") {
					return nil, errPathMismatch(path)
				}
				return nil, failf(native.StatusNumberTooBig, "number too big: %s", num)
			}
			base = v
		}
		if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
			return nil, failf(native.StatusNumberTooBig, "counter overflow at %s", path)
		}

		val := base + delta
		obj[seg.field] = json.Number(strconv.FormatInt(val, 10))
		*entry = map[string]any{"value": []byte(strconv.FormatInt(val, 10))}
		return obj, nil
	}
}

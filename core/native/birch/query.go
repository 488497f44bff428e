package birch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchkit/couchkit/core"
	"github.com/couchkit/couchkit/core/native"
)

// --------------------------------------------------------------------------
// Query Evaluation
// --------------------------------------------------------------------------
//
// The engine understands a deliberately small SELECT dialect:
//
//	SELECT RAW <literal>
//	SELECT *|<field>|RAW <field>|META().id FROM <keyspace>
//	       [WHERE <field> = <literal>] [LIMIT <n>]
//
// A keyspace is a bucket name or bucket.scope.collection, each part
// optionally backtick-quoted; with a query_context set, a single name is a
// collection inside that context. Literals are JSON values, single-quoted
// strings, $named or $1-style positional parameters. Rows materialize
// eagerly in key order. Consistency and prepared-statement options are
// accepted and ignored since every read is already current.

var (
	selectRegexp = regexp.MustCompile(
		`(?is)^\s*select\s+(.+?)\s+from\s+([^\s;]+)` +
			`(?:\s+where\s+([^\s=]+)\s*=\s*(.+?))?` +
			`(?:\s+limit\s+([0-9]+))?\s*;?\s*$`)
	selectRawRegexp = regexp.MustCompile(`(?is)^\s*select\s+raw\s+(.+?)\s*;?\s*$`)
	identRegexp     = regexp.MustCompile("^`?[a-zA-Z_][a-zA-Z0-9_$-]*`?$")
	metaIDRegexp    = regexp.MustCompile(`(?i)^meta\(\)\.id$`)
	rawFieldRegexp  = regexp.MustCompile(`(?is)^raw\s+(.+)$`)
)

type projKind uint8

const (
	projWildcard projKind = iota + 1
	projField
	projRawField
	projMetaID
)

type queryPlan struct {
	proj       projKind
	field      string
	keyspace   string
	alias      string
	whereField string
	whereVal   any
	hasWhere   bool
	limit      int
}

// Interface Methods (docu see native.IEngineConn)

func (c *connImpl) Query(statement string, args map[string]any) (core.IQueryRows, error) {
	if c.closed.Load() {
		return nil, errClosed()
	}
	started := time.Now()

	if m := selectRegexp.FindStringSubmatch(statement); m != nil {
		plan, ee := c.buildPlan(m, args)
		if ee != nil {
			return nil, ee
		}
		return c.runPlan(plan, args, started)
	}
	if m := selectRawRegexp.FindStringSubmatch(statement); m != nil {
		val, ee := c.queryValue(m[1], args)
		if ee != nil {
			return nil, ee
		}
		row, err := json.Marshal(val)
		if err != nil {
			return nil, failf(native.StatusQuerySyntax, "syntax error near %q", m[1])
		}
		return c.finishRows([][]byte{row}, args, started), nil
	}
	return nil, failf(native.StatusQuerySyntax, "syntax error near %q", clip(statement))
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func stripTicks(s string) string {
	return strings.Trim(s, "`")
}

func (c *connImpl) buildPlan(m []string, args map[string]any) (queryPlan, *native.EngineError) {
	plan := queryPlan{keyspace: m[2], limit: -1}

	proj := strings.TrimSpace(m[1])
	switch {
	case proj == "*":
		plan.proj = projWildcard
	case metaIDRegexp.MatchString(proj):
		plan.proj = projMetaID
	case rawFieldRegexp.MatchString(proj):
		inner := strings.TrimSpace(rawFieldRegexp.FindStringSubmatch(proj)[1])
		if !identRegexp.MatchString(inner) {
			return plan, failf(native.StatusQuerySyntax, "syntax error near %q", inner)
		}
		plan.proj = projRawField
		plan.field = stripTicks(inner)
	case identRegexp.MatchString(proj):
		plan.proj = projField
		plan.field = stripTicks(proj)
	default:
		return plan, failf(native.StatusQuerySyntax, "syntax error near %q", proj)
	}

	if m[3] != "" {
		val, ee := c.queryValue(m[4], args)
		if ee != nil {
			return plan, ee
		}
		plan.whereField = stripTicks(m[3])
		plan.whereVal = val
		plan.hasWhere = true
	}
	if m[5] != "" {
		n, err := strconv.Atoi(m[5])
		if err != nil {
			return plan, failf(native.StatusQuerySyntax, "syntax error near %q", m[5])
		}
		plan.limit = n
	}
	return plan, nil
}

// queryValue resolves one literal or parameter placeholder.
func (c *connImpl) queryValue(tok string, args map[string]any) (any, *native.EngineError) {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "?":
		pos, _ := argSlice(args, "positional_parameters")
		if len(pos) == 0 {
			return nil, failf(native.StatusInvalidArgs, "missing positional parameter 1")
		}
		return pos[0], nil
	case strings.HasPrefix(tok, "$"):
		name := tok[1:]
		if n, err := strconv.Atoi(name); err == nil {
			pos, _ := argSlice(args, "positional_parameters")
			if n < 1 || n > len(pos) {
				return nil, failf(native.StatusInvalidArgs, "missing positional parameter %d", n)
			}
			return pos[n-1], nil
		}
		named, _ := args["named_parameters"].(map[string]any)
		v, ok := named[name]
		if !ok {
			return nil, failf(native.StatusInvalidArgs, "missing named parameter $%s", name)
		}
		return v, nil
	case len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'':
		return strings.ReplaceAll(tok[1:len(tok)-1], "''", "'"), nil
	default:
		v, err := decodeJSON([]byte(tok))
		if err != nil {
			return nil, failf(native.StatusQuerySyntax, "syntax error near %q", tok)
		}
		return v, nil
	}
}

// resolveKeyspace expands the FROM term against the optional query context.
func (c *connImpl) resolveKeyspace(keyspace string, args map[string]any) (bucket, scope, collection string, ee *native.EngineError) {
	parts := strings.Split(keyspace, ".")
	for i, p := range parts {
		parts[i] = stripTicks(p)
	}
	parts[0] = strings.TrimPrefix(parts[0], "default:")

	if qc, ok := argString(args, "query_context"); ok && qc != "" && len(parts) == 1 {
		ctx := strings.Split(strings.TrimPrefix(qc, "default:"), ".")
		if len(ctx) != 2 {
			return "", "", "", failf(native.StatusQuerySyntax, "syntax error near %q", qc)
		}
		return stripTicks(ctx[0]), stripTicks(ctx[1]), parts[0], nil
	}
	switch len(parts) {
	case 1:
		return parts[0], "_default", "_default", nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", failf(native.StatusQuerySyntax, "syntax error near %q", keyspace)
	}
}

func (c *connImpl) runPlan(plan queryPlan, args map[string]any, started time.Time) (core.IQueryRows, error) {
	bucket, scope, collection, ee := c.resolveKeyspace(plan.keyspace, args)
	if ee != nil {
		return nil, ee
	}
	if _, ee := c.resolve(bucket, scope, collection); ee != nil {
		return nil, failf(native.StatusQueryKeyspaceMiss, "keyspace not found: %s", plan.keyspace)
	}
	plan.alias = collection
	if collection == "_default" {
		plan.alias = bucket
	}

	type hit struct {
		key string
		val any
	}
	prefix := bucket + "\x00" + scope + "\x00" + collection + "\x00"
	now := time.Now()
	var hits []hit
	for _, sh := range c.shards {
		sh.data.Range(func(composite string, doc document) bool {
			if !strings.HasPrefix(composite, prefix) || doc.expiredAt(now) {
				return true
			}
			val, err := decodeJSON(doc.value)
			if err != nil {
				return true
			}
			hits = append(hits, hit{key: composite[len(prefix):], val: val})
			return true
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].key < hits[j].key })

	var rows [][]byte
	for _, h := range hits {
		if plan.limit >= 0 && len(rows) >= plan.limit {
			break
		}
		if plan.hasWhere {
			obj, ok := h.val.(map[string]any)
			if !ok || !jsonEqual(obj[plan.whereField], plan.whereVal) {
				continue
			}
		}
		row, ok := projectRow(plan, h.key, h.val)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return c.finishRows(rows, args, started), nil
}

func projectRow(plan queryPlan, key string, val any) ([]byte, bool) {
	var out any
	switch plan.proj {
	case projWildcard:
		out = map[string]any{plan.alias: val}
	case projMetaID:
		out = map[string]any{"id": key}
	case projField:
		obj, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, exists := obj[plan.field]; exists {
			out = map[string]any{plan.field: v}
		} else {
			out = map[string]any{}
		}
	case projRawField:
		obj, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		out = obj[plan.field]
	}
	row, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return row, true
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// finishRows wraps the materialized rows with their metadata blob.
func (c *connImpl) finishRows(rows [][]byte, args map[string]any, started time.Time) *queryRows {
	contextID, _ := argString(args, "client_context_id")
	meta := map[string]any{
		"requestID":       fmt.Sprintf("birch-%d", c.querySeq.Add(1)),
		"clientContextID": contextID,
		"status":          "success",
	}
	includeMetrics := true
	if v, ok := args["metrics"].(bool); ok {
		includeMetrics = v
	}
	if includeMetrics {
		size := 0
		for _, r := range rows {
			size += len(r)
		}
		elapsed := time.Since(started)
		meta["metrics"] = map[string]any{
			"elapsedTime":   elapsed.String(),
			"executionTime": elapsed.String(),
			"resultCount":   len(rows),
			"resultSize":    size,
		}
	}
	raw, _ := json.Marshal(meta)
	return &queryRows{rows: rows, meta: raw}
}

// queryRows is the eager row stream handed back to the dispatcher.
type queryRows struct {
	rows   [][]byte
	meta   []byte
	pos    int
	closed bool
}

func (q *queryRows) NextRow() ([]byte, error) {
	if q.closed || q.pos >= len(q.rows) {
		return nil, io.EOF
	}
	row := q.rows[q.pos]
	q.pos++
	return row, nil
}

func (q *queryRows) MetaData() ([]byte, error) {
	return q.meta, nil
}

func (q *queryRows) Close() error {
	q.closed = true
	return nil
}

package kaybee

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// defaultBatchLimit bounds how many changelog entries one push fetches
// per round-trip.
const defaultBatchLimit = 500

// remoteSchemaCache remembers, within one push, the columns already
// confirmed to exist on each remote table, to avoid redundant
// existence probes (spec.md 4.9 "schema cache").
type remoteSchemaCache struct {
	known map[string]map[string]bool
}

func newRemoteSchemaCache() *remoteSchemaCache {
	return &remoteSchemaCache{known: make(map[string]map[string]bool)}
}

// Push drains the changelog from sinceSeq, translating each entry into
// remote operations via dialect, and returns the new high-water seq.
// It commits once at the end (spec.md 4.9).
func Push(ctx context.Context, s *Store, conn AdapterConn, dialect Dialect, scope map[string]string, sinceSeq int64) (int64, error) {
	log := withComponent("replicator")
	correlationID := newCorrelationID()

	cache := newRemoteSchemaCache()
	lastSeq := sinceSeq

	for {
		entries, err := s.Changelog(ctx, lastSeq, defaultBatchLimit)
		if err != nil {
			return lastSeq, wrap(err, withOp("Push"))
		}

		if len(entries) == 0 {
			break
		}

		cur, err := conn.Cursor(ctx)
		if err != nil {
			return lastSeq, wrap(err, withOp("Push"))
		}

		for _, e := range entries {
			if err := applyChangelogEntry(ctx, cur, dialect, cache, scope, e); err != nil {
				cur.Close()

				return lastSeq, wrap(err, withOp("Push"), withName(e.Name))
			}

			lastSeq = e.Seq
		}

		cur.Close()

		log.Debug().Str("correlation_id", correlationID).Int("batch", len(entries)).Int64("last_seq", lastSeq).Msg("pushed batch")

		if len(entries) < defaultBatchLimit {
			break
		}
	}

	if err := conn.Commit(); err != nil {
		return lastSeq, wrap(err, withOp("Push"))
	}

	return lastSeq, nil
}

func applyChangelogEntry(ctx context.Context, cur AdapterCursor, dialect Dialect, cache *remoteSchemaCache, scope map[string]string, e ChangelogEntry) error {
	switch e.Op {
	case OpNodeWrite:
		var p writePayload
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return err
		}

		return remoteUpsert(ctx, cur, dialect, cache, p.Type, e.Name, p.Body, p.Attrs, scope)

	case OpNodeTypeChange:
		var p typeChangePayload
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return err
		}

		if err := remoteDelete(ctx, cur, dialect, cache, p.OldType, e.Name, scope); err != nil {
			return err
		}

		return remoteUpsert(ctx, cur, dialect, cache, p.NewType, e.Name, p.Body, p.Attrs, scope)

	case OpNodeRemove:
		var p rmPayload
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return err
		}

		return remoteDelete(ctx, cur, dialect, cache, p.Type, e.Name, scope)

	case OpNodeMove:
		var p mvPayload
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return err
		}

		if err := remoteDelete(ctx, cur, dialect, cache, p.Type, p.OldName, scope); err != nil {
			return err
		}

		return remoteUpsert(ctx, cur, dialect, cache, p.Type, e.Name, p.Body, p.Attrs, scope)

	case OpNodeCopy:
		var p cpPayload
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return err
		}

		return remoteUpsert(ctx, cur, dialect, cache, p.Type, e.Name, p.Body, p.Attrs, scope)

	case OpTypeAdd:
		_, err := ensureRemoteTable(ctx, cur, dialect, cache, e.Name, scope)

		return err

	case OpTypeRemove:
		return nil // never drop remote tables

	default:
		return nil
	}
}

func ensureRemoteTable(ctx context.Context, cur AdapterCursor, dialect Dialect, cache *remoteSchemaCache, typ string, scope map[string]string) (map[string]bool, error) {
	table := sanitizeIdentifier(typ)

	if cols, ok := cache.known[table]; ok {
		return cols, nil
	}

	query, args := dialect.TableExistsSQL(table)
	if err := cur.Execute(ctx, query, args...); err != nil {
		return nil, err
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}

	baseCols := append(sortedKeys(scope), "name", "content")

	if len(rows) == 0 {
		if err := cur.Execute(ctx, dialect.CreateTableSQL(table, baseCols)); err != nil {
			return nil, err
		}
	}

	cols := make(map[string]bool, len(baseCols))
	for _, c := range baseCols {
		cols[c] = true
	}

	if len(rows) > 0 {
		existing, err := dialect.TableColumns(ctx, cur, table)
		if err != nil {
			return nil, err
		}

		for _, c := range existing {
			cols[c] = true
		}
	}

	cache.known[table] = cols

	return cols, nil
}

func remoteUpsert(ctx context.Context, cur AdapterCursor, dialect Dialect, cache *remoteSchemaCache, typ, name, body string, attrs map[string]any, scope map[string]string) error {
	table := sanitizeIdentifier(typ)

	cols, err := ensureRemoteTable(ctx, cur, dialect, cache, typ, scope)
	if err != nil {
		return err
	}

	scopeKeys := sortedKeys(scope)
	columns := append([]string{}, scopeKeys...)
	values := make([]any, 0, len(scopeKeys)+2+len(attrs))

	for _, k := range scopeKeys {
		values = append(values, scope[k])
	}

	columns = append(columns, "name", "content")
	values = append(values, name, body)

	attrKeys := sortedKeys(attrs)
	for _, k := range attrKeys {
		col := sanitizeIdentifier(k)
		if !cols[col] {
			if err := cur.Execute(ctx, dialect.AddColumnSQL(table, col)); err != nil {
				return err
			}

			cols[col] = true
		}

		columns = append(columns, col)
		values = append(values, encodeAnyAttrValue(attrs[k]))
	}

	keyColumns := append(append([]string{}, scopeKeys...), "name")

	return cur.Execute(ctx, dialect.UpsertSQL(table, columns, keyColumns), values...)
}

func remoteDelete(ctx context.Context, cur AdapterCursor, dialect Dialect, cache *remoteSchemaCache, typ, name string, scope map[string]string) error {
	table := sanitizeIdentifier(typ)

	query, args := dialect.TableExistsSQL(table)
	if err := cur.Execute(ctx, query, args...); err != nil {
		return err
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil // remote table never existed; nothing to delete
	}

	scopeKeys := sortedKeys(scope)
	keyColumns := append(append([]string{}, scopeKeys...), "name")
	values := make([]any, 0, len(keyColumns))

	for _, k := range scopeKeys {
		values = append(values, scope[k])
	}

	values = append(values, name)

	return cur.Execute(ctx, dialect.DeleteSQL(table, keyColumns), values...)
}

// PushFallback performs a full-scan push when the changelog is
// disabled: upsert every node into its type's remote table with scope
// injected. Deletes are not propagated. Always returns 0, matching the
// protocol's documented fallback behavior (spec.md 4.9).
func PushFallback(ctx context.Context, s *Store, conn AdapterConn, dialect Dialect, scope map[string]string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, wrap(ErrClosed, withOp("PushFallback"))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM nodes`)
	if err != nil {
		return 0, wrap(err, withOp("PushFallback"))
	}

	type nt struct{ name, typ string }

	var nodes []nt

	for rows.Next() {
		var n nt
		if err := rows.Scan(&n.name, &n.typ); err != nil {
			rows.Close()

			return 0, wrap(err, withOp("PushFallback"))
		}

		nodes = append(nodes, n)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return 0, wrap(err, withOp("PushFallback"))
	}

	cache := newRemoteSchemaCache()

	cur, err := conn.Cursor(ctx)
	if err != nil {
		return 0, wrap(err, withOp("PushFallback"))
	}
	defer cur.Close()

	for _, n := range nodes {
		content, attrs, found, err := s.backend.readRow(ctx, s.db, n.typ, n.name)
		if err != nil {
			return 0, wrap(err, withOp("PushFallback"), withName(n.name))
		}

		if !found {
			continue
		}

		if err := remoteUpsert(ctx, cur, dialect, cache, n.typ, n.name, content, attrsToJSON(attrs), scope); err != nil {
			return 0, wrap(err, withOp("PushFallback"), withName(n.name))
		}
	}

	if err := conn.Commit(); err != nil {
		return 0, wrap(err, withOp("PushFallback"))
	}

	return 0, nil
}

// Pull enumerates remote tables scoped to scope and inserts matching
// rows locally via the raw storage path, bypassing the node engine so
// pulled rows generate no changelog entries (P8). Returns the number
// of rows pulled.
func Pull(ctx context.Context, s *Store, conn AdapterConn, dialect Dialect, scope map[string]string) (int, error) {
	cur, err := conn.Cursor(ctx)
	if err != nil {
		return 0, wrap(err, withOp("Pull"))
	}
	defer cur.Close()

	tables, err := dialect.ListTables(ctx, cur)
	if err != nil {
		return 0, wrap(err, withOp("Pull"))
	}

	scopeKeys := sortedKeys(scope)
	count := 0

	for _, table := range tables {
		cols, err := dialect.TableColumns(ctx, cur, table)
		if err != nil {
			return count, wrap(err, withOp("Pull"), withName(table))
		}

		colSet := make(map[string]bool, len(cols))
		for _, c := range cols {
			colSet[c] = true
		}

		if !colSet["name"] {
			continue
		}

		missingScope := false

		for _, k := range scopeKeys {
			if !colSet[k] {
				missingScope = true

				break
			}
		}

		if missingScope {
			continue
		}

		n, err := pullTable(ctx, s, cur, dialect, table, cols, scope, scopeKeys)
		if err != nil {
			return count, wrap(err, withOp("Pull"), withName(table))
		}

		count += n
	}

	return count, nil
}

func pullTable(ctx context.Context, s *Store, cur AdapterCursor, dialect Dialect, table string, cols []string, scope map[string]string, scopeKeys []string) (int, error) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	query := "SELECT " + strings.Join(quoted, ", ") + " FROM " + quoteIdent(table)

	args := make([]any, 0, len(scopeKeys))

	if len(scopeKeys) > 0 {
		query += " WHERE "

		for i, k := range scopeKeys {
			if i > 0 {
				query += " AND "
			}

			query += quoteIdent(k) + " = ?"
			args = append(args, scope[k])
		}
	}

	if err := cur.Execute(ctx, query, args...); err != nil {
		return 0, err
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return 0, err
	}

	scopeColSet := make(map[string]bool, len(scopeKeys))
	for _, k := range scopeKeys {
		scopeColSet[k] = true
	}

	typ := table

	n := 0

	for _, row := range rows {
		var (
			name, content string
			attrs         frontmatter.Attrs
		)

		for i, c := range cols {
			if scopeColSet[c] {
				continue
			}

			val, _ := row[i].(string)

			switch c {
			case "name":
				name = val
			case "content":
				content = val
			default:
				attrs.Set(c, decodeAttrValue(val))
			}
		}

		if name == "" {
			continue
		}

		if err := s.pullInsert(ctx, typ, name, content, attrs); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func encodeAnyAttrValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	b, _ := json.Marshal(v)

	return string(b)
}

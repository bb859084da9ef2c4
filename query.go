package kaybee

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// Ls lists node names, optionally filtered to a single type. An empty
// typ lists every node.
func (s *Store) Ls(ctx context.Context, typ string) ([]string, error) {
	s.log.Debug().Str("op", "Ls").Str("type", typ).Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Ls"))
	}

	var (
		rows *sql.Rows
		err  error
	)

	if typ == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT name FROM nodes ORDER BY name`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT name FROM nodes WHERE type = ? ORDER BY name`, typ)
	}

	if err != nil {
		return nil, wrap(err, withOp("Ls"))
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap(err, withOp("Ls"))
		}

		out = append(out, name)
	}

	return out, wrap(rows.Err(), withOp("Ls"))
}

// Find returns node names containing substr (case-insensitive).
func (s *Store) Find(ctx context.Context, substr string) ([]string, error) {
	s.log.Debug().Str("op", "Find").Str("substr", substr).Msg("start")

	names, err := s.Ls(ctx, "")
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(substr)

	var out []string

	for _, n := range names {
		if strings.Contains(strings.ToLower(n), needle) {
			out = append(out, n)
		}
	}

	return out, nil
}

// Grep returns node names whose body content contains substr, scanning
// every type's storage.
func (s *Store) Grep(ctx context.Context, substr string) ([]string, error) {
	s.log.Debug().Str("op", "Grep").Str("substr", substr).Msg("start")

	s.mu.Lock()

	if s.db == nil {
		s.mu.Unlock()

		return nil, wrap(ErrClosed, withOp("Grep"))
	}

	types, err := s.allTypesLocked(ctx)

	s.mu.Unlock()

	if err != nil {
		return nil, wrap(err, withOp("Grep"))
	}

	var out []string

	for _, typ := range types {
		s.mu.Lock()
		rows, err := s.backend.contentRows(ctx, s.db, typ)
		s.mu.Unlock()

		if err != nil {
			return nil, wrap(err, withOp("Grep"))
		}

		for _, r := range rows {
			if strings.Contains(r.Content, substr) {
				out = append(out, r.Name)
			}
		}
	}

	sort.Strings(out)

	return out, nil
}

// allTypesLocked returns every registered type plus the implicit type.
// Caller must hold s.mu.
func (s *Store) allTypesLocked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type_name FROM _types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []string{ImplicitType}

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}

		types = append(types, t)
	}

	return types, rows.Err()
}

// Tags returns a count of nodes carrying each distinct tag value found
// in any node's "tags" attribute list.
func (s *Store) Tags(ctx context.Context) (map[string]int, error) {
	s.log.Debug().Str("op", "Tags").Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Tags"))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM nodes`)
	if err != nil {
		return nil, wrap(err, withOp("Tags"))
	}

	type nt struct{ name, typ string }

	var nodes []nt

	for rows.Next() {
		var n nt
		if err := rows.Scan(&n.name, &n.typ); err != nil {
			rows.Close()

			return nil, wrap(err, withOp("Tags"))
		}

		nodes = append(nodes, n)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, wrap(err, withOp("Tags"))
	}

	counts := make(map[string]int)

	for _, n := range nodes {
		_, attrs, found, err := s.backend.readRow(ctx, s.db, n.typ, n.name)
		if err != nil {
			return nil, wrap(err, withOp("Tags"), withName(n.name))
		}

		if !found {
			continue
		}

		v, ok := attrs.Get("tags")
		if !ok || v.Kind != frontmatter.List {
			continue
		}

		for _, tag := range v.List {
			counts[tag]++
		}
	}

	return counts, nil
}

// NodeInfo summarizes a node for the info query.
type NodeInfo struct {
	Name          string
	Type          string
	AttrKeys      []string
	OutgoingCount int
	BacklinkCount int
}

// Info returns a summary of name: its type, attribute keys, and link
// counts in both directions.
func (s *Store) Info(ctx context.Context, rawName string) (NodeInfo, error) {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Info").Str("name", name).Msg("start")

	s.mu.Lock()
	typ, ok, err := lookupNodeType(ctx, s.db, name)
	s.mu.Unlock()

	if err != nil {
		return NodeInfo{}, wrap(err, withOp("Info"), withName(name))
	}

	if !ok {
		return NodeInfo{}, wrap(ErrNotFound, withOp("Info"), withName(name))
	}

	s.mu.Lock()
	_, attrs, _, err := s.backend.readRow(ctx, s.db, typ, name)
	s.mu.Unlock()

	if err != nil {
		return NodeInfo{}, wrap(err, withOp("Info"), withName(name))
	}

	s.mu.Lock()
	var outgoing int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _links WHERE source = ?`, name).Scan(&outgoing)
	s.mu.Unlock()

	if err != nil {
		return NodeInfo{}, wrap(err, withOp("Info"), withName(name))
	}

	backlinks, err := s.Backlinks(ctx, name)
	if err != nil {
		return NodeInfo{}, err
	}

	return NodeInfo{
		Name:          name,
		Type:          typ,
		AttrKeys:      attrs.Keys(),
		OutgoingCount: outgoing,
		BacklinkCount: len(backlinks),
	}, nil
}

// Schema returns the attribute column names known for typ.
func (s *Store) Schema(ctx context.Context, typ string) ([]string, error) {
	s.log.Debug().Str("op", "Schema").Str("type", typ).Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Schema"))
	}

	if s.cfg.StorageMode == ModeSingle {
		sb := s.backend.(singleBackend)

		fields, err := sb.typeFields(ctx, s.db, typ)
		if err != nil {
			return nil, wrap(err, withOp("Schema"))
		}

		out := make([]string, 0, len(fields))
		for f := range fields {
			out = append(out, f)
		}

		sort.Strings(out)

		return out, nil
	}

	mb := s.backend.(multiBackend)

	cols, err := tableColumns(ctx, s.db, mb.typeTable(typ))
	if err != nil {
		return nil, wrap(err, withOp("Schema"))
	}

	out := make([]string, 0, len(cols))

	for c := range cols {
		if c == "name" || c == "content" {
			continue
		}

		out = append(out, c)
	}

	sort.Strings(out)

	return out, nil
}

// TreeGroup is one type's section of a Tree listing.
type TreeGroup struct {
	// Type is the registered type name, or "" for the untyped
	// (ImplicitType) group, mirroring DisplayType's convention.
	Type  string
	Names []string
}

// Tree returns every node grouped by type, explicit types sorted first
// and the untyped group last, matching the type-grouped adjacency view
// of the original tree() (core.py:804).
func (s *Store) Tree(ctx context.Context) ([]TreeGroup, error) {
	s.log.Debug().Str("op", "Tree").Msg("start")

	s.mu.Lock()

	if s.db == nil {
		s.mu.Unlock()

		return nil, wrap(ErrClosed, withOp("Tree"))
	}

	types, err := s.allTypesLocked(ctx)

	s.mu.Unlock()

	if err != nil {
		return nil, wrap(err, withOp("Tree"))
	}

	var explicit []string

	for _, typ := range types {
		if typ != ImplicitType {
			explicit = append(explicit, typ)
		}
	}

	sort.Strings(explicit)

	ordered := append(explicit, ImplicitType)

	var out []TreeGroup

	for _, typ := range ordered {
		names, err := s.Ls(ctx, typ)
		if err != nil {
			return nil, wrap(err, withOp("Tree"))
		}

		if len(names) == 0 {
			continue
		}

		group := typ
		if typ == ImplicitType {
			group = ""
		}

		out = append(out, TreeGroup{Type: group, Names: names})
	}

	return out, nil
}

package kaybee

import (
	"context"
	"database/sql"
)

// syncOutgoingLinks replaces all outgoing link rows for source with
// ones freshly extracted from body: delete-then-reinsert, deduplicated
// on target_raw (spec.md 3.1, 4.5 step 8).
func (s *Store) syncOutgoingLinks(ctx context.Context, tx *sql.Tx, source, body string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM _links WHERE source = ?`, source); err != nil {
		return err
	}

	seen := make(map[string]bool)

	for _, raw := range ExtractWikilinks(body) {
		if seen[raw] {
			continue
		}

		seen[raw] = true

		resolved, err := s.resolve(ctx, tx, raw)
		if err != nil {
			return err
		}

		ctxLine := firstLineContaining(body, raw)

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO _links (source, target_raw, target_resolved, context) VALUES (?, ?, ?, ?)`,
			source, raw, nullableString(resolved), ctxLine); err != nil {
			return err
		}
	}

	return nil
}

// resolve maps a raw wikilink target to an existing node name: exact
// match first, then (if fuzzy resolution is enabled) the first node
// whose canonical form matches, in scan order (spec.md 4.6).
func (s *Store) resolve(ctx context.Context, x execer, raw string) (string, error) {
	var name string

	err := queryRowScan(ctx, x, `SELECT name FROM nodes WHERE name = ?`, []any{raw}, &name)
	if err == nil {
		return name, nil
	}

	if err != sql.ErrNoRows {
		return "", err
	}

	if !s.cfg.FuzzyResolve {
		return "", nil
	}

	target := Normalize(raw)

	rows, err := x.QueryContext(ctx, `SELECT name FROM nodes`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			return "", err
		}

		if Normalize(candidate) == target {
			return candidate, nil
		}
	}

	return "", rows.Err()
}

// reresolveLinksTo re-runs resolve() on every link row whose
// target_resolved is currently null or equals name, bounding
// re-resolution cost to the dangling set plus links that previously
// pointed at the updated node (spec.md 4.6).
func (s *Store) reresolveLinksTo(ctx context.Context, tx *sql.Tx, name string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT source, target_raw FROM _links WHERE target_resolved IS NULL OR target_resolved = ?`, name)
	if err != nil {
		return err
	}

	type key struct{ source, raw string }

	var keys []key

	for rows.Next() {
		var k key
		if err := rows.Scan(&k.source, &k.raw); err != nil {
			rows.Close()

			return err
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		rows.Close()

		return err
	}

	rows.Close()

	for _, k := range keys {
		resolved, err := s.resolve(ctx, tx, k.raw)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE _links SET target_resolved = ? WHERE source = ? AND target_raw = ?`,
			nullableString(resolved), k.source, k.raw); err != nil {
			return err
		}
	}

	return nil
}

// Backlinks returns every source whose resolved target is name, plus
// every untyped node carrying link_target=name (symlinks from Ln).
func (s *Store) Backlinks(ctx context.Context, rawName string) ([]string, error) {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Backlinks").Str("name", name).Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Backlinks"), withName(name))
	}

	seen := make(map[string]bool)

	var out []string

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM _links WHERE target_resolved = ?`, name)
	if err != nil {
		return nil, wrap(err, withOp("Backlinks"), withName(name))
	}

	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			rows.Close()

			return nil, wrap(err, withOp("Backlinks"), withName(name))
		}

		if !seen[src] {
			seen[src] = true

			out = append(out, src)
		}
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, wrap(err, withOp("Backlinks"), withName(name))
	}

	symRows, err := s.backend.contentRows(ctx, s.db, ImplicitType)
	if err != nil {
		return nil, wrap(err, withOp("Backlinks"), withName(name))
	}

	for _, r := range symRows {
		_, attrs, found, err := s.backend.readRow(ctx, s.db, ImplicitType, r.Name)
		if err != nil {
			return nil, wrap(err, withOp("Backlinks"), withName(name))
		}

		if !found {
			continue
		}

		if v, ok := attrs.GetString("link_target"); ok && v == name && !seen[r.Name] {
			seen[r.Name] = true

			out = append(out, r.Name)
		}
	}

	return out, nil
}

// Graph returns a name -> resolved-targets adjacency map across every
// resolved outgoing edge; unresolved links are omitted (spec.md 4.6).
func (s *Store) Graph(ctx context.Context) (map[string][]string, error) {
	s.log.Debug().Str("op", "Graph").Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Graph"))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target_resolved FROM _links WHERE target_resolved IS NOT NULL`)
	if err != nil {
		return nil, wrap(err, withOp("Graph"))
	}
	defer rows.Close()

	out := make(map[string][]string)

	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, wrap(err, withOp("Graph"))
		}

		out[src] = append(out[src], dst)
	}

	return out, wrap(rows.Err(), withOp("Graph"))
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// queryRowScan is a small helper so resolve() can run QueryRowContext
// against either *sql.DB or *sql.Tx via the shared execer interface,
// which only exposes ExecContext/QueryContext.
func queryRowScan(ctx context.Context, x execer, query string, args []any, dest *string) error {
	rows, err := x.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}

		return sql.ErrNoRows
	}

	return rows.Scan(dest)
}

package kaybee

import (
	"context"
	"fmt"
	"sort"
)

// progressiveRead implements Read(name, depth>0): bounded DFS over
// resolved outgoing targets, each node visited at most once, neighbors
// at every level taken in lexical order for determinism (spec.md 4.10, S6).
func (s *Store) progressiveRead(ctx context.Context, name string, depth int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", wrap(ErrClosed, withOp("Read"), withName(name))
	}

	visited := map[string]bool{name: true}

	root, err := s.readOne(ctx, s.db, name)
	if err != nil {
		return "", err
	}

	out := root

	if err := s.appendFollowed(ctx, name, depth, visited, &out); err != nil {
		return "", err
	}

	return out, nil
}

func (s *Store) appendFollowed(ctx context.Context, name string, depth int, visited map[string]bool, out *string) error {
	if depth <= 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT target_resolved FROM _links WHERE source = ? AND target_resolved IS NOT NULL`, name)
	if err != nil {
		return wrap(err, withOp("Read"), withName(name))
	}

	var targets []string

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()

			return wrap(err, withOp("Read"), withName(name))
		}

		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		rows.Close()

		return wrap(err, withOp("Read"), withName(name))
	}

	rows.Close()

	sort.Strings(targets)

	for _, t := range targets {
		if visited[t] {
			continue
		}

		visited[t] = true

		body, err := s.readOne(ctx, s.db, t)
		if err != nil {
			return err
		}

		*out += fmt.Sprintf("\n--- [[%s]] ---\n%s", t, body)

		if err := s.appendFollowed(ctx, t, depth-1, visited, out); err != nil {
			return err
		}
	}

	return nil
}

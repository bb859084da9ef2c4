package kaybee

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// Write is the engine's sole write path (spec.md 4.5). It normalizes
// name, parses frontmatter from text, runs structural validation,
// upserts the node, re-syncs its outgoing links, re-resolves affected
// links, and appends a changelog entry - all inside one transaction,
// so a failure at any step leaves the store exactly as it was (I8).
func (s *Store) Write(ctx context.Context, rawName, text string) error {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Write").Str("name", name).Msg("start")

	effectiveType, attrs, body := parseNodeText(text)

	if reservedTypeNames[effectiveType] {
		return wrap(fmt.Errorf("%w: %q is a reserved type name", ErrIllegalArgument, effectiveType),
			withOp("Write"), withName(name))
	}

	if s.validator != nil {
		if violations := s.validator.runStructural(effectiveType, name, attrs); len(violations) > 0 {
			return wrap(&ValidationError{Violations: violations}, withOp("Write"), withName(name))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Write"), withName(name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}
	defer tx.Rollback()

	prevType, hadPrev, err := lookupNodeType(ctx, tx, name)
	if err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	typeChanged := hadPrev && prevType != effectiveType

	if typeChanged {
		s.log.Warn().Str("op", "Write").Str("name", name).
			Str("old_type", prevType).Str("new_type", effectiveType).
			Msg("type change migrates node across backend storage")

		if err := s.backend.deleteRow(ctx, tx, prevType, name); err != nil {
			return wrap(err, withOp("Write"), withName(name))
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO nodes (name, type) VALUES (?, ?)`, name, effectiveType); err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	if err := s.backend.upsertRow(ctx, tx, effectiveType, name, body, attrs); err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	if effectiveType != ImplicitType {
		if err := ensureTypeRegistered(ctx, tx, effectiveType); err != nil {
			return wrap(err, withOp("Write"), withName(name))
		}
	}

	if err := s.syncOutgoingLinks(ctx, tx, name, body); err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	if err := s.reresolveLinksTo(ctx, tx, name); err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	if typeChanged {
		if err := s.appendChangelog(ctx, tx, OpNodeTypeChange, name, typeChangePayload{
			OldType: prevType, NewType: effectiveType, Body: body, Attrs: attrsToJSON(attrs),
		}); err != nil {
			return wrap(err, withOp("Write"), withName(name))
		}
	} else {
		if err := s.appendChangelog(ctx, tx, OpNodeWrite, name, writePayload{
			Type: effectiveType, Body: body, Attrs: attrsToJSON(attrs),
		}); err != nil {
			return wrap(err, withOp("Write"), withName(name))
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("Write"), withName(name))
	}

	s.log.Debug().Str("op", "Write").Str("name", name).Msg("ok")

	return nil
}

// Touch is a no-op when name already exists and content is empty;
// otherwise it behaves exactly as Write (spec.md 4.5, L4).
func (s *Store) Touch(ctx context.Context, rawName, content string) error {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Touch").Str("name", name).Msg("start")

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}

	if exists && content == "" {
		s.log.Debug().Str("op", "Touch").Str("name", name).Msg("no-op")

		return nil
	}

	return s.Write(ctx, name, content)
}

// Exists reports whether name (after normalization) has a node.
func (s *Store) Exists(ctx context.Context, rawName string) (bool, error) {
	name := Normalize(rawName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, wrap(ErrClosed, withOp("Exists"), withName(name))
	}

	_, ok, err := lookupNodeType(ctx, s.db, name)
	if err != nil {
		return false, wrap(err, withOp("Exists"), withName(name))
	}

	return ok, nil
}

// Read returns the reconstructed node text. depth=0 returns just the
// node itself; depth>0 performs the progressive, cycle-guarded
// traversal described in spec.md 4.10.
func (s *Store) Read(ctx context.Context, rawName string, depth int) (string, error) {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Read").Str("name", name).Int("depth", depth).Msg("start")

	if depth > 0 {
		return s.progressiveRead(ctx, name, depth)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", wrap(ErrClosed, withOp("Read"), withName(name))
	}

	return s.readOne(ctx, s.db, name)
}

// readOne loads and reconstructs a single node's text without any
// traversal. Caller must hold s.mu.
func (s *Store) readOne(ctx context.Context, x execer, name string) (string, error) {
	typ, ok, err := lookupNodeType(ctx, x, name)
	if err != nil {
		return "", wrap(err, withOp("Read"), withName(name))
	}

	if !ok {
		return "", wrap(ErrNotFound, withOp("Read"), withName(name))
	}

	content, attrs, found, err := s.backend.readRow(ctx, x, typ, name)
	if err != nil {
		return "", wrap(err, withOp("Read"), withName(name))
	}

	if !found {
		return "", wrap(ErrNotFound, withOp("Read"), withName(name))
	}

	return renderNodeText(typ, attrs, content), nil
}

// Rm deletes a node: its data row, its outgoing links, and any
// incoming resolved references (nulled, not deleted) (spec.md 4.5, P5).
func (s *Store) Rm(ctx context.Context, rawName string) error {
	name := Normalize(rawName)

	s.log.Debug().Str("op", "Rm").Str("name", name).Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Rm"), withName(name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}
	defer tx.Rollback()

	typ, ok, err := lookupNodeType(ctx, tx, name)
	if err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if !ok {
		return wrap(ErrNotFound, withOp("Rm"), withName(name))
	}

	if err := s.backend.deleteRow(ctx, tx, typ, name); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM _links WHERE source = ?`, name); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE _links SET target_resolved = NULL WHERE target_resolved = ?`, name); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE name = ?`, name); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if err := s.appendChangelog(ctx, tx, OpNodeRemove, name, rmPayload{Type: typ}); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("Rm"), withName(name))
	}

	s.log.Debug().Str("op", "Rm").Str("name", name).Msg("ok")

	return nil
}

// Mv renames old to new, preserving content and rewriting every link
// row that referenced old (spec.md 4.5, P4, S2).
func (s *Store) Mv(ctx context.Context, rawOld, rawNew string) error {
	oldName := Normalize(rawOld)
	newName := Normalize(rawNew)

	s.log.Debug().Str("op", "Mv").Str("name", oldName).Str("new_name", newName).Msg("start")

	if oldName == newName {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Mv"), withName(oldName))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}
	defer tx.Rollback()

	typ, ok, err := lookupNodeType(ctx, tx, oldName)
	if err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	if !ok {
		return wrap(ErrNotFound, withOp("Mv"), withName(oldName))
	}

	if _, exists, err := lookupNodeType(ctx, tx, newName); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	} else if exists {
		return wrap(ErrAlreadyExists, withOp("Mv"), withName(newName))
	}

	content, attrs, found, err := s.backend.readRow(ctx, tx, typ, oldName)
	if err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	if !found {
		return wrap(ErrNotFound, withOp("Mv"), withName(oldName))
	}

	if err := s.backend.deleteRow(ctx, tx, typ, oldName); err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE name = ?`, oldName); err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	if err := s.backend.upsertRow(ctx, tx, typ, newName, content, attrs); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO nodes (name, type) VALUES (?, ?)`, newName, typ); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	}

	if _, err := tx.ExecContext(ctx, `UPDATE _links SET source = ? WHERE source = ?`, newName, oldName); err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	// Re-resolve before redirecting incoming rows: a redirected row's raw
	// target still names oldName, so re-resolving it would null it.
	if err := s.reresolveLinksTo(ctx, tx, newName); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE _links SET target_resolved = ? WHERE target_resolved = ?`, newName, oldName); err != nil {
		return wrap(err, withOp("Mv"), withName(oldName))
	}

	if err := s.appendChangelog(ctx, tx, OpNodeMove, newName, mvPayload{
		OldName: oldName, Type: typ, Body: content, Attrs: attrsToJSON(attrs),
	}); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("Mv"), withName(newName))
	}

	s.log.Debug().Str("op", "Mv").Str("name", oldName).Str("new_name", newName).Msg("ok")

	return nil
}

// Cp copies src to dst as an independent node; outgoing links are
// re-extracted and re-resolved from the copied body (spec.md 4.5).
func (s *Store) Cp(ctx context.Context, rawSrc, rawDst string) error {
	src := Normalize(rawSrc)
	dst := Normalize(rawDst)

	s.log.Debug().Str("op", "Cp").Str("name", src).Str("dest", dst).Msg("start")

	if src == dst {
		return wrap(fmt.Errorf("%w: cannot copy %q to itself", ErrIllegalArgument, src), withOp("Cp"), withName(src))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Cp"), withName(src))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Cp"), withName(src))
	}
	defer tx.Rollback()

	typ, ok, err := lookupNodeType(ctx, tx, src)
	if err != nil {
		return wrap(err, withOp("Cp"), withName(src))
	}

	if !ok {
		return wrap(ErrNotFound, withOp("Cp"), withName(src))
	}

	if _, exists, err := lookupNodeType(ctx, tx, dst); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	} else if exists {
		return wrap(ErrAlreadyExists, withOp("Cp"), withName(dst))
	}

	content, attrs, found, err := s.backend.readRow(ctx, tx, typ, src)
	if err != nil {
		return wrap(err, withOp("Cp"), withName(src))
	}

	if !found {
		return wrap(ErrNotFound, withOp("Cp"), withName(src))
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO nodes (name, type) VALUES (?, ?)`, dst, typ); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	if err := s.backend.upsertRow(ctx, tx, typ, dst, content, attrs); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	if err := s.syncOutgoingLinks(ctx, tx, dst, content); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	if err := s.reresolveLinksTo(ctx, tx, dst); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	if err := s.appendChangelog(ctx, tx, OpNodeCopy, dst, cpPayload{
		Source: src, Type: typ, Body: content, Attrs: attrsToJSON(attrs),
	}); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("Cp"), withName(dst))
	}

	s.log.Debug().Str("op", "Cp").Str("name", src).Str("dest", dst).Msg("ok")

	return nil
}

// Ln creates an untyped node at dst carrying a single attribute
// link_target=src. src need not exist (a symlink can dangle exactly
// like a wikilink); dst must not already exist.
func (s *Store) Ln(ctx context.Context, rawSrc, rawDst string) error {
	src := Normalize(rawSrc)
	dst := Normalize(rawDst)

	s.log.Debug().Str("op", "Ln").Str("name", src).Str("dest", dst).Msg("start")

	if exists, err := s.Exists(ctx, dst); err != nil {
		return err
	} else if exists {
		return wrap(ErrAlreadyExists, withOp("Ln"), withName(dst))
	}

	var attrs frontmatter.Attrs
	attrs.Set("link_target", frontmatter.StringValue(src))

	text := renderNodeText(ImplicitType, attrs, "")

	return s.Write(ctx, dst, text)
}

// lookupNodeType returns the stored type for name and whether it exists.
func lookupNodeType(ctx context.Context, x interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, name string) (string, bool, error) {
	var typ string

	err := x.QueryRowContext(ctx, `SELECT type FROM nodes WHERE name = ?`, name).Scan(&typ)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return typ, true, nil
}

func attrsToJSON(attrs frontmatter.Attrs) map[string]any {
	out := make(map[string]any, attrs.Len())

	for _, e := range attrs.Entries() {
		switch e.Value.Kind {
		case frontmatter.List:
			out[e.Key] = e.Value.List
		case frontmatter.Map:
			m := make(map[string]string, len(e.Value.Map))
			for _, me := range e.Value.Map {
				m[me.Key] = me.Value
			}

			out[e.Key] = m
		default:
			out[e.Key] = e.Value.Scalar
		}
	}

	return out
}

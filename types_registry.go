package kaybee

import (
	"context"
	"database/sql"
	"fmt"
)

// AddType explicitly registers typeName. Registration is idempotent:
// calling AddType twice for the same name, or for a type a node write
// already auto-registered, leaves the registry unchanged. Every call
// still appends a type.add changelog entry (spec.md 3.1, core.py:596).
func (s *Store) AddType(ctx context.Context, typeName string) error {
	s.log.Debug().Str("op", "AddType").Str("type", typeName).Msg("start")

	if reservedTypeNames[typeName] {
		return wrap(fmt.Errorf("%w: %q is a reserved type name", ErrIllegalArgument, typeName),
			withOp("AddType"), withName(typeName))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("AddType"), withName(typeName))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("AddType"), withName(typeName))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO _types (type_name) VALUES (?)`, typeName); err != nil {
		return wrap(err, withOp("AddType"), withName(typeName))
	}

	if err := s.appendChangelog(ctx, tx, OpTypeAdd, typeName, struct{}{}); err != nil {
		return wrap(err, withOp("AddType"), withName(typeName))
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("AddType"), withName(typeName))
	}

	s.log.Debug().Str("op", "AddType").Str("type", typeName).Msg("ok")

	return nil
}

// RemoveType deregisters typeName. It is rejected with ErrTypeInUse
// while any node of that type still exists (I-nodes-before-types,
// spec.md 3.1/7, core.py:604-615); removing a type with no live nodes
// is a no-op on node data (P6).
func (s *Store) RemoveType(ctx context.Context, typeName string) error {
	s.log.Debug().Str("op", "RemoveType").Str("type", typeName).Msg("start")

	if reservedTypeNames[typeName] {
		return wrap(fmt.Errorf("%w: %q is a reserved type name", ErrIllegalArgument, typeName),
			withOp("RemoveType"), withName(typeName))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("RemoveType"), withName(typeName))
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE type = ?`, typeName).Scan(&count); err != nil {
		return wrap(err, withOp("RemoveType"), withName(typeName))
	}

	if count > 0 {
		s.log.Warn().Str("op", "RemoveType").Str("type", typeName).Int("node_count", count).
			Msg("refusing to remove type still in use")

		return wrap(ErrTypeInUse, withOp("RemoveType"), withName(typeName))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("RemoveType"), withName(typeName))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM _types WHERE type_name = ?`, typeName); err != nil {
		return wrap(err, withOp("RemoveType"), withName(typeName))
	}

	if err := s.appendChangelog(ctx, tx, OpTypeRemove, typeName, struct{}{}); err != nil {
		return wrap(err, withOp("RemoveType"), withName(typeName))
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, withOp("RemoveType"), withName(typeName))
	}

	s.log.Debug().Str("op", "RemoveType").Str("type", typeName).Msg("ok")

	return nil
}

// Types returns every registered type name, sorted, excluding the
// implicit type (core.py's types()). Grep and Tree source their type
// universe from this same registry via allTypesLocked.
func (s *Store) Types(ctx context.Context) ([]string, error) {
	s.log.Debug().Str("op", "Types").Msg("start")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Types"))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type_name FROM _types ORDER BY type_name`)
	if err != nil {
		return nil, wrap(err, withOp("Types"))
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, wrap(err, withOp("Types"))
		}

		out = append(out, t)
	}

	return out, wrap(rows.Err(), withOp("Types"))
}

// ensureTypeRegistered is called from Write to auto-register a node's
// type the first time it is seen (spec.md 3.1: "Writing a node with a
// new type auto-registers it"). Caller must hold a transaction.
func ensureTypeRegistered(ctx context.Context, tx *sql.Tx, typeName string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO _types (type_name) VALUES (?)`, typeName)

	return err
}

package kaybee

import (
	"context"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// pullInsert writes a node via the raw storage path, bypassing Write
// entirely: no validator, no link extraction, no changelog entry. This
// is the mechanism spec.md 4.9 requires for Pull so replicated rows
// never generate a push-back loop (P8).
func (s *Store) pullInsert(ctx context.Context, typ, name, content string, attrs frontmatter.Attrs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Pull"), withName(name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Pull"), withName(name))
	}
	defer tx.Rollback()

	if err := s.backend.upsertRow(ctx, tx, typ, name, content, attrs); err != nil {
		return wrap(err, withOp("Pull"), withName(name))
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO nodes (name, type) VALUES (?, ?)`, name, typ); err != nil {
		return wrap(err, withOp("Pull"), withName(name))
	}

	if typ != ImplicitType {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO _types (type_name) VALUES (?)`, typ); err != nil {
			return wrap(err, withOp("Pull"), withName(name))
		}
	}

	return tx.Commit()
}

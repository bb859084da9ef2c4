package kaybee

import (
	"context"
	"database/sql"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// contentRow is a (name, content) pair returned by backend.contentRows,
// used by Backlinks' symlink scan and by Grep.
type contentRow struct {
	Name    string
	Content string
}

// backend is the uniform storage API over the two physical layouts
// described in spec.md 4.4: upsert_row, delete_row, read_row, and
// content_rows. It operates purely on raw (type, name, content, attrs)
// data; the node engine owns everything above it (identity index,
// links, changelog).
type backend interface {
	mode() StorageMode

	// ensureTypeTable prepares whatever physical structure a new type
	// needs (its own table in multi mode; the shared _data and
	// _type_fields tables in single mode) before any row of that type
	// is written.
	ensureTypeTable(ctx context.Context, tx *sql.Tx, typ string) error

	upsertRow(ctx context.Context, tx *sql.Tx, typ, name, content string, attrs frontmatter.Attrs) error
	deleteRow(ctx context.Context, tx *sql.Tx, typ, name string) error
	readRow(ctx context.Context, x execer, typ, name string) (content string, attrs frontmatter.Attrs, found bool, err error)
	contentRows(ctx context.Context, x execer, typ string) ([]contentRow, error)
}

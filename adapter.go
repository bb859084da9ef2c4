package kaybee

import "context"

// AdapterConn is the remote connection contract the replicator
// requires: a way to obtain a cursor and a single final commit. The
// caller is responsible for the connection's lifetime and for rolling
// back on error - the replicator never swallows remote errors
// (spec.md 4.9, 7).
type AdapterConn interface {
	Cursor(ctx context.Context) (AdapterCursor, error)
	Commit() error
}

// AdapterCursor is the statement-execution contract: positional
// parameter binding, execute, and a fetch surface. This mirrors a
// Python DB-API 2.0 cursor, which is the shape spec.md's adapter
// contract is written against.
type AdapterCursor interface {
	Execute(ctx context.Context, query string, args ...any) error
	FetchAll() ([][]any, error)
	Columns() ([]string, error)
	Close() error
}

// Dialect isolates the three dialect assumptions the adapter contract
// makes (spec.md 4.9): an upsert keyed on a column set, an ALTER TABLE
// ADD COLUMN equivalent, and a table-existence probe. A real MySQL or
// Postgres adapter supplies its own Dialect; SQLiteDialect is the
// stand-in used to exercise the contract in this repository's tests,
// since the remote database itself is out of scope.
type Dialect interface {
	CreateTableSQL(table string, columns []string) string
	AddColumnSQL(table, column string) string
	TableExistsSQL(table string) (query string, args []any)
	UpsertSQL(table string, columns, keyColumns []string) string
	DeleteSQL(table string, keyColumns []string) string

	// ListTables and TableColumns back the pull side's schema
	// discovery; their SQL varies too much by dialect (information_schema
	// vs sqlite_master/PRAGMA) to express as a single template string.
	ListTables(ctx context.Context, cur AdapterCursor) ([]string, error)
	TableColumns(ctx context.Context, cur AdapterCursor, table string) ([]string, error)
}

// SQLiteDialect implements Dialect against a SQLite-backed remote
// store, standing in for the unspecified remote dialect in tests.
type SQLiteDialect struct{}

func (SQLiteDialect) CreateTableSQL(table string, columns []string) string {
	stmt := "CREATE TABLE IF NOT EXISTS " + quoteIdent(table) + " ("
	for i, c := range columns {
		if i > 0 {
			stmt += ", "
		}

		stmt += quoteIdent(c) + " TEXT"
	}

	return stmt + ")"
}

func (SQLiteDialect) AddColumnSQL(table, column string) string {
	return "ALTER TABLE " + quoteIdent(table) + " ADD COLUMN " + quoteIdent(column) + " TEXT"
}

func (SQLiteDialect) TableExistsSQL(table string) (string, []any) {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", []any{table}
}

func (SQLiteDialect) UpsertSQL(table string, columns, keyColumns []string) string {
	stmt := "INSERT OR REPLACE INTO " + quoteIdent(table) + " ("
	for i, c := range columns {
		if i > 0 {
			stmt += ", "
		}

		stmt += quoteIdent(c)
	}

	stmt += ") VALUES ("

	for i := range columns {
		if i > 0 {
			stmt += ", "
		}

		stmt += "?"
	}

	return stmt + ")"
}

func (SQLiteDialect) DeleteSQL(table string, keyColumns []string) string {
	stmt := "DELETE FROM " + quoteIdent(table) + " WHERE "
	for i, c := range keyColumns {
		if i > 0 {
			stmt += " AND "
		}

		stmt += quoteIdent(c) + " = ?"
	}

	return stmt
}

func (SQLiteDialect) ListTables(ctx context.Context, cur AdapterCursor) ([]string, error) {
	if err := cur.Execute(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`); err != nil {
		return nil, err
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))

	for _, r := range rows {
		if len(r) == 0 {
			continue
		}

		if name, ok := r[0].(string); ok {
			names = append(names, name)
		}
	}

	return names, nil
}

func (SQLiteDialect) TableColumns(ctx context.Context, cur AdapterCursor, table string) ([]string, error) {
	if err := cur.Execute(ctx, "PRAGMA table_info("+quoteIdent(table)+")"); err != nil {
		return nil, err
	}

	rows, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(rows))

	for _, r := range rows {
		if len(r) < 2 {
			continue
		}

		if name, ok := r[1].(string); ok {
			cols = append(cols, name)
		}
	}

	return cols, nil
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

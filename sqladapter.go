package kaybee

import (
	"context"
	"database/sql"
	"strings"
)

// NewSQLiteAdapterConn opens conn as a replicator AdapterConn backed by
// a SQLite database, standing in for the unspecified remote relational
// store (spec.md explicitly scopes that database itself out; only the
// adapter contract is specified).
func NewSQLiteAdapterConn(ctx context.Context, db *sql.DB) (AdapterConn, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &sqliteAdapterConn{tx: tx}, nil
}

type sqliteAdapterConn struct {
	tx *sql.Tx
}

func (c *sqliteAdapterConn) Cursor(context.Context) (AdapterCursor, error) {
	return &sqliteAdapterCursor{tx: c.tx}, nil
}

func (c *sqliteAdapterConn) Commit() error { return c.tx.Commit() }

type sqliteAdapterCursor struct {
	tx   *sql.Tx
	rows *sql.Rows
	cols []string
}

func isSelectLike(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))

	return strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "PRAGMA")
}

func (c *sqliteAdapterCursor) Execute(ctx context.Context, query string, args ...any) error {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}

	if isSelectLike(query) {
		rows, err := c.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}

		cols, err := rows.Columns()
		if err != nil {
			rows.Close()

			return err
		}

		c.rows = rows
		c.cols = cols

		return nil
	}

	_, err := c.tx.ExecContext(ctx, query, args...)

	return err
}

func (c *sqliteAdapterCursor) FetchAll() ([][]any, error) {
	if c.rows == nil {
		return nil, nil
	}
	defer func() {
		c.rows.Close()
		c.rows = nil
	}()

	var out [][]any

	for c.rows.Next() {
		dest := make([]any, len(c.cols))
		ptrs := make([]any, len(c.cols))

		for i := range dest {
			ptrs[i] = &dest[i]
		}

		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make([]any, len(dest))

		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}

		out = append(out, row)
	}

	return out, c.rows.Err()
}

func (c *sqliteAdapterCursor) Columns() ([]string, error) {
	return c.cols, nil
}

func (c *sqliteAdapterCursor) Close() error {
	if c.rows != nil {
		err := c.rows.Close()
		c.rows = nil

		return err
	}

	return nil
}

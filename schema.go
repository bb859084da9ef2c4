package kaybee

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sanitizeIdentifier maps an arbitrary type or attribute name to a safe
// SQL identifier by replacing every character outside [A-Za-z0-9_] with
// '_'. This is safe because the set of identifiers admitted into the
// store is bounded: reserved names are rejected before they ever reach
// here (I5), and any residual keyword collision surfaces as the
// storage driver's error rather than silent data loss (spec.md 4.4).
func sanitizeIdentifier(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// execer is the subset of *sql.Tx/*sql.DB this package's schema helpers
// need, letting them run inside a transaction or directly on the pool.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns returns the set of existing column names for table, via
// PRAGMA table_info. An empty result (not an error) means the table
// does not exist yet.
func tableColumns(ctx context.Context, x execer, table string) (map[string]bool, error) {
	rows, err := x.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			pk         int
		)

		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}

		cols[name] = true
	}

	return cols, rows.Err()
}

// ensureColumn adds column col of type TEXT to table if it is not
// already present, per the "columns added lazily on first appearance"
// rule (spec.md 4.4).
func ensureColumn(ctx context.Context, x execer, table, col string) error {
	existing, err := tableColumns(ctx, x, table)
	if err != nil {
		return err
	}

	if existing[col] {
		return nil
	}

	_, err = x.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %q ADD COLUMN %q TEXT", table, col))

	return err
}

// ensureTable creates table with the given base columns (each "name
// type", e.g. "name TEXT PRIMARY KEY") if it does not already exist.
func ensureTable(ctx context.Context, x execer, table string, baseColumns []string) error {
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table, strings.Join(baseColumns, ", "))
	_, err := x.ExecContext(ctx, stmt)

	return err
}

package kaybee

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// multiBackend implements the "one physical table per type" storage
// mode: each type (including the implicit "kaybee" type) gets its own
// table, columns added lazily as new attribute keys appear.
type multiBackend struct{}

func (multiBackend) mode() StorageMode { return ModeMulti }

func (multiBackend) typeTable(typ string) string {
	return sanitizeIdentifier(typ)
}

func (b multiBackend) ensureTypeTable(ctx context.Context, tx *sql.Tx, typ string) error {
	return ensureTable(ctx, tx, b.typeTable(typ), []string{"name TEXT PRIMARY KEY", "content TEXT"})
}

func (b multiBackend) upsertRow(ctx context.Context, tx *sql.Tx, typ, name, content string, attrs frontmatter.Attrs) error {
	table := b.typeTable(typ)

	if err := ensureTable(ctx, tx, table, []string{"name TEXT PRIMARY KEY", "content TEXT"}); err != nil {
		return err
	}

	cols := []string{"name", "content"}
	vals := []any{name, content}

	for _, e := range attrs.Entries() {
		col := sanitizeIdentifier(e.Key)
		if err := ensureColumn(ctx, tx, table, col); err != nil {
			return err
		}

		cols = append(cols, col)
		vals = append(vals, encodeAttrValue(e.Value))
	}

	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))

	for i, c := range cols {
		placeholders[i] = "?"
		quoted[i] = fmt.Sprintf("%q", c)
	}

	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	_, err := tx.ExecContext(ctx, stmt, vals...)

	return err
}

func (b multiBackend) deleteRow(ctx context.Context, tx *sql.Tx, typ, name string) error {
	table := b.typeTable(typ)

	cols, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}

	if len(cols) == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE name = ?", table), name)

	return err
}

func (b multiBackend) readRow(ctx context.Context, x execer, typ, name string) (string, frontmatter.Attrs, bool, error) {
	table := b.typeTable(typ)

	cols, err := tableColumns(ctx, x, table)
	if err != nil {
		return "", frontmatter.Attrs{}, false, err
	}

	if len(cols) == 0 {
		return "", frontmatter.Attrs{}, false, nil
	}

	colNames := make([]string, 0, len(cols))
	for c := range cols {
		if c == "name" {
			continue
		}

		colNames = append(colNames, c)
	}

	selectCols := append([]string{"content"}, colNames...)

	quoted := make([]string, len(selectCols))
	for i, c := range selectCols {
		quoted[i] = fmt.Sprintf("%q", c)
	}

	stmt := fmt.Sprintf("SELECT %s FROM %q WHERE name = ?", strings.Join(quoted, ", "), table)

	rows, err := x.QueryContext(ctx, stmt, name)
	if err != nil {
		return "", frontmatter.Attrs{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", frontmatter.Attrs{}, false, rows.Err()
	}

	scanDest := make([]any, len(selectCols))
	scanVals := make([]sql.NullString, len(selectCols))

	for i := range scanDest {
		scanDest[i] = &scanVals[i]
	}

	if err := rows.Scan(scanDest...); err != nil {
		return "", frontmatter.Attrs{}, false, err
	}

	var attrs frontmatter.Attrs

	content := scanVals[0].String

	for i := 1; i < len(selectCols); i++ {
		if !scanVals[i].Valid {
			continue
		}

		attrs.Set(colNames[i-1], decodeAttrValue(scanVals[i].String))
	}

	return content, attrs, true, nil
}

func (b multiBackend) contentRows(ctx context.Context, x execer, typ string) ([]contentRow, error) {
	table := b.typeTable(typ)

	cols, err := tableColumns(ctx, x, table)
	if err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		return nil, nil
	}

	rows, err := x.QueryContext(ctx, fmt.Sprintf("SELECT name, content FROM %q", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contentRow

	for rows.Next() {
		var r contentRow

		if err := rows.Scan(&r.Name, &r.Content); err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

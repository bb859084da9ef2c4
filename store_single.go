package kaybee

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// singleDataTable and singleFieldsTable are the two physical tables of
// the "single wide table" storage mode.
const (
	singleDataTable   = "_data"
	singleFieldsTable = "_type_fields"
)

// singleBackend implements the "one wide, sparse table for all nodes"
// storage mode, with a side table recording which attribute keys
// belong to which type so reads can project only the relevant columns.
type singleBackend struct{}

func (singleBackend) mode() StorageMode { return ModeSingle }

func (singleBackend) ensureTypeTable(ctx context.Context, tx *sql.Tx, typ string) error {
	if err := ensureTable(ctx, tx, singleDataTable, []string{"name TEXT PRIMARY KEY", "content TEXT"}); err != nil {
		return err
	}

	return ensureTable(ctx, tx, singleFieldsTable, []string{
		"type_name TEXT NOT NULL", "field_name TEXT NOT NULL", "PRIMARY KEY (type_name, field_name)",
	})
}

func (b singleBackend) registerField(ctx context.Context, tx *sql.Tx, typ, field string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+singleFieldsTable+` (type_name, field_name) VALUES (?, ?)`, typ, field)

	return err
}

func (b singleBackend) typeFields(ctx context.Context, x execer, typ string) (map[string]bool, error) {
	exists, err := tableColumns(ctx, x, singleFieldsTable)
	if err != nil {
		return nil, err
	}

	if len(exists) == 0 {
		return nil, nil
	}

	rows, err := x.QueryContext(ctx, `SELECT field_name FROM `+singleFieldsTable+` WHERE type_name = ?`, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make(map[string]bool)

	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}

		fields[f] = true
	}

	return fields, rows.Err()
}

func (b singleBackend) upsertRow(ctx context.Context, tx *sql.Tx, typ, name, content string, attrs frontmatter.Attrs) error {
	if err := b.ensureTypeTable(ctx, tx, typ); err != nil {
		return err
	}

	cols := []string{"name", "content"}
	vals := []any{name, content}

	for _, e := range attrs.Entries() {
		col := sanitizeIdentifier(e.Key)
		if err := ensureColumn(ctx, tx, singleDataTable, col); err != nil {
			return err
		}

		if err := b.registerField(ctx, tx, typ, col); err != nil {
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
		singleDataTable, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	_, err := tx.ExecContext(ctx, stmt, vals...)

	return err
}

func (b singleBackend) deleteRow(ctx context.Context, tx *sql.Tx, typ, name string) error {
	exists, err := tableColumns(ctx, tx, singleDataTable)
	if err != nil {
		return err
	}

	if len(exists) == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM `+singleDataTable+` WHERE name = ?`, name)

	return err
}

func (b singleBackend) readRow(ctx context.Context, x execer, typ, name string) (string, frontmatter.Attrs, bool, error) {
	exists, err := tableColumns(ctx, x, singleDataTable)
	if err != nil {
		return "", frontmatter.Attrs{}, false, err
	}

	if len(exists) == 0 {
		return "", frontmatter.Attrs{}, false, nil
	}

	fields, err := b.typeFields(ctx, x, typ)
	if err != nil {
		return "", frontmatter.Attrs{}, false, err
	}

	colNames := make([]string, 0, len(fields))

	for f := range fields {
		if exists[f] {
			colNames = append(colNames, f)
		}
	}

	selectCols := append([]string{"content"}, colNames...)

	quoted := make([]string, len(selectCols))
	for i, c := range selectCols {
		quoted[i] = fmt.Sprintf("%q", c)
	}

	stmt := fmt.Sprintf("SELECT %s FROM %q WHERE name = ?", strings.Join(quoted, ", "), singleDataTable)

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

func (b singleBackend) contentRows(ctx context.Context, x execer, typ string) ([]contentRow, error) {
	exists, err := tableColumns(ctx, x, singleDataTable)
	if err != nil {
		return nil, err
	}

	if len(exists) == 0 {
		return nil, nil
	}

	// content_rows(type) must be scoped to nodes of that type; the wide
	// table holds every type, so join through the identity index.
	rows, err := x.QueryContext(ctx,
		`SELECT d.name, d.content FROM `+singleDataTable+` d JOIN nodes n ON n.name = d.name WHERE n.type = ?`, typ)
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

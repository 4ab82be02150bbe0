package orm

import (
	"database/sql"
	"slices"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// ScanRow reads the current row of rows into a Row. Driver []byte values
// are converted to string so that text columns compare equal across drivers.
func ScanRow(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		if b, ok := vals[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = vals[i]
	}
	return row, nil
}

// RowColumnValues is the ColumnValueFunc for Row. Columns are emitted in
// sorted order so generated statements are deterministic.
func RowColumnValues(r *Row, _ bool) ([]string, []any) {
	cols := r.Columns()
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = (*r)[c]
	}
	return cols, vals
}

package storage

import (
	"database/sql"
	"errors"
)

// ErrNoSuchTable is returned by Repository.Columns when the table does not exist.
var ErrNoSuchTable = errors.New("storage: no such table")

// ScanResult drains a database/sql result into a ResultSet and closes rows.
// Shared by the database/sql backends (sqlite, mssql).
func ScanResult(rows *sql.Rows) (*ResultSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = NormalizeValue(vals[i])
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, rows.Err()
}

// Package report reads loaded tables back and summarizes missing values.
package report

import (
	"context"
	"fmt"
	"regexp"

	"rewardsetl/internal/storage"
)

// SheetName is the only sheet of the missing-values workbook.
const SheetName = "Missing Values"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Frame is a whole table held in memory.
type Frame struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// ReadTable loads every row of table. The table must exist.
func ReadTable(ctx context.Context, repo storage.Repository, table string) (*Frame, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if _, err := repo.Columns(ctx, table); err != nil {
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}
	rs, err := repo.Query(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}
	return &Frame{Table: table, Columns: rs.Columns, Rows: rs.Rows}, nil
}

// ColumnMissing is one line of a missing-values report.
type ColumnMissing struct {
	Column  string
	Missing int
	// Percent is 100*Missing/Rows, or 0 for an empty table.
	Percent float64
}

type MissingReport struct {
	Table   string
	Rows    int
	Columns []ColumnMissing
}

// MissingValues counts NULLs per column, in column order.
func MissingValues(f *Frame) MissingReport {
	rep := MissingReport{Table: f.Table, Rows: len(f.Rows)}
	counts := make([]int, len(f.Columns))
	for _, row := range f.Rows {
		for i := range f.Columns {
			if i >= len(row) || row[i] == nil {
				counts[i]++
			}
		}
	}
	for i, c := range f.Columns {
		cm := ColumnMissing{Column: c, Missing: counts[i]}
		if rep.Rows > 0 {
			cm.Percent = 100 * float64(counts[i]) / float64(rep.Rows)
		}
		rep.Columns = append(rep.Columns, cm)
	}
	return rep
}

// OutputPath is the workbook path for an output prefix.
func OutputPath(prefix string) string {
	return prefix + "_missing_values_report.xlsx"
}

// TableSpec lives here so the loaders and every backend package can import it
// without circular deps.
package storage

import (
	"fmt"
	"strings"
)

// Logical column types. Backends map them to native types.
const (
	TypeText    = "TEXT"
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
)

// Conflict policies for LoadSpec.Conflict.
const (
	ConflictNone    = ""
	ConflictReplace = "replace"
)

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	ForeignKeys []ForeignKeySpec `json:"foreign_keys,omitempty"`
	Load        LoadSpec         `json:"load"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // "serial" for an auto-generated key, otherwise a logical type
}

type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

type ForeignKeySpec struct {
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
}

type LoadSpec struct {
	Conflict string `json:"conflict,omitempty"` // "" | "replace"
}

// Serial reports whether the primary key is generated by the store.
func (p *PrimaryKeySpec) Serial() bool {
	if p == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "serial", "bigserial", "identity":
		return true
	}
	return false
}

// ColumnNames returns the declared column names, primary key first.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		out = append(out, t.PrimaryKey.Name)
	}
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// ReplaceKey returns the conflict target for replace loads: the primary key
// column when the table has a caller-supplied key and Conflict is replace.
func (t TableSpec) ReplaceKey() (string, bool) {
	if t.Load.Conflict != ConflictReplace || t.PrimaryKey == nil || t.PrimaryKey.Serial() {
		return "", false
	}
	return t.PrimaryKey.Name, true
}

// Validate checks the spec for problems every backend would reject.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	seen := map[string]bool{}
	for _, n := range t.ColumnNames() {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			return fmt.Errorf("table %s: column name is empty", t.Name)
		}
		if seen[k] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, n)
		}
		seen[k] = true
	}
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Type) == "" {
			return fmt.Errorf("table %s: column %s type is empty", t.Name, c.Name)
		}
	}
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.RefColumns) || fk.RefTable == "" {
			return fmt.Errorf("table %s: malformed foreign key %v", t.Name, fk)
		}
	}
	if len(seen) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	return nil
}

// CheckRows verifies that every row has one value per column.
func CheckRows(table string, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("load %s: no columns", table)
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("load %s: row %d has %d values, want %d", table, i, len(r), len(columns))
		}
	}
	return nil
}

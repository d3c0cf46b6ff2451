// Package schema infers the column catalog of the receipt line-item table.
//
// Inference is a single pass over every item of every record. The first value
// seen for a field fixes its kind; a later value of a different kind widens the
// column to TEXT for good. Column order is discovery order.
package schema

import (
	"encoding/json"
	"strings"

	"rewardsetl/pkg/records"
)

// Kind is the scalar column kind of an inferred column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
)

// String returns the SQL type name used in the generated DDL.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Column is one inferred column.
type Column struct {
	Name string
	Kind Kind
}

// Catalog is an ordered name -> kind mapping.
type Catalog struct {
	cols []Column
	idx  map[string]int
}

// NewCatalog builds a catalog from explicit columns. Later duplicates are
// merged with the same widening rule Observe applies.
func NewCatalog(cols ...Column) *Catalog {
	c := &Catalog{idx: make(map[string]int, len(cols))}
	for _, col := range cols {
		c.Observe(col.Name, col.Kind)
	}
	return c
}

// Observe records one sighting of field name with kind k.
func (c *Catalog) Observe(name string, k Kind) {
	if c.idx == nil {
		c.idx = make(map[string]int)
	}
	i, ok := c.idx[name]
	if !ok {
		c.idx[name] = len(c.cols)
		c.cols = append(c.cols, Column{Name: name, Kind: k})
		return
	}
	if c.cols[i].Kind != k {
		c.cols[i].Kind = KindText
	}
}

// Columns returns a copy of the columns in discovery order.
func (c *Catalog) Columns() []Column {
	if c == nil {
		return nil
	}
	return append([]Column(nil), c.cols...)
}

// Names returns the column names in discovery order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.cols))
	for i, col := range c.cols {
		out[i] = col.Name
	}
	return out
}

// Lookup returns the kind of a column.
func (c *Catalog) Lookup(name string) (Kind, bool) {
	if c == nil {
		return KindText, false
	}
	i, ok := c.idx[name]
	if !ok {
		return KindText, false
	}
	return c.cols[i].Kind, true
}

// Len returns the number of columns.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.cols)
}

// String renders the catalog as "name KIND, name KIND".
func (c *Catalog) String() string {
	if c == nil {
		return ""
	}
	parts := make([]string, len(c.cols))
	for i, col := range c.cols {
		parts[i] = col.Name + " " + col.Kind.String()
	}
	return strings.Join(parts, ", ")
}

// Classify maps one decoded JSON value to a column kind.
// Strings are TEXT, integer literals INTEGER, other numbers REAL; null,
// booleans, objects and arrays are TEXT.
func Classify(v any) Kind {
	switch t := v.(type) {
	case string:
		return KindText
	case json.Number:
		if records.IsIntegerLiteral(t) {
			return KindInteger
		}
		return KindReal
	case int, int32, int64:
		return KindInteger
	case float32, float64:
		return KindReal
	default:
		return KindText
	}
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - EnforceForeignKeys turns on foreign key enforcement where the backend
//     supports toggling it (SQLite PRAGMA foreign_keys). Backends without a
//     toggle only declare foreign keys when it is set.
type Config struct {
	Kind               string
	DSN                string
	EnforceForeignKeys bool
}

// Repository is the backend-agnostic relational store used by the loaders,
// the report layer and the inspection tools.
//
// Each backend implements these semantics in its own idiomatic way
// (SQLite INSERT OR REPLACE, Postgres ON CONFLICT DO UPDATE, SQL Server MERGE).
type Repository interface {
	// Close releases backend resources. Call once.
	Close() error

	// DropTables drops each named table if it exists, in the given order.
	DropTables(ctx context.Context, names ...string) error

	// EnsureTables creates tables that do not exist yet.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Load writes rows into spec.Name inside one transaction and returns the
	// number of rows written. With Load.Conflict == ConflictReplace a row whose
	// primary key already exists overwrites the stored row. Any error rolls
	// the whole batch back.
	Load(ctx context.Context, spec TableSpec, columns []string, rows [][]any) (int64, error)

	// Columns describes the columns of table in declaration order.
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)

	// Query runs a read-only statement and materializes the result.
	Query(ctx context.Context, query string, args ...any) (*ResultSet, error)
}

// ColumnInfo is one row of column metadata, shaped like SQLite's
// PRAGMA table_info output.
type ColumnInfo struct {
	ID      int
	Name    string
	Type    string
	NotNull bool
	Default *string
	PK      int
}

// ResultSet is a fully materialized query result. Values are normalized with
// NormalizeValue.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

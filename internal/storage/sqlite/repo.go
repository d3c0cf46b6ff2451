package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"rewardsetl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - Column types are written verbatim (TEXT, INTEGER, REAL), so the stored
//     schema matches the logical table specs exactly.
//   - Foreign keys are always declared. SQLite only enforces them when
//     PRAGMA foreign_keys=ON, which is set when cfg.EnforceForeignKeys is true.
//   - The pool is capped at one connection so per-connection PRAGMAs stick and
//     ":memory:" databases behave as a single database.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.EnforceForeignKeys {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
		}
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() error { return r.db.Close() }

// DropTables drops each table if it exists. Callers drop children before parents.
func (r *Repo) DropTables(ctx context.Context, names ...string) error {
	for _, n := range names {
		if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(n)); err != nil {
			return fmt.Errorf("drop table %s: %w", n, err)
		}
	}
	return nil
}

// EnsureTables creates each table with CREATE TABLE IF NOT EXISTS.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Load inserts rows with one prepared statement inside one transaction.
//
// If the spec asks for replace-on-conflict, uses "INSERT OR REPLACE", which
// relies on the PRIMARY KEY declared on the destination table.
func (r *Repo) Load(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(spec.Name, columns, rows); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, buildInsertSQL(spec, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert %s: %w", spec.Name, err)
	}
	defer stmt.Close()

	var n int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("insert %s row %d: %w", spec.Name, i, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Columns reads PRAGMA table_info for table.
func (r *Repo) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, sqlIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var (
			c       storage.ColumnInfo
			notNull int
			dflt    sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &notNull, &dflt, &c.PK); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		if dflt.Valid {
			s := dflt.String
			c.Default = &s
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sqlite: %s: %w", table, storage.ErrNoSuchTable)
	}
	return out, nil
}

func (r *Repo) Query(ctx context.Context, query string, args ...any) (*storage.ResultSet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return storage.ScanResult(rows)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}

// buildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
//
// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and
// auto-generates values, so serial keys map to INTEGER PRIMARY KEY AUTOINCREMENT.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var parts []string
	if pk := t.PrimaryKey; pk != nil {
		if pk.Serial() {
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(pk.Name)))
		} else {
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(pk.Name), pk.Type))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), c.Type)
		if c.Nullable != nil && !*c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	for _, fk := range t.ForeignKeys {
		parts = append(parts, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
			joinIdentList(fk.Columns), sqlIdent(fk.RefTable), joinIdentList(fk.RefColumns)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

// buildInsertSQL renders a single-row insert with ? placeholders.
func buildInsertSQL(spec storage.TableSpec, columns []string) string {
	prefix := "INSERT INTO "
	if _, ok := spec.ReplaceKey(); ok {
		prefix = "INSERT OR REPLACE INTO "
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	return fmt.Sprintf("%s%s (%s) VALUES (%s)", prefix, sqlIdent(spec.Name), joinIdentList(columns), placeholders)
}

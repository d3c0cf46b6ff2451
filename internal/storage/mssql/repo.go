package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rewardsetl/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Type mapping:
//   - TEXT    -> NVARCHAR(MAX), or NVARCHAR(450) for key columns (index limit)
//   - INTEGER -> BIGINT
//   - REAL    -> FLOAT
//   - serial  -> BIGINT IDENTITY(1,1)
//
// Replace-on-conflict loads are one MERGE per row with HOLDLOCK, inside a
// single transaction.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The application
//     registers the "sqlserver" driver elsewhere (see internal/storage/all).
type Repo struct {
	db        dbConn
	enforceFK bool
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, enforceFK: cfg.EnforceForeignKeys}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repo) DropTables(ctx context.Context, names ...string) error {
	for _, n := range names {
		q := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", escapeLiteral(n), mssqlTableIdent(n))
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: drop table %s: %w", n, err)
		}
	}
	return nil
}

// EnsureTables creates each missing table behind an OBJECT_ID guard.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		q, err := buildCreateSQL(t, r.enforceFK)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Load writes rows inside one transaction. Replace loads use MERGE; other
// loads use a plain INSERT.
func (r *Repo) Load(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(spec.Name, columns, rows); err != nil {
		return 0, err
	}

	q := buildInsertSQL(spec, columns)
	if key, ok := spec.ReplaceKey(); ok {
		q = buildMergeSQL(spec.Name, key, columns)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, q, row...); err != nil {
			return 0, fmt.Errorf("mssql: insert %s row %d: %w", spec.Name, i, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

const columnsSQL = `
SELECT c.ORDINAL_POSITION - 1,
       c.COLUMN_NAME,
       UPPER(c.DATA_TYPE),
       CASE WHEN c.IS_NULLABLE = 'NO' THEN 1 ELSE 0 END,
       c.COLUMN_DEFAULT,
       CASE WHEN k.COLUMN_NAME IS NULL THEN 0 ELSE 1 END
FROM INFORMATION_SCHEMA.COLUMNS c
LEFT JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
       ON tc.TABLE_SCHEMA = c.TABLE_SCHEMA
      AND tc.TABLE_NAME = c.TABLE_NAME
      AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
       ON k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
      AND k.TABLE_NAME = c.TABLE_NAME
      AND k.COLUMN_NAME = c.COLUMN_NAME
WHERE c.TABLE_NAME = @p1
ORDER BY c.ORDINAL_POSITION`

// Columns reads INFORMATION_SCHEMA and shapes it like PRAGMA table_info.
func (r *Repo) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := r.db.QueryContext(ctx, columnsSQL, table)
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
		return nil, fmt.Errorf("mssql: %s: %w", table, storage.ErrNoSuchTable)
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

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.receipts" -> [dbo].[receipts]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func escapeLiteral(s string) string { return strings.ReplaceAll(s, "'", "''") }

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, mssqlIdent(c))
	}
	return strings.Join(out, ", ")
}

func mssqlType(typ string, key bool) string {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case storage.TypeText:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "FLOAT"
	default:
		return typ
	}
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard so EnsureTables
// stays idempotent without IF NOT EXISTS syntax.
func buildCreateSQL(t storage.TableSpec, withForeignKeys bool) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("mssql: %w", err)
	}

	// Columns referenced by a declared foreign key must be indexable too.
	fkCols := map[string]bool{}
	if withForeignKeys {
		for _, fk := range t.ForeignKeys {
			for _, c := range fk.Columns {
				fkCols[strings.ToLower(c)] = true
			}
		}
	}

	var parts []string
	if pk := t.PrimaryKey; pk != nil {
		if pk.Serial() {
			parts = append(parts, fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), mssqlType(pk.Type, true)))
		}
	}

	for _, c := range t.Columns {
		def := mssqlIdent(c.Name) + " " + mssqlType(c.Type, fkCols[strings.ToLower(c.Name)])
		if c.Nullable != nil && !*c.Nullable {
			def += " NOT NULL"
		} else {
			def += " NULL"
		}
		parts = append(parts, def)
	}

	if withForeignKeys {
		for _, fk := range t.ForeignKeys {
			parts = append(parts, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				joinIdentList(fk.Columns), mssqlTableIdent(fk.RefTable), joinIdentList(fk.RefColumns)))
		}
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		escapeLiteral(t.Name),
		mssqlTableIdent(t.Name),
		strings.Join(parts, ", "),
	), nil
}

func placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("@p%d", i+1)
	}
	return out
}

func buildInsertSQL(spec storage.TableSpec, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		mssqlTableIdent(spec.Name), joinIdentList(columns), strings.Join(placeholders(len(columns)), ", "))
}

// buildMergeSQL renders a single-row upsert keyed on key:
//
//	MERGE INTO [t] WITH (HOLDLOCK) AS tgt
//	USING (SELECT @p1 AS [k], @p2 AS [c]) AS src ON tgt.[k] = src.[k]
//	WHEN MATCHED THEN UPDATE SET tgt.[c] = src.[c]
//	WHEN NOT MATCHED THEN INSERT ([k], [c]) VALUES (src.[k], src.[c]);
func buildMergeSQL(table, key string, columns []string) string {
	ph := placeholders(len(columns))
	src := make([]string, len(columns))
	vals := make([]string, len(columns))
	var sets []string
	for i, c := range columns {
		src[i] = fmt.Sprintf("%s AS %s", ph[i], mssqlIdent(c))
		vals[i] = "src." + mssqlIdent(c)
		if !strings.EqualFold(c, key) {
			sets = append(sets, fmt.Sprintf("tgt.%s = src.%s", mssqlIdent(c), mssqlIdent(c)))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS tgt USING (SELECT %s) AS src ON tgt.%s = src.%s",
		mssqlTableIdent(table), strings.Join(src, ", "), mssqlIdent(key), mssqlIdent(key))
	if len(sets) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", joinIdentList(columns), strings.Join(vals, ", "))
	return b.String()
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is a small interface over *sql.Tx used for testability.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)

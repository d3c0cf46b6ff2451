package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"rewardsetl/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Identifiers are lowercased before quoting. The fixed business queries use
unquoted mixed-case names (rewardsReceiptStatus), which Postgres folds to
lowercase, so lowercased tables and columns keep those queries working.

Replace-on-conflict loads use INSERT ... ON CONFLICT (key) DO UPDATE inside a
single transaction, sent as one pgx batch.
*/
type Repo struct {
	pool      *pgxpool.Pool
	enforceFK bool
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, enforceFK: cfg.EnforceForeignKeys}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) DropTables(ctx context.Context, names ...string) error {
	for _, n := range names {
		if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(n)); err != nil {
			return fmt.Errorf("drop table %s: %w", n, err)
		}
	}
	return nil
}

// EnsureTables creates each table with CREATE TABLE IF NOT EXISTS.
// Foreign keys are declared only when enforcement is enabled; Postgres has
// no switch to declare a constraint without enforcing it.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t, r.enforceFK)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Load queues one INSERT per row in a pgx.Batch inside a transaction.
func (r *Repo) Load(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(spec.Name, columns, rows); err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := buildInsertSQL(spec, columns)
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(q, row...)
	}

	br := tx.SendBatch(ctx, batch)
	var n int64
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert %s row %d: %w", spec.Name, i, err)
		}
		n++
	}
	if err := br.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

const columnsSQL = `
SELECT c.ordinal_position - 1,
       c.column_name,
       upper(c.data_type),
       c.is_nullable = 'NO',
       c.column_default,
       CASE WHEN k.column_name IS NULL THEN 0 ELSE 1 END
FROM information_schema.columns c
LEFT JOIN information_schema.table_constraints tc
       ON tc.table_schema = c.table_schema
      AND tc.table_name = c.table_name
      AND tc.constraint_type = 'PRIMARY KEY'
LEFT JOIN information_schema.key_column_usage k
       ON k.constraint_name = tc.constraint_name
      AND k.table_schema = c.table_schema
      AND k.table_name = c.table_name
      AND k.column_name = c.column_name
WHERE c.table_schema = current_schema()
  AND c.table_name = $1
ORDER BY c.ordinal_position`

// Columns reads information_schema and shapes it like PRAGMA table_info.
func (r *Repo) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := r.pool.Query(ctx, columnsSQL, strings.ToLower(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var c storage.ColumnInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.NotNull, &c.Default, &c.PK); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: %s: %w", table, storage.ErrNoSuchTable)
	}
	return out, nil
}

func (r *Repo) Query(ctx context.Context, query string, args ...any) (*storage.ResultSet, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &storage.ResultSet{}
	for _, fd := range rows.FieldDescriptions() {
		out.Columns = append(out.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = normalize(vals[i])
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, rows.Err()
}

// normalize maps pgx-specific values onto the plain Go values the report
// layer expects. AVG over BIGINT returns NUMERIC, for example.
func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return storage.NormalizeValue(v)
}

// pgIdent lowercases and double-quotes an identifier.
func pgIdent(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}

// pgType maps logical column types onto Postgres types. Unknown types pass
// through verbatim.
func pgType(typ string) string {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case storage.TypeText:
		return "TEXT"
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "DOUBLE PRECISION"
	default:
		return typ
	}
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS for t.
//
// Primary key handling:
//   - serial keys become BIGSERIAL PRIMARY KEY.
//   - other keys use the mapped logical type with an inline PRIMARY KEY.
func buildCreateSQL(t storage.TableSpec, withForeignKeys bool) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var defs []string
	if pk := t.PrimaryKey; pk != nil {
		if pk.Serial() {
			defs = append(defs, fmt.Sprintf(`%s BIGSERIAL PRIMARY KEY`, pgIdent(pk.Name)))
		} else {
			defs = append(defs, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk.Name), pgType(pk.Type)))
		}
	}

	for _, c := range t.Columns {
		def := pgIdent(c.Name) + " " + pgType(c.Type)
		if c.Nullable != nil && !*c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	if withForeignKeys {
		for _, fk := range t.ForeignKeys {
			defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				joinIdentList(fk.Columns), pgIdent(fk.RefTable), joinIdentList(fk.RefColumns)))
		}
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgIdent(t.Name), strings.Join(defs, ", ")), nil
}

// buildInsertSQL constructs a single-row INSERT with $n placeholders.
//
// For replace loads it appends ON CONFLICT (key) DO UPDATE SET for every
// non-key column, or DO NOTHING when the key is the only column.
func buildInsertSQL(spec storage.TableSpec, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(spec.Name))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")

	key, ok := spec.ReplaceKey()
	if !ok {
		return b.String()
	}

	var sets []string
	for _, c := range columns {
		if strings.EqualFold(c, key) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c)))
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(key))
	if len(sets) == 0 {
		b.WriteString(") DO NOTHING")
	} else {
		b.WriteString(") DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	return b.String()
}

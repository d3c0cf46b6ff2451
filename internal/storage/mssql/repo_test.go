package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"rewardsetl/internal/storage"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeTx struct {
	queries    []string
	args       [][]any
	failAt     int
	committed  bool
	rolledBack bool
}

func (f *fakeTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	if f.failAt > 0 && len(f.queries) == f.failAt {
		return nil, errors.New("boom")
	}
	return fakeResult{}, nil
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	execs []string
}

func (f *fakeDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.execs = append(f.execs, q)
	return fakeResult{}, nil
}

func (f *fakeDB) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	return f.tx, nil
}

func (f *fakeDB) Close() error { return nil }

func brandsSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       "brands",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "_id", Type: storage.TypeText},
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: storage.TypeText},
			{Name: "topBrand", Type: storage.TypeInteger},
		},
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
}

func TestBuildMergeSQL(t *testing.T) {
	t.Parallel()

	got := buildMergeSQL("brands", "_id", []string{"_id", "name"})
	want := "MERGE INTO [brands] WITH (HOLDLOCK) AS tgt USING (SELECT @p1 AS [_id], @p2 AS [name]) AS src" +
		" ON tgt.[_id] = src.[_id]" +
		" WHEN MATCHED THEN UPDATE SET tgt.[name] = src.[name]" +
		" WHEN NOT MATCHED THEN INSERT ([_id], [name]) VALUES (src.[_id], src.[name]);"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	keyOnly := buildMergeSQL("brands", "_id", []string{"_id"})
	if strings.Contains(keyOnly, "WHEN MATCHED") {
		t.Fatalf("key-only merge must not update: %s", keyOnly)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	items := storage.TableSpec{
		Name:       "receipt_items",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "item_id", Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: "receipt_id", Type: storage.TypeText},
			{Name: "finalPrice", Type: storage.TypeReal},
		},
		ForeignKeys: []storage.ForeignKeySpec{
			{Columns: []string{"receipt_id"}, RefTable: "receipts", RefColumns: []string{"_id"}},
		},
	}

	got, err := buildCreateSQL(items, false)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'receipt_items', N'U') IS NULL BEGIN CREATE TABLE [receipt_items] (" +
		"[item_id] BIGINT IDENTITY(1,1) PRIMARY KEY, [receipt_id] NVARCHAR(MAX) NULL, [finalPrice] FLOAT NULL); END;"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	withFK, err := buildCreateSQL(items, true)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(withFK, "[receipt_id] NVARCHAR(450) NULL") ||
		!strings.Contains(withFK, "FOREIGN KEY ([receipt_id]) REFERENCES [receipts] ([_id])") {
		t.Fatalf("expected indexable fk column and constraint, got %s", withFK)
	}

	brands, err := buildCreateSQL(brandsSpec(), false)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(brands, "[_id] NVARCHAR(450) PRIMARY KEY") || !strings.Contains(brands, "[topBrand] BIGINT NULL") {
		t.Fatalf("unexpected brands DDL: %s", brands)
	}
}

func TestLoad_MergesInOneTransaction(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	repo := &Repo{db: &fakeDB{tx: tx}}

	n, err := repo.Load(context.Background(), brandsSpec(), []string{"_id", "name", "topBrand"}, [][]any{
		{"b1", "Acme", int64(1)},
		{"b2", nil, int64(0)},
	})
	if err != nil || n != 2 {
		t.Fatalf("Load = (%d,%v), want (2,nil)", n, err)
	}
	if !tx.committed {
		t.Fatalf("expected commit")
	}
	if len(tx.queries) != 2 || !strings.HasPrefix(tx.queries[0], "MERGE INTO [brands]") {
		t.Fatalf("queries=%v", tx.queries)
	}
	if tx.args[1][0] != "b2" || tx.args[1][1] != nil {
		t.Fatalf("args=%v", tx.args[1])
	}
}

func TestLoad_ErrorRollsBack(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{failAt: 2}
	repo := &Repo{db: &fakeDB{tx: tx}}

	_, err := repo.Load(context.Background(), brandsSpec(), []string{"_id", "name", "topBrand"}, [][]any{
		{"b1", "a", int64(1)},
		{"b2", "b", int64(0)},
		{"b3", "c", int64(0)},
	})
	if err == nil || !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("err=%v, want failure at row 1", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v, want rollback only", tx.committed, tx.rolledBack)
	}
}

func TestLoad_PlainInsertForSerialKey(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	repo := &Repo{db: &fakeDB{tx: tx}}
	spec := storage.TableSpec{
		Name:       "receipt_items",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "item_id", Type: "serial"},
		Columns:    []storage.ColumnSpec{{Name: "receipt_id", Type: storage.TypeText}},
		Load:       storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
	if _, err := repo.Load(context.Background(), spec, []string{"receipt_id"}, [][]any{{"r1"}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := "INSERT INTO [receipt_items] ([receipt_id]) VALUES (@p1);"; tx.queries[0] != want {
		t.Fatalf("query=%q, want %q", tx.queries[0], want)
	}
}

func TestDropTables(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	repo := &Repo{db: db}
	if err := repo.DropTables(context.Background(), "receipt_items", "receipts"); err != nil {
		t.Fatalf("DropTables: %v", err)
	}
	if len(db.execs) != 2 || !strings.Contains(db.execs[0], "DROP TABLE [receipt_items]") {
		t.Fatalf("execs=%v", db.execs)
	}
}

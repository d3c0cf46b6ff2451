package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"rewardsetl/internal/storage"
)

func openTestRepo(t *testing.T, enforceFK bool) storage.Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn, EnforceForeignKeys: enforceFK})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func parentSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       "parents",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "_id", Type: storage.TypeText},
		Columns: []storage.ColumnSpec{
			{Name: "label", Type: storage.TypeText},
			{Name: "amount", Type: storage.TypeReal},
		},
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
}

func childSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       "children",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "child_id", Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: "parent_id", Type: storage.TypeText},
			{Name: "qty", Type: storage.TypeInteger},
		},
		ForeignKeys: []storage.ForeignKeySpec{
			{Columns: []string{"parent_id"}, RefTable: "parents", RefColumns: []string{"_id"}},
		},
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := buildCreateTableSQL(childSpec())
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"children\" (\n" +
		"  \"child_id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
		"  \"parent_id\" TEXT,\n" +
		"  \"qty\" INTEGER,\n" +
		"  FOREIGN KEY (\"parent_id\") REFERENCES \"parents\"(\"_id\")\n" +
		");"
	if got != want {
		t.Fatalf("DDL mismatch\n got: %s\nwant: %s", got, want)
	}

	if _, err := buildCreateTableSQL(storage.TableSpec{}); err == nil {
		t.Fatalf("expected error for empty spec")
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	got := buildInsertSQL(parentSpec(), []string{"_id", "label", "amount"})
	want := `INSERT OR REPLACE INTO "parents" ("_id", "label", "amount") VALUES (?,?,?)`
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}

	got = buildInsertSQL(childSpec(), []string{"parent_id", "qty"})
	if !strings.HasPrefix(got, "INSERT INTO ") {
		t.Fatalf("serial-keyed table must use plain insert, got %q", got)
	}
}

func TestRepo_LoadReplacesOnConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, false)

	if err := repo.EnsureTables(ctx, []storage.TableSpec{parentSpec()}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	cols := []string{"_id", "label", "amount"}

	n, err := repo.Load(ctx, parentSpec(), cols, [][]any{{"a", "first", 1.5}, {"b", nil, nil}})
	if err != nil || n != 2 {
		t.Fatalf("Load = (%d,%v), want (2,nil)", n, err)
	}
	if _, err := repo.Load(ctx, parentSpec(), cols, [][]any{{"a", "second", 2.0}}); err != nil {
		t.Fatalf("Load replace: %v", err)
	}

	rs, err := repo.Query(ctx, `SELECT _id, label, amount FROM parents ORDER BY _id`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rs.Rows))
	}
	if rs.Rows[0][1] != "second" || rs.Rows[0][2] != 2.0 {
		t.Fatalf("row a=%v, want replaced values", rs.Rows[0])
	}
	if rs.Rows[1][1] != nil {
		t.Fatalf("row b label=%v, want NULL", rs.Rows[1][1])
	}
}

func TestRepo_LoadRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, false)

	spec := parentSpec()
	spec.Load.Conflict = storage.ConflictNone
	if err := repo.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	_, err := repo.Load(ctx, spec, []string{"_id", "label", "amount"}, [][]any{
		{"a", "x", 1.0},
		{"a", "dup", 2.0},
	})
	if err == nil {
		t.Fatalf("expected primary key violation")
	}

	rs, err := repo.Query(ctx, `SELECT COUNT(*) FROM parents`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rs.Rows[0][0] != int64(0) {
		t.Fatalf("count=%v, want 0 after rollback", rs.Rows[0][0])
	}
}

func TestRepo_ForeignKeyEnforcementToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, enforce := range []bool{false, true} {
		repo := openTestRepo(t, enforce)
		if err := repo.EnsureTables(ctx, []storage.TableSpec{parentSpec(), childSpec()}); err != nil {
			t.Fatalf("EnsureTables: %v", err)
		}
		_, err := repo.Load(ctx, childSpec(), []string{"parent_id", "qty"}, [][]any{{"missing", int64(1)}})
		if enforce && err == nil {
			t.Fatalf("enforce=true: expected foreign key error")
		}
		if !enforce && err != nil {
			t.Fatalf("enforce=false: unexpected error %v", err)
		}
	}
}

func TestRepo_ColumnsAndDrop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, false)

	if err := repo.EnsureTables(ctx, []storage.TableSpec{parentSpec(), childSpec()}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	cols, err := repo.Columns(ctx, "children")
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	var names, types []string
	for _, c := range cols {
		names = append(names, c.Name)
		types = append(types, c.Type)
	}
	if got := strings.Join(names, ","); got != "child_id,parent_id,qty" {
		t.Fatalf("names=%s", got)
	}
	if got := strings.Join(types, ","); got != "INTEGER,TEXT,INTEGER" {
		t.Fatalf("types=%s", got)
	}
	if cols[0].PK != 1 || cols[1].PK != 0 {
		t.Fatalf("pk flags=%d,%d", cols[0].PK, cols[1].PK)
	}

	if err := repo.DropTables(ctx, "children", "parents", "never_created"); err != nil {
		t.Fatalf("DropTables: %v", err)
	}
	if _, err := repo.Columns(ctx, "children"); !errors.Is(err, storage.ErrNoSuchTable) {
		t.Fatalf("Columns after drop err=%v, want ErrNoSuchTable", err)
	}
}

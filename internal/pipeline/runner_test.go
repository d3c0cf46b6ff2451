package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"rewardsetl/internal/config"
	"rewardsetl/internal/storage"
	_ "rewardsetl/internal/storage/sqlite"
)

func writeGzip(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for _, l := range lines {
		zw.Write([]byte(l + "\n"))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Job = "test"
	cfg.Store.DSN = filepath.Join(dir, "data.db")
	cfg.Datasets.Receipts = writeGzip(t, dir, "receipts.json.gz",
		`{"_id":{"$oid":"r1"},"rewardsReceiptStatus":"FINISHED","totalSpent":"10.00","rewardsReceiptItemList":[{"quantityPurchased":2},{"quantityPurchased":1}]}`,
		`noise`,
		`{"_id":{"$oid":"r2"},"rewardsReceiptStatus":"REJECTED","totalSpent":"4.00","rewardsReceiptItemList":[{"quantityPurchased":1}]}`,
		`{"_id":{"$oid":"r3"},"rewardsReceiptStatus":"PENDING","totalSpent":"99.00"}`,
	)
	cfg.Datasets.Brands = writeGzip(t, dir, "brands.json.gz",
		`{"_id":{"$oid":"b1"},"name":"Acme","cpg":{"$id":{"$oid":"c1"},"$ref":"Cogs"}}`,
	)
	cfg.Datasets.Users = filepath.Join(dir, "users-missing.json.gz")
	return cfg
}

func TestRun_EndToEndSQLite(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var out, logs bytes.Buffer
	r := NewDefaultRunner(&out, zerolog.New(&logs))

	if err := r.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Average spending by status:",
		"FINISHED              10",
		"REJECTED              4",
		"Items purchased:",
		"FINISHED              2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("stdout missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "PENDING") {
		t.Fatalf("stdout must not report PENDING:\n%s", got)
	}

	l := logs.String()
	if !strings.Contains(l, "file not found") || !strings.Contains(l, `"run_id"`) {
		t.Fatalf("logs missing diagnostics:\n%s", l)
	}

	repo, err := storage.New(context.Background(), StoreConfig(cfg))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	for table, want := range map[string]int64{"receipts": 3, "receipt_items": 3, "brands": 1, "users": 0} {
		rs, err := repo.Query(context.Background(), "SELECT COUNT(*) FROM "+table)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if rs.Rows[0][0] != want {
			t.Fatalf("%s rows=%v, want %d", table, rs.Rows[0][0], want)
		}
	}
}

type closeTracker struct {
	storage.Repository
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.Repository.Close()
}

func TestRun_LoadErrorStillClosesStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Store.EnforceForeignKeys = true
	cfg.Datasets.Brands = writeGzip(t, t.TempDir(), "brands.json.gz", `{"name":"no id"}`)

	var tracker *closeTracker
	r := &Runner{
		NewRepository: func(ctx context.Context, sc storage.Config) (storage.Repository, error) {
			repo, err := storage.New(ctx, sc)
			if err != nil {
				return nil, err
			}
			tracker = &closeTracker{Repository: repo}
			return tracker, nil
		},
		Log: zerolog.Nop(),
	}

	err := r.Run(context.Background(), cfg)
	if err == nil || !strings.HasPrefix(err.Error(), "load brands:") {
		t.Fatalf("err=%v, want load brands failure", err)
	}
	if tracker == nil || tracker.closed != 1 {
		t.Fatalf("store closed %v times, want 1", tracker)
	}
}

func TestRun_OpenStoreError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	r := &Runner{
		NewRepository: func(context.Context, storage.Config) (storage.Repository, error) {
			return nil, errors.New("connection refused")
		},
		Log: zerolog.Nop(),
	}
	if err := r.Run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "open store: connection refused") {
		t.Fatalf("err=%v", err)
	}
}

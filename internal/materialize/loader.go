package materialize

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rewardsetl/internal/metrics"
	"rewardsetl/internal/schema"
	"rewardsetl/internal/storage"
	"rewardsetl/pkg/records"
)

// LoadStats reports attempted vs stored rows. Loaded counts rows with a
// non-NULL key, as COUNT(key) does.
type LoadStats struct {
	Attempted      int
	Loaded         int
	ItemsAttempted int
	ItemsLoaded    int
}

// Loader writes extracted records into the store. Every error aborts the
// load that raised it; the caller decides whether later loads still run.
type Loader struct {
	Repo storage.Repository
	Log  zerolog.Logger
	// EnforceForeignKeys rejects records without an identifier.
	EnforceForeignKeys bool
	// Job labels metrics.
	Job string
}

// LoadReceipts rebuilds receipts and receipt_items from recs.
func (l *Loader) LoadReceipts(ctx context.Context, recs []*records.Record) (LoadStats, error) {
	var st LoadStats
	err := metrics.Step(l.Job, "load_receipts", func() error {
		var err error
		st, err = l.loadReceipts(ctx, recs)
		return err
	})
	return st, err
}

func (l *Loader) loadReceipts(ctx context.Context, recs []*records.Record) (LoadStats, error) {
	st := LoadStats{Attempted: len(recs)}

	cat := schema.Infer(recs, schema.ItemsField)
	itemsSpec, kept, dropped := ReceiptItemsSpec(cat)
	for _, name := range dropped {
		l.Log.Warn().Str("column", name).Msg("dropping item field that collides with another column")
	}
	l.Log.Debug().Str("catalog", kept.String()).Msg("inferred receipt item columns")

	parent := ReceiptsSpec()
	if err := l.Repo.DropTables(ctx, itemsSpec.Name, parent.Name); err != nil {
		return st, err
	}
	if err := l.Repo.EnsureTables(ctx, []storage.TableSpec{parent, itemsSpec}); err != nil {
		return st, err
	}

	l.Log.Info().Int("count", len(recs)).Msg("attempting to load receipts")

	rows := make([][]any, 0, len(recs))
	var items [][]any
	for i, r := range recs {
		row, err := receiptRow(r, l.EnforceForeignKeys)
		if err != nil {
			return st, fmt.Errorf("receipts: record %d: %w", i, err)
		}
		rows = append(rows, row)

		ir, err := itemRows(r, row[0], kept)
		if err != nil {
			return st, fmt.Errorf("receipt_items: record %d: %w", i, err)
		}
		items = append(items, ir...)
	}
	st.ItemsAttempted = len(items)

	if err := l.load(ctx, parent, rows); err != nil {
		return st, err
	}
	itemCols := append([]string{itemParent}, kept.Names()...)
	if err := l.loadColumns(ctx, itemsSpec, itemCols, items); err != nil {
		return st, err
	}

	var err error
	if st.Loaded, err = l.count(ctx, parent.Name, identifier); err != nil {
		return st, err
	}
	if st.ItemsLoaded, err = l.count(ctx, itemsSpec.Name, itemKey); err != nil {
		return st, err
	}
	l.Log.Info().Int("count", st.Loaded).Msg("loaded receipts")
	l.Log.Info().Int("count", st.ItemsLoaded).Msg("loaded receipt items")
	return st, nil
}

// LoadBrands creates brands if needed and upserts recs.
func (l *Loader) LoadBrands(ctx context.Context, recs []*records.Record) (LoadStats, error) {
	return l.loadFlat(ctx, "load_brands", BrandsSpec(), recs, brandRow)
}

// LoadUsers creates users if needed and upserts recs.
func (l *Loader) LoadUsers(ctx context.Context, recs []*records.Record) (LoadStats, error) {
	return l.loadFlat(ctx, "load_users", UsersSpec(), recs, userRow)
}

func (l *Loader) loadFlat(ctx context.Context, step string, spec storage.TableSpec, recs []*records.Record, derive func(*records.Record, bool) ([]any, error)) (LoadStats, error) {
	st := LoadStats{Attempted: len(recs)}
	err := metrics.Step(l.Job, step, func() error {
		if err := l.Repo.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
			return err
		}
		l.Log.Info().Int("count", len(recs)).Msgf("attempting to load %s", spec.Name)

		rows := make([][]any, 0, len(recs))
		for i, r := range recs {
			row, err := derive(r, l.EnforceForeignKeys)
			if err != nil {
				return fmt.Errorf("%s: record %d: %w", spec.Name, i, err)
			}
			rows = append(rows, row)
		}
		if err := l.load(ctx, spec, rows); err != nil {
			return err
		}

		var err error
		if st.Loaded, err = l.count(ctx, spec.Name, identifier); err != nil {
			return err
		}
		l.Log.Info().Int("count", st.Loaded).Msgf("loaded %s", spec.Name)
		return nil
	})
	return st, err
}

func (l *Loader) load(ctx context.Context, spec storage.TableSpec, rows [][]any) error {
	return l.loadColumns(ctx, spec, spec.ColumnNames(), rows)
}

func (l *Loader) loadColumns(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) error {
	n, err := l.Repo.Load(ctx, spec, columns, rows)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		metrics.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"job": l.Job, "table": spec.Name})
	}
	metrics.RecordRecords(l.Job, "loaded", int(n))
	return nil
}

// count runs SELECT COUNT(column) FROM table.
func (l *Loader) count(ctx context.Context, table, column string) (int, error) {
	rs, err := l.Repo.Query(ctx, fmt.Sprintf("SELECT COUNT(%s) FROM %s", column, table))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if len(rs.Rows) != 1 || len(rs.Rows[0]) != 1 {
		return 0, fmt.Errorf("count %s: unexpected result shape", table)
	}
	n, err := records.ToInt(rs.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return int(n), nil
}

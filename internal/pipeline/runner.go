// Package pipeline runs one full load: extract the three exports, rebuild the
// tables, then answer the business questions.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"rewardsetl/internal/config"
	"rewardsetl/internal/datasource"
	"rewardsetl/internal/extract"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/materialize"
	"rewardsetl/internal/metrics"
	"rewardsetl/internal/queries"
	"rewardsetl/internal/report"
	"rewardsetl/internal/storage"
	"rewardsetl/pkg/records"
)

type Runner struct {
	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	Source datasource.Opener
	Stdout io.Writer
	Log    zerolog.Logger
}

func NewDefaultRunner(stdout io.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		NewRepository: storage.New,
		Stdout:        stdout,
		Log:           log,
	}
}

// StoreConfig maps the store section of cfg onto storage.Config.
func StoreConfig(cfg config.Config) storage.Config {
	return storage.Config{
		Kind:               cfg.Store.Kind,
		DSN:                cfg.Store.DSN,
		EnforceForeignKeys: cfg.Store.EnforceForeignKeys,
	}
}

// Run extracts, loads and reports. Extraction problems are logged and leave
// the dataset empty; a load error aborts the remaining loads and is returned.
// Query failures are logged and do not fail the run.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	log, _ := logger.WithRunID(r.Log)
	log.Info().Str("store", cfg.Store.Kind).Msg("run started")

	src := r.Source
	if src == nil {
		src = datasource.NewRouter(cfg.Job)
	}
	ex := extract.New(src, log, cfg.Job)

	var receipts, brands, users []*records.Record
	for _, d := range []struct {
		step string
		uri  string
		out  *[]*records.Record
	}{
		{"extract_receipts", cfg.Datasets.Receipts, &receipts},
		{"extract_brands", cfg.Datasets.Brands, &brands},
		{"extract_users", cfg.Datasets.Users, &users},
	} {
		_ = metrics.Step(cfg.Job, d.step, func() error {
			*d.out, _ = ex.Extract(ctx, d.uri)
			return nil
		})
	}

	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	repo, err := newRepo(ctx, StoreConfig(cfg))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("close store")
		}
	}()

	l := &materialize.Loader{
		Repo:               repo,
		Log:                log,
		EnforceForeignKeys: cfg.Store.EnforceForeignKeys,
		Job:                cfg.Job,
	}
	if _, err := l.LoadReceipts(ctx, receipts); err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	if _, err := l.LoadBrands(ctx, brands); err != nil {
		return fmt.Errorf("load brands: %w", err)
	}
	if _, err := l.LoadUsers(ctx, users); err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	r.answer(ctx, repo, log)
	log.Info().Msg("run finished")
	return nil
}

// answer prints each business question and its result to Stdout.
func (r *Runner) answer(ctx context.Context, repo storage.Repository, log zerolog.Logger) {
	out := r.Stdout
	if out == nil {
		out = io.Discard
	}
	for _, res := range queries.RunAll(ctx, repo, queries.Business()) {
		if res.Err != nil {
			log.Error().Err(res.Err).Msg("query failed")
			continue
		}
		fmt.Fprintln(out, res.Query.Question)
		if err := report.PrintResult(out, res.Query.Name, res.Rows); err != nil {
			log.Error().Err(err).Msg("print result")
		}
		fmt.Fprintln(out)
	}
}

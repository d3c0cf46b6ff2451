// Command quality runs the data-quality checks against the loaded tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"rewardsetl/internal/config"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/pipeline"
	"rewardsetl/internal/queries"
	"rewardsetl/internal/report"
	"rewardsetl/internal/storage"

	_ "rewardsetl/internal/storage/all"
)

type appDeps struct {
	loadConfig func(path string) (config.Config, error)
	openStore  func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, appDeps{
		loadConfig: config.Load,
		openStore:  storage.New,
	}))
}

// runMain exits 0 even when individual checks fail; those are logged.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("quality", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath string
		verbose bool
	)
	fs.StringVar(&cfgPath, "config", "", "path to etl YAML config (optional)")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logger.NewWithWriter(stderr, logger.Level(verbose))

	cfg, err := d.loadConfig(cfgPath)
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}
	repo, err := d.openStore(ctx, pipeline.StoreConfig(cfg))
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	failed := 0
	for _, res := range queries.RunAll(ctx, repo, queries.DataQualityChecks()) {
		if res.Err != nil {
			failed++
			log.Error().Err(res.Err).Str("check", res.Query.Name).Msg("data quality check failed")
			continue
		}
		log.Debug().Str("check", res.Query.Name).Int("rows", len(res.Rows.Rows)).Msg("check done")
		if err := report.PrintResult(stdout, res.Query.Name, res.Rows); err != nil {
			log.Error().Err(err).Msg("write result")
			return 1
		}
		fmt.Fprintln(stdout)
	}
	if failed > 0 {
		log.Warn().Int("failed", failed).Msg("some data quality checks failed")
	}
	return 0
}

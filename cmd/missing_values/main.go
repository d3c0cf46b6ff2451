// Command missing_values writes a per-column missing-values workbook for one
// loaded table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"rewardsetl/internal/config"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/pipeline"
	"rewardsetl/internal/report"
	"rewardsetl/internal/storage"

	_ "rewardsetl/internal/storage/all"
)

type appDeps struct {
	loadConfig func(path string) (config.Config, error)
	openStore  func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	writeXLSX  func(path string, rep report.MissingReport) error
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, appDeps{
		loadConfig: config.Load,
		openStore:  storage.New,
		writeXLSX:  report.WriteXLSX,
	}))
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("missing_values", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfgPath, table, output string
	fs.StringVar(&cfgPath, "config", "", "path to etl YAML config (optional)")
	fs.StringVar(&table, "table", "", "table to analyze")
	fs.StringVar(&output, "output", "", "output prefix; writes <prefix>_missing_values_report.xlsx")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(table) == "" || strings.TrimSpace(output) == "" {
		fmt.Fprintln(stderr, "usage: missing_values -table <name> -output <prefix> [-config path]")
		return 2
	}

	log := logger.NewWithWriter(stderr, logger.Level(false)).With().Str("table", table).Logger()

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

	frame, err := report.ReadTable(ctx, repo, table)
	if err != nil {
		log.Error().Err(err).Msg("error reading table")
		return 1
	}
	rep := report.MissingValues(frame)
	path := report.OutputPath(output)
	if err := d.writeXLSX(path, rep); err != nil {
		log.Error().Err(err).Str("path", path).Msg("error writing report")
		return 1
	}

	log.Info().Int("rows", rep.Rows).Str("path", path).Msg("missing values computed")
	fmt.Fprintf(stdout, "Missing values report saved to %s\n", path)
	return 0
}

// Command schema prints the stored column layout of one loaded table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"rewardsetl/internal/config"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/materialize"
	"rewardsetl/internal/pipeline"
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

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath string
		table   string
		full    bool
	)
	fs.StringVar(&cfgPath, "config", "", "path to etl YAML config (optional)")
	fs.StringVar(&table, "table", "", "table to describe: "+strings.Join(materialize.Tables, "|"))
	fs.BoolVar(&full, "full", false, "print every column attribute")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !slices.Contains(materialize.Tables, table) {
		fmt.Fprintf(stderr, "usage: schema -table %s [-full] [-config path]\n", strings.Join(materialize.Tables, "|"))
		return 2
	}

	log := logger.NewWithWriter(stderr, logger.Level(false))

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

	cols, err := repo.Columns(ctx, table)
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("error reading schema")
		return 1
	}
	if err := printColumns(stdout, table, cols, full); err != nil {
		log.Error().Err(err).Msg("write schema")
		return 1
	}
	return 0
}

func printColumns(w io.Writer, table string, cols []storage.ColumnInfo, full bool) error {
	fmt.Fprintf(w, "Schema for %s:\n", table)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if full {
		fmt.Fprintln(tw, "cid\tname\ttype\tnotnull\tdflt_value\tpk")
		for _, c := range cols {
			notNull := 0
			if c.NotNull {
				notNull = 1
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\n", c.ID, c.Name, c.Type, notNull, defaultValue(c.Default), c.PK)
		}
		return tw.Flush()
	}
	fmt.Fprintln(tw, "column_name\tcolumn_type\tdefault_value")
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Type, defaultValue(c.Default))
	}
	return tw.Flush()
}

func defaultValue(v *string) string {
	if v == nil {
		return "NULL"
	}
	return *v
}

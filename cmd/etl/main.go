package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"rewardsetl/internal/config"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/metrics"
	"rewardsetl/internal/metrics/datadog"
	"rewardsetl/internal/metrics/prompush"
	"rewardsetl/internal/pipeline"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "rewardsetl/internal/storage/all"
)

// runner executes one load run.
type runner interface {
	Run(ctx context.Context, cfg config.Config) error
}

// appDeps are the seams runMain needs. Production wiring lives in main.
type appDeps struct {
	readFile    func(string) ([]byte, error)
	unmarshal   func([]byte, any) error
	lookupEnv   func(string) (string, bool)
	newRunner   func(stdout io.Writer, log zerolog.Logger) runner
	initMetrics func(ctx context.Context, job string, m config.Metrics) (func(), error)
}

// metricsBackend is a metrics backend that must be closed on shutdown.
type metricsBackend interface {
	Close() error
}

// Package-level seams for initMetrics tests.
var (
	setMetricsBackend = func(b any) {
		mb, _ := b.(metrics.Backend)
		metrics.SetBackend(mb)
	}
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string) (metrics.Backend, error) {
		return prompush.NewBackend(job, url)
	}
	logPrintf = log.Printf
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
		os.Exit(1)
	}

	code := runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, appDeps{
		readFile:  os.ReadFile,
		unmarshal: yaml.Unmarshal,
		lookupEnv: os.LookupEnv,
		newRunner: func(stdout io.Writer, l zerolog.Logger) runner {
			return pipeline.NewDefaultRunner(stdout, l)
		},
		initMetrics: initMetrics,
	})
	os.Exit(code)
}

// runMain parses flags, loads and validates the config, initializes metrics
// and runs the pipeline.
//
// Exit codes:
//   - 0: success (or -validate with a valid config).
//   - 1: config, metrics or run failure.
//   - 2: usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath        string
		backendFlag    string
		pushgatewayURL string
		validate       bool
		verbose        bool
	)
	fs.StringVar(&cfgPath, "config", "", "path to etl YAML config")
	fs.StringVar(&backendFlag, "metrics-backend", "", "metrics backend: none|datadog|pushgateway (overrides config and METRICS_BACKEND)")
	fs.StringVar(&pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides config and PUSHGATEWAY_URL)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(cfgPath) == "" {
		fmt.Fprintln(stderr, "usage: etl -config path/to/etl.yaml [-metrics-backend none|datadog|pushgateway] [-v]")
		return 2
	}

	raw, err := d.readFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	cfg := config.Default()
	if err := d.unmarshal(raw, &cfg); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}
	lookup := d.lookupEnv
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	cfg.ApplyEnv(lookup)
	if backendFlag != "" {
		cfg.Metrics.Backend = backendFlag
	}
	if pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = pushgatewayURL
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "parse config: %s has errors\n", cfgPath)
		return 1
	}
	if validate {
		fmt.Fprintln(stdout, "config ok")
		return 0
	}

	cleanup, err := d.initMetrics(ctx, cfg.Job, cfg.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	l := logger.NewWithWriter(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}, logger.Level(verbose))
	if err := d.newRunner(stdout, l).Run(logger.WithContext(ctx, l), cfg); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "ok")
	return 0
}

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil and flushes or closes the backend.
func initMetrics(ctx context.Context, job string, m config.Metrics) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       m.Tags,
			FlushEvery: m.FlushEvery,
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	case "pushgateway":
		b, err := newPushBackend(job, m.PushgatewayURL)
		if err != nil {
			return noop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", m.Backend)
	}
}

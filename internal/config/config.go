// Package config holds the single configuration struct shared by the
// binaries: where the exports live, which relational store to load them into,
// and which metrics backend to report to.
//
// Precedence, lowest first: built-in defaults, YAML file, .env file,
// process environment, then command-line flags (applied by each binary).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Job      string   `yaml:"job"`
	Store    Store    `yaml:"store"`
	Datasets Datasets `yaml:"datasets"`
	Metrics  Metrics  `yaml:"metrics"`
}

type Store struct {
	// Backend kind: "sqlite" | "postgres" | "mssql"
	Kind string `yaml:"kind"`
	// DSN may reference environment variables as ${VAR}.
	DSN string `yaml:"dsn"`
	// EnforceForeignKeys rejects receipts without an identifier and turns on
	// foreign key enforcement in the store.
	EnforceForeignKeys bool `yaml:"enforce_foreign_keys"`
}

// Datasets are source URIs: local paths, file://, http(s):// or gs://.
type Datasets struct {
	Receipts string `yaml:"receipts"`
	Users    string `yaml:"users"`
	Brands   string `yaml:"brands"`
}

type Metrics struct {
	// Backend: "none" | "datadog" | "pushgateway"
	Backend        string        `yaml:"backend"`
	PushgatewayURL string        `yaml:"pushgateway_url"`
	Tags           []string      `yaml:"tags"`
	FlushEvery     time.Duration `yaml:"flush_every"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Job: "rewards_etl",
		Store: Store{
			Kind: "sqlite",
			DSN:  "data.db",
		},
		Datasets: Datasets{
			Receipts: "data/receipts.json.gz",
			Users:    "data/users.json.gz",
			Brands:   "data/brands.json.gz",
		},
		Metrics: Metrics{
			Backend:        "none",
			PushgatewayURL: "http://localhost:9091",
			FlushEvery:     time.Minute,
		},
	}
}

// Parse overlays YAML data on Default().
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv applies environment overrides and expands ${VAR} in the DSN.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("ETL_STORE_KIND"); ok && strings.TrimSpace(v) != "" {
		c.Store.Kind = strings.TrimSpace(v)
	}
	if v, ok := lookup("ETL_STORE_DSN"); ok && strings.TrimSpace(v) != "" {
		c.Store.DSN = v
	}
	if v, ok := lookup("METRICS_BACKEND"); ok && strings.TrimSpace(v) != "" {
		c.Metrics.Backend = strings.TrimSpace(v)
	}
	if v, ok := lookup("PUSHGATEWAY_URL"); ok && strings.TrimSpace(v) != "" {
		c.Metrics.PushgatewayURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("METRICS_TAGS"); ok {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Metrics.Tags = append(c.Metrics.Tags, t)
			}
		}
	}
	c.Store.DSN = os.Expand(c.Store.DSN, func(k string) string {
		v, _ := lookup(k)
		return v
	})
}

// Load reads .env, then path (if non-empty), then the environment.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if c, err = Parse(raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	c.ApplyEnv(os.LookupEnv)
	return c, nil
}

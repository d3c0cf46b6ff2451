package config

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted YAML path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var (
	storeKinds     = []string{"sqlite", "postgres", "mssql"}
	metricBackends = []string{"none", "datadog", "pushgateway"}
)

// Validate returns every issue found; an empty result means the config is usable.
func (c Config) Validate() []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		add(SeverityWarning, "job", "empty; metrics will use the backend default job name")
	}

	if !oneOf(c.Store.Kind, storeKinds) {
		add(SeverityError, "store.kind", "%q is not one of %v", c.Store.Kind, storeKinds)
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		add(SeverityError, "store.dsn", "required")
	}
	if c.Store.EnforceForeignKeys && c.Store.Kind != "sqlite" && oneOf(c.Store.Kind, storeKinds) {
		add(SeverityWarning, "store.enforce_foreign_keys",
			"%s always enforces declared foreign keys; receipt items must reference loaded receipts", c.Store.Kind)
	}

	seen := map[string]string{}
	for _, d := range []struct{ path, uri string }{
		{"datasets.receipts", c.Datasets.Receipts},
		{"datasets.users", c.Datasets.Users},
		{"datasets.brands", c.Datasets.Brands},
	} {
		if strings.TrimSpace(d.uri) == "" {
			add(SeverityError, d.path, "required")
			continue
		}
		if prev, dup := seen[d.uri]; dup {
			add(SeverityWarning, d.path, "same source as %s", prev)
		}
		seen[d.uri] = d.path
	}

	backend := c.Metrics.Backend
	if backend == "" {
		backend = "none"
	}
	if !oneOf(backend, metricBackends) {
		add(SeverityError, "metrics.backend", "%q is not one of %v", c.Metrics.Backend, metricBackends)
	}
	if backend == "pushgateway" && strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		add(SeverityError, "metrics.pushgateway_url", "required when backend is pushgateway")
	}
	if c.Metrics.FlushEvery < 0 {
		add(SeverityError, "metrics.flush_every", "must not be negative")
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

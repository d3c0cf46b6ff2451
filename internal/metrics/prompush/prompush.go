// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Metrics live in a private registry and are pushed
// (PUT, replacing the job's group) on every Flush.
package prompush

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"rewardsetl/internal/metrics"
)

// Backend implements metrics.Backend on top of client_golang.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewBackend returns a backend that pushes to gatewayURL under job.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}
	if strings.TrimSpace(job) == "" {
		job = "rewards_etl"
	}
	reg := prometheus.NewRegistry()
	return &Backend{
		reg:        reg,
		pusher:     push.New(gatewayURL, job).Gatherer(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	keys, values := split(labels)

	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, keys)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.counters[name] = vec
	}
	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	keys, values := split(labels)

	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.histograms[name]
	if !ok {
		buckets := prometheus.DefBuckets
		if name == metrics.HTTPDownloadBytes {
			buckets = prometheus.ExponentialBuckets(1024, 4, 10)
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help(name), Buckets: buckets}, keys)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.histograms[name] = vec
	}
	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}
	h.Observe(value)
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// split returns label names (sorted) and their values. "job" is dropped:
// the Pushgateway grouping key already carries it.
func split(labels metrics.Labels) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		if k == "job" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}

func help(name string) string {
	return "rewards etl " + strings.ReplaceAll(strings.TrimPrefix(name, "etl_"), "_", " ")
}

var _ metrics.Backend = (*Backend)(nil)

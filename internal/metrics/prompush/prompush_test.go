package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"rewardsetl/internal/metrics"
)

func TestNewBackend_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", " "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestCountersAndHistograms(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.RecordsTotal, 2, metrics.Labels{"job": "x", "kind": "extracted"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"job": "x", "kind": "extracted"})
	b.IncCounter(metrics.RecordsTotal, 0, metrics.Labels{"job": "x", "kind": "skipped"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.2, metrics.Labels{"step": "load", "status": "ok"})

	if got := testutil.ToFloat64(b.counters[metrics.RecordsTotal].WithLabelValues("extracted")); got != 3 {
		t.Fatalf("records{kind=extracted}=%v, want 3", got)
	}
	n, err := testutil.GatherAndCount(b.reg, metrics.StepDurationSeconds)
	if err != nil || n != 1 {
		t.Fatalf("histogram series=(%d,%v), want 1", n, err)
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("rewards", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Fatalf("method=%s, want PUT", method)
	}
	if !strings.Contains(path, "/metrics/job/rewards") {
		t.Fatalf("path=%s", path)
	}
	if !strings.Contains(body, metrics.BatchesTotal) {
		t.Fatalf("pushed body missing metric name")
	}
}

func TestFlush_GatewayErrorIsReturned(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("rewards", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("expected error from gateway 500")
	}
}

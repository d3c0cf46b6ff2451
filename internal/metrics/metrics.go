// Package metrics is the backend-neutral metrics facade used by the pipeline.
//
// Pipeline code calls the package-level helpers (RecordStep, RecordRecords,
// RecordHTTP). A binary picks a concrete backend (Datadog, Pushgateway) and
// installs it with SetBackend; until then every call goes to a no-op backend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "load_receipts", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names shared by every backend.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"

	HTTPRequestsTotal           = "etl_http_requests_total"
	HTTPErrorsTotal             = "etl_http_errors_total"
	HTTPRequestDurationSeconds  = "etl_http_request_duration_seconds"
	HTTPResponseDurationSeconds = "etl_http_response_duration_seconds"
	HTTPDownloadBytes           = "etl_http_download_bytes"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nop{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// RecordStep counts one execution of a pipeline step and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	l := Labels{"job": job, "step": step, "status": status(err)}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords adds n to the records counter for kind
// (e.g. "extracted", "skipped", "decode_error", "loaded").
func RecordRecords(job, kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordHTTP records one HTTP fetch. statusCode 0 means no response.
func RecordHTTP(job string, statusCode int, err error, reqDur, respDur time.Duration, bytes int64) {
	l := Labels{"job": job, "status": httpStatus(statusCode)}
	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || statusCode >= 400 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(HTTPRequestDurationSeconds, reqDur.Seconds(), l)
	ObserveHistogram(HTTPResponseDurationSeconds, respDur.Seconds(), l)
	if bytes >= 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

// Step times fn and records it under step.
func Step(job, step string, fn func() error) error {
	start := time.Now()
	err := fn()
	RecordStep(job, step, err, time.Since(start))
	return err
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func httpStatus(code int) string {
	if code <= 0 {
		return "none"
	}
	return strconv.Itoa(code)
}

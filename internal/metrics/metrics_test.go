package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu      sync.Mutex
	events  []event
	flushes int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"histogram", name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushes++
	return nil
}

// These tests swap the global backend, so they do not run in parallel.

func TestStep_RecordsStatusAndDuration(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	defer SetBackend(nil)

	wantErr := errors.New("boom")
	if err := Step("job", "load", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Step err=%v, want %v", err, wantErr)
	}
	if len(r.events) != 2 {
		t.Fatalf("events=%d, want 2", len(r.events))
	}
	c := r.events[0]
	if c.name != StepTotal || c.labels["status"] != "error" || c.labels["step"] != "load" {
		t.Fatalf("counter event=%+v", c)
	}
	if h := r.events[1]; h.name != StepDurationSeconds || h.value < 0 {
		t.Fatalf("histogram event=%+v", h)
	}
}

func TestRecordRecords_SkipsZero(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	defer SetBackend(nil)

	RecordRecords("job", "skipped", 0)
	RecordRecords("job", "extracted", 3)
	if len(r.events) != 1 || r.events[0].value != 3 || r.events[0].labels["kind"] != "extracted" {
		t.Fatalf("events=%+v", r.events)
	}
}

func TestRecordHTTP(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	defer SetBackend(nil)

	RecordHTTP("job", 404, nil, time.Second, 2*time.Second, 10)

	var names []string
	for _, e := range r.events {
		names = append(names, e.name)
		if e.labels["status"] != "404" {
			t.Fatalf("status label=%q, want 404", e.labels["status"])
		}
	}
	want := []string{HTTPRequestsTotal, HTTPErrorsTotal, HTTPRequestDurationSeconds, HTTPResponseDurationSeconds, HTTPDownloadBytes}
	if len(names) != len(want) {
		t.Fatalf("names=%v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v, want %v", names, want)
		}
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	SetBackend(nil)

	IncCounter(RecordsTotal, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(r.events) != 0 || r.flushes != 0 {
		t.Fatalf("recorder received events after reset: %+v", r.events)
	}
}

package datasource

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"rewardsetl/internal/metrics"
)

// HTTP fetches sources with GET. The body is streamed, not buffered.
type HTTP struct {
	Client *http.Client
	// Job labels the etl_http_* metrics.
	Job string
}

func NewHTTP(job string) *HTTP {
	return &HTTP{Client: &http.Client{}, Job: job}
}

// Open issues the request and returns the body of a 2xx response.
// 404 and 410 map to fs.ErrNotExist. Other non-2xx statuses are errors that
// include up to 4KB of the response body.
func (h *HTTP) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "rewards-etl/1.0")

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordHTTP(h.Job, 0, err, time.Since(start), 0, -1)
		return nil, fmt.Errorf("http get: %w", err)
	}
	reqDur := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordHTTP(h.Job, resp.StatusCode, nil, reqDur, time.Since(start), int64(len(body)))

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, fmt.Errorf("%s: http status %d: %w", uri, resp.StatusCode, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &meteredBody{
		ReadCloser: resp.Body,
		job:        h.Job,
		status:     resp.StatusCode,
		start:      start,
		reqDur:     reqDur,
	}, nil
}

// meteredBody records the response metrics once, when the body is closed.
type meteredBody struct {
	io.ReadCloser
	job    string
	status int
	start  time.Time
	reqDur time.Duration

	n      int64
	err    error
	closed bool
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

func (b *meteredBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		metrics.RecordHTTP(b.job, b.status, b.err, b.reqDur, time.Since(b.start), b.n)
	}
	return err
}

// Package datasource opens the raw export files the extractor reads.
//
// A source URI is one of:
//   - a local path, or file://path
//   - http:// or https:// (GET, 2xx required)
//   - gs://bucket/object (Google Cloud Storage)
//
// A source that does not exist yields an error matching fs.ErrNotExist for
// every scheme, so callers can treat "file not found" uniformly.
package datasource

import (
	"context"
	"io"
	"os"
	"strings"
)

// Opener opens a source URI for reading. The caller closes the reader.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Router dispatches a URI to the source registered for its scheme.
// Nil fields fall back to defaults on first use.
type Router struct {
	HTTP *HTTP
	GCS  *GCS
}

// NewRouter returns a Router whose HTTP fetches report metrics under job.
func NewRouter(job string) *Router {
	return &Router{
		HTTP: NewHTTP(job),
		GCS:  NewGCS(),
	}
}

func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if r.HTTP == nil {
			r.HTTP = NewHTTP("")
		}
		return r.HTTP.Open(ctx, uri)
	case strings.HasPrefix(uri, "gs://"):
		if r.GCS == nil {
			r.GCS = NewGCS()
		}
		return r.GCS.Open(ctx, uri)
	default:
		return OpenFile(ctx, strings.TrimPrefix(uri, "file://"))
	}
}

// OpenFile opens a local file.
func OpenFile(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

var _ Opener = (*Router)(nil)

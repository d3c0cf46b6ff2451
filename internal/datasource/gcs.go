package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS reads objects from Google Cloud Storage using application default
// credentials.
type GCS struct {
	open func(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

func NewGCS() *GCS {
	return &GCS{open: openObject}
}

// Open reads gs://bucket/object. A missing bucket or object maps to
// fs.ErrNotExist.
func (g *GCS) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGSURI(uri)
	if err != nil {
		return nil, err
	}
	open := g.open
	if open == nil {
		open = openObject
	}

	rc, err := open(ctx, bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%s: %w: %w", uri, fs.ErrNotExist, err)
		}
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return rc, nil
}

// ParseGSURI splits gs://bucket/path/to/object.
func ParseGSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs uri %q: want gs://bucket/object", uri)
	}
	return bucket, object, nil
}

func openObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &objectReader{Reader: r, client: client}, nil
}

// objectReader closes the client along with the object reader.
type objectReader struct {
	*storage.Reader
	client *storage.Client
}

func (o *objectReader) Close() error {
	err := o.Reader.Close()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}

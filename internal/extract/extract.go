// Package extract reads gzip-compressed, line-delimited JSON exports into
// records.
//
// Extraction is tolerant: noise around a JSON object on a line is cut away,
// undecodable lines are logged and skipped, and a source that cannot be read
// at all yields no records. Extract never returns an error.
package extract

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"rewardsetl/internal/datasource"
	"rewardsetl/internal/metrics"
	"rewardsetl/pkg/records"
)

// maxLineBytes bounds a single input line. Receipts with long item lists run
// to a few hundred KB.
const maxLineBytes = 64 << 20

// Stats counts what happened to the lines of one source.
type Stats struct {
	Lines        int
	Records      int
	Skipped      int
	DecodeErrors int
}

type Extractor struct {
	Source datasource.Opener
	Log    zerolog.Logger
	// Job labels the etl_records_total metric.
	Job string
}

// New returns an Extractor reading through src.
func New(src datasource.Opener, log zerolog.Logger, job string) *Extractor {
	return &Extractor{Source: src, Log: log, Job: job}
}

// Extract returns every record decoded from uri, in input order.
// On a per-file failure the result is empty and the failure is logged.
func (e *Extractor) Extract(ctx context.Context, uri string) ([]*records.Record, Stats) {
	log := e.Log.With().Str("source", uri).Logger()

	recs, st, err := e.extract(ctx, uri, log)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Error().Err(err).Msg("file not found")
		} else {
			log.Error().Err(err).Msg("error extracting data")
		}
		metrics.RecordRecords(e.Job, "source_error", 1)
		return nil, st
	}

	log.Info().
		Int("lines", st.Lines).
		Int("records", st.Records).
		Int("skipped", st.Skipped).
		Int("decode_errors", st.DecodeErrors).
		Msg("extracted")

	metrics.RecordRecords(e.Job, "extracted", st.Records)
	metrics.RecordRecords(e.Job, "skipped", st.Skipped)
	metrics.RecordRecords(e.Job, "decode_error", st.DecodeErrors)
	return recs, st
}

func (e *Extractor) extract(ctx context.Context, uri string, log zerolog.Logger) ([]*records.Record, Stats, error) {
	var st Stats

	src := e.Source
	if src == nil {
		src = &datasource.Router{}
	}
	rc, err := src.Open(ctx, uri)
	if err != nil {
		return nil, st, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, st, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	text := transform.NewReader(gz, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	return scan(ctx, text, log)
}

// scan decodes one record per line of r.
func scan(ctx context.Context, r io.Reader, log zerolog.Logger) ([]*records.Record, Stats, error) {
	var (
		st  Stats
		out []*records.Record
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		st.Lines++
		line := bytes.TrimSpace(sc.Bytes())

		body, ok := jsonSpan(line)
		if !ok {
			st.Skipped++
			log.Warn().Str("line", string(line)).Msg("skipping line without JSON")
			continue
		}

		rec, err := records.Decode(body)
		if err != nil {
			st.DecodeErrors++
			log.Warn().Err(err).Str("line", string(line)).Msg("error decoding JSON")
			continue
		}
		out = append(out, rec)
		st.Records++
	}
	if err := sc.Err(); err != nil {
		return nil, st, fmt.Errorf("read: %w", err)
	}
	return out, st, nil
}

// jsonSpan returns line from the first '{' through the last '}'.
func jsonSpan(line []byte) ([]byte, bool) {
	start := bytes.IndexByte(line, '{')
	end := bytes.LastIndexByte(line, '}')
	if start < 0 || end < 0 {
		return nil, false
	}
	if end < start {
		// Braces out of order count as a decode error, not a skip.
		return nil, true
	}
	return line[start : end+1], true
}

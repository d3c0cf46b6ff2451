// Command probe reads one raw export and reports what the loader would see:
// line and record counts, top-level field coverage, and the columns inferred
// for a nested list field (by default the receipt line items).
//
// It is meant for checking a new export before running cmd/etl against it.
// Sources are anything internal/datasource can open: local paths, file://,
// http(s):// and gs:// URIs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"rewardsetl/internal/datasource"
	"rewardsetl/internal/extract"
	"rewardsetl/internal/logger"
	"rewardsetl/internal/schema"
	"rewardsetl/pkg/records"
)

// report is the probe result. It is also the -json output.
type report struct {
	Source       string          `json:"source"`
	Lines        int             `json:"lines"`
	Records      int             `json:"records"`
	Skipped      int             `json:"skipped"`
	DecodeErrors int             `json:"decode_errors"`
	Fields       []fieldCoverage `json:"fields"`
	ListField    string          `json:"list_field,omitempty"`
	ListItems    int             `json:"list_items,omitempty"`
	Columns      []column        `json:"columns,omitempty"`
}

type fieldCoverage struct {
	Name    string  `json:"name"`
	Present int     `json:"present"`
	Percent float64 `json:"percent"`
}

type column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type appDeps struct {
	source func(job string) datasource.Opener
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, appDeps{
		source: func(job string) datasource.Opener { return datasource.NewRouter(job) },
	}))
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		flagURL    string
		flagField  string
		flagJSON   bool
		flagPretty bool
	)
	fs.StringVar(&flagURL, "url", "", "path or URL of a gzip-compressed JSON-lines export")
	fs.StringVar(&flagField, "field", schema.ItemsField, "nested list field to infer columns for; empty to skip")
	fs.BoolVar(&flagJSON, "json", false, "print the report as JSON")
	fs.BoolVar(&flagPretty, "pretty", true, "indent JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(flagURL) == "" {
		fmt.Fprintln(stderr, "usage: probe -url path/to/export.json.gz [-field name] [-json]")
		return 2
	}

	log := logger.NewWithWriter(stderr, zerolog.InfoLevel)
	ex := extract.New(d.source("probe"), log, "probe")
	recs, st := ex.Extract(ctx, flagURL)
	if len(recs) == 0 {
		log.Error().Str("source", flagURL).Msg("no records found")
		return 1
	}

	rep := buildReport(flagURL, recs, st, flagField)

	if flagJSON {
		enc := json.NewEncoder(stdout)
		if flagPretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(rep); err != nil {
			log.Error().Err(err).Msg("encode report")
			return 1
		}
		return 0
	}
	if err := printReport(stdout, rep); err != nil {
		log.Error().Err(err).Msg("write report")
		return 1
	}
	return 0
}

func buildReport(uri string, recs []*records.Record, st extract.Stats, field string) report {
	rep := report{
		Source:       uri,
		Lines:        st.Lines,
		Records:      st.Records,
		Skipped:      st.Skipped,
		DecodeErrors: st.DecodeErrors,
	}

	present := map[string]int{}
	for _, r := range recs {
		for _, k := range r.Keys() {
			present[k]++
		}
	}
	for name, n := range present {
		rep.Fields = append(rep.Fields, fieldCoverage{
			Name:    name,
			Present: n,
			Percent: 100 * float64(n) / float64(len(recs)),
		})
	}
	sort.Slice(rep.Fields, func(i, j int) bool {
		if rep.Fields[i].Present != rep.Fields[j].Present {
			return rep.Fields[i].Present > rep.Fields[j].Present
		}
		return rep.Fields[i].Name < rep.Fields[j].Name
	})

	if field == "" {
		return rep
	}
	rep.ListField = field
	for _, r := range recs {
		if v, ok := r.Get(field); ok {
			if items, ok := v.([]any); ok {
				rep.ListItems += len(items)
			}
		}
	}
	for _, c := range schema.Infer(recs, field).Columns() {
		rep.Columns = append(rep.Columns, column{Name: c.Name, Type: c.Kind.String()})
	}
	return rep
}

func printReport(w io.Writer, rep report) error {
	fmt.Fprintf(w, "source: %s\n", rep.Source)
	fmt.Fprintf(w, "lines: %d  records: %d  skipped: %d  decode_errors: %d\n\n",
		rep.Lines, rep.Records, rep.Skipped, rep.DecodeErrors)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "field\tpresent\tpercent")
	for _, f := range rep.Fields {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", f.Name, f.Present, f.Percent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if rep.ListField == "" {
		return nil
	}
	fmt.Fprintf(w, "\n%s: %d items\n", rep.ListField, rep.ListItems)
	if len(rep.Columns) == 0 {
		fmt.Fprintln(w, "(no columns inferred)")
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "column\ttype")
	for _, c := range rep.Columns {
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Type)
	}
	return tw.Flush()
}

// Package output renders command results as JSON, YAML, CSV or aligned tables.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"text/tabwriter"

	commonout "github.com/RyanBlaney/latency-benchmark-common/output"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Supported format names
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatCSV   = "csv"
	FormatTable = "table"
)

// Formatter renders data into bytes
type Formatter interface {
	Format(data any, pretty bool) ([]byte, error)
}

// Tabular is implemented by results that can be laid out as rows. CSV and
// table output require it.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// NewFormatter returns the formatter for name
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatYAML, "yml":
		return &YAMLFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	case FormatTable, "":
		return &TableFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (json, yaml, csv, table)", name)
	}
}

// JSONFormatter renders JSON through the common formatter. Non-finite floats
// become 0.
type JSONFormatter struct {
	commonout.JSONFormatter
}

func (f *JSONFormatter) Format(data any, pretty bool) ([]byte, error) {
	out, err := f.JSONFormatter.Format(data, pretty)
	if err != nil && strings.Contains(err.Error(), "unsupported value") {
		out, err = f.JSONFormatter.Format(Sanitize(data), pretty)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(out, '\n'), nil
}

// YAMLFormatter renders YAML through the common formatter
type YAMLFormatter struct {
	commonout.YAMLFormatter
}

func (f *YAMLFormatter) Format(data any, pretty bool) ([]byte, error) {
	out, err := f.YAMLFormatter.Format(data, pretty)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return out, nil
}

// CSVFormatter renders a Tabular value as CSV with a header row. The common
// CSV and table formatters have a fixed benchmark layout, so these two lay out
// any Tabular instead.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, pretty bool) ([]byte, error) {
	t, ok := data.(Tabular)
	if !ok {
		return nil, fmt.Errorf("csv output is not available for %T", data)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header()); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows()); err != nil {
		return nil, fmt.Errorf("failed to encode CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// TableFormatter renders a Tabular value as space-aligned columns
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, pretty bool) ([]byte, error) {
	t, ok := data.(Tabular)
	if !ok {
		return nil, fmt.Errorf("table output is not available for %T", data)
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if header := t.Header(); len(header) > 0 {
		fmt.Fprintln(w, cases.Upper(language.Und).String(strings.Join(header, "\t")))
	}
	for _, row := range t.Rows() {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Package export writes stored audit records as JSON, JSON Lines or CSV.
//
//	records, _ := queryer.QueryEvents(ctx, &audit.Query{EventType: "Order:Update"})
//	exp, _ := export.New(export.FormatCSV)
//	err := exp.Export(ctx, records, os.Stdout)
package export

import (
	"context"
	"fmt"
	"io"

	"mercator-hq/ledger/pkg/audit"
)

// Supported formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// Exporter writes records to w.
type Exporter interface {
	Export(ctx context.Context, records []*audit.Record, w io.Writer) error
}

// ExportError reports a failed export.
type ExportError struct {
	Format  string
	Records int
	Cause   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s (%d records): %v", e.Format, e.Records, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

// New returns the exporter for format with its default options.
func New(format string) (Exporter, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONExporter(true), nil
	case FormatJSONL:
		return NewJSONLExporter(), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (valid: json, jsonl, csv)", format)
	}
}

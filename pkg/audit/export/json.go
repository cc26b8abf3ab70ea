package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/ledger/pkg/audit"
)

// JSONExporter writes records as one JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export implements Exporter. No records produce "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	if records == nil {
		records = []*audit.Record{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return &ExportError{Format: FormatJSON, Records: len(records), Cause: err}
	}
	return nil
}

// JSONLExporter writes one JSON object per line, suitable for appending and
// for streaming into log pipelines.
type JSONLExporter struct{}

// NewJSONLExporter creates a JSON Lines exporter.
func NewJSONLExporter() *JSONLExporter {
	return &JSONLExporter{}
}

// Export implements Exporter.
func (e *JSONLExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return &ExportError{Format: FormatJSONL, Records: i, Cause: err}
		}
		if err := enc.Encode(record); err != nil {
			return &ExportError{Format: FormatJSONL, Records: i, Cause: err}
		}
	}
	return nil
}

// ExportStream writes records from ch until it is closed or ctx is done.
// It returns the number of records written.
func (e *JSONLExporter) ExportStream(ctx context.Context, ch <-chan *audit.Record, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case record, ok := <-ch:
			if !ok {
				return count, nil
			}
			if err := enc.Encode(record); err != nil {
				return count, &ExportError{Format: FormatJSONL, Records: count, Cause: err}
			}
			count++
		}
	}
}

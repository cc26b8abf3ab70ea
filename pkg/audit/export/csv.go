package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"mercator-hq/ledger/pkg/audit"
)

var csvHeader = []string{
	"id", "event_type", "start_date", "end_date", "duration_ms", "last_updated",
	"user_name", "machine_name", "calling_method", "exception",
	"target_type", "comments", "custom_fields",
}

// CSVExporter writes one row per record. Comments are joined with "; " and
// custom fields are written as a JSON object.
type CSVExporter struct {
	// IncludeHeader writes the column names first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export implements Exporter.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return &ExportError{Format: FormatCSV, Records: len(records), Cause: err}
		}
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return &ExportError{Format: FormatCSV, Records: i, Cause: err}
		}
		row, err := recordToRow(record)
		if err != nil {
			return &ExportError{Format: FormatCSV, Records: i, Cause: err}
		}
		if err := writer.Write(row); err != nil {
			return &ExportError{Format: FormatCSV, Records: i, Cause: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &ExportError{Format: FormatCSV, Records: len(records), Cause: err}
	}
	return nil
}

func recordToRow(r *audit.Record) ([]string, error) {
	row := []string{
		fmt.Sprint(r.ID),
		r.EventType,
		formatTime(r.StartDate),
		"",
		"",
		formatTime(r.LastUpdated),
		"", "", "", "",
		"", "", "",
	}
	if r.EndDate != nil {
		row[3] = formatTime(*r.EndDate)
	}

	ev := r.Event
	if ev == nil {
		return row, nil
	}

	row[4] = fmt.Sprint(ev.Duration.Milliseconds())
	if env := ev.Environment; env != nil {
		row[6] = env.UserName
		row[7] = env.MachineName
		row[8] = env.CallingMethodName
		row[9] = env.Exception
	}
	if ev.Target != nil {
		row[10] = ev.Target.Type
	}
	row[11] = strings.Join(ev.Comments, "; ")
	if len(ev.CustomFields) > 0 {
		data, err := json.Marshal(ev.CustomFields)
		if err != nil {
			return nil, fmt.Errorf("record %v custom fields: %w", r.ID, err)
		}
		row[12] = string(data)
	}
	return row, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

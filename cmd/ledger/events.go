package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/export"
	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/config"
)

var eventsFlags struct {
	eventType string
	timeRange string
	since     time.Duration
	limit     int
	offset    int
	format    string
	output    string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read stored audit events",
	Long: `Query and export audit events from the primary storage backend.

Subcommands:
  query   - List events with filters
  get     - Print one event by id

Examples:
  # Events of one type from the last 24 hours
  ledger events query --type Order:Update --since 24h

  # A closed time range, exported as CSV
  ledger events query --time-range "2026-01-01T00:00:00Z/2026-02-01T00:00:00Z" --format csv --output january.csv

  # One event
  ledger events get 3f0c6c1e-0a5b-4d8e-9a51-2a4f0a6d4a3b`,
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit events",
	Args:  cobra.NoArgs,
	RunE:  runEventsQuery,
}

var eventsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one audit event as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsGet,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd, eventsGetCmd)

	f := eventsQueryCmd.Flags()
	f.StringVarP(&eventsFlags.eventType, "type", "t", "", "filter by event type")
	f.StringVar(&eventsFlags.timeRange, "time-range", "", `start date range "start/end" (RFC3339, either side may be empty)`)
	f.DurationVar(&eventsFlags.since, "since", 0, "only events started within this duration")
	f.IntVarP(&eventsFlags.limit, "limit", "n", 0, "maximum number of events (storage.query.default_limit when 0)")
	f.IntVar(&eventsFlags.offset, "offset", 0, "number of events to skip")
	f.StringVarP(&eventsFlags.format, "format", "f", "text", "output format (text, json, jsonl, csv)")
	f.StringVarP(&eventsFlags.output, "output", "o", "", "write to file instead of stdout")
}

func runEventsQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	query, err := buildQuery(&cfg.Storage.Query, time.Now())
	if err != nil {
		return err
	}

	var exporter export.Exporter
	if eventsFlags.format != string(cli.FormatText) {
		exporter, err = export.New(eventsFlags.format)
		if err != nil {
			return cli.NewConfigError("--format", err.Error())
		}
	}

	stack, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	queryer, ok := audit.As[audit.Queryer](stack.Primary())
	if !ok {
		return cli.NewCommandError("events query", fmt.Errorf("backend %s does not support queries", stack.Names[0]))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Storage.Query.Timeout)
	defer cancel()

	records, err := queryer.QueryEvents(ctx, query)
	if err != nil {
		return cli.NewCommandError("events query", err)
	}

	w, closeOutput, err := openOutput(cmd.OutOrStdout(), eventsFlags.output)
	if err != nil {
		return err
	}
	defer closeOutput()

	if exporter == nil {
		return cli.NewFormatter(cli.FormatText).FormatTo(w, recordTable(records))
	}
	return exporter.Export(ctx, records, w)
}

func runEventsGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stack, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Storage.Query.Timeout)
	defer cancel()

	event, err := audit.GetEventAs[audit.Event](ctx, stack.Primary(), args[0])
	if err != nil {
		return cli.NewCommandError("events get", err)
	}
	return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), event)
}

// buildQuery turns the query flags into an audit.Query. --since and
// --time-range may be combined; the later start wins.
func buildQuery(cfg *config.QueryConfig, now time.Time) (*audit.Query, error) {
	if eventsFlags.limit < 0 || eventsFlags.offset < 0 {
		return nil, cli.NewConfigError("--limit", "limit and offset must not be negative")
	}

	query := &audit.Query{
		EventType: eventsFlags.eventType,
		Limit:     eventsFlags.limit,
		Offset:    eventsFlags.offset,
	}
	if query.Limit == 0 {
		query.Limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
		query.Limit = cfg.MaxLimit
	}

	if eventsFlags.timeRange != "" {
		start, end, err := parseTimeRange(eventsFlags.timeRange)
		if err != nil {
			return nil, cli.NewConfigError("--time-range", err.Error())
		}
		query.StartTime = start
		query.EndTime = end
	}

	if eventsFlags.since > 0 {
		since := now.Add(-eventsFlags.since)
		if query.StartTime == nil || since.After(*query.StartTime) {
			query.StartTime = &since
		}
	}
	return query, nil
}

// parseTimeRange parses "start/end" where either side may be empty.
func parseTimeRange(s string) (start, end *time.Time, err error) {
	from, to, ok := strings.Cut(s, "/")
	if !ok {
		return nil, nil, fmt.Errorf("expected \"start/end\", got %q", s)
	}

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start time: %w", err)
		}
		start = &t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end time: %w", err)
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("end %s is before start %s", to, from)
	}
	return start, end, nil
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// recordTable renders records as text columns.
type recordTable []*audit.Record

func (t recordTable) Headers() []string {
	return []string{"ID", "TYPE", "START", "DURATION", "USER", "EXCEPTION"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		var duration, user, exception string
		if r.Event != nil {
			if r.Event.Ended() {
				duration = r.Event.Duration.String()
			}
			if env := r.Event.Environment; env != nil {
				user = env.UserName
				exception = env.Exception
			}
		}
		rows = append(rows, []string{
			fmt.Sprint(r.ID),
			r.EventType,
			r.StartDate.UTC().Format(time.RFC3339),
			duration,
			user,
			exception,
		})
	}
	return rows
}

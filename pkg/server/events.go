package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/export"
	"mercator-hq/ledger/pkg/config"
)

// EventsHandler serves the read-only events API. The provider and query
// settings are looked up per request so a storage reload takes effect
// without re-registering routes.
type EventsHandler struct {
	provider    func() audit.DataProvider
	queryConfig func() config.QueryConfig
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventsHandler creates the events API over provider.
func NewEventsHandler(provider func() audit.DataProvider, queryConfig func() config.QueryConfig) *EventsHandler {
	return &EventsHandler{
		provider:    provider,
		queryConfig: queryConfig,
		now:         time.Now,
		logger:      slog.Default().With("component", "server.events"),
	}
}

// Register adds the events routes to mux. wrap, when not nil, wraps each
// route; it is how authentication is applied.
func (h *EventsHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /events", wrap(http.HandlerFunc(h.Query)))
	mux.Handle("GET /events/{id}", wrap(http.HandlerFunc(h.Get)))
}

// Query writes the matching records as a JSON array.
func (h *EventsHandler) Query(w http.ResponseWriter, r *http.Request) {
	qc := h.queryConfig()
	query, err := QueryFromRequest(r, &qc, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	queryer, ok := audit.As[audit.Queryer](h.provider())
	if !ok {
		writeError(w, http.StatusNotImplemented, "primary backend does not support queries")
		return
	}

	ctx, cancel := withTimeout(r.Context(), qc.Timeout)
	defer cancel()

	records, err := queryer.QueryEvents(ctx, query)
	if err != nil {
		h.logger.ErrorContext(ctx, "event query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := export.NewJSONExporter(false).Export(ctx, records, w); err != nil {
		h.logger.ErrorContext(ctx, "writing query response failed", "error", err)
	}
}

// Get writes one event.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	qc := h.queryConfig()
	ctx, cancel := withTimeout(r.Context(), qc.Timeout)
	defer cancel()

	event, err := audit.GetEventAs[audit.Event](ctx, h.provider(), r.PathValue("id"))
	switch {
	case errors.Is(err, audit.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "event lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(event); err != nil {
		h.logger.ErrorContext(ctx, "writing event failed", "error", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// QueryFromRequest reads the type, since, start, end, limit and offset query
// parameters. start and end are RFC 3339; since is a Go duration counted back
// from now and wins over an earlier start.
func QueryFromRequest(r *http.Request, cfg *config.QueryConfig, now time.Time) (*audit.Query, error) {
	params := r.URL.Query()
	query := &audit.Query{EventType: params.Get("type"), Limit: cfg.DefaultLimit}

	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		v := params.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = n
	}
	if query.Limit == 0 || (cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit) {
		query.Limit = cfg.MaxLimit
	}

	for name, dst := range map[string]**time.Time{"start": &query.StartTime, "end": &query.EndTime} {
		v := params.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = &t
	}
	if query.StartTime != nil && query.EndTime != nil && query.EndTime.Before(*query.StartTime) {
		return nil, fmt.Errorf("end is before start")
	}

	if v := params.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid since %q", v)
		}
		since := now.Add(-d)
		if query.StartTime == nil || since.After(*query.StartTime) {
			query.StartTime = &since
		}
	}
	return query, nil
}

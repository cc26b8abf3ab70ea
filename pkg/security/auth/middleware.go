package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/ledger/pkg/telemetry/logging"
)

// Source defines where to extract API keys from
type Source struct {
	Type   string // header, query
	Name   string // Header name or query param
	Scheme string // "Bearer", etc. (optional)
}

// DefaultSources accepts "Authorization: Bearer <key>" and "X-API-Key".
var DefaultSources = []Source{
	{Type: "header", Name: "Authorization", Scheme: "Bearer"},
	{Type: "header", Name: "X-API-Key"},
}

// Middleware is HTTP middleware for API key authentication.
type Middleware struct {
	validator *Validator
	sources   []Source
	logger    *slog.Logger
}

// NewMiddleware creates an API key authentication middleware.
func NewMiddleware(validator *Validator, sources []Source) *Middleware {
	return &Middleware{
		validator: validator,
		sources:   sources,
		logger:    slog.Default().With("component", "security.auth"),
	}
}

// Handle wraps an HTTP handler with API key authentication.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.validator.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		secret, ok := m.extract(r)
		if !ok {
			m.logger.WarnContext(r.Context(), "missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w)
			return
		}

		key, err := m.validator.Validate(secret)
		if err != nil {
			m.logger.WarnContext(r.Context(), "API key rejected",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			unauthorized(w)
			return
		}

		m.logger.DebugContext(r.Context(), "API key authenticated", "key_name", key.Name, "path", r.URL.Path)

		ctx := context.WithValue(r.Context(), keyContextKey, key)
		ctx = logging.WithUser(ctx, key.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extract returns the first API key found in the configured sources.
func (m *Middleware) extract(r *http.Request) (string, bool) {
	for _, source := range m.sources {
		switch source.Type {
		case "header":
			value := r.Header.Get(source.Name)
			if value == "" {
				continue
			}
			if source.Scheme == "" {
				return value, true
			}
			if rest, ok := strings.CutPrefix(value, source.Scheme+" "); ok && rest != "" {
				return rest, true
			}

		case "query":
			if value := r.URL.Query().Get(source.Name); value != "" {
				return value, true
			}
		}
	}
	return "", false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="ledger"`)
	http.Error(w, "Missing or invalid API key", http.StatusUnauthorized)
}

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const keyContextKey contextKey = "api_key"

// KeyFromContext returns the key that authenticated the request.
func KeyFromContext(ctx context.Context) (*Key, bool) {
	key, ok := ctx.Value(keyContextKey).(*Key)
	return key, ok
}

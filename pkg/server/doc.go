// Package server provides the HTTP server behind "ledger serve".
//
// It owns the listener lifecycle (listen, serve, graceful shutdown), the
// middleware chain every request passes through, and the read-only events
// API over the primary storage backend.
//
// # Basic Usage
//
//	mux := http.NewServeMux()
//	events := server.NewEventsHandler(stack.Primary, queryConfig)
//	events.Register(mux, nil)
//
//	srv := server.NewServer(&cfg.Server, server.Chain(mux))
//	if err := srv.Listen(); err != nil {
//	    return err
//	}
//	fmt.Println("listening on", srv.Addr())
//	return srv.Start(ctx) // returns after ctx is cancelled
//
// # Middleware
//
// Chain wraps a handler with, from the outside in:
//   - RecoveryMiddleware: turns handler panics into a 500 JSON error
//   - RequestIDMiddleware: reads or generates X-Request-ID and adds it to
//     the request context for logging
//   - LoggingMiddleware: logs method, path, status and latency
//
// # Events API
//
//	GET /events        list records; type, since, start, end, limit, offset
//	GET /events/{id}   one event as stored
//
// Paging follows the storage query settings: a missing limit uses
// storage.query.default_limit and larger limits are capped at
// storage.query.max_limit.
package server

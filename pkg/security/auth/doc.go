/*
Package auth provides API key authentication for the ledger events API.

Keys come from server.api_keys. The validator keeps only SHA-256 digests of
the configured secrets and compares them in constant time:

	validator := auth.NewValidator(cfg.Server.APIKeys)
	mw := auth.NewMiddleware(validator, auth.DefaultSources)
	mux.Handle("GET /events", mw.Handle(eventsHandler))

# API Key Sources

The middleware tries its sources in order and uses the first key found:

 1. Authorization header with Bearer scheme:
    Authorization: Bearer 0123456789abcdef

 2. Custom header:
    X-API-Key: 0123456789abcdef

Query parameters are supported but not in DefaultSources, since URLs end up
in access logs.

An authenticated request carries the key's name in its context, both for
KeyFromContext and as the "user" logging field. A validator with no keys
lets every request through.
*/
package auth

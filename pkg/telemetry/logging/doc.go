// Package logging configures log/slog for the ledger.
//
// New returns a *slog.Logger whose handler:
//   - adds request, user, event type, scope and trace ids stored in the
//     context (see WithEventType, WithTraceID, ...)
//   - masks values of sensitive keys such as "password", "token" or "dsn"
//   - redacts PII inside string values when RedactPII is set
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Logging))
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithEventType(ctx, "order:update")
//	slog.InfoContext(ctx, "event stored", "dsn", dsn) // dsn is masked
//
// Components derive their logger with slog.Default().With("component", name).
//
// The Redactor is also used by actions.RedactFields to scrub audit events
// before they are stored.
package logging

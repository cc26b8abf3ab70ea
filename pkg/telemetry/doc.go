// Package telemetry groups the ledger's observability packages.
//
//   - logging: slog setup, context fields and PII redaction
//   - metrics: Prometheus collectors for storage calls, scopes and pruning
//   - tracing: OpenTelemetry spans around storage calls
//   - health: liveness and readiness endpoints
//
// Each subpackage is configured from its section of config.TelemetryConfig
// and wired together by the ledger command.
package telemetry

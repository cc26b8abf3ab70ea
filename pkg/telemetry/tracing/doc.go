// Package tracing provides OpenTelemetry tracing for the ledger.
//
// When enabled, spans are exported over OTLP/gRPC:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Usage:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	provider = tracer.Trace(provider)                        // span per storage call
//	conf.AddAction(audit.OnScopeCreated, tracing.TraceContextAction()) // trace ids on events
//
// Sampling is parent-based: a child span follows its parent's decision.
package tracing

// Package metrics provides Prometheus metrics for the ledger.
//
// # Metrics Categories
//
//   - Storage: data provider calls, latency, errors by kind, reachability
//   - Scopes: scopes created per event type and policy, events saved, durations
//   - Retention: pruning runs and deleted events
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// Record every storage call
//	provider = collector.Instrument(provider)
//
//	// Count scopes and saved events
//	conf.AddAction(audit.OnScopeCreated, collector.ScopeCreatedAction())
//	conf.AddAction(audit.OnEventSaved, collector.EventSavedAction())
//
//	http.Handle("/metrics", collector.Handler())
//
// Event types are used as label values. After 1000 distinct values new
// event types are reported as "other".
package metrics

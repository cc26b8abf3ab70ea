// Package health provides liveness and readiness checks for the ledger
// server.
//
// Liveness only reports that the process is up. Readiness runs every
// registered check concurrently, each bounded by a timeout, and answers 503
// unless all pass. Storage backends are checked through audit.Pinger, found
// anywhere in the provider's decorator chain:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.Register("config", health.ConfigCheck())
//	checker.Register("storage", health.ProviderCheck(provider, collector.UpdateProviderUp))
//	health.Register(mux, checker, &cfg.Telemetry.Health, version, commit, buildTime)
package health

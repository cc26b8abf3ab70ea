package providerfactory

import (
	"log/slog"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/actions"
	"mercator-hq/ledger/pkg/audit/serialization"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/telemetry/logging"
	"mercator-hq/ledger/pkg/telemetry/tracing"
)

// NewConfiguration builds the audit configuration for cfg around provider.
//
// Actions are registered in this order:
//
//	OnScopeCreated: static fields, trace context, scope metrics
//	OnEventSaving:  PII redaction, truncation, target hashing
//	OnEventSaved:   save metrics
func NewConfiguration(cfg *config.Config, provider audit.DataProvider, opts Options) *audit.Configuration {
	return audit.NewConfiguration(Settings(cfg, provider, opts)...)
}

// Settings returns the options NewConfiguration applies. The list starts
// with audit.WithoutActions, so Configuration.Update with it replaces a live
// configuration's actions instead of adding to them.
func Settings(cfg *config.Config, provider audit.DataProvider, opts Options) []audit.Option {
	// Validated configs always parse.
	policy, _ := audit.ParseCreationPolicy(cfg.Audit.CreationPolicy)
	format, _ := serialization.ForName(cfg.Audit.Serializer)

	settings := []audit.Option{
		audit.WithoutActions(),
		audit.WithDataProvider(provider),
		audit.WithCreationPolicy(policy),
		audit.WithSerializer(format),
		audit.WithDisabled(!cfg.Audit.Enabled),
		audit.WithLogger(slog.Default().With("component", "audit")),
	}

	a := cfg.Audit.Actions

	if len(a.StaticFields) > 0 {
		fields := make(map[string]any, len(a.StaticFields))
		for k, v := range a.StaticFields {
			fields[k] = v
		}
		settings = append(settings, audit.WithAction(audit.OnScopeCreated, actions.StaticFields(fields)))
	}
	if a.TraceContext {
		settings = append(settings, audit.WithAction(audit.OnScopeCreated, tracing.TraceContextAction()))
	}
	if opts.Metrics != nil && opts.Metrics.Enabled() {
		settings = append(settings, audit.WithAction(audit.OnScopeCreated, opts.Metrics.ScopeCreatedAction()))
	}

	if a.RedactPII {
		redactor := logging.NewRedactor(cfg.Telemetry.Logging.RedactPatterns)
		settings = append(settings, audit.WithAction(audit.OnEventSaving, actions.RedactFields(redactor)))
	}
	if a.MaxFieldLength > 0 {
		settings = append(settings, audit.WithAction(audit.OnEventSaving, actions.TruncateFields(a.MaxFieldLength)))
	}
	if a.HashTarget {
		settings = append(settings, audit.WithAction(audit.OnEventSaving, actions.HashTarget()))
	}

	if opts.Metrics != nil && opts.Metrics.Enabled() {
		settings = append(settings, audit.WithAction(audit.OnEventSaved, opts.Metrics.EventSavedAction()))
	}

	return settings
}

package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/serialization"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Backends lists the storage backend names.
var Backends = []string{"memory", "sqlite", "postgres", "clickhouse", "file"}

// Modes lists the ways backends combine.
var Modes = []string{"fallback", "multiplex", "best_effort", "round_robin", "hedge"}

// MinAPIKeyLength is the shortest accepted API key.
const MinAPIKeyLength = 16

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate validates the entire configuration. All problems are collected
// and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	if cfg.Secrets.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "must not be negative"})
	}
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if _, err := audit.ParseCreationPolicy(cfg.CreationPolicy); err != nil {
		errs = append(errs, FieldError{Field: "audit.creation_policy", Message: err.Error()})
	}
	if _, err := serialization.ForName(cfg.Serializer); err != nil {
		errs = append(errs, FieldError{Field: "audit.serializer", Message: err.Error()})
	}
	if cfg.Actions.MaxFieldLength < 0 {
		errs = append(errs, FieldError{Field: "audit.actions.max_field_length", Message: "must not be negative"})
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	backends := append([]string{cfg.Backend}, cfg.Fallback...)
	for i, b := range backends {
		field := "storage.backend"
		if i > 0 {
			field = fmt.Sprintf("storage.fallback[%d]", i-1)
		}
		if !slices.Contains(Backends, b) {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("invalid backend %q: must be one of %s", b, strings.Join(Backends, ", ")),
			})
		}
		if slices.Index(backends, b) != i {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("backend %q listed twice", b)})
		}
	}

	if !slices.Contains(Modes, cfg.Mode) {
		errs = append(errs, FieldError{
			Field:   "storage.mode",
			Message: fmt.Sprintf("invalid mode %q: must be one of %s", cfg.Mode, strings.Join(Modes, ", ")),
		})
	}
	if cfg.Mode == "hedge" && cfg.HedgeDelay <= 0 {
		errs = append(errs, FieldError{Field: "storage.hedge_delay", Message: "must be positive in hedge mode"})
	}

	for name, w := range cfg.Weights {
		field := "storage.weights." + name
		if !slices.Contains(backends, name) {
			errs = append(errs, FieldError{Field: field, Message: "not a configured backend"})
		}
		if w < 0 {
			errs = append(errs, FieldError{Field: field, Message: "must not be negative"})
		}
	}

	if slices.Contains(backends, "sqlite") {
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{Field: "storage.sqlite.driver", Message: fmt.Sprintf("invalid driver %q: must be 'sqlite3' or 'sqlite'", cfg.SQLite.Driver)})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_idle_conns", Message: "must not exceed max_open_conns"})
		}
		errs = append(errs, validateTable("storage.sqlite.table", cfg.SQLite.Table)...)
	}
	if slices.Contains(backends, "postgres") {
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "storage.postgres.dsn", Message: "dsn is required for the postgres backend"})
		}
		if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
			errs = append(errs, FieldError{Field: "storage.postgres.min_conns", Message: "must not exceed max_conns"})
		}
		errs = append(errs, validateTable("storage.postgres.table", cfg.Postgres.Table)...)
	}
	if slices.Contains(backends, "clickhouse") {
		if cfg.ClickHouse.DSN == "" {
			errs = append(errs, FieldError{Field: "storage.clickhouse.dsn", Message: "dsn is required for the clickhouse backend"})
		}
		errs = append(errs, validateTable("storage.clickhouse.table", cfg.ClickHouse.Table)...)
	}

	if cfg.Retry.MaxTries < 1 {
		errs = append(errs, FieldError{Field: "storage.retry.max_tries", Message: "must be at least 1"})
	}
	if cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		errs = append(errs, FieldError{Field: "storage.retry.max_interval", Message: "must not be less than initial_interval"})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "storage.retention.days", Message: "must not be negative"})
	}
	if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{Field: "storage.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "storage.query.default_limit", Message: "must be at least 1"})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{Field: "storage.query.max_limit", Message: "must not be less than default_limit"})
	}
	return sortFieldErrors(errs)
}

func validateTable(field, name string) []FieldError {
	if !tableNamePattern.MatchString(name) {
		return []FieldError{{Field: field, Message: fmt.Sprintf("invalid table name %q", name)}}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err)})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}

	names := make(map[string]bool, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		field := fmt.Sprintf("server.api_keys[%d]", i)
		if key.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		} else if names[key.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate name %q", key.Name)})
		}
		names[key.Name] = true
		if !IsSecretRef(key.Key) && len(key.Key) < MinAPIKeyLength {
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("must be at least %d characters", MinAPIKeyLength)})
		}
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "required when TLS is enabled"})
		}
		if !slices.Contains([]string{"1.2", "1.3"}, cfg.TLS.MinVersion) {
			errs = append(errs, FieldError{Field: "server.tls.min_version", Message: fmt.Sprintf("invalid version %q: must be '1.2' or '1.3'", cfg.TLS.MinVersion)})
		}
		if cfg.TLS.ClientAuth != "" && !slices.Contains([]string{"require", "request", "verify_if_given"}, cfg.TLS.ClientAuth) {
			errs = append(errs, FieldError{Field: "server.tls.client_auth", Message: fmt.Sprintf("invalid mode %q: must be 'require', 'request' or 'verify_if_given'", cfg.TLS.ClientAuth)})
		}
	}
	return sortFieldErrors(errs)
}

// IsSecretRef reports whether s is a single ${secret:name} reference. Such
// values are checked after resolution.
func IsSecretRef(s string) bool {
	return strings.HasPrefix(s, "${secret:") && strings.HasSuffix(s, "}") && len(s) > len("${secret:}")
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: err.Error(),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}
	if !slices.IsSorted(cfg.Metrics.StorageDurationBuckets) {
		errs = append(errs, FieldError{Field: "telemetry.metrics.storage_duration_buckets", Message: "buckets must be sorted"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "tracing endpoint is required when tracing is enabled"})
	}
	if !slices.Contains([]string{"always", "never", "ratio"}, cfg.Tracing.Sampler) {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler)})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
	}

	if cfg.Health.Enabled {
		for field, path := range map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
		} {
			if !strings.HasPrefix(path, "/") {
				errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
			}
		}
		if cfg.Health.LivenessPath == cfg.Health.ReadinessPath {
			errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "must differ from liveness_path"})
		}
	}
	return sortFieldErrors(errs)
}

// sortFieldErrors orders errors by field so output is stable.
func sortFieldErrors(errs []FieldError) []FieldError {
	slices.SortStableFunc(errs, func(a, b FieldError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return errs
}

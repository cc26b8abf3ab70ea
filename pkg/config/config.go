package config

import "time"

// Config is the root configuration for the ledger service and CLI.
type Config struct {
	// Audit controls scope behavior and the built-in actions.
	Audit AuditConfig `yaml:"audit"`

	// Storage selects and configures the data provider.
	Storage StorageConfig `yaml:"storage"`

	// Server configures the HTTP listener used by "ledger serve".
	Server ServerConfig `yaml:"server"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AuditConfig controls how scopes behave.
type AuditConfig struct {
	// Enabled turns auditing on. When false, scopes run no actions and
	// persist nothing.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// CreationPolicy is the default creation policy.
	// Options: "insert_on_end", "insert_on_start_replace_on_end",
	// "insert_on_start_insert_on_end", "manual"
	// Default: "insert_on_end"
	CreationPolicy string `yaml:"creation_policy"`

	// Serializer is used to clone target snapshots and store events.
	// Options: "json", "yaml"
	// Default: "json"
	Serializer string `yaml:"serializer"`

	// Actions configures the built-in extension actions.
	Actions ActionsConfig `yaml:"actions"`
}

// ActionsConfig enables the built-in actions registered by the provider
// factory.
type ActionsConfig struct {
	// HashTarget stores SHA-256 hashes of the target snapshots.
	// Default: false
	HashTarget bool `yaml:"hash_target"`

	// RedactPII scrubs PII from string custom fields and comments before
	// saving, using the logging redaction patterns.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// MaxFieldLength truncates string custom fields. 0 disables truncation.
	// Default: 0
	MaxFieldLength int `yaml:"max_field_length"`

	// StaticFields are added to every event.
	StaticFields map[string]string `yaml:"static_fields"`

	// TraceContext stamps the active trace and span ids on every event.
	// Default: true
	TraceContext bool `yaml:"trace_context"`
}

// StorageConfig selects the data provider stack.
type StorageConfig struct {
	// Backend is the primary storage backend.
	// Options: "memory", "sqlite", "postgres", "clickhouse", "file"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Fallback lists additional backends. How they combine with the primary
	// is set by Mode.
	Fallback []string `yaml:"fallback"`

	// Mode combines the primary with the Fallback backends.
	// Options: "fallback" (try in order), "multiplex" (write to all, all
	// must succeed), "best_effort" (write to all, one must succeed),
	// "round_robin" (spread inserts), "hedge" (start the next backend after
	// HedgeDelay, first success wins)
	// Default: "fallback"
	Mode string `yaml:"mode"`

	// HedgeDelay is how long the hedge mode waits before trying the next
	// backend.
	// Default: 200ms
	HedgeDelay time.Duration `yaml:"hedge_delay"`

	// Weights sets per-backend insert weights for the round_robin mode,
	// keyed by backend name. Unlisted backends get 1; 0 takes a backend out
	// of the rotation.
	Weights map[string]int `yaml:"weights"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// ClickHouse contains ClickHouse-specific configuration.
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`

	// File contains hash-chained log configuration.
	File FileConfig `yaml:"file"`

	// Retry wraps the stack with exponential backoff.
	Retry RetryConfig `yaml:"retry"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query configuration.
	Query QueryConfig `yaml:"query"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Driver selects the database/sql driver.
	// Options: "sqlite3" (cgo), "sqlite" (pure Go)
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// Path is the file path for the SQLite database.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Table is the events table name.
	// Default: "audit_events"
	Table string `yaml:"table"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// DSN is the connection string. It should typically be supplied with
	// LEDGER_STORAGE_POSTGRES_DSN.
	DSN string `yaml:"dsn"`

	// Table is the events table name.
	// Default: "audit_events"
	Table string `yaml:"table"`

	// MaxConns is the maximum pool size.
	// Default: 20
	MaxConns int32 `yaml:"max_conns"`

	// MinConns is the number of connections kept open.
	// Default: 2
	MinConns int32 `yaml:"min_conns"`

	// ConnectTimeout bounds each connection attempt.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ClickHouseConfig contains ClickHouse-specific configuration.
type ClickHouseConfig struct {
	// DSN is the connection string.
	DSN string `yaml:"dsn"`

	// Table is the events table name.
	// Default: "audit_events"
	Table string `yaml:"table"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 50
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// FileConfig configures the hash-chained JSONL log.
type FileConfig struct {
	// Path is the log file path.
	// Default: "data/audit.jsonl"
	Path string `yaml:"path"`
}

// RetryConfig configures retries around the storage stack.
type RetryConfig struct {
	// Enabled wraps the provider with retries.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxTries is the total number of attempts per call.
	// Default: 3
	MaxTries int `yaml:"max_tries"`

	// InitialInterval is the first backoff interval.
	// Default: 100ms
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps the backoff interval.
	// Default: 5s
	MaxInterval time.Duration `yaml:"max_interval"`

	// MaxElapsedTime bounds the total time spent retrying.
	// Default: 30s
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain audit events.
	// 0 keeps events forever.
	// Default: 365
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchivePath, when set, is a directory that receives a JSON export of
	// the events before each prune deletes them.
	ArchivePath string `yaml:"archive_path"`
}

// QueryConfig contains query configuration.
type QueryConfig struct {
	// DefaultLimit is used when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the number of records a single query returns.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`

	// Timeout is the query execution timeout.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the "host:port" to listen on.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// APIKeys protect the events API. Health and metrics endpoints stay
	// open. An empty list disables authentication.
	APIKeys []APIKeyConfig `yaml:"api_keys"`

	// TLS serves HTTPS when enabled.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS for the listener. Certificate files are
// reloaded when they change on disk.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CertFile and KeyFile are PEM-encoded.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile enables client certificate verification against the
	// given PEM bundle.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth is "require", "request" or "verify_if_given".
	// Default: "require" when ClientCAFile is set
	ClientAuth string `yaml:"client_auth"`
}

// SecretsConfig lists where ${secret:name} references in the storage DSNs
// and API keys are looked up. Sources are tried in order: environment, then
// the directory.
type SecretsConfig struct {
	// EnvPrefix maps secret "pg-dsn" to $<EnvPrefix>PG_DSN.
	// Default: "LEDGER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, Kubernetes-style. Empty disables it.
	Dir string `yaml:"dir"`

	// CacheTTL bounds how long a resolved value is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// APIKeyConfig is one API key accepted by the events API.
type APIKeyConfig struct {
	// Name identifies the caller in logs.
	Name string `yaml:"name"`

	// Key is the secret. It should typically be supplied with
	// LEDGER_SERVER_API_KEY rather than written to the file.
	Key string `yaml:"key"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables PII redaction in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns are custom PII patterns, applied after the built-in
	// ones in logs and by the redaction action.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "ledger"
	Subsystem string `yaml:"subsystem"`

	// StorageDurationBuckets defines histogram buckets for storage call
	// duration in seconds.
	StorageDurationBuckets []float64 `yaml:"storage_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "mercator-ledger"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

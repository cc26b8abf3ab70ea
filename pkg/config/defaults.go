package config

import "time"

// Default values for configuration fields.
const (
	DefaultAuditEnabled        = true
	DefaultCreationPolicy      = "insert_on_end"
	DefaultSerializer          = "json"
	DefaultActionsRedactPII    = true
	DefaultActionsTraceContext = true

	DefaultStorageBackend       = "sqlite"
	DefaultStorageMode          = "fallback"
	DefaultHedgeDelay           = 200 * time.Millisecond
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLitePath           = "data/audit.db"
	DefaultTable                = "audit_events"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresMaxConns     = int32(20)
	DefaultPostgresMinConns     = int32(2)
	DefaultPostgresTimeout      = 10 * time.Second
	DefaultClickHouseMaxOpen    = 50
	DefaultClickHouseMaxIdle    = 5
	DefaultFilePath             = "data/audit.jsonl"
	DefaultRetryEnabled         = true
	DefaultRetryMaxTries        = 3
	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMaxInterval     = 5 * time.Second
	DefaultRetryMaxElapsedTime  = 30 * time.Second
	DefaultRetentionDays        = 365
	DefaultRetentionSchedule    = "0 3 * * *"
	DefaultQueryDefaultLimit    = 100
	DefaultQueryMaxLimit        = 10000
	DefaultQueryTimeout         = 30 * time.Second

	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSClientAuth   = "require"

	DefaultSecretsEnvPrefix = "LEDGER_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultLogRedactPII        = true
	DefaultMetricsEnabled      = true
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsNamespace    = "mercator"
	DefaultMetricsSubsystem    = "ledger"
	DefaultTracingSampler      = "ratio"
	DefaultTracingSampleRatio  = 0.1
	DefaultTracingServiceName  = "mercator-ledger"
	DefaultTracingInsecure     = true
	DefaultTracingTimeout      = 10 * time.Second
	DefaultHealthEnabled       = true
	DefaultHealthLivenessPath  = "/health"
	DefaultHealthReadinessPath = "/ready"
	DefaultHealthCheckTimeout  = 2 * time.Second
)

// DefaultStorageDurationBuckets are histogram buckets in seconds.
var DefaultStorageDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Defaults returns a configuration with every field at its default. YAML is
// decoded on top of it, so booleans that default to true can still be
// switched off in the file.
func Defaults() *Config {
	cfg := &Config{
		Audit: AuditConfig{
			Enabled: DefaultAuditEnabled,
			Actions: ActionsConfig{
				RedactPII:    DefaultActionsRedactPII,
				TraceContext: DefaultActionsTraceContext,
			},
		},
		Storage: StorageConfig{
			SQLite:    SQLiteConfig{WALMode: DefaultSQLiteWALMode},
			Retry:     RetryConfig{Enabled: DefaultRetryEnabled},
			Retention: RetentionConfig{Days: DefaultRetentionDays},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: DefaultLogRedactPII},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{Insecure: DefaultTracingInsecure},
			Health:  HealthConfig{Enabled: DefaultHealthEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Booleans are
// left alone; see Defaults.
func ApplyDefaults(cfg *Config) {
	// Audit defaults
	if cfg.Audit.CreationPolicy == "" {
		cfg.Audit.CreationPolicy = DefaultCreationPolicy
	}
	if cfg.Audit.Serializer == "" {
		cfg.Audit.Serializer = DefaultSerializer
	}

	// Storage defaults
	s := &cfg.Storage
	if s.Backend == "" {
		s.Backend = DefaultStorageBackend
	}
	if s.Mode == "" {
		s.Mode = DefaultStorageMode
	}
	if s.HedgeDelay == 0 {
		s.HedgeDelay = DefaultHedgeDelay
	}
	if s.SQLite.Driver == "" {
		s.SQLite.Driver = DefaultSQLiteDriver
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.Table == "" {
		s.SQLite.Table = DefaultTable
	}
	if s.SQLite.MaxOpenConns == 0 {
		s.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if s.SQLite.MaxIdleConns == 0 {
		s.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if s.Postgres.Table == "" {
		s.Postgres.Table = DefaultTable
	}
	if s.Postgres.MaxConns == 0 {
		s.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if s.Postgres.MinConns == 0 {
		s.Postgres.MinConns = DefaultPostgresMinConns
	}
	if s.Postgres.ConnectTimeout == 0 {
		s.Postgres.ConnectTimeout = DefaultPostgresTimeout
	}
	if s.ClickHouse.Table == "" {
		s.ClickHouse.Table = DefaultTable
	}
	if s.ClickHouse.MaxOpenConns == 0 {
		s.ClickHouse.MaxOpenConns = DefaultClickHouseMaxOpen
	}
	if s.ClickHouse.MaxIdleConns == 0 {
		s.ClickHouse.MaxIdleConns = DefaultClickHouseMaxIdle
	}
	if s.File.Path == "" {
		s.File.Path = DefaultFilePath
	}
	if s.Retry.MaxTries == 0 {
		s.Retry.MaxTries = DefaultRetryMaxTries
	}
	if s.Retry.InitialInterval == 0 {
		s.Retry.InitialInterval = DefaultRetryInitialInterval
	}
	if s.Retry.MaxInterval == 0 {
		s.Retry.MaxInterval = DefaultRetryMaxInterval
	}
	if s.Retry.MaxElapsedTime == 0 {
		s.Retry.MaxElapsedTime = DefaultRetryMaxElapsedTime
	}
	if s.Retention.PruneSchedule == "" {
		s.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if s.Query.DefaultLimit == 0 {
		s.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if s.Query.MaxLimit == 0 {
		s.Query.MaxLimit = DefaultQueryMaxLimit
	}
	if s.Query.Timeout == 0 {
		s.Query.Timeout = DefaultQueryTimeout
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ClientCAFile != "" && cfg.Server.TLS.ClientAuth == "" {
		cfg.Server.TLS.ClientAuth = DefaultTLSClientAuth
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	// Telemetry defaults
	t := &cfg.Telemetry
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.StorageDurationBuckets) == 0 {
		t.Metrics.StorageDurationBuckets = append([]float64(nil), DefaultStorageDurationBuckets...)
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 && t.Tracing.Sampler == "ratio" {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultHealthLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultHealthReadinessPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}

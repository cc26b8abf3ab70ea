package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "LEDGER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Fields missing from the file keep their defaults. The result is validated
// but not modified by environment variables; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies environment
// variable overrides. An empty path starts from Defaults.
//
// The loading sequence is:
//  1. Defaults
//  2. YAML from file
//  3. LEDGER_* environment variables
//  4. Validation
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Defaults()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envOverrides maps variable names (without EnvPrefix) to setters.
func envOverrides(cfg *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"AUDIT_ENABLED":                  setBool(&cfg.Audit.Enabled),
		"AUDIT_CREATION_POLICY":          setString(&cfg.Audit.CreationPolicy),
		"AUDIT_SERIALIZER":               setString(&cfg.Audit.Serializer),
		"AUDIT_ACTIONS_HASH_TARGET":      setBool(&cfg.Audit.Actions.HashTarget),
		"AUDIT_ACTIONS_REDACT_PII":       setBool(&cfg.Audit.Actions.RedactPII),
		"AUDIT_ACTIONS_MAX_FIELD_LEN":    setInt(&cfg.Audit.Actions.MaxFieldLength),
		"STORAGE_BACKEND":                setString(&cfg.Storage.Backend),
		"STORAGE_FALLBACK":               setList(&cfg.Storage.Fallback),
		"STORAGE_MODE":                   setString(&cfg.Storage.Mode),
		"STORAGE_HEDGE_DELAY":            setDuration(&cfg.Storage.HedgeDelay),
		"STORAGE_SQLITE_DRIVER":          setString(&cfg.Storage.SQLite.Driver),
		"STORAGE_SQLITE_PATH":            setString(&cfg.Storage.SQLite.Path),
		"STORAGE_SQLITE_TABLE":           setString(&cfg.Storage.SQLite.Table),
		"STORAGE_POSTGRES_DSN":           setString(&cfg.Storage.Postgres.DSN),
		"STORAGE_POSTGRES_TABLE":         setString(&cfg.Storage.Postgres.Table),
		"STORAGE_CLICKHOUSE_DSN":         setString(&cfg.Storage.ClickHouse.DSN),
		"STORAGE_CLICKHOUSE_TABLE":       setString(&cfg.Storage.ClickHouse.Table),
		"STORAGE_FILE_PATH":              setString(&cfg.Storage.File.Path),
		"STORAGE_RETRY_ENABLED":          setBool(&cfg.Storage.Retry.Enabled),
		"STORAGE_RETRY_MAX_TRIES":        setInt(&cfg.Storage.Retry.MaxTries),
		"STORAGE_RETENTION_DAYS":         setInt(&cfg.Storage.Retention.Days),
		"STORAGE_RETENTION_SCHEDULE":     setString(&cfg.Storage.Retention.PruneSchedule),
		"STORAGE_RETENTION_ARCHIVE_PATH": setString(&cfg.Storage.Retention.ArchivePath),
		"SERVER_LISTEN_ADDRESS":          setString(&cfg.Server.ListenAddress),
		"SERVER_SHUTDOWN_TIMEOUT":        setDuration(&cfg.Server.ShutdownTimeout),
		"SERVER_API_KEY":                 addAPIKey(&cfg.Server.APIKeys),
		"SERVER_TLS_ENABLED":             setBool(&cfg.Server.TLS.Enabled),
		"SERVER_TLS_CERT_FILE":           setString(&cfg.Server.TLS.CertFile),
		"SERVER_TLS_KEY_FILE":            setString(&cfg.Server.TLS.KeyFile),
		"SECRETS_DIR":                    setString(&cfg.Secrets.Dir),
		"TELEMETRY_LOGGING_LEVEL":        setString(&cfg.Telemetry.Logging.Level),
		"TELEMETRY_LOGGING_FORMAT":       setString(&cfg.Telemetry.Logging.Format),
		"TELEMETRY_LOGGING_REDACT_PII":   setBool(&cfg.Telemetry.Logging.RedactPII),
		"TELEMETRY_METRICS_ENABLED":      setBool(&cfg.Telemetry.Metrics.Enabled),
		"TELEMETRY_METRICS_PATH":         setString(&cfg.Telemetry.Metrics.Path),
		"TELEMETRY_TRACING_ENABLED":      setBool(&cfg.Telemetry.Tracing.Enabled),
		"TELEMETRY_TRACING_ENDPOINT":     setString(&cfg.Telemetry.Tracing.Endpoint),
		"TELEMETRY_TRACING_SAMPLER":      setString(&cfg.Telemetry.Tracing.Sampler),
		"TELEMETRY_TRACING_SAMPLE_RATIO": setFloat(&cfg.Telemetry.Tracing.SampleRatio),
		"TELEMETRY_HEALTH_ENABLED":       setBool(&cfg.Telemetry.Health.Enabled),
	}
}

// applyEnvOverrides applies LEDGER_* variables found by lookup. Unlike
// file values, a malformed variable is an error rather than silently
// ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []FieldError
	for name, set := range envOverrides(cfg) {
		val, ok := lookup(EnvPrefix + name)
		if !ok || val == "" {
			continue
		}
		if err := set(val); err != nil {
			errs = append(errs, FieldError{Field: EnvPrefix + name, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: sortFieldErrors(errs)}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
		return nil
	}
}

// addAPIKey appends a key named "env".
func addAPIKey(dst *[]APIKeyConfig) func(string) error {
	return func(v string) error {
		*dst = append(*dst, APIKeyConfig{Name: "env", Key: v})
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*dst = b
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*dst = i
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*dst = f
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*dst = d
		return nil
	}
}

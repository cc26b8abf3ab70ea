package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantFields []string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:       "unknown backend",
			modify:     func(c *Config) { c.Storage.Backend = "redis" },
			wantFields: []string{"storage.backend"},
		},
		{
			name: "duplicate fallback",
			modify: func(c *Config) {
				c.Storage.Backend = "memory"
				c.Storage.Fallback = []string{"file", "file"}
			},
			wantFields: []string{"storage.fallback[1]"},
		},
		{
			name:       "unknown mode",
			modify:     func(c *Config) { c.Storage.Mode = "broadcast" },
			wantFields: []string{"storage.mode"},
		},
		{
			name: "hedge without delay",
			modify: func(c *Config) {
				c.Storage.Mode = "hedge"
				c.Storage.HedgeDelay = -1
			},
			wantFields: []string{"storage.hedge_delay"},
		},
		{
			name: "round robin weights",
			modify: func(c *Config) {
				c.Storage.Mode = "round_robin"
				c.Storage.Weights = map[string]int{"postgres": 2, "sqlite": -1}
			},
			wantFields: []string{"storage.weights.postgres", "storage.weights.sqlite"},
		},
		{
			name:       "bad sqlite table",
			modify:     func(c *Config) { c.Storage.SQLite.Table = "events; DROP TABLE x" },
			wantFields: []string{"storage.sqlite.table"},
		},
		{
			name:       "bad sqlite driver",
			modify:     func(c *Config) { c.Storage.SQLite.Driver = "sqlcipher" },
			wantFields: []string{"storage.sqlite.driver"},
		},
		{
			name: "clickhouse fallback without dsn",
			modify: func(c *Config) {
				c.Storage.Fallback = []string{"clickhouse"}
			},
			wantFields: []string{"storage.clickhouse.dsn"},
		},
		{
			name:       "bad cron",
			modify:     func(c *Config) { c.Storage.Retention.PruneSchedule = "every day" },
			wantFields: []string{"storage.retention.prune_schedule"},
		},
		{
			name:       "bad serializer",
			modify:     func(c *Config) { c.Audit.Serializer = "xml" },
			wantFields: []string{"audit.serializer"},
		},
		{
			name:       "bad listen address",
			modify:     func(c *Config) { c.Server.ListenAddress = "9090" },
			wantFields: []string{"server.listen_address"},
		},
		{
			name: "api keys",
			modify: func(c *Config) {
				c.Server.APIKeys = []APIKeyConfig{
					{Name: "ops", Key: "0123456789abcdef"},
					{Name: "ops", Key: "short"},
					{Key: "0123456789abcdef"},
				}
			},
			wantFields: []string{"server.api_keys[1].key", "server.api_keys[1].name", "server.api_keys[2].name"},
		},
		{
			name: "api key secret reference",
			modify: func(c *Config) {
				c.Server.APIKeys = []APIKeyConfig{{Name: "ops", Key: "${secret:ops}"}}
			},
		},
		{
			name: "tls",
			modify: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, MinVersion: "1.1", ClientAuth: "always"}
			},
			wantFields: []string{"server.tls.cert_file", "server.tls.client_auth", "server.tls.key_file", "server.tls.min_version"},
		},
		{
			name: "tracing without endpoint and bad ratio",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.SampleRatio = 2
			},
			wantFields: []string{"telemetry.tracing.endpoint", "telemetry.tracing.sample_ratio"},
		},
		{
			name: "health paths",
			modify: func(c *Config) {
				c.Telemetry.Health.LivenessPath = "health"
				c.Telemetry.Health.ReadinessPath = "health"
			},
			wantFields: []string{"telemetry.health.liveness_path", "telemetry.health.readiness_path", "telemetry.health.readiness_path"},
		},
		{
			name: "bad redact pattern",
			modify: func(c *Config) {
				c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "x", Pattern: "("}}
			},
			wantFields: []string{"telemetry.logging.redact_patterns[0].pattern"},
		},
		{
			name: "collects multiple sections",
			modify: func(c *Config) {
				c.Audit.CreationPolicy = "never"
				c.Telemetry.Logging.Level = "trace"
			},
			wantFields: []string{"audit.creation_policy", "telemetry.logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)

			err := Validate(cfg)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			var got []string
			for _, fe := range verr.Errors {
				got = append(got, fe.Field)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("fields = %v, want %v", got, tt.wantFields)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "a: bad" {
		t.Errorf("single = %q", single.Error())
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(multi.Error(), "2 errors") || !strings.Contains(multi.Error(), "b: worse") {
		t.Errorf("multi = %q", multi.Error())
	}
}

func TestIsSecretRef(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"${secret:ops}", true},
		{"${secret:}", false},
		{"prefix-${secret:ops}", false},
		{"0123456789abcdef", false},
	}
	for _, tt := range tests {
		if got := IsSecretRef(tt.in); got != tt.want {
			t.Errorf("IsSecretRef(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

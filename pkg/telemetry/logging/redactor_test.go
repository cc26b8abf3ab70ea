package logging

import (
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/ledger/pkg/config"
)

func TestNewRedactor_Patterns(t *testing.T) {
	tests := []struct {
		name   string
		custom []config.RedactPattern
		want   int
	}{
		{"defaults", nil, len(defaultPatterns)},
		{"custom", []config.RedactPattern{{Name: "ticket", Pattern: `T-\d+`, Replacement: "T-***"}}, len(defaultPatterns) + 1},
		{"invalid custom skipped", []config.RedactPattern{{Name: "bad", Pattern: "[unclosed"}}, len(defaultPatterns)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRedactor(tt.custom)
			if got := len(r.Patterns()); got != tt.want {
				t.Errorf("len(Patterns()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor([]config.RedactPattern{{Name: "ticket", Pattern: `T-\d+`, Replacement: "T-***"}})

	tests := []struct {
		name    string
		input   string
		want    string
		absent  string
		present string
	}{
		{name: "api key", input: "key sk-abc123xyz789", absent: "abc123xyz789"},
		{name: "email keeps domain", input: "from alice@example.com", want: "from ***@example.com"},
		{name: "ssn", input: "ssn 123-45-6789", want: "ssn ***-**-****"},
		{name: "credit card", input: "card 4111 1111 1111 1111", want: "card ****-****-****-****"},
		{name: "phone", input: "call 555-123-4567", want: "call ***-***-****"},
		{name: "ipv4 keeps first octet", input: "from 192.168.1.100", want: "from 192.*.*.*"},
		{name: "bearer", input: "Authorization: Bearer abc.def.ghi", want: "Authorization: Bearer ***"},
		{name: "password", input: "password=hunter2", want: "password: ***"},
		{name: "custom", input: "ticket T-12345", want: "ticket T-***"},
		{name: "clean", input: "order shipped", want: "order shipped"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactString(tt.input)
			if tt.want != "" || tt.input == "" {
				if got != tt.want {
					t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
				}
			}
			if tt.absent != "" && strings.Contains(got, tt.absent) {
				t.Errorf("RedactString(%q) = %q, still contains %q", tt.input, got, tt.absent)
			}
		})
	}
}

func TestRedactor_Nil(t *testing.T) {
	var r *Redactor
	if got := r.RedactString("alice@example.com"); got != "alice@example.com" {
		t.Errorf("nil redactor changed value: %q", got)
	}
	a := slog.String("password", "hunter2")
	if got := r.RedactAttr(a); !got.Equal(a) {
		t.Errorf("nil redactor changed attr: %v", got)
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := NewRedactor(nil)

	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"sensitive short", slog.String("password", "hunter2"), "***"},
		{"sensitive long", slog.String("api_token", "tok_abcdefghijkl"), "tok_***"},
		{"sensitive non-string", slog.Int("secret_code", 1234), "***"},
		{"plain string", slog.String("note", "mail bob@example.com"), "mail ***@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactAttr(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("RedactAttr(%v) = %q, want %q", tt.attr, got.Value.String(), tt.want)
			}
		})
	}

	group := r.RedactAttr(slog.Group("db", slog.String("dsn", "postgres://u:p@h/db"), slog.Int("conns", 4)))
	attrs := group.Value.Group()
	if len(attrs) != 2 || attrs[0].Value.String() != "post***" || attrs[1].Value.Int64() != 4 {
		t.Errorf("group redaction = %v", attrs)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"password":       true,
		"DB_PASSWORD":    true,
		"Authorization":  true,
		"clickhouse_dsn": true,
		"event_type":     false,
		"user":           false,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

// Package config loads the ledger configuration.
//
// Configuration is read from YAML with environment variable overrides and
// validated before use.
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Defaults (see Defaults and defaults.go)
//  2. Values from the YAML file
//  3. LEDGER_* environment variables, e.g. LEDGER_STORAGE_BACKEND or
//     LEDGER_STORAGE_POSTGRES_DSN
//  4. Validation, which reports every invalid field at once
//
// # Example
//
//	audit:
//	  creation_policy: insert_on_start_replace_on_end
//	  actions:
//	    hash_target: true
//	    static_fields:
//	      service: billing
//	storage:
//	  backend: postgres
//	  fallback: [file]
//	  postgres:
//	    dsn: postgres://ledger@localhost:5432/ledger?sslmode=disable
//	  retention:
//	    days: 90
//	telemetry:
//	  logging:
//	    level: debug
//
// # Singleton
//
//	if err := config.Initialize("ledger.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// Watcher reloads the singleton when the file changes.
package config

// Package secrets resolves ${secret:name} references in the configuration.
//
// Storage DSNs and API keys may name a secret instead of carrying the value:
//
//	storage:
//	  postgres:
//	    dsn: ${secret:pg-dsn}
//	server:
//	  api_keys:
//	    - name: ops
//	      key: ${secret:ops-api-key}
//
// A Resolver looks names up in order:
//   - the environment: "pg-dsn" is read from $LEDGER_SECRET_PG_DSN
//   - the secrets directory: "pg-dsn" is read from <dir>/pg-dsn, with
//     surrounding whitespace trimmed
//
// Resolved values are cached for secrets.cache_ttl. Watch clears the cache
// when the directory changes so rotated secrets reach the next reload.
package secrets

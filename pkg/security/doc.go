/*
Package security groups the transport and access controls of the ledger
service.

  - auth: API keys for the events API
  - secrets: ${secret:name} resolution for DSNs and API keys
  - tls: HTTPS for the API listener with certificate reloading

Health, readiness and metrics endpoints are never behind an API key so that
probes and scrapers keep working without credentials.
*/
package security

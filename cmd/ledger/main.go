// Ledger records audit events for application operations and manages the
// storage they are written to.
//
// Usage:
//
//	# Serve health, metrics and the read-only events API
//	ledger serve --config /etc/ledger/config.yaml
//
//	# Check a configuration file and the file backend's hash chain
//	ledger validate --config config.yaml --chain
//
//	# List events of one type from the last day
//	ledger events query --type Order:Update --since 24h
//
//	# Delete events past the retention period
//	ledger prune --dry-run
//
//	# Write sample events through the configured stack
//	ledger demo --count 100 --policy insert_on_start_replace_on_end
package main

func main() {
	Execute()
}

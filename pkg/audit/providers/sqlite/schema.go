package sqlite

import (
	"fmt"
	"regexp"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// validTableName restricts table names, which cannot be bound as parameters.
var validTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// versionSchema creates the schema version table.
const versionSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);
`

// insertSchemaVersion records the schema version.
const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// getSchemaVersion retrieves the current schema version.
const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// eventSchema returns the statements creating an events table.
// Timestamps are stored as Unix nanoseconds so range filters behave the same
// under both drivers.
func eventSchema(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    start_date INTEGER NOT NULL,
    end_date INTEGER,
    last_updated INTEGER NOT NULL,
    data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_start_date ON %[1]s(start_date);
CREATE INDEX IF NOT EXISTS idx_%[1]s_event_type ON %[1]s(event_type);
`, table)
}

// Package sqlite provides a data provider backed by an embedded SQLite
// database.
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go). Both are registered by this package.
//
// Each event is stored as one row holding the serialized event plus indexed
// columns for type and timestamps. The table name is an audit.Setting, so a
// computed setting can route events to per-type tables. Reads (GetEvent,
// QueryEvents, DeleteBefore) resolve the table with a nil event.
//
// # Basic Usage
//
//	p, err := sqlite.New(&sqlite.Config{
//	    Path:    "data/audit.db",
//	    WALMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/serialization"
)

const (
	// DriverCgo selects github.com/mattn/go-sqlite3.
	DriverCgo = "sqlite3"

	// DriverPure selects modernc.org/sqlite.
	DriverPure = "sqlite"
)

// Config contains configuration for the SQLite data provider.
type Config struct {
	// Driver is the database/sql driver name.
	// Default: "sqlite3"
	Driver string

	// Path is the database file path.
	Path string

	// Table is the events table name.
	// Default: "audit_events"
	Table audit.Setting[string]

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Format is the event serializer. Nil selects JSON.
	Format serialization.Serializer
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig() *Config {
	return &Config{
		Driver:       DriverCgo,
		Path:         "data/audit.db",
		Table:        audit.Value("audit_events"),
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// Provider implements audit.DataProvider using SQLite.
type Provider struct {
	audit.BaseProvider

	db     *sql.DB
	config *Config
	logger *slog.Logger

	tablesMu sync.Mutex
	tables   map[string]bool
}

// New opens the database, applies pragmas and verifies the schema version.
func New(config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	applyDefaults(&cfg)

	logger := slog.Default().With("component", "audit.provider.sqlite")

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	p := &Provider{
		BaseProvider: audit.BaseProvider{Format: cfg.Format},
		db:           db,
		config:       &cfg,
		logger:       logger,
		tables:       make(map[string]bool),
	}

	if err := p.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite provider initialized",
		"driver", cfg.Driver,
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return p, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = def.Driver
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if !cfg.Table.IsComputed() && cfg.Table.Resolve(nil) == "" {
		cfg.Table = def.Table
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = def.BusyTimeout
	}
}

// initialize enables WAL mode, sets the busy timeout and checks the schema
// version.
func (p *Provider) initialize() error {
	if p.config.WALMode {
		if _, err := p.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		p.logger.Debug("WAL mode enabled")
	}

	if _, err := p.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", p.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := p.db.Exec(versionSchema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := p.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := p.db.QueryRow(getSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	p.logger.Debug("schema version verified", "version", version)

	// Create the default table eagerly when it does not depend on the event.
	if !p.config.Table.IsComputed() {
		if _, err := p.ensureTable(context.Background(), nil); err != nil {
			return err
		}
	}

	return nil
}

// Name implements audit.Named.
func (p *Provider) Name() string {
	return "sqlite"
}

// ensureTable resolves the table for ev and creates it on first use.
func (p *Provider) ensureTable(ctx context.Context, ev *audit.Event) (string, error) {
	table := p.config.Table.Resolve(ev)
	if !validTableName.MatchString(table) {
		return "", audit.NewStorageError(p.Name(), "resolve_table", fmt.Errorf("invalid table name %q", table))
	}

	p.tablesMu.Lock()
	defer p.tablesMu.Unlock()

	if p.tables[table] {
		return table, nil
	}
	if _, err := p.db.ExecContext(ctx, eventSchema(table)); err != nil {
		return "", audit.NewStorageError(p.Name(), "create_table", err)
	}
	p.tables[table] = true
	p.logger.Debug("events table ready", "table", table)
	return table, nil
}

// InsertEvent stores the event under a new UUID.
func (p *Provider) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	ev := event.AuditEvent()
	table, err := p.ensureTable(ctx, ev)
	if err != nil {
		return nil, err
	}

	data, err := p.Serializer().Serialize(event)
	if err != nil {
		return nil, audit.NewStorageError(p.Name(), "insert", err)
	}

	id := uuid.NewString()
	query := fmt.Sprintf(`INSERT INTO %s (id, event_type, start_date, end_date, last_updated, data) VALUES (?, ?, ?, ?, ?, ?)`, table)

	_, err = p.db.ExecContext(ctx, query,
		id, ev.EventType, ev.StartDate.UnixNano(), nullableNanos(ev.EndDate), time.Now().UnixNano(), string(data),
	)
	if err != nil {
		return nil, audit.NewStorageError(p.Name(), "insert", err)
	}

	return id, nil
}

// ReplaceEvent overwrites the row stored under eventID.
func (p *Provider) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	ev := event.AuditEvent()
	table, err := p.ensureTable(ctx, ev)
	if err != nil {
		return err
	}

	data, err := p.Serializer().Serialize(event)
	if err != nil {
		return audit.NewStorageError(p.Name(), "replace", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET event_type = ?, start_date = ?, end_date = ?, last_updated = ?, data = ? WHERE id = ?`, table)

	result, err := p.db.ExecContext(ctx, query,
		ev.EventType, ev.StartDate.UnixNano(), nullableNanos(ev.EndDate), time.Now().UnixNano(), string(data), fmt.Sprint(eventID),
	)
	if err != nil {
		return audit.NewStorageError(p.Name(), "replace", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return audit.NewStorageError(p.Name(), "replace", err)
	}
	if affected == 0 {
		return audit.NewStorageError(p.Name(), "replace", audit.NewNotFoundError(p.Name(), eventID))
	}
	return nil
}

// GetEvent loads the event stored under eventID into dest.
func (p *Provider) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	table, err := p.ensureTable(ctx, nil)
	if err != nil {
		return err
	}

	var data string
	err = p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, table), fmt.Sprint(eventID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.NewNotFoundError(p.Name(), eventID)
	}
	if err != nil {
		return audit.NewStorageError(p.Name(), "get", err)
	}

	if err := p.Serializer().Deserialize([]byte(data), dest); err != nil {
		return audit.NewStorageError(p.Name(), "get", err)
	}
	return nil
}

// QueryEvents returns matching events ordered by StartDate.
func (p *Provider) QueryEvents(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	table, err := p.ensureTable(ctx, nil)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = &audit.Query{}
	}

	whereClause, args := buildWhereClause(query)
	sqlQuery := fmt.Sprintf("SELECT id, event_type, start_date, end_date, last_updated, data FROM %s", table)
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY start_date ASC, id ASC"

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	} else if query.Offset > 0 {
		sqlQuery += " LIMIT -1"
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError(p.Name(), "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		record, err := p.scanRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError(p.Name(), "query", err)
	}

	return records, nil
}

// DeleteBefore removes events that started before cutoff.
func (p *Provider) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	table, err := p.ensureTable(ctx, nil)
	if err != nil {
		return 0, err
	}

	result, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE start_date < ?", table), cutoff.UnixNano())
	if err != nil {
		return 0, audit.NewStorageError(p.Name(), "delete", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError(p.Name(), "delete", err)
	}

	p.logger.Info("pruned events", "table", table, "deleted", deleted, "cutoff", cutoff)

	return deleted, nil
}

// Ping verifies the database is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the database connection.
func (p *Provider) Close() error {
	return p.db.Close()
}

func (p *Provider) scanRow(rows *sql.Rows) (*audit.Record, error) {
	var (
		id          string
		eventType   string
		startDate   int64
		endDate     sql.NullInt64
		lastUpdated int64
		data        string
	)
	if err := rows.Scan(&id, &eventType, &startDate, &endDate, &lastUpdated, &data); err != nil {
		return nil, audit.NewStorageError(p.Name(), "scan", err)
	}

	ev := &audit.Event{}
	if err := p.Serializer().Deserialize([]byte(data), ev); err != nil {
		return nil, audit.NewStorageError(p.Name(), "scan", err)
	}

	record := &audit.Record{
		ID:          id,
		EventType:   eventType,
		StartDate:   time.Unix(0, startDate).UTC(),
		LastUpdated: time.Unix(0, lastUpdated).UTC(),
		Event:       ev,
	}
	if endDate.Valid {
		end := time.Unix(0, endDate.Int64).UTC()
		record.EndDate = &end
	}
	return record, nil
}

func buildWhereClause(query *audit.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, query.EventType)
	}
	if query.StartTime != nil {
		conditions = append(conditions, "start_date >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "start_date <= ?")
		args = append(args, query.EndTime.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

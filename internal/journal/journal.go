package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - stores, universes, events, telemetry
// 2 - telemetry lookup indexes
const currentSchemaVersion = 2

// ErrNotFound is returned when a store key has no saved snapshot.
var ErrNotFound = errors.New("not found")

// Journal is a SQLite-backed store of snapshots and telemetry.
// Uses WAL mode so readers are not blocked by the single writer.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used to report sink write failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithRecordTimeout bounds each telemetry write made through Record.
func WithRecordTimeout(d time.Duration) Option {
	return func(j *Journal) { j.timeout = d }
}

// Open creates or opens a journal at path, applying pragmas and migrations.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	j := &Journal{db: db, logger: slog.Default(), timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV2 indexes telemetry by store and law for ReadTelemetry filters.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_telemetry_store ON telemetry(store_key);
		CREATE INDEX IF NOT EXISTS idx_telemetry_law ON telemetry(law_name);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

func (j *Journal) schemaVersion(ctx context.Context) (int, error) {
	var version int
	err := j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	return version, err
}

func (j *Journal) pragma(ctx context.Context, name string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value)
	return value, err
}

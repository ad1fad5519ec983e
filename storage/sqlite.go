package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/danweinerdev/monitorlib/logging"
)

const (
	sqliteDefaultTable = "metrics"

	// sqliteDirPermissions is the permission mode for the database directory.
	sqliteDirPermissions = 0750
)

// sqliteTableName restricts the configurable table name to a plain SQL
// identifier, since it is interpolated into statements.
var sqliteTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqliteBackend persists points to a local SQLite table, with tags and
// fields stored as JSON and the timestamp at millisecond precision.
type sqliteBackend struct {
	path        string
	table       string
	busyTimeout int64

	log *logging.Logger
	db  *sql.DB
}

// newSQLite validates the backend configuration and returns an
// uninitialised backend. A missing path is fatal.
func newSQLite(cfg map[string]any, log *logging.Logger) (*sqliteBackend, error) {
	if err := requireOptions(cfg, "path"); err != nil {
		return nil, err
	}

	b := &sqliteBackend{
		table: sqliteDefaultTable,
		log:   log,
	}
	b.path, _ = stringOption(cfg, "path")
	if table, ok := stringOption(cfg, "table"); ok {
		b.table = table
	}
	if !sqliteTableName.MatchString(b.table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrMissingConfig, b.table)
	}
	if timeout, ok := intOption(cfg, "busy_timeout"); ok {
		b.busyTimeout = timeout
	}
	return b, nil
}

// Initialize opens the database file, creating its directory and the metrics
// table when absent. Failures to open or ping are recoverable.
func (b *sqliteBackend) Initialize(ctx context.Context) error {
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, sqliteDirPermissions); err != nil {
			return fmt.Errorf("%w: creating %s: %v", ErrUnavailable, dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", b.path, b.busyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		b.log.Error("failed to open sqlite database", "path", b.path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		b.log.Error("failed to open sqlite database", "path", b.path, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		measurement TEXT NOT NULL,
		tags TEXT NOT NULL,
		fields TEXT NOT NULL,
		timestamp_ms INTEGER NOT NULL
	)`, b.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("%w: creating table %q: %v", ErrUnavailable, b.table, err)
	}

	b.db = db
	return nil
}

// Write inserts the batch in a single transaction, initialising the
// database first when needed.
func (b *sqliteBackend) Write(ctx context.Context, points []Point) error {
	if b.db == nil {
		if err := b.Initialize(ctx); err != nil {
			return err
		}
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (measurement, tags, fields, timestamp_ms) VALUES (?, ?, ?, ?)",
		b.table)
	for _, p := range points {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshalling tags for %q: %w", p.Measurement, err)
		}
		fields, err := json.Marshal(p.Fields)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshalling fields for %q: %w", p.Measurement, err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			p.Measurement, string(tags), string(fields), p.Time.UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Flush is a no-op: writes are committed per batch.
func (b *sqliteBackend) Flush(ctx context.Context) error {
	if b.db == nil {
		return b.Initialize(ctx)
	}
	return nil
}

// Close releases the database handle if one was opened.
func (b *sqliteBackend) Close() error {
	if b.db != nil {
		err := b.db.Close()
		b.db = nil
		return err
	}
	return nil
}

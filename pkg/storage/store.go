// Package storage persists flushed plate windows to a SQL database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"              // sqlite driver

	"github.com/menta2k/plate-logger/pkg/types"
)

// Sink durably records the plates of a flushed window
type Sink interface {
	// Persist writes one row per plate. It returns the number of rows written.
	Persist(ctx context.Context, w types.Window) (int, error)
}

// Row is a persisted plate sighting
type Row struct {
	ID    int64
	types.FlushRecord
}

// Dialect captures the SQL differences between supported databases
type Dialect struct {
	Driver string
	schema string
	insert string
	recent string
}

var (
	// SQLite is served by modernc.org/sqlite
	SQLite = Dialect{
		Driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS LicensePlates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time TEXT,
	end_time TEXT,
	license_plate TEXT
)`,
		insert: `INSERT INTO LicensePlates (start_time, end_time, license_plate) VALUES (?, ?, ?)`,
		recent: `SELECT id, start_time, end_time, license_plate FROM LicensePlates ORDER BY id DESC LIMIT ?`,
	}

	// Postgres is served by pgx through database/sql
	Postgres = Dialect{
		Driver: "pgx",
		schema: `CREATE TABLE IF NOT EXISTS LicensePlates (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	start_time TEXT,
	end_time TEXT,
	license_plate TEXT
)`,
		insert: `INSERT INTO LicensePlates (start_time, end_time, license_plate) VALUES ($1, $2, $3)`,
		recent: `SELECT id, start_time, end_time, license_plate FROM LicensePlates ORDER BY id DESC LIMIT $1`,
	}
)

// DialectFor maps a configured driver name to its dialect
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported storage driver: %s", name)
	}
}

// SQLStore is a Sink on top of database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
}

// Open opens a database for the named driver. It does not create the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("storage dsn is empty")
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if dialect.Driver == SQLite.Driver {
		// A single connection keeps in-memory databases shared and writes serialized
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	return New(db, dialect), nil
}

// New wraps an existing database handle
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB returns the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Ping checks the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the LicensePlates table if it does not exist. It is a
// setup step and is never called while processing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Persist writes every plate of the window in one transaction. An empty
// window writes nothing.
func (s *SQLStore) Persist(ctx context.Context, w types.Window) (n int, err error) {
	records := w.Records()
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insert)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.StartTime, r.EndTime, r.Plate); err != nil {
			return 0, fmt.Errorf("insert %s: %w", r.Plate, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// Recent returns up to limit rows, newest first
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.recent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.StartTime, &r.EndTime, &r.Plate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

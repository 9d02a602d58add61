// Package db opens the embedded SQLite store and applies schema migrations.
// A single connection is shared process-wide; WAL keeps readers unblocked
// while the job runner writes.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// bootPragmas run against every fresh handle before migrations.
var bootPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens the database at dbPath, creating it if needed, and brings the
// schema up to date. The pool is pinned to one connection: the driver
// serializes writers anyway, and a single handle keeps transactions simple.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range bootPragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Conn exposes the underlying pool for the repositories.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Close checkpoints the WAL so the .db file is self-contained on disk, then
// closes the handle.
func (d *DB) Close() error {
	if _, err := d.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && d.logger != nil {
		d.logger.Warn("wal checkpoint on close failed", "error", err)
	}
	return d.conn.Close()
}

// migrate applies the embedded migration files that have not run yet, in
// file-name order. Each file commits atomically with the row that records it,
// so a failed migration leaves no half-applied state behind.
func (d *DB) migrate() error {
	if _, err := d.conn.Exec(
		`CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := d.appliedSet()
	if err != nil {
		return err
	}

	// ReadDir returns entries sorted by name, which is the apply order.
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || applied[name] {
			continue
		}
		if err := d.apply(name); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) appliedSet() (map[string]bool, error) {
	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (d *DB) apply(name string) error {
	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}

	if d.logger != nil {
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

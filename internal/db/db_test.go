package db

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNew_CreatesSchema(t *testing.T) {
	database := openTestDB(t)

	for _, table := range []string{"jobs", "_migrations"} {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// completed_at arrives in the last migration; seeing it proves the whole
	// chain ran.
	var n int
	err := database.Conn().QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('jobs') WHERE name = 'completed_at'",
	).Scan(&n)
	if err != nil || n != 1 {
		t.Errorf("jobs.completed_at columns = %d (err %v), want 1", n, err)
	}
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db", "formsight.db")

	database, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestNew_WALEnabled(t *testing.T) {
	database := openTestDB(t)

	var mode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

func TestNew_MigrationsRunOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := New(path, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	first.Close()

	second, err := New(path, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer second.Close()

	rows, err := second.Conn().Query("SELECT name FROM _migrations ORDER BY name")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
	}
	want := []string{"0001_init.sql", "0002_jobs_indexes.sql", "0003_jobs_completed_at.sql"}
	if !slices.Equal(names, want) {
		t.Errorf("applied migrations = %v, want %v", names, want)
	}
}

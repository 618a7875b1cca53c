package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neoprompts/neoprompts/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file inside the base directory.
const FileName = "neoprompts.db"

// Querier is satisfied by both *sql.DB and *sql.Tx, so every query
// function can run standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the SQLite database at baseDir/neoprompts.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.neoprompts.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection.
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS collections (
		  id         TEXT PRIMARY KEY,
		  name       TEXT NOT NULL,
		  emoji      TEXT NOT NULL DEFAULT '',
		  "order"    INTEGER NOT NULL DEFAULT 0,
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_collections_order ON collections("order");

		CREATE TABLE IF NOT EXISTS prompts (
		  id             TEXT PRIMARY KEY,
		  title          TEXT NOT NULL,
		  template       TEXT NOT NULL DEFAULT '',
		  description    TEXT NOT NULL DEFAULT '',
		  tags_json      TEXT NOT NULL DEFAULT '[]',
		  collection_id  TEXT REFERENCES collections(id) ON DELETE SET NULL,
		  is_favorite    INTEGER NOT NULL DEFAULT 0,
		  copy_count     INTEGER NOT NULL DEFAULT 0 CHECK (copy_count >= 0),
		  last_copied_at INTEGER,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_prompts_collection ON prompts(collection_id);
		CREATE INDEX IF NOT EXISTS idx_prompts_favorite ON prompts(is_favorite);
		CREATE INDEX IF NOT EXISTS idx_prompts_copy_count ON prompts(copy_count);
		CREATE INDEX IF NOT EXISTS idx_prompts_last_copied ON prompts(last_copied_at);
		CREATE INDEX IF NOT EXISTS idx_prompts_created ON prompts(created_at DESC);

		CREATE TABLE IF NOT EXISTS prompt_tags (
		  prompt_id TEXT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
		  position  INTEGER NOT NULL,
		  tag_norm  TEXT NOT NULL,
		  PRIMARY KEY (prompt_id, position)
		);

		CREATE INDEX IF NOT EXISTS idx_prompt_tags_norm ON prompt_tags(tag_norm);

		CREATE TABLE IF NOT EXISTS tags (
		  id        TEXT PRIMARY KEY,
		  name      TEXT NOT NULL,
		  name_norm TEXT NOT NULL,
		  color     TEXT NOT NULL DEFAULT ''
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name_norm ON tags(name_norm);

		CREATE TABLE IF NOT EXISTS settings (
		  id                TEXT PRIMARY KEY,
		  theme             TEXT NOT NULL,
		  sidebar_collapsed INTEGER NOT NULL DEFAULT 0
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing on success and rolling back on error.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

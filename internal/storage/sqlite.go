package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bblohar/MyBook-project/internal/storage/migrations"
)

// NewSQLiteStore opens or creates a SQLite database at dbPath and applies the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, timeout time.Duration) (*SQLStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := runMigrations(db, migrations.SQLite, "sqlite/001_init.sql"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	path := dbPath
	if path == ":memory:" {
		path = ""
	}
	return newSQLStore(db, dialectSQLite, timeout, path), nil
}

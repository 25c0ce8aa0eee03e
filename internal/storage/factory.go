package storage

import (
	"fmt"
	"strings"
	"time"
)

// NewBookStore creates a book store based on the DSN.
//   - postgres:// or postgresql://: PostgreSQL
//   - anything else: SQLite at the specified path (":memory:" for a private in-memory database)
func NewBookStore(dsn string, timeout time.Duration) (BookStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		s, err := NewPostgresStore(dsn, timeout)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	}
	return NewSQLiteStore(dsn, timeout)
}

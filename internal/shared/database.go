package shared

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewDatabase opens the analysis cache at the specified path, which can be
// ":memory:" for an in-memory database. Connections use WAL journaling and a
// busy timeout so the server and a concurrent CLI invocation can share the
// cache file without immediate SQLITE_BUSY failures.
func NewDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cacheDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// cacheDSN appends the cache's connection pragmas to a database path.
func cacheDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// ConfigureDatabase sets connection pool settings for the database.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}

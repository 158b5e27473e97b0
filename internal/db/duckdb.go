// Package db holds the optional DuckDB rent statistics store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir    string
	DBName     string
	Extensions []string
}

// Open opens a DuckDB database and loads the configured extensions.
// Extension failures are returned alongside a usable connection so callers
// can log them and carry on.
func Open(cfg Config) (*sql.DB, []error, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(dir, cfg.DBName+".duckdb")
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	var extErrs []error
	for _, ext := range cfg.Extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			extErrs = append(extErrs, fmt.Errorf("extension %s: %w", ext, err))
		}
	}
	return conn, extErrs, nil
}

// Get returns the process-wide DuckDB connection.
func Get(cfg Config) (*sql.DB, []error, error) {
	var extErrs []error
	once.Do(func() {
		instance, extErrs, initErr = Open(cfg)
	})
	return instance, extErrs, initErr
}

// Close closes the process-wide connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

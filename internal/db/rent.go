package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrNoColumn is returned when a probed column does not exist.
var ErrNoColumn = errors.New("column not found")

// RentStore is the rent statistics table. It answers column-type probes for
// bedroom encoding detection.
type RentStore struct {
	db    *sql.DB
	table string
}

// NewRentStore binds a store to table, which must be a plain identifier.
func NewRentStore(db *sql.DB, table string) (*RentStore, error) {
	if db == nil {
		return nil, errors.New("rent store: database not available")
	}
	if !identRE.MatchString(table) {
		return nil, fmt.Errorf("rent store: invalid table name %q", table)
	}
	return &RentStore{db: db, table: table}, nil
}

// Table is the bound table name.
func (s *RentStore) Table() string { return s.table }

// LoadCSV replaces the table with the contents of a CSV file, letting DuckDB
// infer column types. It returns the row count.
func (s *RentStore) LoadCSV(ctx context.Context, path string) (int64, error) {
	q := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s)`, s.table, quote(path))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return 0, fmt.Errorf("load %s into %s: %w", path, s.table, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// ColumnType returns the SQL type of table.column, e.g. VARCHAR or BIGINT.
func (s *RentStore) ColumnType(ctx context.Context, table, column string) (string, error) {
	if table == "" {
		table = s.table
	}
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table, column,
	).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s.%s: %w", table, column, ErrNoColumn)
	}
	if err != nil {
		return "", fmt.Errorf("probe %s.%s: %w", table, column, err)
	}
	return typ, nil
}

// Tables lists the tables in the database.
func Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

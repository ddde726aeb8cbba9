package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // sqlite database/sql driver

	"docvault/internal/config"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// Store wraps a database connection and its dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens a connection per config and verifies it with a ping.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dialect := NewDialect(cfg.Driver)

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect.Name() == "sqlite" {
		// Single writer, WAL for concurrent reads.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{DB: db, Dialect: dialect}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	s.DB.Close()
}

// QueryRows runs a query written with $N placeholders (rewritten for the
// active dialect) and returns results as []map[string]any.
func (s *Store) QueryRows(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.Rewrite(sqlStr), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow runs a query expected to yield at most one row.
// Returns ErrNotFound for zero rows.
func (s *Store) QueryRow(ctx context.Context, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := s.QueryRows(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec runs a statement and returns the number of rows affected. Driver
// errors are mapped through the dialect so unique violations surface as
// ErrUniqueViolation.
func (s *Store) Exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	result, err := s.DB.ExecContext(ctx, s.Dialect.Rewrite(sqlStr), args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", s.Dialect.MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// normalizeValue converts driver-specific values to JSON-friendly Go
// types. TEXT columns stay strings whatever they contain; callers that
// know a column holds a timestamp read it through AsTime.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		// database/sql often returns []byte for TEXT columns.
		return string(val)
	default:
		return v
	}
}

// timeLayouts covers the text forms timestamp columns come back in:
// RFC3339 (what this codebase writes), the modernc.org/sqlite time.Time
// binding format, and SQLite's datetime('now') defaults.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// AsTime reads a timestamp column that arrives as time.Time under pgx
// but as TEXT under the sqlite driver. Returns the zero time for absent
// or unparseable values.
func AsTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	case []byte:
		return AsTime(string(val))
	}
	return time.Time{}
}

// AsBool reads a boolean column that SQLite may report as an integer.
func AsBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}

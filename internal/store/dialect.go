package store

import (
	"strings"
)

// Dialect abstracts the differences between PostgreSQL and SQLite that
// the fixed document schema still runs into: placeholder syntax, DDL,
// array-valued columns and driver error shapes.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Rewrite translates a query written with $N placeholders into the
	// dialect's native placeholder form.
	Rewrite(sql string) string

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// SchemaSQL returns the idempotent DDL for all application tables.
	SchemaSQL() string

	// ArrayParam encodes a string slice for a roles-style column.
	// PostgreSQL passes the slice through (pgx handles TEXT[]);
	// SQLite JSON-encodes it into TEXT.
	ArrayParam(values []string) any

	// ScanArray decodes a TEXT[] (PostgreSQL) or JSON TEXT (SQLite)
	// column value into []string.
	ScanArray(src any) ([]string, error)

	// MapError wraps driver errors in well-known sentinels where
	// recognizable (currently unique violations).
	MapError(err error) error
}

// NewDialect returns the Dialect for a config driver name.
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// rewritePlaceholders rewrites $N markers using repl, leaving everything
// inside single-quoted literals untouched.
func rewritePlaceholders(sql string, repl func(n string) string) string {
	var b strings.Builder
	b.Grow(len(sql))
	inLiteral := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			inLiteral = !inLiteral
			b.WriteByte(ch)
			continue
		}
		if ch == '$' && !inLiteral {
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j > i+1 {
				b.WriteString(repl(sql[i+1 : j]))
				i = j - 1
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

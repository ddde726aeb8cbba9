package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSQLiteRewrite(t *testing.T) {
	d := &SQLiteDialect{}

	cases := map[string]string{
		"SELECT * FROM users WHERE id = $1":             "SELECT * FROM users WHERE id = ?1",
		"INSERT INTO t (a, b, c) VALUES ($1, $2, $3)":   "INSERT INTO t (a, b, c) VALUES (?1, ?2, ?3)",
		"UPDATE t SET a = $10 WHERE b = $2":             "UPDATE t SET a = ?10 WHERE b = ?2",
		"SELECT '$1 literal' FROM t WHERE id = $1":      "SELECT '$1 literal' FROM t WHERE id = ?1",
		"SELECT * FROM t":                               "SELECT * FROM t",
		"SELECT price, cost FROM t WHERE note = '$$$'":  "SELECT price, cost FROM t WHERE note = '$$$'",
	}
	for in, want := range cases {
		if got := d.Rewrite(in); got != want {
			t.Fatalf("Rewrite(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostgresRewriteIsIdentity(t *testing.T) {
	d := &PostgresDialect{}
	q := "SELECT * FROM users WHERE id = $1 AND active = $2"
	if got := d.Rewrite(q); got != q {
		t.Fatalf("postgres rewrite changed query: %q", got)
	}
}

func TestSQLiteArrayRoundTrip(t *testing.T) {
	d := &SQLiteDialect{}

	param := d.ArrayParam([]string{"admin", "user"})
	s, ok := param.(string)
	if !ok {
		t.Fatalf("expected JSON string param, got %T", param)
	}

	roles, err := d.ScanArray(s)
	if err != nil {
		t.Fatalf("scan array: %v", err)
	}
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "user" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	empty, err := d.ScanArray(nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty slice for nil, got %v / %v", empty, err)
	}
}

func TestPostgresScanArray(t *testing.T) {
	d := &PostgresDialect{}

	roles, err := d.ScanArray("{admin,user}")
	if err != nil {
		t.Fatalf("scan array: %v", err)
	}
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "user" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	quoted, err := d.ScanArray(`{"role with space",plain}`)
	if err != nil {
		t.Fatalf("scan quoted array: %v", err)
	}
	if len(quoted) != 2 || quoted[0] != "role with space" || quoted[1] != "plain" {
		t.Fatalf("unexpected quoted roles: %v", quoted)
	}

	empty, err := d.ScanArray("{}")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty slice, got %v / %v", empty, err)
	}
}

func TestSQLiteMapError(t *testing.T) {
	d := &SQLiteDialect{}

	err := d.MapError(fmt.Errorf("constraint failed: UNIQUE constraint failed: users.email"))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}

	other := fmt.Errorf("database is locked")
	if got := d.MapError(other); !errors.Is(got, other) {
		t.Fatalf("unrelated error should pass through, got %v", got)
	}
}

func TestPostgresMapError(t *testing.T) {
	d := &PostgresDialect{}

	err := d.MapError(fmt.Errorf(`duplicate key value violates unique constraint "users_email_key"`))
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
	if d.MapError(nil) != nil {
		t.Fatal("nil must map to nil")
	}
}

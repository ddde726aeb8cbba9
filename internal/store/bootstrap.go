package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the application tables (idempotent) and seeds the
// initial admin account when the user table is empty.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SchemaSQL()); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, roles) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), "admin@localhost", string(hash), s.Dialect.ArrayParam([]string{"admin"}))
	if err != nil {
		return err
	}

	logrus.Warn("Default admin user created (admin@localhost / changeme) - change the password immediately")
	return nil
}

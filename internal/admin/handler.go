package admin

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/store"
)

// Handler serves the admin-only inspection endpoints.
type Handler struct {
	store *store.Store
}

// NewHandler creates an admin Handler.
func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	rows, err := h.store.QueryRows(c.Context(),
		"SELECT id, email, roles, active, created_at FROM users ORDER BY created_at DESC")
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, row := range rows {
		roles, _ := h.store.Dialect.ScanArray(row["roles"])
		row["roles"] = roles
		row["active"] = store.AsBool(row["active"])
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// ListEmailLog handles GET /api/admin/email-log, optionally filtered by
// document_id.
func (h *Handler) ListEmailLog(c *fiber.Ctx) error {
	docID := c.Query("document_id")

	var rows []map[string]any
	var err error
	if docID != "" {
		rows, err = h.store.QueryRows(c.Context(),
			`SELECT id, document_id, user_id, recipient, subject, status, error, created_at
			 FROM email_log WHERE document_id = $1 ORDER BY created_at DESC`, docID)
	} else {
		rows, err = h.store.QueryRows(c.Context(),
			`SELECT id, document_id, user_id, recipient, subject, status, error, created_at
			 FROM email_log ORDER BY created_at DESC`)
	}
	if err != nil {
		return fmt.Errorf("list email log: %w", err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// RegisterRoutes registers admin routes behind auth + admin middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	grp := app.Group("/api/admin", authMW, adminMW)
	grp.Get("/users", h.ListUsers)
	grp.Get("/email-log", h.ListEmailLog)
}

package documents

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docvault/internal/api"
	"docvault/internal/auth"
	"docvault/internal/mailer"
	"docvault/internal/storage"
	"docvault/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Sender delivers a message; satisfied by *mailer.Mailer.
type Sender interface {
	Send(msg mailer.Message) error
}

// Handler serves the document endpoints.
type Handler struct {
	store   *store.Store
	storage storage.FileStorage
	mailer  Sender
	maxSize int64
}

// NewHandler creates a document Handler.
func NewHandler(s *store.Store, fs storage.FileStorage, m Sender, maxSize int64) *Handler {
	return &Handler{store: s, storage: fs, mailer: m, maxSize: maxSize}
}

// Upload handles POST /api/documents.
func (h *Handler) Upload(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	file, err := c.FormFile("file")
	if err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Missing file in form data")
	}
	if file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return api.NewAppError("FILE_TOO_LARGE", 413, msg)
	}

	mimeType := resolveDocumentType(file.Filename, file.Header.Get("Content-Type"))
	if mimeType == "" {
		return api.NewAppError("UNSUPPORTED_TYPE", 415, "Only PDF and Word documents are accepted")
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	docID := uuid.New().String()

	var pages any
	if mimeType == mimePDF {
		if n, ok := pdfPageCount(src, file.Size); ok {
			pages = n
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload: %w", err)
		}
	}

	key, err := h.storage.Save(c.Context(), docID, file.Filename, src)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	_, err = h.store.Exec(c.Context(),
		`INSERT INTO documents (id, owner_id, filename, storage_key, mime_type, size, pages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		docID, user.ID, file.Filename, key, mimeType, file.Size, pages)
	if err != nil {
		// The blob must not outlive a failed metadata insert.
		_ = h.storage.Delete(c.Context(), key)
		return fmt.Errorf("insert document: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"id":        docID,
			"filename":  file.Filename,
			"mime_type": mimeType,
			"size":      file.Size,
			"pages":     pages,
			"url":       "/api/documents/" + docID + "/download",
		},
	})
}

// List handles GET /api/documents. Admins see every document, everyone
// else sees their own.
func (h *Handler) List(c *fiber.Ctx) error {
	user := auth.GetUser(c)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 20)
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var rows []map[string]any
	var countRow map[string]any
	var err error
	if user.IsAdmin() {
		rows, err = h.store.QueryRows(c.Context(),
			`SELECT id, owner_id, filename, mime_type, size, pages, created_at
			 FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`, perPage, offset)
		if err == nil {
			countRow, err = h.store.QueryRow(c.Context(), "SELECT COUNT(*) AS count FROM documents")
		}
	} else {
		rows, err = h.store.QueryRows(c.Context(),
			`SELECT id, owner_id, filename, mime_type, size, pages, created_at
			 FROM documents WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			user.ID, perPage, offset)
		if err == nil {
			countRow, err = h.store.QueryRow(c.Context(),
				"SELECT COUNT(*) AS count FROM documents WHERE owner_id = $1", user.ID)
		}
	}
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    countRow["count"],
		},
	})
}

// Get handles GET /api/documents/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	row, err := h.fetchOwned(c)
	if err != nil {
		return err
	}
	delete(row, "storage_key")
	return c.JSON(fiber.Map{"data": row})
}

// Download handles GET /api/documents/:id/download.
func (h *Handler) Download(c *fiber.Ctx) error {
	row, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	key, _ := row["storage_key"].(string)
	filename, _ := row["filename"].(string)
	mimeType, _ := row["mime_type"].(string)

	reader, err := h.storage.Open(c.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return api.NotFoundError("Document content", c.Params("id"))
		}
		return fmt.Errorf("open stored file: %w", err)
	}

	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, sanitizeHeaderName(filename)))

	size, _ := row["size"].(int64)
	return c.SendStream(reader, int(size))
}

// Delete handles DELETE /api/documents/:id. The blob goes first; removing
// it is idempotent, so a retry after a failed row delete converges.
func (h *Handler) Delete(c *fiber.Ctx) error {
	row, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	key, _ := row["storage_key"].(string)
	if err := h.storage.Delete(c.Context(), key); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	id, _ := row["id"].(string)
	if _, err := h.store.Exec(c.Context(), "DELETE FROM documents WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// Send handles POST /api/documents/:id/send.
func (h *Handler) Send(c *fiber.Ctx) error {
	var body struct {
		Recipient string `json:"recipient"`
		Subject   string `json:"subject"`
		Message   string `json:"message"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	recipient := strings.TrimSpace(body.Recipient)
	if !emailPattern.MatchString(recipient) {
		return api.ValidationError("A valid recipient email is required")
	}

	row, err := h.fetchOwned(c)
	if err != nil {
		return err
	}

	key, _ := row["storage_key"].(string)
	filename, _ := row["filename"].(string)
	mimeType, _ := row["mime_type"].(string)
	docID, _ := row["id"].(string)

	reader, err := h.storage.Open(c.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return api.NotFoundError("Document content", docID)
		}
		return fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(io.LimitReader(reader, h.maxSize+1))
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}

	subject := strings.TrimSpace(body.Subject)
	if subject == "" {
		subject = "Document: " + filename
	}
	msgBody := body.Message
	if msgBody == "" {
		msgBody = "Please find the requested document attached."
	}

	sendErr := h.mailer.Send(mailer.Message{
		To:      []string{recipient},
		Subject: subject,
		Body:    msgBody,
		Attachments: []mailer.Attachment{{
			Filename:    filename,
			ContentType: mimeType,
			Content:     content,
		}},
	})

	logErr := h.logEmail(c, docID, recipient, subject, sendErr)

	if sendErr != nil {
		if logErr != nil {
			logrus.Errorf("record email log for document %s: %v", docID, logErr)
		}
		return api.NewAppError("EMAIL_FAILED", 502, "Failed to send email")
	}
	if logErr != nil {
		return fmt.Errorf("record email log for document %s: %w", docID, logErr)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"sent": true, "recipient": recipient}})
}

// logEmail writes the audit row for a send attempt, sent or failed.
func (h *Handler) logEmail(c *fiber.Ctx, docID, recipient, subject string, sendErr error) error {
	user := auth.GetUser(c)
	status := "sent"
	errMsg := ""
	if sendErr != nil {
		status = "failed"
		errMsg = sendErr.Error()
	}
	_, err := h.store.Exec(c.Context(),
		`INSERT INTO email_log (id, document_id, user_id, recipient, subject, status, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), docID, user.ID, recipient, subject, status, errMsg)
	return err
}

// fetchOwned loads the document on :id and enforces owner-or-admin access.
func (h *Handler) fetchOwned(c *fiber.Ctx) (map[string]any, error) {
	id := c.Params("id")
	row, err := h.store.QueryRow(c.Context(),
		`SELECT id, owner_id, filename, storage_key, mime_type, size, pages, created_at
		 FROM documents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, api.NotFoundError("Document", id)
		}
		return nil, fmt.Errorf("fetch document %s: %w", id, err)
	}

	user := auth.GetUser(c)
	owner, _ := row["owner_id"].(string)
	if owner != user.ID && !user.IsAdmin() {
		return nil, api.ForbiddenError("You do not have access to this document")
	}
	return row, nil
}

// sanitizeHeaderName strips characters that would break the
// Content-Disposition header value.
func sanitizeHeaderName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r == '\r' || r == '\n' {
			return '_'
		}
		return r
	}, name)
}

// RegisterRoutes registers the document routes behind the auth middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/documents", authMW)
	grp.Post("/", h.Upload)
	grp.Get("/", h.List)
	grp.Get("/:id", h.Get)
	grp.Get("/:id/download", h.Download)
	grp.Delete("/:id", h.Delete)
	grp.Post("/:id/send", h.Send)
}

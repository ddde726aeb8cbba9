package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/api"
	"docvault/internal/auth"
	"docvault/internal/config"
	"docvault/internal/mailer"
	"docvault/internal/storage"
	"docvault/internal/store"
)

type stubSender struct {
	fail bool
	sent []mailer.Message
}

func (s *stubSender) Send(msg mailer.Message) error {
	if s.fail {
		return errors.New("smtp connection refused")
	}
	s.sent = append(s.sent, msg)
	return nil
}

type testEnv struct {
	app    *fiber.App
	store  *store.Store
	files  storage.FileStorage
	sender *stubSender
	userID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "docs",
		Path:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	row, err := st.QueryRow(ctx, "SELECT id FROM users LIMIT 1")
	if err != nil {
		t.Fatalf("seeded user: %v", err)
	}
	userID, _ := row["id"].(string)

	fs, err := storage.NewLocalFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}

	sender := &stubSender{}
	h := NewHandler(st, fs, sender, 10<<20)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *api.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
			}
			return c.Status(500).SendString(err.Error())
		},
	})
	authMW := func(c *fiber.Ctx) error {
		c.Locals("user", &auth.User{ID: userID, Roles: []string{"user"}})
		return c.Next()
	}
	RegisterRoutes(app, h, authMW)

	return &testEnv{app: app, store: st, files: fs, sender: sender, userID: userID}
}

func (e *testEnv) createDocument(t *testing.T, filename, content string) string {
	t.Helper()
	ctx := context.Background()

	docID := uuid.New().String()
	key, err := e.files.Save(ctx, docID, filename, strings.NewReader(content))
	if err != nil {
		t.Fatalf("save blob: %v", err)
	}
	_, err = e.store.Exec(ctx,
		`INSERT INTO documents (id, owner_id, filename, storage_key, mime_type, size)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		docID, e.userID, filename, key, "application/pdf", len(content))
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	return docID
}

func (e *testEnv) postSend(t *testing.T, docID, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/documents/"+docID+"/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	return resp
}

func (e *testEnv) emailStatuses(t *testing.T, docID string) []string {
	t.Helper()
	rows, err := e.store.QueryRows(context.Background(),
		"SELECT status, error FROM email_log WHERE document_id = $1", docID)
	if err != nil {
		t.Fatalf("read email log: %v", err)
	}
	var statuses []string
	for _, row := range rows {
		status, _ := row["status"].(string)
		statuses = append(statuses, status)
	}
	return statuses
}

func TestSendDeliversAndAudits(t *testing.T) {
	env := newTestEnv(t)
	docID := env.createDocument(t, "report.pdf", "hello")

	resp := env.postSend(t, docID, `{"recipient":"alice@example.com"}`)
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	if len(env.sender.sent) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(env.sender.sent))
	}
	msg := env.sender.sent[0]
	if msg.Subject != "Document: report.pdf" {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if len(msg.Attachments) != 1 || string(msg.Attachments[0].Content) != "hello" {
		t.Fatalf("attachment did not carry the stored content: %+v", msg.Attachments)
	}

	statuses := env.emailStatuses(t, docID)
	if len(statuses) != 1 || statuses[0] != "sent" {
		t.Fatalf("expected one sent audit row, got %v", statuses)
	}
}

func TestSendFailureStillAudits(t *testing.T) {
	env := newTestEnv(t)
	env.sender.fail = true
	docID := env.createDocument(t, "report.pdf", "hello")

	resp := env.postSend(t, docID, `{"recipient":"alice@example.com"}`)
	if resp.StatusCode != 502 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d, want 502: %s", resp.StatusCode, body)
	}

	statuses := env.emailStatuses(t, docID)
	if len(statuses) != 1 || statuses[0] != "failed" {
		t.Fatalf("expected one failed audit row, got %v", statuses)
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	env := newTestEnv(t)
	docID := env.createDocument(t, "report.pdf", "hello")

	resp := env.postSend(t, docID, `{"recipient":"not-an-email"}`)
	if resp.StatusCode != 400 {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	if got := env.emailStatuses(t, docID); len(got) != 0 {
		t.Fatalf("validation failure must not audit, got %v", got)
	}
}

package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/api"
	"docvault/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Handler handles authentication endpoints.
type Handler struct {
	store  *store.Store
	tokens *TokenIssuer
}

// NewHandler creates a new auth Handler.
func NewHandler(s *store.Store, tokens *TokenIssuer) *Handler {
	return &Handler{store: s, tokens: tokens}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if !emailPattern.MatchString(email) {
		return api.ValidationError("A valid email address is required")
	}
	if len(body.Password) < 8 {
		return api.ValidationError("Password must be at least 8 characters")
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return api.NewAppError("INTERNAL_ERROR", 500, "Failed to hash password")
	}

	id := uuid.New().String()
	_, err = h.store.Exec(c.Context(),
		`INSERT INTO users (id, email, password_hash, roles) VALUES ($1, $2, $3, $4)`,
		id, email, hash, h.store.Dialect.ArrayParam([]string{"user"}))
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return api.ConflictError("An account with this email already exists")
		}
		return err
	}

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"id": id, "email": email}})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return api.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil {
		return api.UnauthorizedError("Invalid email or password")
	}

	if !store.AsBool(user["active"]) {
		return api.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return api.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	roles, _ := h.store.Dialect.ScanArray(user["roles"])

	pair, err := h.issueTokenPair(ctx, User{ID: userID, Roles: roles})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	row, err := h.store.QueryRow(ctx,
		`SELECT rt.id, rt.user_id, rt.expires_at, u.roles, u.active
		 FROM refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token = $1`, body.RefreshToken)
	if err != nil {
		return api.UnauthorizedError("Invalid refresh token")
	}

	// SQLite hands the TIMESTAMPTZ-equivalent column back as TEXT;
	// AsTime covers both drivers. An unparseable value counts as expired.
	expiresAt := store.AsTime(row["expires_at"])
	if expiresAt.IsZero() || time.Now().After(expiresAt) {
		_, _ = h.store.Exec(ctx, "DELETE FROM refresh_tokens WHERE token = $1", body.RefreshToken)
		return api.UnauthorizedError("Refresh token expired")
	}

	if !store.AsBool(row["active"]) {
		return api.UnauthorizedError("Account is disabled")
	}

	// Rotation: the used token is spent regardless of outcome.
	tokenID, _ := row["id"].(string)
	_, _ = h.store.Exec(ctx, "DELETE FROM refresh_tokens WHERE id = $1", tokenID)

	userID, _ := row["user_id"].(string)
	roles, _ := h.store.Dialect.ScanArray(row["roles"])

	pair, err := h.issueTokenPair(ctx, User{ID: userID, Roles: roles})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	_, _ = h.store.Exec(c.Context(),
		"DELETE FROM refresh_tokens WHERE token = $1", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/register", h.Register)
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return h.store.QueryRow(ctx,
		"SELECT id, email, password_hash, roles, active FROM users WHERE email = $1", email)
}

func (h *Handler) issueTokenPair(ctx context.Context, user User) (*TokenPair, error) {
	accessToken, err := h.tokens.IssueAccess(user)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken, expiresAt := h.tokens.NewRefreshToken()

	// RFC3339 text round-trips through both TIMESTAMPTZ and SQLite TEXT.
	_, err = h.store.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), user.ID, refreshToken, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

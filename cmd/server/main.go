package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"docvault/internal/admin"
	"docvault/internal/api"
	"docvault/internal/auth"
	"docvault/internal/config"
	"docvault/internal/documents"
	"docvault/internal/mailer"
	"docvault/internal/storage"
	"docvault/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Environment and config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logrus.Infof("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. SQLite keeps its database files under database.path
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(cfg.Database.Path, 0o755); err != nil {
			logrus.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 3. Database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		logrus.Fatalf("Failed to bootstrap schema: %v", err)
	}
	logrus.Info("Database ready")

	// 4. File storage
	fileStorage, err := storage.NewLocalFileStorage(cfg.Storage.RootPath)
	if err != nil {
		logrus.Fatalf("Failed to initialize file storage: %v", err)
	}
	logrus.Infof("File storage at %s", fileStorage.Root())

	// 5. Mailer
	mail := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	// 6. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    int(cfg.Storage.MaxFileSize) + 1024*1024,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (no auth required)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authHandler := auth.NewHandler(db, tokens)
	auth.RegisterRoutes(app, authHandler)

	// 9. Document routes (auth required)
	authMW := auth.Middleware(tokens)
	docHandler := documents.NewHandler(db, fileStorage, mail, cfg.Storage.MaxFileSize)
	documents.RegisterRoutes(app, docHandler, authMW)

	// 10. Admin routes (auth + admin required)
	adminHandler := admin.NewHandler(db)
	admin.RegisterRoutes(app, adminHandler, authMW, auth.RequireAdmin())

	// 11. Serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logrus.Infof("Starting server on %s", addr)
	logrus.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	var appErr *api.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	logrus.Errorf("request failed: %v", err)
	return c.Status(code).JSON(api.ErrorResponse{
		Error: &api.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}

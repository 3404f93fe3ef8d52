package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/adapters"
	"github.com/satriahrh/peacepal/server/adapters/llm"
	"github.com/satriahrh/peacepal/server/adapters/mongo"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/api"
	"github.com/satriahrh/peacepal/server/internal/auth"
	"github.com/satriahrh/peacepal/server/internal/config"
	"github.com/satriahrh/peacepal/server/internal/conversation"
	"github.com/satriahrh/peacepal/server/internal/triage"
	"github.com/satriahrh/peacepal/server/internal/trigger"
	"github.com/satriahrh/peacepal/server/internal/websocket"
	"github.com/satriahrh/peacepal/server/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.FromEnv(logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	genaiClient, err := llm.NewClient(context.Background(), cfg.Gemini.APIKey, logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini client", zap.Error(err))
	}
	completion, err := llm.NewGeminiCompletion(genaiClient, cfg.Gemini, logger)
	if err != nil {
		logger.Fatal("Failed to create text completion", zap.Error(err))
	}
	live := llm.NewGeminiLive(genaiClient, cfg.Live, logger)

	store, closeStore := initStore(cfg, logger)
	defer closeStore()

	jwt, err := auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create identity provider", zap.Error(err))
	}

	tables, err := loadTables(cfg.KeywordsPath, logger)
	if err != nil {
		logger.Fatal("Failed to load keyword tables", zap.Error(err))
	}
	flow := triage.Reference()
	if err := flow.Validate(); err != nil {
		logger.Fatal("Invalid triage flow", zap.Error(err))
	}
	machine := conversation.NewMachine(trigger.NewClassifier(tables), flow)

	// Initialize usecase services
	chatService := usecase.NewChatService(completion, logger)
	registry := usecase.NewRegistry(machine, chatService, store, live, cfg.Voice, logger)
	defer registry.Close()

	cleanupService := usecase.NewSessionCleanupService(registry, cfg.CleanupInterval, logger)
	cleanupService.Start()
	defer cleanupService.Stop()

	// Initialize WebSocket hub
	hub := websocket.NewHub(registry, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, registry, jwt, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.Store))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initStore(cfg *config.Config, logger *zap.Logger) (repositories.MessageStore, func()) {
	if cfg.Store != config.StoreMongo {
		logger.Info("Using in-memory message store")
		return adapters.NewMemoryMessageRepository(), func() {}
	}

	client, err := mongo.NewClient(cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}

	repo := mongo.NewMessageRepository(client.Database, cfg.AppID, cfg.PollInterval, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure message indexes", zap.Error(err))
	}

	return repo, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	}
}

func loadTables(path string, logger *zap.Logger) (trigger.Tables, error) {
	if path == "" {
		return trigger.DefaultTables()
	}
	logger.Info("Loading keyword tables", zap.String("path", path))
	return trigger.LoadTables(path)
}

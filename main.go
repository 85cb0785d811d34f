package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weberitsol/assessment-engine/internal/config"
	"github.com/weberitsol/assessment-engine/internal/events"
	"github.com/weberitsol/assessment-engine/internal/handlers"
	"github.com/weberitsol/assessment-engine/internal/repositories/postgres"
	"github.com/weberitsol/assessment-engine/internal/services"
	"github.com/weberitsol/assessment-engine/internal/utils"
	"github.com/weberitsol/assessment-engine/internal/validator"
	"github.com/weberitsol/assessment-engine/pkg"
)

const expireSweepInterval = time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		slogLogger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it the cache layer degrades to direct
	// database reads.
	repoConfig := postgres.RepositoryConfig{DB: db}
	if cfg.RedisURL != "" {
		redisClient, err := pkg.NewRedisClient(cfg)
		if err != nil {
			slogLogger.Warn("Redis unavailable, continuing without cache", "error", err)
		} else {
			repoConfig.RedisClient = redisClient
		}
	}

	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		slogLogger.Error("Failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	repo := repoManager.GetRepository()

	v := validator.New()

	// Kafka is optional; without brokers the services run with no event
	// publisher and skip publishing.
	var eventPublisher events.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaEventPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers}, slogLogger)
		if err != nil {
			slogLogger.Error("Failed to create event publisher", "error", err)
			os.Exit(1)
		}
		eventPublisher = publisher
	}

	serviceManager := services.NewDefaultServiceManager(db, repo, slogLogger, v, eventPublisher)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		slogLogger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)

	handlerManager := handlers.NewHandlerManager(serviceManager, v, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Safety net behind client-driven timeouts: attempts whose candidates
	// vanished still get expired and graded.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runExpireSweeper(sweepCtx, serviceManager.Attempt(), slogLogger)

	go func() {
		slogLogger.Info("Starting assessment engine", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogLogger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogLogger.Info("Shutting down server")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slogLogger.Error("Server forced to shutdown", "error", err)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		slogLogger.Error("Service manager shutdown failed", "error", err)
	}

	if err := repoManager.Shutdown(ctx); err != nil {
		slogLogger.Error("Repository shutdown failed", "error", err)
	}

	slogLogger.Info("Server exited")
}

// runExpireSweeper periodically expires in-progress attempts whose time
// budget has run out.
func runExpireSweeper(ctx context.Context, attemptService services.AttemptService, logger *slog.Logger) {
	ticker := time.NewTicker(expireSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := attemptService.ExpireOverdue(ctx, 100)
			if err != nil {
				logger.Warn("Expire sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				logger.Info("Expired overdue attempts", "count", expired)
			}
		}
	}
}

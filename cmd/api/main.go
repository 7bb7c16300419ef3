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

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
	internalHttp "team-activity-pipeline/internal/http"
	"team-activity-pipeline/internal/installation"
	"team-activity-pipeline/internal/logging"
	"team-activity-pipeline/internal/queue"
	"team-activity-pipeline/internal/redis"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Configure(cfg.Log)
	if envErr != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	flush := logging.InitSentry(cfg.Sentry, version)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher := queue.NewPublisher(redisClient, cfg.Redis.QueueName, cfg.Worker.MaxRetries)
	registry := installation.NewRegistry(db, publisher)

	if cfg.GitHub.WebhookSecret == "" {
		slog.Warn("GITHUB_WEBHOOK_SECRET is not set; every webhook will be rejected")
	}

	h := internalHttp.NewHandler(registry, db, publisher, cfg)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	slog.Info("Server exited")
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/enrichment"
	"team-activity-pipeline/internal/gateway"
	"team-activity-pipeline/internal/ghapp"
	"team-activity-pipeline/internal/llm"
	"team-activity-pipeline/internal/logging"
	"team-activity-pipeline/internal/queue"
	"team-activity-pipeline/internal/redis"
	"team-activity-pipeline/internal/signals"
	"team-activity-pipeline/internal/syncjob"
	"team-activity-pipeline/internal/worker"

	"github.com/joho/godotenv"
	"github.com/robfig/cron"
)

var version = "dev"

func main() {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.Load()
	logging.Configure(cfg.Log)
	if envErr != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	flush := logging.InitSentry(cfg.Sentry, version)
	defer flush()

	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	slog.Info("Connecting to database...")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to Redis
	slog.Info("Connecting to Redis...")
	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	clients, err := ghapp.NewAppClientProvider(cfg.GitHub)
	if err != nil {
		slog.Error("Invalid GitHub configuration", "error", err)
		os.Exit(1)
	}

	publisher := queue.NewPublisher(redisClient, cfg.Redis.QueueName, cfg.Worker.MaxRetries)
	scorer := signals.NewScorer(db)
	pipeline := enrichment.NewPipeline(db, llm.NewClient(cfg.LLM), scorer, publisher, cfg.Enrichment)
	syncer := syncjob.NewSyncer(db, db, clients, gateway.New(), scorer)

	// Create job handler
	handler := worker.NewJobHandler(pipeline, syncer)

	// Create consumer
	consumer := queue.NewConsumer(
		redisClient,
		cfg.Redis.QueueName,
		handler,
		queue.ConsumerOptions{
			Concurrency:       cfg.Worker.Concurrency,
			PollTimeout:       cfg.Worker.PollTimeout,
			RetryBackoff:      cfg.Worker.RetryBackoff,
			PromotionInterval: cfg.Worker.PromotionInterval,
			LockTTL:           cfg.Enrichment.HardTimeLimit + cfg.Enrichment.SoftTimeLimit,
		},
	)

	// Start consumer
	if err := consumer.Start(ctx); err != nil {
		slog.Error("Failed to start consumer", "error", err)
		os.Exit(1)
	}

	refresher := enrichment.NewRefresher(db, publisher)
	scheduler := cron.New()
	err = scheduler.AddFunc(cfg.Worker.RefreshSchedule, func() {
		queued, err := refresher.Run(ctx)
		if err != nil {
			slog.Error("Background refresh failed", "error", err)
			logging.CaptureError(err, map[string]string{"component": "background_refresh"})
			return
		}
		slog.Info("Background refresh finished", "queued", queued)
	})
	if err != nil {
		slog.Error("Invalid BACKGROUND_REFRESH_SCHEDULE", "schedule", cfg.Worker.RefreshSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down worker...")
	scheduler.Stop()
	cancel()
	consumer.Stop()

	slog.Info("Worker exited")
}

package config

import (
	"time"
)

type WorkerConfig struct {
	Concurrency       int
	PollTimeout       time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RefreshSchedule   string
	PromotionInterval time.Duration
}

func loadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       getEnvInt("WORKER_CONCURRENCY", 5),
		PollTimeout:       getEnvDuration("WORKER_POLL_TIMEOUT", 5*time.Second),
		MaxRetries:        getEnvInt("WORKER_MAX_RETRIES", 3),
		RetryBackoff:      getEnvDuration("WORKER_RETRY_BACKOFF", 30*time.Second),
		RefreshSchedule:   getEnv("BACKGROUND_REFRESH_SCHEDULE", "@every 6h"),
		PromotionInterval: getEnvDuration("WORKER_PROMOTION_INTERVAL", time.Second),
	}
}

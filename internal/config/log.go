package config

import (
	"log/slog"
	"strings"
)

type LogConfig struct {
	Level  slog.Level
	Format string
}

type SentryConfig struct {
	DSN         string
	Environment string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  parseLevel(getEnv("LOG_LEVEL", "info")),
		Format: getEnv("LOG_FORMAT", "json"),
	}
}

func loadSentryConfig() SentryConfig {
	return SentryConfig{
		DSN:         getEnv("SENTRY_DSN", ""),
		Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package logging

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"

	"team-activity-pipeline/internal/config"
)

// Configure sets up the process-wide logger based on log configuration
func Configure(logConfig config.LogConfig) *slog.Logger {
	logger := New(os.Stderr, logConfig)
	slog.SetDefault(logger)

	slog.Debug("Logger configured",
		"level", logConfig.Level.String(),
		"format", logConfig.Format)
	return logger
}

// New builds a logger writing to w without touching the default logger.
func New(w io.Writer, logConfig config.LogConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: logConfig.Level}

	if logConfig.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// SentryWriter adapts Sentry's debug output to a structured logger.
type SentryWriter struct {
	logger *slog.Logger
}

func NewSentryWriter(logger *slog.Logger) *SentryWriter {
	return &SentryWriter{logger: logger}
}

// Write implements io.Writer, emitting one debug record per line.
func (s *SentryWriter) Write(p []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "[Sentry]") {
			parts := strings.SplitN(line, " ", 4)
			if len(parts) >= 4 {
				s.logger.Debug(parts[3])
				continue
			}
		}
		s.logger.Debug(line)
	}
	return len(p), nil
}

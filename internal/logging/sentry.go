package logging

import (
	"log/slog"
	"time"

	"team-activity-pipeline/internal/config"

	"github.com/getsentry/sentry-go"
)

// InitSentry initialises error tracking. An empty DSN leaves the SDK disabled,
// which turns every capture into a no-op.
func InitSentry(cfg config.SentryConfig, release string) func() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
		DebugWriter: NewSentryWriter(slog.Default().WithGroup("sentry")),
	})
	if err != nil {
		slog.Error("Sentry initialization failed", "error", err)
	}

	return func() {
		sentry.Flush(2 * time.Second)
	}
}

// CaptureError reports err to Sentry with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

package http

import (
	"context"
	"net/http"

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/queue"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v61/github"
)

// InstallationEvents receives verified installation webhooks
type InstallationEvents interface {
	HandleInstallationEvent(ctx context.Context, event *github.InstallationEvent) error
	HandleInstallationRepositoriesEvent(ctx context.Context, event *github.InstallationRepositoriesEvent) error
}

// TeamStore is the read side of the team pipeline endpoints
type TeamStore interface {
	GetTeamPipelineStatus(ctx context.Context, teamID int64) (database.PipelineStatus, error)
	CountUnanalyzed(ctx context.Context, teamID int64) (int, error)
}

type Handler struct {
	router        chi.Router
	registry      InstallationEvents
	teams         TeamStore
	publisher     queue.IPublisher
	webhookSecret []byte
	maxBatchSize  int
}

func NewHandler(registry InstallationEvents, teams TeamStore, publisher queue.IPublisher, cfg *config.Config) *Handler {
	h := &Handler{
		router:        chi.NewRouter(),
		registry:      registry,
		teams:         teams,
		publisher:     publisher,
		webhookSecret: []byte(cfg.GitHub.WebhookSecret),
		maxBatchSize:  cfg.Enrichment.BatchSize * 10,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Logger)
	r.Use(CORS)

	// Health check
	r.Get("/ping", h.Ping)

	r.Post("/webhooks/github", h.GitHubWebhook)

	r.Route("/api/v1/teams/{teamID}", func(r chi.Router) {
		r.Get("/pipeline", h.GetTeamPipeline)
		r.Post("/enrichment", h.TriggerEnrichment)
	})
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"message": "pong",
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

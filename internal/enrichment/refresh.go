package enrichment

import (
	"context"
	"log/slog"

	"team-activity-pipeline/internal/database"
)

type RefreshStore interface {
	ListTeamsByStatus(ctx context.Context, status database.PipelineStatus) ([]int64, error)
	CompareAndSetPipelineStatus(ctx context.Context, teamID int64, from, to database.PipelineStatus) (bool, error)
}

type EnrichmentPublisher interface {
	PublishEnrichmentJob(ctx context.Context, teamID int64, batchSize int) (string, error)
}

// Refresher moves onboarded teams into the background LLM stage and enqueues
// their enrichment
type Refresher struct {
	store     RefreshStore
	publisher EnrichmentPublisher
}

func NewRefresher(store RefreshStore, publisher EnrichmentPublisher) *Refresher {
	return &Refresher{store: store, publisher: publisher}
}

// Run refreshes every team in complete and returns how many were queued.
// A team whose status changed since it was listed is skipped.
func (r *Refresher) Run(ctx context.Context) (int, error) {
	teamIDs, err := r.store.ListTeamsByStatus(ctx, database.StatusComplete)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, teamID := range teamIDs {
		changed, err := r.store.CompareAndSetPipelineStatus(ctx, teamID, database.StatusComplete, database.StatusBackgroundLLM)
		if err != nil {
			slog.Error("Failed to start background refresh", "teamId", teamID, "error", err)
			continue
		}
		if !changed {
			continue
		}

		jobID, err := r.publisher.PublishEnrichmentJob(ctx, teamID, 0)
		if err != nil {
			slog.Error("Failed to enqueue background enrichment", "teamId", teamID, "error", err)
			// put the team back so the next run picks it up
			if _, rerr := r.store.CompareAndSetPipelineStatus(ctx, teamID, database.StatusBackgroundLLM, database.StatusComplete); rerr != nil {
				slog.Error("Failed to restore team status", "teamId", teamID, "error", rerr)
			}
			continue
		}
		slog.Info("Background refresh queued", "teamId", teamID, "jobId", jobID)
		queued++
	}
	return queued, nil
}

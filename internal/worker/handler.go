package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"team-activity-pipeline/internal/enrichment"
	"team-activity-pipeline/internal/queue"
)

type EnrichmentRunner interface {
	RunBatch(ctx context.Context, run queue.EnrichmentPayload) (*enrichment.Outcome, error)
}

type Syncer interface {
	SyncInstallation(ctx context.Context, installationID int64) (int, error)
	SyncPullRequest(ctx context.Context, prID int64) error
}

// JobHandler implements the queue.JobHandler interface
type JobHandler struct {
	pipeline EnrichmentRunner
	syncer   Syncer
}

// NewJobHandler creates a new job handler
func NewJobHandler(pipeline EnrichmentRunner, syncer Syncer) *JobHandler {
	return &JobHandler{
		pipeline: pipeline,
		syncer:   syncer,
	}
}

// HandleJob processes a job from the queue
func (h *JobHandler) HandleJob(ctx context.Context, job *queue.Job) error {
	slog.Info("Processing job", "jobId", job.ID, "type", job.Type, "retries", job.Retries)

	switch job.Type {
	case queue.JobTypeEnrichment:
		return h.handleEnrichmentJob(ctx, job)
	case queue.JobTypeInstallationSync:
		return h.handleInstallationSyncJob(ctx, job)
	case queue.JobTypePullRequestSync:
		return h.handlePullRequestSyncJob(ctx, job)
	default:
		return queue.Permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}
}

// handleEnrichmentJob runs one enrichment batch. A retry request from the
// pipeline is recorded in the payload so the re-queued job carries its attempt.
func (h *JobHandler) handleEnrichmentJob(ctx context.Context, job *queue.Job) error {
	run, err := queue.EnrichmentPayloadOf(job)
	if err != nil {
		return queue.Permanent(err)
	}

	outcome, err := h.pipeline.RunBatch(ctx, run)
	if err != nil {
		var retry *enrichment.RetryError
		if errors.As(err, &retry) {
			job.Payload["attempt"] = retry.NextAttempt
		}
		return err
	}

	slog.Info("Enrichment job finished",
		"jobId", job.ID,
		"teamId", run.TeamID,
		"processed", outcome.ItemsProcessed,
		"remaining", outcome.Remaining,
		"continued", outcome.Continued,
		"advanced", outcome.Advanced,
	)
	return nil
}

func (h *JobHandler) handleInstallationSyncJob(ctx context.Context, job *queue.Job) error {
	installationID, err := job.Int64("installation_id")
	if err != nil {
		return queue.Permanent(err)
	}

	if _, err := h.syncer.SyncInstallation(ctx, installationID); err != nil {
		return fmt.Errorf("failed to sync installation %d: %w", installationID, err)
	}
	return nil
}

func (h *JobHandler) handlePullRequestSyncJob(ctx context.Context, job *queue.Job) error {
	prID, err := job.Int64("pull_request_id")
	if err != nil {
		return queue.Permanent(err)
	}

	if err := h.syncer.SyncPullRequest(ctx, prID); err != nil {
		return fmt.Errorf("failed to sync pull request %d: %w", prID, err)
	}
	return nil
}

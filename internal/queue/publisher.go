package queue

import (
	"context"
	"fmt"
	"time"

	"team-activity-pipeline/internal/redis"

	"github.com/google/uuid"
)

// IPublisher defines the interface for publishing jobs to the queue
type IPublisher interface {
	PublishEnrichmentJob(ctx context.Context, teamID int64, batchSize int) (string, error)
	ScheduleEnrichment(ctx context.Context, payload EnrichmentPayload, delay time.Duration) error
	PublishInstallationSyncJob(ctx context.Context, installationID int64) error
	PublishPullRequestSyncJob(ctx context.Context, pullRequestID int64) error
	GetQueueLength(ctx context.Context) (int64, error)
}

type publisherImpl struct {
	queue      *Queue
	maxRetries int
}

// NewPublisher creates a publisher
func NewPublisher(redisClient *redis.Client, queueName string, maxRetries int) IPublisher {
	return &publisherImpl{
		queue:      NewQueue(redisClient, queueName),
		maxRetries: maxRetries,
	}
}

func (p *publisherImpl) newJob(jobType JobType, payload map[string]interface{}) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payload,
		CreatedAt:  time.Now(),
		Retries:    0,
		MaxRetries: p.maxRetries,
	}
}

// PublishEnrichmentJob starts a fresh enrichment chain for a team and returns the job id
func (p *publisherImpl) PublishEnrichmentJob(ctx context.Context, teamID int64, batchSize int) (string, error) {
	payload := EnrichmentPayload{TeamID: teamID, BatchSize: batchSize}
	job := p.newJob(JobTypeEnrichment, payload.toMap())
	job.UniqueKey = EnrichmentUniqueKey(teamID)

	if err := p.queue.Push(ctx, job); err != nil {
		return "", fmt.Errorf("failed to publish enrichment job: %w", err)
	}
	return job.ID, nil
}

// ScheduleEnrichment enqueues a follow-up invocation (retry or continuation)
// after delay
func (p *publisherImpl) ScheduleEnrichment(ctx context.Context, payload EnrichmentPayload, delay time.Duration) error {
	job := p.newJob(JobTypeEnrichment, payload.toMap())
	job.UniqueKey = EnrichmentUniqueKey(payload.TeamID)

	if err := p.queue.PushDelayed(ctx, job, delay); err != nil {
		return fmt.Errorf("failed to schedule enrichment job: %w", err)
	}
	return nil
}

// PublishInstallationSyncJob creates a job to sync the repositories of an installation
func (p *publisherImpl) PublishInstallationSyncJob(ctx context.Context, installationID int64) error {
	job := p.newJob(JobTypeInstallationSync, map[string]interface{}{
		"installation_id": installationID,
	})
	job.UniqueKey = fmt.Sprintf("installation_sync:%d", installationID)

	if err := p.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("failed to publish installation sync job: %w", err)
	}
	return nil
}

// PublishPullRequestSyncJob creates a job to refresh a pull request's activity and signals
func (p *publisherImpl) PublishPullRequestSyncJob(ctx context.Context, pullRequestID int64) error {
	job := p.newJob(JobTypePullRequestSync, map[string]interface{}{
		"pull_request_id": pullRequestID,
	})

	if err := p.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("failed to publish pull request sync job: %w", err)
	}
	return nil
}

// GetQueueLength returns current queue size
func (p *publisherImpl) GetQueueLength(ctx context.Context) (int64, error) {
	length, err := p.queue.Length(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/enrichment"
	"team-activity-pipeline/internal/gateway"
	"team-activity-pipeline/internal/ghapp"
	"team-activity-pipeline/internal/queue"
	"team-activity-pipeline/internal/signals"
	"team-activity-pipeline/internal/syncjob"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

type fakePipeline struct {
	runs []queue.EnrichmentPayload
	err  error
}

func (f *fakePipeline) RunBatch(ctx context.Context, run queue.EnrichmentPayload) (*enrichment.Outcome, error) {
	f.runs = append(f.runs, run)
	if f.err != nil {
		return nil, f.err
	}
	return &enrichment.Outcome{ItemsProcessed: 3}, nil
}

type fakeSyncer struct {
	installations []int64
	pullRequests  []int64
	err           error
}

func (f *fakeSyncer) SyncInstallation(ctx context.Context, installationID int64) (int, error) {
	f.installations = append(f.installations, installationID)
	return 0, f.err
}

func (f *fakeSyncer) SyncPullRequest(ctx context.Context, prID int64) error {
	f.pullRequests = append(f.pullRequests, prID)
	return f.err
}

func TestHandleEnrichmentJob(t *testing.T) {
	pipeline := &fakePipeline{}
	handler := NewJobHandler(pipeline, &fakeSyncer{})

	job := &queue.Job{
		ID:   "job-1",
		Type: queue.JobTypeEnrichment,
		Payload: map[string]interface{}{
			"team_id":    float64(7),
			"batch_size": float64(25),
			"chain":      float64(3),
		},
	}

	if err := handler.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := queue.EnrichmentPayload{TeamID: 7, BatchSize: 25, Chain: 3}
	if len(pipeline.runs) != 1 || pipeline.runs[0] != want {
		t.Errorf("expected run %+v, got %+v", want, pipeline.runs)
	}
}

func TestHandleEnrichmentJob_RetryRecordsAttempt(t *testing.T) {
	pipeline := &fakePipeline{err: &enrichment.RetryError{Err: errors.New("timeout"), NextAttempt: 2, Delay: 5 * time.Minute}}
	handler := NewJobHandler(pipeline, &fakeSyncer{})

	job := &queue.Job{
		ID:      "job-1",
		Type:    queue.JobTypeEnrichment,
		Payload: map[string]interface{}{"team_id": float64(7), "attempt": float64(1)},
	}

	err := handler.HandleJob(context.Background(), job)

	var delayed interface{ RetryDelay() time.Duration }
	if !errors.As(err, &delayed) || delayed.RetryDelay() != 5*time.Minute {
		t.Fatalf("expected retry error with 5m delay, got %v", err)
	}
	if got := job.IntOr("attempt", 0); got != 2 {
		t.Errorf("expected attempt 2 in payload, got %d", got)
	}
}

func TestHandleJob_MalformedPayloadIsPermanent(t *testing.T) {
	handler := NewJobHandler(&fakePipeline{}, &fakeSyncer{})

	tests := []struct {
		name string
		job  *queue.Job
	}{
		{"enrichment without team", &queue.Job{Type: queue.JobTypeEnrichment, Payload: map[string]interface{}{}}},
		{"installation sync with string id", &queue.Job{Type: queue.JobTypeInstallationSync, Payload: map[string]interface{}{"installation_id": "x"}}},
		{"pull request sync without id", &queue.Job{Type: queue.JobTypePullRequestSync, Payload: map[string]interface{}{}}},
		{"unknown type", &queue.Job{Type: queue.JobType("reindex")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.HandleJob(context.Background(), tt.job)
			if !queue.IsPermanent(err) {
				t.Errorf("expected permanent error, got %v", err)
			}
		})
	}
}

func TestHandleSyncJobs(t *testing.T) {
	syncer := &fakeSyncer{}
	handler := NewJobHandler(&fakePipeline{}, syncer)

	if err := handler.HandleJob(context.Background(), &queue.Job{
		Type:    queue.JobTypeInstallationSync,
		Payload: map[string]interface{}{"installation_id": float64(42)},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := handler.HandleJob(context.Background(), &queue.Job{
		Type:    queue.JobTypePullRequestSync,
		Payload: map[string]interface{}{"pull_request_id": float64(5)},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(syncer.installations) != 1 || syncer.installations[0] != 42 {
		t.Errorf("expected installation 42 synced, got %v", syncer.installations)
	}
	if len(syncer.pullRequests) != 1 || syncer.pullRequests[0] != 5 {
		t.Errorf("expected pull request 5 synced, got %v", syncer.pullRequests)
	}
}

func TestHandleSyncJob_KeepsRetryDelay(t *testing.T) {
	syncer := &fakeSyncer{err: queue.Retry(errors.New("rate limited"), time.Minute)}
	handler := NewJobHandler(&fakePipeline{}, syncer)

	err := handler.HandleJob(context.Background(), &queue.Job{
		Type:    queue.JobTypeInstallationSync,
		Payload: map[string]interface{}{"installation_id": float64(42)},
	})

	var delayed interface{ RetryDelay() time.Duration }
	if !errors.As(err, &delayed) || delayed.RetryDelay() != time.Minute {
		t.Errorf("expected wrapped retry delay, got %v", err)
	}
}

func TestHandleInstallationSyncJob_UnknownInstallation(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mockPool.Close()

	db := database.NewTestDB(mockPool)
	syncer := syncjob.NewSyncer(db, db, &ghapp.StaticClientProvider{}, gateway.New(), signals.NewScorer(db))
	handler := NewJobHandler(&fakePipeline{}, syncer)

	mockPool.ExpectQuery("SELECT id, installation_id, account_id").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	err = handler.HandleJob(context.Background(), &queue.Job{
		Type:    queue.JobTypeInstallationSync,
		Payload: map[string]interface{}{"installation_id": float64(42)},
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mockPool.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

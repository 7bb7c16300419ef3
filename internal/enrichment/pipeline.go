// Package enrichment summarises a team's pull requests through the batch
// language-model service and advances the team's pipeline status when done.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/llm"
	"team-activity-pipeline/internal/logging"
	"team-activity-pipeline/internal/queue"
)

// ErrHardTimeLimit is returned when a batch submission ignores cancellation
// past the hard wall-clock limit
var ErrHardTimeLimit = errors.New("batch submission exceeded hard time limit")

type Store interface {
	MarkEmptyBodiesSkipped(ctx context.Context, teamID int64) (int64, error)
	ListUnanalyzed(ctx context.Context, teamID int64, limit int) ([]*database.PullRequest, error)
	CountUnanalyzed(ctx context.Context, teamID int64) (int, error)
	SaveLLMSummary(ctx context.Context, prID int64, summary *database.LLMSummary, version string) error
	GetTeamPipelineStatus(ctx context.Context, teamID int64) (database.PipelineStatus, error)
	CompareAndSetPipelineStatus(ctx context.Context, teamID int64, from, to database.PipelineStatus) (bool, error)
}

type BatchService interface {
	SubmitBatch(ctx context.Context, reqs []llm.Request) ([]llm.Result, error)
}

type Scorer interface {
	UpdateAndPersist(ctx context.Context, pr *database.PullRequest) (float64, error)
}

// Scheduler enqueues follow-up invocations
type Scheduler interface {
	ScheduleEnrichment(ctx context.Context, payload queue.EnrichmentPayload, delay time.Duration) error
}

// RetryError asks the job runner to run the invocation again as NextAttempt
// after Delay
type RetryError struct {
	Err         error
	NextAttempt int
	Delay       time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("enrichment attempt failed, retry %d scheduled: %v", e.NextAttempt, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

func (e *RetryError) RetryDelay() time.Duration { return e.Delay }

// Outcome reports what one invocation did
type Outcome struct {
	ItemsProcessed int  `json:"items_processed"`
	Remaining      int  `json:"remaining"`
	Skipped        int  `json:"skipped"`
	Continued      bool `json:"continued"`
	Advanced       bool `json:"advanced"`
}

type Pipeline struct {
	store     Store
	batch     BatchService
	scorer    Scorer
	scheduler Scheduler
	cfg       config.EnrichmentConfig
}

func NewPipeline(store Store, batch BatchService, scorer Scorer, scheduler Scheduler, cfg config.EnrichmentConfig) *Pipeline {
	return &Pipeline{
		store:     store,
		batch:     batch,
		scorer:    scorer,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// RunBatch processes one batch for run.TeamID. Every successful return has
// either advanced the pipeline or scheduled a continuation; a *RetryError
// means nothing was written and the invocation should be repeated.
func (p *Pipeline) RunBatch(ctx context.Context, run queue.EnrichmentPayload) (*Outcome, error) {
	logger := slog.With("teamId", run.TeamID, "attempt", run.Attempt, "chain", run.Chain)

	batchSize := run.BatchSize
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}

	outcome := &Outcome{}

	skipped, err := p.store.MarkEmptyBodiesSkipped(ctx, run.TeamID)
	if err != nil {
		return nil, err
	}
	outcome.Skipped = int(skipped)
	if skipped > 0 {
		logger.Info("Skipped pull requests without body", "count", skipped)
	}

	prs, err := p.store.ListUnanalyzed(ctx, run.TeamID, batchSize)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		logger.Info("No pull requests left to analyse")
		outcome.Advanced, err = p.advance(ctx, logger, run.TeamID)
		return outcome, err
	}

	reqs := make([]llm.Request, 0, len(prs))
	for _, pr := range prs {
		reqs = append(reqs, llm.Request{PullRequestID: pr.ID, Prompt: llm.BuildPrompt(pr)})
	}

	logger.Info("Submitting batch", "items", len(reqs))
	results, err := p.submit(ctx, reqs)
	if err != nil {
		if run.Attempt < p.cfg.MaxRetries {
			logger.Warn("Batch submission failed, retrying", "delay", p.cfg.RetryDelay, "error", err)
			return nil, &RetryError{Err: err, NextAttempt: run.Attempt + 1, Delay: p.cfg.RetryDelay}
		}

		logger.Error("Batch submission failed, retries exhausted; advancing without enrichment", "error", err)
		logging.CaptureError(err, map[string]string{"component": "enrichment", "team_id": fmt.Sprint(run.TeamID)})
		outcome.Remaining, err = p.store.CountUnanalyzed(ctx, run.TeamID)
		if err != nil {
			return nil, err
		}
		outcome.Advanced, err = p.advance(ctx, logger, run.TeamID)
		return outcome, err
	}

	outcome.ItemsProcessed = p.apply(ctx, logger, prs, results)

	remaining, err := p.store.CountUnanalyzed(ctx, run.TeamID)
	if err != nil {
		return nil, err
	}
	outcome.Remaining = remaining
	logger.Info("Batch applied", "processed", outcome.ItemsProcessed, "remaining", remaining)

	if remaining == 0 {
		outcome.Advanced, err = p.advance(ctx, logger, run.TeamID)
		return outcome, err
	}

	if run.Chain+1 >= p.cfg.MaxChain {
		logger.Warn("Continuation limit reached; advancing with items left", "remaining", remaining, "maxChain", p.cfg.MaxChain)
		outcome.Advanced, err = p.advance(ctx, logger, run.TeamID)
		return outcome, err
	}

	next := queue.EnrichmentPayload{TeamID: run.TeamID, BatchSize: run.BatchSize, Chain: run.Chain + 1}
	if err := p.scheduler.ScheduleEnrichment(ctx, next, p.cfg.ContinuationDelay); err != nil {
		return nil, err
	}
	outcome.Continued = true
	return outcome, nil
}

// submit runs the batch under the soft limit, which cancels the call, and the
// hard limit, after which the call is abandoned
func (p *Pipeline) submit(ctx context.Context, reqs []llm.Request) ([]llm.Result, error) {
	softCtx, cancel := context.WithTimeout(ctx, p.cfg.SoftTimeLimit)
	defer cancel()

	type reply struct {
		results []llm.Result
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		results, err := p.batch.SubmitBatch(softCtx, reqs)
		done <- reply{results, err}
	}()

	hard := time.NewTimer(p.cfg.HardTimeLimit)
	defer hard.Stop()

	select {
	case r := <-done:
		if r.err == nil && softCtx.Err() != nil {
			// results that arrive after the soft limit are discarded
			return nil, softCtx.Err()
		}
		return r.results, r.err
	case <-hard.C:
		return nil, ErrHardTimeLimit
	}
}

// apply writes each successful result and rescores its pull request. Failed
// items are left unanalysed for the next pass.
func (p *Pipeline) apply(ctx context.Context, logger *slog.Logger, prs []*database.PullRequest, results []llm.Result) int {
	byID := make(map[int64]*database.PullRequest, len(prs))
	for _, pr := range prs {
		byID[pr.ID] = pr
	}

	processed := 0
	for _, r := range results {
		pr, ok := byID[r.PullRequestID]
		if !ok {
			logger.Warn("Result for unknown pull request", "prId", r.PullRequestID)
			continue
		}
		if r.Err != nil {
			logger.Warn("Item failed enrichment", "prId", pr.ID, "error", r.Err)
			continue
		}
		if err := p.store.SaveLLMSummary(ctx, pr.ID, r.Summary, llm.PromptVersion); err != nil {
			logger.Error("Failed to save summary", "prId", pr.ID, "error", err)
			continue
		}
		processed++

		pr.LLMSummary = r.Summary
		pr.LLMSummaryVersion = llm.PromptVersion
		if _, err := p.scorer.UpdateAndPersist(ctx, pr); err != nil {
			logger.Error("Failed to rescore pull request", "prId", pr.ID, "error", err)
		}
	}
	return processed
}

// advance moves the team out of its LLM stage. The next status is derived
// from the status read now, so every exit path can call it safely.
func (p *Pipeline) advance(ctx context.Context, logger *slog.Logger, teamID int64) (bool, error) {
	current, err := p.store.GetTeamPipelineStatus(ctx, teamID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn("Team not found, pipeline status left alone")
			return false, nil
		}
		return false, err
	}

	next, ok := database.NextAfterEnrichment(current)
	if !ok {
		logger.Info("Team not in an LLM stage, pipeline status left alone", "status", current)
		return false, nil
	}

	changed, err := p.store.CompareAndSetPipelineStatus(ctx, teamID, current, next)
	if err != nil {
		return false, err
	}
	if !changed {
		logger.Info("Pipeline status changed concurrently, skipping transition", "from", current)
		return false, nil
	}
	logger.Info("Pipeline status advanced", "from", current, "to", next)
	return true, nil
}

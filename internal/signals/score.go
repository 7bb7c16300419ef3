// Package signals combines independent AI-usage signals into one confidence
// score per pull request.
package signals

import (
	"context"
	"fmt"
	"math"

	"team-activity-pipeline/internal/database"
)

// Signal weights; they sum to 1.0 so the score never leaves [0, 1]
const (
	WeightLLM     = 0.40
	WeightCommits = 0.25
	WeightRegex   = 0.20
	WeightReviews = 0.10
	WeightFiles   = 0.05
)

// Score computes the confidence score from the stored summary and the
// persisted flags. It reads nothing but pr.
func Score(pr *database.PullRequest) (float64, *database.AISignals) {
	llmDetected, llmConfidence := llmJudgment(pr.LLMSummary)

	signals := &database.AISignals{
		LLM:     signal(llmDetected, WeightLLM, llmConfidence),
		Regex:   signal(pr.IsAIAssisted, WeightRegex, 1),
		Commits: signal(pr.HasAICommits, WeightCommits, 1),
		Reviews: signal(pr.HasAIReview, WeightReviews, 1),
		Files:   signal(pr.HasAIFiles, WeightFiles, 1),
	}

	total := signals.LLM.Score + signals.Regex.Score + signals.Commits.Score + signals.Reviews.Score + signals.Files.Score
	return round3(total), signals
}

func signal(detected bool, weight, strength float64) database.SignalScore {
	s := database.SignalScore{Detected: detected, Weight: weight}
	if detected {
		s.Score = round3(weight * strength)
	}
	return s
}

// llmJudgment reads the model's verdict. A missing confidence counts as 1.0.
func llmJudgment(summary *database.LLMSummary) (bool, float64) {
	if summary == nil || summary.Skipped || summary.AI == nil || !summary.AI.IsAssisted {
		return false, 0
	}
	if summary.AI.Confidence == nil {
		return true, 1
	}
	return true, math.Max(0, math.Min(1, *summary.AI.Confidence))
}

// round3 keeps scores at the NUMERIC(4,3) precision they are stored with
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// ScoreStore persists scores and flags
type ScoreStore interface {
	SaveAIScore(ctx context.Context, prID int64, score float64, signals *database.AISignals) error
	SaveAIFlags(ctx context.Context, pr *database.PullRequest) error
}

// Scorer is the persisting wrapper around Score
type Scorer struct {
	store ScoreStore
}

func NewScorer(store ScoreStore) *Scorer {
	return &Scorer{store: store}
}

// UpdateAndPersist scores pr and writes the score with its breakdown
func (s *Scorer) UpdateAndPersist(ctx context.Context, pr *database.PullRequest) (float64, error) {
	score, breakdown := Score(pr)
	if err := s.store.SaveAIScore(ctx, pr.ID, score, breakdown); err != nil {
		return 0, fmt.Errorf("failed to persist score for pull request %d: %w", pr.ID, err)
	}
	pr.AIConfidenceScore = score
	pr.AISignals = breakdown
	return score, nil
}

// RefreshFlags recomputes the aggregate flags from pr's related rows, saves
// them, then rescores
func (s *Scorer) RefreshFlags(ctx context.Context, pr *database.PullRequest) (float64, error) {
	ComputeFlags(pr)
	if err := s.store.SaveAIFlags(ctx, pr); err != nil {
		return 0, err
	}
	return s.UpdateAndPersist(ctx, pr)
}

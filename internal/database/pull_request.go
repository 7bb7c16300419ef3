package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const pullRequestColumns = `p.id, p.team_id, p.repository_id, r.full_name, r.installation_id, p.github_pr_id, p.number,
		p.title, COALESCE(p.body, ''), p.author_login, p.additions, p.deletions,
		p.llm_summary, COALESCE(p.llm_summary_version, ''), p.is_ai_assisted, p.ai_tools_detected,
		p.has_ai_commits, p.has_ai_review, p.has_ai_files, p.ai_confidence_score, p.ai_signals`

func scanPullRequest(row pgx.Row) (*PullRequest, error) {
	pr := &PullRequest{}
	var summary, signals []byte
	err := row.Scan(
		&pr.ID,
		&pr.TeamID,
		&pr.RepositoryID,
		&pr.RepoFullName,
		&pr.InstallationID,
		&pr.GitHubPRID,
		&pr.Number,
		&pr.Title,
		&pr.Body,
		&pr.AuthorLogin,
		&pr.Additions,
		&pr.Deletions,
		&summary,
		&pr.LLMSummaryVersion,
		&pr.IsAIAssisted,
		&pr.AIToolsDetected,
		&pr.HasAICommits,
		&pr.HasAIReview,
		&pr.HasAIFiles,
		&pr.AIConfidenceScore,
		&signals,
	)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		pr.LLMSummary = &LLMSummary{}
		if err := json.Unmarshal(summary, pr.LLMSummary); err != nil {
			return nil, fmt.Errorf("failed to decode llm summary: %w", err)
		}
	}
	if len(signals) > 0 {
		pr.AISignals = &AISignals{}
		if err := json.Unmarshal(signals, pr.AISignals); err != nil {
			return nil, fmt.Errorf("failed to decode ai signals: %w", err)
		}
	}
	return pr, nil
}

func (db *DB) queryPullRequests(ctx context.Context, query string, args ...any) ([]*PullRequest, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pull requests: %w", err)
	}
	defer rows.Close()

	prs := []*PullRequest{}
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pull request: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// MarkEmptyBodiesSkipped permanently skips unanalyzed pull requests without
// body text so they are never selected for enrichment
func (db *DB) MarkEmptyBodiesSkipped(ctx context.Context, teamID int64) (int64, error) {
	marker, err := json.Marshal(LLMSummary{Skipped: true, Reason: SkipReasonNoBody})
	if err != nil {
		return 0, err
	}

	query := `
		UPDATE pull_requests
		SET llm_summary = $2, updated_at = NOW()
		WHERE team_id = $1 AND llm_summary IS NULL AND (body IS NULL OR btrim(body) = '')
	`

	tag, err := db.pool.Exec(ctx, query, teamID, marker)
	if err != nil {
		return 0, fmt.Errorf("failed to mark empty pull requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListUnanalyzed selects up to limit pull requests that have a body and no
// summary, with commits, reviews, comments and files loaded
func (db *DB) ListUnanalyzed(ctx context.Context, teamID int64, limit int) ([]*PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + `
		FROM pull_requests p
		JOIN tracked_repositories r ON r.id = p.repository_id
		WHERE p.team_id = $1 AND p.llm_summary IS NULL AND btrim(COALESCE(p.body, '')) <> ''
		ORDER BY p.id
		LIMIT $2`

	prs, err := db.queryPullRequests(ctx, query, teamID, limit)
	if err != nil {
		return nil, err
	}
	if err := db.loadActivity(ctx, prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// CountUnanalyzed counts pull requests still waiting for a summary
func (db *DB) CountUnanalyzed(ctx context.Context, teamID int64) (int, error) {
	query := `SELECT COUNT(*) FROM pull_requests WHERE team_id = $1 AND llm_summary IS NULL`

	var count int
	if err := db.pool.QueryRow(ctx, query, teamID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unanalyzed pull requests: %w", err)
	}
	return count, nil
}

// GetPullRequest retrieves one pull request with its activity
func (db *DB) GetPullRequest(ctx context.Context, id int64) (*PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + `
		FROM pull_requests p
		JOIN tracked_repositories r ON r.id = p.repository_id
		WHERE p.id = $1`

	pr, err := scanPullRequest(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pull request: %w", err)
	}
	if err := db.loadActivity(ctx, []*PullRequest{pr}); err != nil {
		return nil, err
	}
	return pr, nil
}

// ListTeamPullRequests returns a page of a team's pull requests with activity,
// ordered by id and starting after afterID
func (db *DB) ListTeamPullRequests(ctx context.Context, teamID, afterID int64, limit int) ([]*PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + `
		FROM pull_requests p
		JOIN tracked_repositories r ON r.id = p.repository_id
		WHERE p.team_id = $1 AND p.id > $2
		ORDER BY p.id
		LIMIT $3`

	prs, err := db.queryPullRequests(ctx, query, teamID, afterID, limit)
	if err != nil {
		return nil, err
	}
	if err := db.loadActivity(ctx, prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// SaveLLMSummary writes the language-model result for a pull request
func (db *DB) SaveLLMSummary(ctx context.Context, prID int64, summary *LLMSummary, version string) error {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode llm summary: %w", err)
	}

	query := `
		UPDATE pull_requests
		SET llm_summary = $2, llm_summary_version = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := db.pool.Exec(ctx, query, prID, encoded, version)
	if err != nil {
		return fmt.Errorf("failed to save llm summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAIFlags persists text detection results and the aggregate AI flags
func (db *DB) SaveAIFlags(ctx context.Context, pr *PullRequest) error {
	tools := pr.AIToolsDetected
	if tools == nil {
		tools = []string{}
	}

	query := `
		UPDATE pull_requests
		SET is_ai_assisted = $2, ai_tools_detected = $3, has_ai_commits = $4, has_ai_review = $5, has_ai_files = $6,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err := db.pool.Exec(ctx, query, pr.ID, pr.IsAIAssisted, tools, pr.HasAICommits, pr.HasAIReview, pr.HasAIFiles)
	if err != nil {
		return fmt.Errorf("failed to save ai flags: %w", err)
	}
	return nil
}

// SaveAIScore persists the confidence score and its per-signal breakdown
func (db *DB) SaveAIScore(ctx context.Context, prID int64, score float64, signals *AISignals) error {
	encoded, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("failed to encode ai signals: %w", err)
	}

	query := `
		UPDATE pull_requests
		SET ai_confidence_score = $2, ai_signals = $3, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := db.pool.Exec(ctx, query, prID, score, encoded); err != nil {
		return fmt.Errorf("failed to save ai score: %w", err)
	}
	return nil
}

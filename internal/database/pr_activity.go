package database

import (
	"context"
	"fmt"
)

// loadActivity attaches commits, reviews, comments and files to the given
// pull requests with one query per relation
func (db *DB) loadActivity(ctx context.Context, prs []*PullRequest) error {
	if len(prs) == 0 {
		return nil
	}

	byID := make(map[int64]*PullRequest, len(prs))
	ids := make([]int64, 0, len(prs))
	for _, pr := range prs {
		byID[pr.ID] = pr
		ids = append(ids, pr.ID)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT pull_request_id, sha, message, author_login, is_ai_assisted, ai_co_authors
		FROM pr_commits WHERE pull_request_id = ANY($1) ORDER BY pull_request_id, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load commits: %w", err)
	}
	for rows.Next() {
		c := &PRCommit{}
		if err := rows.Scan(&c.PullRequestID, &c.SHA, &c.Message, &c.AuthorLogin, &c.IsAIAssisted, &c.AICoAuthors); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan commit: %w", err)
		}
		byID[c.PullRequestID].Commits = append(byID[c.PullRequestID].Commits, c)
	}
	rows.Close()

	rows, err = db.pool.Query(ctx, `
		SELECT pull_request_id, github_review_id, reviewer_login, state, body, is_ai_review
		FROM pr_reviews WHERE pull_request_id = ANY($1) ORDER BY pull_request_id, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}
	for rows.Next() {
		r := &PRReview{}
		if err := rows.Scan(&r.PullRequestID, &r.GitHubReviewID, &r.ReviewerLogin, &r.State, &r.Body, &r.IsAIReview); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan review: %w", err)
		}
		byID[r.PullRequestID].Reviews = append(byID[r.PullRequestID].Reviews, r)
	}
	rows.Close()

	rows, err = db.pool.Query(ctx, `
		SELECT pull_request_id, author_login, body
		FROM pr_comments WHERE pull_request_id = ANY($1) ORDER BY pull_request_id, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}
	for rows.Next() {
		c := &PRComment{}
		if err := rows.Scan(&c.PullRequestID, &c.AuthorLogin, &c.Body); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		byID[c.PullRequestID].Comments = append(byID[c.PullRequestID].Comments, c)
	}
	rows.Close()

	rows, err = db.pool.Query(ctx, `
		SELECT pull_request_id, filename, additions, deletions
		FROM pr_files WHERE pull_request_id = ANY($1) ORDER BY pull_request_id, filename`, ids)
	if err != nil {
		return fmt.Errorf("failed to load files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f := &PRFile{}
		if err := rows.Scan(&f.PullRequestID, &f.Filename, &f.Additions, &f.Deletions); err != nil {
			return fmt.Errorf("failed to scan file: %w", err)
		}
		byID[f.PullRequestID].Files = append(byID[f.PullRequestID].Files, f)
	}

	return rows.Err()
}

// ReplacePullRequestActivity swaps the stored commits, reviews and files of a
// pull request for freshly synced ones in one transaction
func (db *DB) ReplacePullRequestActivity(ctx context.Context, prID int64, commits []*PRCommit, reviews []*PRReview, files []*PRFile) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"pr_commits", "pr_reviews", "pr_files"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE pull_request_id = $1`, prID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, c := range commits {
		coAuthors := c.AICoAuthors
		if coAuthors == nil {
			coAuthors = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO pr_commits (pull_request_id, sha, message, author_login, is_ai_assisted, ai_co_authors)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			prID, c.SHA, c.Message, c.AuthorLogin, c.IsAIAssisted, coAuthors)
		if err != nil {
			return fmt.Errorf("failed to insert commit %s: %w", c.SHA, err)
		}
	}

	for _, r := range reviews {
		_, err := tx.Exec(ctx, `
			INSERT INTO pr_reviews (pull_request_id, github_review_id, reviewer_login, state, body, is_ai_review)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			prID, r.GitHubReviewID, r.ReviewerLogin, r.State, r.Body, r.IsAIReview)
		if err != nil {
			return fmt.Errorf("failed to insert review %d: %w", r.GitHubReviewID, err)
		}
	}

	for _, f := range files {
		_, err := tx.Exec(ctx, `
			INSERT INTO pr_files (pull_request_id, filename, additions, deletions)
			VALUES ($1, $2, $3, $4)`,
			prID, f.Filename, f.Additions, f.Deletions)
		if err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.Filename, err)
		}
	}

	return tx.Commit(ctx)
}

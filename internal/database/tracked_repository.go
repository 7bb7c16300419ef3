package database

import (
	"context"
	"fmt"

	"team-activity-pipeline/internal/validation"
)

// ReassignRepositories moves every tracked repository of one installation to
// another in a single statement
func (db *DB) ReassignRepositories(ctx context.Context, fromInstallationID, toInstallationID int64) (int64, error) {
	query := `
		UPDATE tracked_repositories
		SET installation_id = $2, updated_at = NOW()
		WHERE installation_id = $1
	`

	tag, err := db.pool.Exec(ctx, query, fromInstallationID, toInstallationID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign repositories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertTrackedRepository inserts or refreshes a repository keyed by its GitHub id
func (db *DB) UpsertTrackedRepository(ctx context.Context, repo *TrackedRepository) error {
	query := `
		INSERT INTO tracked_repositories (team_id, installation_id, github_repo_id, full_name, is_active, last_synced_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (github_repo_id)
		DO UPDATE SET
			team_id = EXCLUDED.team_id,
			installation_id = EXCLUDED.installation_id,
			full_name = EXCLUDED.full_name,
			is_active = TRUE,
			last_synced_at = NOW(),
			updated_at = NOW()
		RETURNING id, is_active, last_synced_at, created_at, updated_at
	`

	err := db.pool.QueryRow(ctx, query, repo.TeamID, repo.InstallationID, repo.GitHubRepoID, repo.FullName).
		Scan(&repo.ID, &repo.IsActive, &repo.LastSyncedAt, &repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tracked repository: %w", validation.ParseDatabaseError(err))
	}
	return nil
}

// DeactivateMissingRepositories marks repositories of an installation that
// were not part of the latest sync as inactive
func (db *DB) DeactivateMissingRepositories(ctx context.Context, installationID int64, keepRepoIDs []int64) (int64, error) {
	query := `
		UPDATE tracked_repositories
		SET is_active = FALSE, updated_at = NOW()
		WHERE installation_id = $1 AND is_active AND NOT (github_repo_id = ANY($2))
	`

	tag, err := db.pool.Exec(ctx, query, installationID, keepRepoIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate repositories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListTrackedRepositories returns the repositories owned by an installation
func (db *DB) ListTrackedRepositories(ctx context.Context, installationID int64) ([]*TrackedRepository, error) {
	query := `
		SELECT id, team_id, installation_id, github_repo_id, full_name, is_active, last_synced_at, created_at, updated_at
		FROM tracked_repositories
		WHERE installation_id = $1
		ORDER BY full_name
	`

	rows, err := db.pool.Query(ctx, query, installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked repositories: %w", err)
	}
	defer rows.Close()

	repos := []*TrackedRepository{}
	for rows.Next() {
		repo := &TrackedRepository{}
		err := rows.Scan(
			&repo.ID,
			&repo.TeamID,
			&repo.InstallationID,
			&repo.GitHubRepoID,
			&repo.FullName,
			&repo.IsActive,
			&repo.LastSyncedAt,
			&repo.CreatedAt,
			&repo.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked repository: %w", err)
		}
		repos = append(repos, repo)
	}

	return repos, rows.Err()
}

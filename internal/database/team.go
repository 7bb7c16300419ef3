package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TeamOverview is a team with the size of its enrichment backlog
type TeamOverview struct {
	Team
	PullRequests int `json:"pull_requests"`
	Unanalyzed   int `json:"unanalyzed"`
}

// GetTeam retrieves a team by ID
func (db *DB) GetTeam(ctx context.Context, id int64) (*Team, error) {
	query := `SELECT id, name, pipeline_status, pipeline_status_changed_at, created_at FROM teams WHERE id = $1`

	team := &Team{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.PipelineStatus, &team.PipelineStatusChangedAt, &team.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// ListTeamsByStatus returns the IDs of teams currently in the given status
func (db *DB) ListTeamsByStatus(ctx context.Context, status PipelineStatus) ([]int64, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM teams WHERE pipeline_status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams by status: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTeamOverviews returns every team with pull request and backlog counts
func (db *DB) ListTeamOverviews(ctx context.Context) ([]*TeamOverview, error) {
	query := `
		SELECT t.id, t.name, t.pipeline_status, t.pipeline_status_changed_at, t.created_at,
			COUNT(p.id) AS pull_requests,
			COUNT(p.id) FILTER (WHERE p.llm_summary IS NULL) AS unanalyzed
		FROM teams t
		LEFT JOIN pull_requests p ON p.team_id = t.id
		GROUP BY t.id
		ORDER BY t.id
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []*TeamOverview{}
	for rows.Next() {
		t := &TeamOverview{}
		err := rows.Scan(&t.ID, &t.Name, &t.PipelineStatus, &t.PipelineStatusChangedAt, &t.CreatedAt,
			&t.PullRequests, &t.Unanalyzed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// GetTeamPipelineStatus reads the team's current pipeline status
func (db *DB) GetTeamPipelineStatus(ctx context.Context, teamID int64) (PipelineStatus, error) {
	var status PipelineStatus
	err := db.pool.QueryRow(ctx, `SELECT pipeline_status FROM teams WHERE id = $1`, teamID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get pipeline status: %w", err)
	}
	return status, nil
}

// CompareAndSetPipelineStatus moves a team from one status to another only if
// it is still in the expected status. It reports whether the row changed.
func (db *DB) CompareAndSetPipelineStatus(ctx context.Context, teamID int64, from, to PipelineStatus) (bool, error) {
	query := `
		UPDATE teams
		SET pipeline_status = $3, pipeline_status_changed_at = NOW()
		WHERE id = $1 AND pipeline_status = $2
	`

	tag, err := db.pool.Exec(ctx, query, teamID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update pipeline status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

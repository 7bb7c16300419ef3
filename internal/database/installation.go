package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"team-activity-pipeline/internal/validation"

	"github.com/jackc/pgx/v5"
)

const installationColumns = `id, installation_id, account_id, account_type, account_login, is_active, suspended_at,
		permissions, events, repository_selection, team_id, created_at, updated_at`

func scanInstallation(row pgx.Row) (*Installation, error) {
	inst := &Installation{}
	var permissions []byte
	err := row.Scan(
		&inst.ID,
		&inst.InstallationID,
		&inst.AccountID,
		&inst.AccountType,
		&inst.AccountLogin,
		&inst.IsActive,
		&inst.SuspendedAt,
		&permissions,
		&inst.Events,
		&inst.RepositorySelection,
		&inst.TeamID,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &inst.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions: %w", err)
		}
	}
	return inst, nil
}

// GetInstallation retrieves an installation by its external installation id
func (db *DB) GetInstallation(ctx context.Context, installationID int64) (*Installation, error) {
	query := `SELECT ` + installationColumns + ` FROM installations WHERE installation_id = $1`

	inst, err := scanInstallation(db.pool.QueryRow(ctx, query, installationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	return inst, nil
}

// FindReinstallCandidate returns the installation a reinstall for accountID
// replaces: another installation of the same account, preferring the active
// one and then the most recently updated.
func (db *DB) FindReinstallCandidate(ctx context.Context, accountID, installationID int64) (*Installation, error) {
	query := `SELECT ` + installationColumns + `
		FROM installations
		WHERE account_id = $1 AND installation_id <> $2
		ORDER BY is_active DESC, updated_at DESC
		LIMIT 1`

	inst, err := scanInstallation(db.pool.QueryRow(ctx, query, accountID, installationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find previous installation: %w", err)
	}
	return inst, nil
}

// UpsertInstallation creates or refreshes the installation keyed by
// installation_id. Scalar fields are last-writer-wins; an existing team
// assignment is never replaced, inheritTeamID only fills an empty one.
func (db *DB) UpsertInstallation(ctx context.Context, inst *Installation, inheritTeamID *int64) (*UpsertResult, error) {
	permissions, err := json.Marshal(inst.Permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permissions: %w", err)
	}
	events := inst.Events
	if events == nil {
		events = []string{}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result := &UpsertResult{}

	var previousType AccountType
	err = tx.QueryRow(ctx, `SELECT account_type FROM installations WHERE installation_id = $1 FOR UPDATE`, inst.InstallationID).
		Scan(&previousType)

	var row pgx.Row
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		result.Created = true
		// ON CONFLICT covers a concurrent insert between the read and this write.
		query := `
			INSERT INTO installations (installation_id, account_id, account_type, account_login, is_active, suspended_at,
				permissions, events, repository_selection, team_id)
			VALUES ($1, $2, $3, $4, TRUE, NULL, $5, $6, $7, $8)
			ON CONFLICT (installation_id) DO UPDATE SET
				account_id = EXCLUDED.account_id,
				account_type = EXCLUDED.account_type,
				account_login = EXCLUDED.account_login,
				is_active = TRUE,
				suspended_at = NULL,
				permissions = EXCLUDED.permissions,
				events = EXCLUDED.events,
				repository_selection = EXCLUDED.repository_selection,
				team_id = COALESCE(installations.team_id, EXCLUDED.team_id),
				updated_at = NOW()
			RETURNING ` + installationColumns
		row = tx.QueryRow(ctx, query, inst.InstallationID, inst.AccountID, inst.AccountType, inst.AccountLogin,
			permissions, events, inst.RepositorySelection, inheritTeamID)
	case err != nil:
		return nil, fmt.Errorf("failed to lock installation: %w", err)
	default:
		result.PreviousAccountType = previousType
		query := `
			UPDATE installations SET
				account_id = $2,
				account_type = $3,
				account_login = $4,
				is_active = TRUE,
				suspended_at = NULL,
				permissions = $5,
				events = $6,
				repository_selection = $7,
				team_id = COALESCE(team_id, $8),
				updated_at = NOW()
			WHERE installation_id = $1
			RETURNING ` + installationColumns
		row = tx.QueryRow(ctx, query, inst.InstallationID, inst.AccountID, inst.AccountType, inst.AccountLogin,
			permissions, events, inst.RepositorySelection, inheritTeamID)
	}

	saved, err := scanInstallation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert installation: %w", validation.ParseDatabaseError(err))
	}
	result.Installation = saved

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit installation upsert: %w", err)
	}
	return result, nil
}

// DeactivateInstallation marks an installation inactive. It reports false
// when no installation matched.
func (db *DB) DeactivateInstallation(ctx context.Context, installationID int64) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE installations SET is_active = FALSE, updated_at = NOW() WHERE installation_id = $1`,
		installationID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate installation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SuspendInstallation marks an installation inactive and stamps suspended_at
func (db *DB) SuspendInstallation(ctx context.Context, installationID int64, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE installations SET is_active = FALSE, suspended_at = $2, updated_at = NOW() WHERE installation_id = $1`,
		installationID, at)
	if err != nil {
		return false, fmt.Errorf("failed to suspend installation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnsuspendInstallation reactivates an installation and clears suspended_at
func (db *DB) UnsuspendInstallation(ctx context.Context, installationID int64) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE installations SET is_active = TRUE, suspended_at = NULL, updated_at = NOW() WHERE installation_id = $1`,
		installationID)
	if err != nil {
		return false, fmt.Errorf("failed to unsuspend installation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AssignInstallationTeam links an installation to a team
func (db *DB) AssignInstallationTeam(ctx context.Context, installationID, teamID int64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE installations SET team_id = $2, updated_at = NOW() WHERE installation_id = $1`,
		installationID, teamID)
	if err != nil {
		return fmt.Errorf("failed to assign team: %w", validation.ParseDatabaseError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

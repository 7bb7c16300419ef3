// Package installation keeps the record of which GitHub accounts a team has
// authorised, driven by installation webhooks.
package installation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"team-activity-pipeline/internal/apperrors"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/validation"

	"github.com/google/go-github/v61/github"
)

// Installation webhook actions
const (
	ActionCreated     = "created"
	ActionDeleted     = "deleted"
	ActionSuspend     = "suspend"
	ActionUnsuspend   = "unsuspend"
	ActionSuspended   = "suspended"
	ActionUnsuspended = "unsuspended"
)

// Store is the persistence the registry needs
type Store interface {
	FindReinstallCandidate(ctx context.Context, accountID, installationID int64) (*database.Installation, error)
	DeactivateInstallation(ctx context.Context, installationID int64) (bool, error)
	UpsertInstallation(ctx context.Context, inst *database.Installation, inheritTeamID *int64) (*database.UpsertResult, error)
	ReassignRepositories(ctx context.Context, fromInstallationID, toInstallationID int64) (int64, error)
	SuspendInstallation(ctx context.Context, installationID int64, at time.Time) (bool, error)
	UnsuspendInstallation(ctx context.Context, installationID int64) (bool, error)
}

// SyncScheduler queues a repository sync for an installation
type SyncScheduler interface {
	PublishInstallationSyncJob(ctx context.Context, installationID int64) error
}

// Registry applies installation webhooks. Events for the same installation
// are applied one at a time in arrival order.
type Registry struct {
	store     Store
	scheduler SyncScheduler
	locks     *keyedMutex
	now       func() time.Time
}

// NewRegistry creates a registry. scheduler may be nil.
func NewRegistry(store Store, scheduler SyncScheduler) *Registry {
	return &Registry{
		store:     store,
		scheduler: scheduler,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// HandleInstallationEvent applies one "installation" webhook. Malformed
// payloads and unknown actions are logged and ignored; only datastore
// failures are returned.
func (r *Registry) HandleInstallationEvent(ctx context.Context, event *github.InstallationEvent) error {
	id := event.GetInstallation().GetID()
	if id == 0 {
		slog.Warn("Installation event without installation id", "action", event.GetAction())
		return nil
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	logger := slog.With("installationId", id, "action", event.GetAction())

	switch event.GetAction() {
	case ActionCreated:
		return r.handleCreated(ctx, logger, event.GetInstallation())

	case ActionDeleted:
		found, err := r.store.DeactivateInstallation(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			logger.Info("Deleted installation not found, nothing to do")
			return nil
		}
		logger.Info("Installation deactivated")

	case ActionSuspend, ActionSuspended:
		at := r.now()
		if ts := event.GetInstallation().SuspendedAt; ts != nil {
			at = ts.Time
		}
		found, err := r.store.SuspendInstallation(ctx, id, at)
		if err != nil {
			return err
		}
		if !found {
			logger.Info("Suspended installation not found, nothing to do")
			return nil
		}
		logger.Info("Installation suspended", "suspendedAt", at)

	case ActionUnsuspend, ActionUnsuspended:
		found, err := r.store.UnsuspendInstallation(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			logger.Info("Unsuspended installation not found, nothing to do")
			return nil
		}
		logger.Info("Installation unsuspended")
		r.scheduleSync(ctx, logger, id)

	default:
		logger.Debug("Ignoring installation action")
	}
	return nil
}

func (r *Registry) handleCreated(ctx context.Context, logger *slog.Logger, payload *github.Installation) error {
	inst, err := fromPayload(payload)
	if err != nil {
		logger.Warn("Malformed installation payload", "error", err)
		return nil
	}
	logger = logger.With("accountId", inst.AccountID, "account", inst.AccountLogin)

	// a different installation for the same account means this is a reinstall
	var inheritTeamID *int64
	old, err := r.store.FindReinstallCandidate(ctx, inst.AccountID, inst.InstallationID)
	switch {
	case err == nil:
		inheritTeamID = old.TeamID
		if old.IsActive {
			if _, err := r.store.DeactivateInstallation(ctx, old.InstallationID); err != nil {
				return fmt.Errorf("failed to deactivate previous installation %d: %w", old.InstallationID, err)
			}
		}
		logger.Info("Reinstall detected", "previousInstallationId", old.InstallationID, "teamId", old.TeamID)
	case errors.Is(err, database.ErrNotFound):
		old = nil
	default:
		return err
	}

	result, err := r.store.UpsertInstallation(ctx, inst, inheritTeamID)
	if err != nil {
		return err
	}
	if result.PreviousAccountType != "" && result.PreviousAccountType != inst.AccountType {
		logger.Warn("Installation account type changed, manual review may be needed",
			"previousType", result.PreviousAccountType, "newType", inst.AccountType)
	}
	logger.Info("Installation saved", "created", result.Created, "teamId", result.Installation.TeamID)

	if old != nil {
		moved, err := r.store.ReassignRepositories(ctx, old.InstallationID, inst.InstallationID)
		if err != nil {
			return fmt.Errorf("failed to migrate repositories from installation %d: %w", old.InstallationID, err)
		}
		logger.Info("Repositories migrated", "previousInstallationId", old.InstallationID, "count", moved)
	}

	if result.Installation.TeamID != nil {
		r.scheduleSync(ctx, logger, inst.InstallationID)
	}
	return nil
}

// HandleInstallationRepositoriesEvent logs repository selection changes.
// Tracked repositories are reconciled by the installation sync job.
func (r *Registry) HandleInstallationRepositoriesEvent(ctx context.Context, event *github.InstallationRepositoriesEvent) error {
	id := event.GetInstallation().GetID()
	if id == 0 {
		slog.Warn("Installation repositories event without installation id", "action", event.GetAction())
		return nil
	}

	names := func(repos []*github.Repository) []string {
		out := make([]string, 0, len(repos))
		for _, repo := range repos {
			out = append(out, repo.GetFullName())
		}
		return out
	}

	slog.Info("Installation repositories changed",
		"installationId", id,
		"action", event.GetAction(),
		"selection", event.GetRepositorySelection(),
		"added", names(event.RepositoriesAdded),
		"removed", names(event.RepositoriesRemoved))
	return nil
}

func (r *Registry) scheduleSync(ctx context.Context, logger *slog.Logger, installationID int64) {
	if r.scheduler == nil {
		return
	}
	if err := r.scheduler.PublishInstallationSyncJob(ctx, installationID); err != nil {
		logger.Error("Failed to schedule installation sync", "error", err)
	}
}

// fromPayload validates the webhook's installation object and maps it to
// the stored form
func fromPayload(payload *github.Installation) (*database.Installation, error) {
	account := payload.GetAccount()
	accountType := account.GetType()
	selection := payload.GetRepositorySelection()

	err := validation.New().
		PositiveID("installation.id", payload.GetID()).
		PositiveID("installation.account.id", account.GetID()).
		Required("installation.account.login", account.GetLogin()).
		OneOf("installation.account.type", accountType,
			[]string{string(database.AccountTypeUser), string(database.AccountTypeOrganization)}).
		OneOf("installation.repository_selection", selection,
			[]string{string(database.RepositorySelectionAll), string(database.RepositorySelectionSelected)}).
		Validate()
	if err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}

	permissions := map[string]string{}
	if payload.Permissions != nil {
		raw, err := json.Marshal(payload.Permissions)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &permissions); err != nil {
			return nil, err
		}
	}

	if accountType == "" {
		accountType = string(database.AccountTypeUser)
	}
	if selection == "" {
		selection = string(database.RepositorySelectionSelected)
	}

	events := payload.Events
	if events == nil {
		events = []string{}
	}

	return &database.Installation{
		InstallationID:      payload.GetID(),
		AccountID:           account.GetID(),
		AccountType:         database.AccountType(accountType),
		AccountLogin:        account.GetLogin(),
		IsActive:            true,
		Permissions:         permissions,
		Events:              events,
		RepositorySelection: database.RepositorySelection(selection),
	}, nil
}

package installation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"team-activity-pipeline/internal/database"

	"github.com/google/go-github/v61/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the SQL semantics of the database layer in memory
type memStore struct {
	mu            sync.Mutex
	installations map[int64]*database.Installation
	repos         map[int64]int64 // github_repo_id -> installation_id
	updated       map[int64]int
	clock         int
	failUpsert    error
}

func newMemStore() *memStore {
	return &memStore{
		installations: map[int64]*database.Installation{},
		repos:         map[int64]int64{},
		updated:       map[int64]int{},
	}
}

func (m *memStore) touch(id int64) {
	m.clock++
	m.updated[id] = m.clock
}

func (m *memStore) FindReinstallCandidate(ctx context.Context, accountID, installationID int64) (*database.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*database.Installation
	for _, inst := range m.installations {
		if inst.AccountID == accountID && inst.InstallationID != installationID {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		return nil, database.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IsActive != candidates[j].IsActive {
			return candidates[i].IsActive
		}
		return m.updated[candidates[i].InstallationID] > m.updated[candidates[j].InstallationID]
	})
	c := *candidates[0]
	return &c, nil
}

func (m *memStore) DeactivateInstallation(ctx context.Context, installationID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installations[installationID]
	if !ok {
		return false, nil
	}
	inst.IsActive = false
	m.touch(installationID)
	return true, nil
}

func (m *memStore) UpsertInstallation(ctx context.Context, inst *database.Installation, inheritTeamID *int64) (*database.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return nil, m.failUpsert
	}

	result := &database.UpsertResult{}
	existing, ok := m.installations[inst.InstallationID]
	saved := *inst
	saved.IsActive = true
	saved.SuspendedAt = nil
	if ok {
		result.PreviousAccountType = existing.AccountType
		saved.ID = existing.ID
		saved.TeamID = existing.TeamID
	} else {
		result.Created = true
		saved.ID = int64(len(m.installations) + 1)
	}
	if saved.TeamID == nil {
		saved.TeamID = inheritTeamID
	}
	m.installations[inst.InstallationID] = &saved
	m.touch(inst.InstallationID)

	out := saved
	result.Installation = &out
	return result, nil
}

func (m *memStore) ReassignRepositories(ctx context.Context, from, to int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for repo, owner := range m.repos {
		if owner == from {
			m.repos[repo] = to
			n++
		}
	}
	return n, nil
}

func (m *memStore) SuspendInstallation(ctx context.Context, installationID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installations[installationID]
	if !ok {
		return false, nil
	}
	inst.IsActive = false
	inst.SuspendedAt = &at
	return true, nil
}

func (m *memStore) UnsuspendInstallation(ctx context.Context, installationID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installations[installationID]
	if !ok {
		return false, nil
	}
	inst.IsActive = true
	inst.SuspendedAt = nil
	return true, nil
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []int64
}

func (s *recordingScheduler) PublishInstallationSyncJob(ctx context.Context, installationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, installationID)
	return nil
}

func installationEvent(action string, installationID, accountID int64, login, accountType string) *github.InstallationEvent {
	return &github.InstallationEvent{
		Action: github.String(action),
		Installation: &github.Installation{
			ID: github.Int64(installationID),
			Account: &github.User{
				ID:    github.Int64(accountID),
				Login: github.String(login),
				Type:  github.String(accountType),
			},
			Permissions:         &github.InstallationPermissions{Contents: github.String("read"), PullRequests: github.String("read")},
			Events:              []string{"pull_request", "pull_request_review"},
			RepositorySelection: github.String("all"),
		},
	}
}

func TestCreatedTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()

	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("created", 100, 7, "acme", "Organization")))
	second := installationEvent("created", 100, 7, "acme-renamed", "Organization")
	second.Installation.RepositorySelection = github.String("selected")
	require.NoError(t, reg.HandleInstallationEvent(ctx, second))

	require.Len(t, store.installations, 1)
	inst := store.installations[100]
	assert.Equal(t, "acme-renamed", inst.AccountLogin)
	assert.Equal(t, database.RepositorySelectionSelected, inst.RepositorySelection)
	assert.Equal(t, "read", inst.Permissions["pull_requests"])
	assert.True(t, inst.IsActive)
}

func TestFreshInstallHasNoTeam(t *testing.T) {
	store := newMemStore()
	sched := &recordingScheduler{}
	reg := NewRegistry(store, sched)

	require.NoError(t, reg.HandleInstallationEvent(context.Background(), installationEvent("created", 100, 7, "acme", "Organization")))

	assert.Nil(t, store.installations[100].TeamID)
	assert.Empty(t, sched.ids, "no sync until a team is assigned")
}

func TestReinstallMigratesTeamAndRepositories(t *testing.T) {
	store := newMemStore()
	sched := &recordingScheduler{}
	reg := NewRegistry(store, sched)
	ctx := context.Background()

	team := int64(42)
	store.installations[100] = &database.Installation{ID: 1, InstallationID: 100, AccountID: 7, AccountType: "Organization", IsActive: true, TeamID: &team}
	store.repos[9001] = 100
	store.repos[9002] = 100
	store.repos[9003] = 555

	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("created", 200, 7, "acme", "Organization")))

	assert.False(t, store.installations[100].IsActive)
	fresh := store.installations[200]
	require.NotNil(t, fresh.TeamID)
	assert.Equal(t, team, *fresh.TeamID)
	assert.True(t, fresh.IsActive)
	assert.Equal(t, int64(200), store.repos[9001])
	assert.Equal(t, int64(200), store.repos[9002])
	assert.Equal(t, int64(555), store.repos[9003])
	assert.Equal(t, []int64{200}, sched.ids)

	// redelivery changes nothing
	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("created", 200, 7, "acme", "Organization")))
	assert.Len(t, store.installations, 2)
	assert.Equal(t, team, *store.installations[200].TeamID)
}

func TestReinstallKeepsExistingTeam(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)

	oldTeam, newTeam := int64(1), int64(2)
	store.installations[100] = &database.Installation{InstallationID: 100, AccountID: 7, IsActive: true, TeamID: &oldTeam}
	store.installations[200] = &database.Installation{InstallationID: 200, AccountID: 7, IsActive: false, TeamID: &newTeam}

	require.NoError(t, reg.HandleInstallationEvent(context.Background(), installationEvent("created", 200, 7, "acme", "User")))

	assert.Equal(t, newTeam, *store.installations[200].TeamID)
}

func TestSuspendThenUnsuspend(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return at }

	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("created", 100, 7, "acme", "User")))

	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("suspend", 100, 7, "acme", "User")))
	assert.False(t, store.installations[100].IsActive)
	require.NotNil(t, store.installations[100].SuspendedAt)
	assert.Equal(t, at, *store.installations[100].SuspendedAt)

	require.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("unsuspend", 100, 7, "acme", "User")))
	assert.True(t, store.installations[100].IsActive)
	assert.Nil(t, store.installations[100].SuspendedAt)
}

func TestDeletedMissingIsNoop(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)

	assert.NoError(t, reg.HandleInstallationEvent(context.Background(), installationEvent("deleted", 404, 7, "acme", "User")))
	assert.Empty(t, store.installations)
}

func TestMalformedAndUnknownEventsAreIgnored(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()

	assert.NoError(t, reg.HandleInstallationEvent(ctx, &github.InstallationEvent{Action: github.String("created")}))

	noAccount := installationEvent("created", 100, 0, "", "User")
	assert.NoError(t, reg.HandleInstallationEvent(ctx, noAccount))

	assert.NoError(t, reg.HandleInstallationEvent(ctx, installationEvent("new_permissions_accepted", 100, 7, "acme", "User")))
	assert.Empty(t, store.installations)
}

func TestDatastoreFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failUpsert = errors.New("connection refused")
	reg := NewRegistry(store, nil)

	err := reg.HandleInstallationEvent(context.Background(), installationEvent("created", 100, 7, "acme", "User"))
	assert.Error(t, err)
}

func TestEventsForOneInstallationAreSerialized(t *testing.T) {
	locks := newKeyedMutex()
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(100)
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Empty(t, locks.locks)
}

func TestRepositoriesEventDoesNotMutate(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, nil)

	err := reg.HandleInstallationRepositoriesEvent(context.Background(), &github.InstallationRepositoriesEvent{
		Action:            github.String("added"),
		Installation:      &github.Installation{ID: github.Int64(100)},
		RepositoriesAdded: []*github.Repository{{FullName: github.String("acme/api")}},
	})
	assert.NoError(t, err)
	assert.Empty(t, store.installations)
	assert.Empty(t, store.repos)
}

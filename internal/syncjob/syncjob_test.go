package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/gateway"
	"team-activity-pipeline/internal/ghapp"
	"team-activity-pipeline/internal/signals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	installations map[int64]*database.Installation
	repos         map[int64]*database.TrackedRepository
	pullRequests  map[int64]*database.PullRequest
	scores        map[int64]float64
}

func newMemStore() *memStore {
	return &memStore{
		installations: map[int64]*database.Installation{},
		repos:         map[int64]*database.TrackedRepository{},
		pullRequests:  map[int64]*database.PullRequest{},
		scores:        map[int64]float64{},
	}
}

func (m *memStore) GetInstallation(ctx context.Context, installationID int64) (*database.Installation, error) {
	inst, ok := m.installations[installationID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return inst, nil
}

func (m *memStore) UpsertTrackedRepository(ctx context.Context, repo *database.TrackedRepository) error {
	repo.IsActive = true
	m.repos[repo.GitHubRepoID] = repo
	return nil
}

func (m *memStore) DeactivateMissingRepositories(ctx context.Context, installationID int64, keep []int64) (int64, error) {
	kept := map[int64]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for id, repo := range m.repos {
		if repo.InstallationID == installationID && repo.IsActive && !kept[id] {
			repo.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetPullRequest(ctx context.Context, id int64) (*database.PullRequest, error) {
	pr, ok := m.pullRequests[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return pr, nil
}

func (m *memStore) ReplacePullRequestActivity(ctx context.Context, prID int64, commits []*database.PRCommit, reviews []*database.PRReview, files []*database.PRFile) error {
	pr := m.pullRequests[prID]
	pr.Commits, pr.Reviews, pr.Files = commits, reviews, files
	return nil
}

func (m *memStore) SaveAIFlags(ctx context.Context, pr *database.PullRequest) error {
	return nil
}

func (m *memStore) SaveAIScore(ctx context.Context, prID int64, score float64, _ *database.AISignals) error {
	m.scores[prID] = score
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newSyncer(t *testing.T, store *memStore, mux *http.ServeMux) (*Syncer, *gateway.Gateway) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gw := gateway.New()
	clients := &ghapp.StaticClientProvider{HTTPClient: server.Client(), BaseURL: server.URL}
	return NewSyncer(store, store, clients, gw, signals.NewScorer(store)), gw
}

func TestSyncInstallation_UpsertsAllPagesAndDeactivatesMissing(t *testing.T) {
	store := newMemStore()
	teamID := int64(7)
	store.installations[42] = &database.Installation{InstallationID: 42, IsActive: true, TeamID: &teamID}
	store.repos[999] = &database.TrackedRepository{InstallationID: 42, GitHubRepoID: 999, FullName: "acme/old", IsActive: true}

	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, map[string]any{"total_count": 2, "repositories": []map[string]any{{"id": 2, "full_name": "acme/web"}}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/installation/repositories?page=2>; rel="next"`, serverURL))
		writeJSON(w, map[string]any{"total_count": 2, "repositories": []map[string]any{{"id": 1, "full_name": "acme/api"}}})
	})
	syncer, _ := newSyncer(t, store, mux)
	serverURL = syncer.clients.(*ghapp.StaticClientProvider).BaseURL

	n, err := syncer.SyncInstallation(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, "acme/api", store.repos[1].FullName)
	assert.Equal(t, teamID, store.repos[2].TeamID)
	assert.False(t, store.repos[999].IsActive)
}

func TestSyncInstallation_SkipsWithoutTeam(t *testing.T) {
	store := newMemStore()
	store.installations[42] = &database.Installation{InstallationID: 42, IsActive: true}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected API call %s", r.URL.Path)
	})
	syncer, _ := newSyncer(t, store, mux)

	n, err := syncer.SyncInstallation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = syncer.SyncInstallation(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSyncInstallation_RateLimitIsRetryable(t *testing.T) {
	store := newMemStore()
	teamID := int64(7)
	store.installations[42] = &database.Installation{InstallationID: 42, IsActive: true, TeamID: &teamID}

	mux := http.NewServeMux()
	mux.HandleFunc("/installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]any{"message": "slow down"})
	})
	syncer, _ := newSyncer(t, store, mux)

	_, err := syncer.SyncInstallation(context.Background(), 42)
	require.Error(t, err)

	var retry interface{ RetryDelay() time.Duration }
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 30*time.Second, retry.RetryDelay())
	assert.Empty(t, store.repos)
}

func TestSyncPullRequest_ReplacesActivityAndRescores(t *testing.T) {
	store := newMemStore()
	store.pullRequests[5] = &database.PullRequest{
		ID:              5,
		RepoFullName:    "acme/api",
		InstallationID:  42,
		Number:          12,
		Title:           "Add cache",
		Body:            "Adds a read-through cache.",
		AIToolsDetected: []string{"stale"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api/pulls/12/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"sha": "abc", "commit": map[string]any{"message": "add cache\n\nCo-Authored-By: Claude <noreply@anthropic.com>"}, "author": map[string]any{"login": "dev"}},
			{"sha": "def", "commit": map[string]any{"message": "fix tests"}, "author": map[string]any{"login": "dev"}},
		})
	})
	mux.HandleFunc("/repos/acme/api/pulls/12/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 9, "user": map[string]any{"login": "coderabbitai[bot]"}, "state": "COMMENTED", "body": "looks fine"},
		})
	})
	mux.HandleFunc("/repos/acme/api/pulls/12/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"filename": "CLAUDE.md", "additions": 10, "deletions": 0},
			{"filename": "internal/cache/cache.go", "additions": 80, "deletions": 2},
		})
	})
	syncer, _ := newSyncer(t, store, mux)

	require.NoError(t, syncer.SyncPullRequest(context.Background(), 5))

	pr := store.pullRequests[5]
	require.Len(t, pr.Commits, 2)
	assert.True(t, pr.Commits[0].IsAIAssisted)
	assert.Equal(t, []string{"claude"}, pr.Commits[0].AICoAuthors)
	assert.False(t, pr.Commits[1].IsAIAssisted)
	require.Len(t, pr.Reviews, 1)
	assert.True(t, pr.Reviews[0].IsAIReview)
	assert.Len(t, pr.Files, 2)

	assert.False(t, pr.IsAIAssisted)
	assert.True(t, pr.HasAICommits)
	assert.True(t, pr.HasAIReview)
	assert.True(t, pr.HasAIFiles)
	assert.NotContains(t, pr.AIToolsDetected, "stale")
	assert.Contains(t, pr.AIToolsDetected, "claude")
	assert.InDelta(t, 0.40, store.scores[5], 1e-9)
}

func TestSyncPullRequest_MissingIsNoop(t *testing.T) {
	store := newMemStore()
	syncer, _ := newSyncer(t, store, http.NewServeMux())

	assert.NoError(t, syncer.SyncPullRequest(context.Background(), 1))
}

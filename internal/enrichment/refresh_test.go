package enrichment

import (
	"context"
	"errors"
	"testing"

	"team-activity-pipeline/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshStore struct {
	statuses map[int64]database.PipelineStatus
}

func (s *refreshStore) ListTeamsByStatus(ctx context.Context, status database.PipelineStatus) ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= int64(len(s.statuses)); id++ {
		if s.statuses[id] == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *refreshStore) CompareAndSetPipelineStatus(ctx context.Context, teamID int64, from, to database.PipelineStatus) (bool, error) {
	if s.statuses[teamID] != from {
		return false, nil
	}
	s.statuses[teamID] = to
	return true, nil
}

type refreshPublisher struct {
	teams []int64
	fail  map[int64]bool
}

func (p *refreshPublisher) PublishEnrichmentJob(ctx context.Context, teamID int64, batchSize int) (string, error) {
	if p.fail[teamID] {
		return "", errors.New("redis down")
	}
	p.teams = append(p.teams, teamID)
	return "job", nil
}

func TestRefresher_Run(t *testing.T) {
	store := &refreshStore{statuses: map[int64]database.PipelineStatus{
		1: database.StatusComplete,
		2: database.StatusLLMProcessing,
		3: database.StatusComplete,
	}}
	publisher := &refreshPublisher{fail: map[int64]bool{3: true}}

	queued, err := NewRefresher(store, publisher).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, queued)
	assert.Equal(t, []int64{1}, publisher.teams)
	assert.Equal(t, database.StatusBackgroundLLM, store.statuses[1])
	assert.Equal(t, database.StatusLLMProcessing, store.statuses[2])
	assert.Equal(t, database.StatusComplete, store.statuses[3])
}

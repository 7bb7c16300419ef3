package database

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkEmptyBodiesSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	db := NewTestDB(mock)

	mock.ExpectExec("UPDATE pull_requests").
		WithArgs(int64(1), []byte(`{"skipped":true,"reason":"no_body"}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := db.MarkEmptyBodiesSkipped(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnanalyzed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	db := NewTestDB(mock)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))

	n, err := db.CountUnanalyzed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLLMSummary_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	db := NewTestDB(mock)
	summary := &LLMSummary{Summary: &WorkSummary{Title: "t", Description: "d", Type: "feature"}}

	mock.ExpectExec("UPDATE pull_requests").
		WithArgs(int64(9), pgxmock.AnyArg(), "v1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = db.SaveLLMSummary(context.Background(), 9, summary, "v1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePullRequestActivity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	db := NewTestDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pr_commits").WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM pr_reviews").WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM pr_files").WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO pr_commits").
		WithArgs(int64(5), "abc", "msg", "dev", true, []string{"Claude"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO pr_files").
		WithArgs(int64(5), "CLAUDE.md", 3, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = db.ReplacePullRequestActivity(context.Background(), 5,
		[]*PRCommit{{SHA: "abc", Message: "msg", AuthorLogin: "dev", IsAIAssisted: true, AICoAuthors: []string{"Claude"}}},
		nil,
		[]*PRFile{{Filename: "CLAUDE.md", Additions: 3}},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package signals

import (
	"context"
	"testing"

	"team-activity-pipeline/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		pr   *database.PullRequest
		want float64
	}{
		{
			name: "no signals",
			pr:   &database.PullRequest{},
			want: 0,
		},
		{
			name: "file signal only",
			pr:   &database.PullRequest{HasAIFiles: true},
			want: 0.05,
		},
		{
			name: "all signals",
			pr: &database.PullRequest{
				LLMSummary:   &database.LLMSummary{AI: &database.AIAssessment{IsAssisted: true}},
				IsAIAssisted: true,
				HasAICommits: true,
				HasAIReview:  true,
				HasAIFiles:   true,
			},
			want: 1.0,
		},
		{
			name: "llm confidence scales its weight",
			pr: &database.PullRequest{
				LLMSummary: &database.LLMSummary{AI: &database.AIAssessment{IsAssisted: true, Confidence: ptr(0.5)}},
			},
			want: 0.2,
		},
		{
			name: "llm says not assisted",
			pr: &database.PullRequest{
				LLMSummary:   &database.LLMSummary{AI: &database.AIAssessment{IsAssisted: false, Confidence: ptr(0.9)}},
				HasAICommits: true,
			},
			want: 0.25,
		},
		{
			name: "skipped summary contributes nothing",
			pr: &database.PullRequest{
				LLMSummary:   &database.LLMSummary{Skipped: true, Reason: database.SkipReasonNoBody},
				IsAIAssisted: true,
				HasAIReview:  true,
			},
			want: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, breakdown := Score(tt.pr)
			assert.Equal(t, tt.want, got)
			require.NotNil(t, breakdown)
			assert.Equal(t, WeightFiles, breakdown.Files.Weight)
		})
	}
}

func TestWeightsSumToOne(t *testing.T) {
	assert.Equal(t, 1.0, round3(WeightLLM+WeightCommits+WeightRegex+WeightReviews+WeightFiles))
}

func TestConfigFileTool(t *testing.T) {
	tests := []struct {
		path string
		tool string
		ok   bool
	}{
		{".cursorrules", "cursor", true},
		{".cursor/rules/backend.mdc", "cursor", true},
		{"CLAUDE.md", "claude", true},
		{"services/api/CLAUDE.md", "claude", true},
		{".claude/settings.json", "claude", true},
		{".github/copilot-instructions.md", "copilot", true},
		{".windsurfrules", "windsurf", true},
		{"AGENTS.md", "codex", true},
		{"web/.cursor/rules/ui.mdc", "cursor", true},
		{".kiro/steering/product.md", "kiro", true},
		{".rules", "zed", true},
		{"internal/db/cursor/pager.go", "", false},
		{"api/cursor_pagination.go", "", false},
		{"src/cursor-pagination/index.ts", "", false},
		{"packages/copilot-chat/.cursor/notes.md", "", false},
		{"tools/eslint-rules.md", "", false},
		{".eslint-rules", "", false},
		{"README.md", "", false},
		{"src/cursor.go", "", false},
		{"internal/pager/cursor/encode.go", "", false},
		{"app/models/cursor/page.go", "", false},
		{"web/src/components/cursor/Cursor.tsx", "", false},
		{"deploy/firewall-rules", "", false},
		{"docs/alert-rules.md", "", false},
		{"config/routing-rules", "", false},
		{"ops/prometheus/recording-rules.md", "", false},
		{"docs/.rules/intro.md", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			tool, ok := ConfigFileTool(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.tool, tool)
		})
	}
}

func TestDetectText(t *testing.T) {
	d := DetectText("Add retries", "🤖 Generated with [Claude Code](https://claude.com/claude-code)")
	assert.True(t, d.Detected)
	assert.Contains(t, d.Tools, "claude")

	d = DetectText("Refactor parser", "Hand-written, no AI was used.")
	assert.False(t, d.Detected)

	d = DetectText("Fix typo in README", "")
	assert.False(t, d.Detected)
}

func TestAnalyzeCommit(t *testing.T) {
	c := &database.PRCommit{Message: "Fix flaky test\n\nCo-Authored-By: Claude <noreply@anthropic.com>\nCo-authored-by: Jane <jane@example.com>"}
	AnalyzeCommit(c)
	assert.True(t, c.IsAIAssisted)
	assert.Equal(t, []string{"claude"}, c.AICoAuthors)

	plain := &database.PRCommit{Message: "Co-authored-by: Jane <jane@example.com>"}
	AnalyzeCommit(plain)
	assert.False(t, plain.IsAIAssisted)
	assert.Empty(t, plain.AICoAuthors)
}

func TestComputeFlags(t *testing.T) {
	pr := &database.PullRequest{
		Commits: []*database.PRCommit{{SHA: "a"}, {SHA: "b", AICoAuthors: []string{"copilot"}}},
		Reviews: []*database.PRReview{{ReviewerLogin: "alice"}, {ReviewerLogin: "coderabbitai[bot]"}},
		Files:   []*database.PRFile{{Filename: "main.go"}, {Filename: "internal/db/cursor/pager.go"}},
	}

	ComputeFlags(pr)

	assert.True(t, pr.HasAICommits)
	assert.True(t, pr.HasAIReview)
	assert.True(t, pr.Reviews[1].IsAIReview)
	assert.False(t, pr.HasAIFiles)
	assert.ElementsMatch(t, []string{"copilot", "coderabbit"}, pr.AIToolsDetected)
}

type fakeScoreStore struct {
	scores map[int64]float64
	flags  map[int64]bool
}

func (f *fakeScoreStore) SaveAIScore(ctx context.Context, prID int64, score float64, signals *database.AISignals) error {
	f.scores[prID] = score
	return nil
}

func (f *fakeScoreStore) SaveAIFlags(ctx context.Context, pr *database.PullRequest) error {
	f.flags[pr.ID] = pr.HasAIFiles
	return nil
}

func TestScorer_RefreshFlags(t *testing.T) {
	store := &fakeScoreStore{scores: map[int64]float64{}, flags: map[int64]bool{}}
	scorer := NewScorer(store)

	pr := &database.PullRequest{ID: 4, Files: []*database.PRFile{{Filename: ".cursorrules"}}}
	score, err := scorer.RefreshFlags(context.Background(), pr)
	require.NoError(t, err)

	assert.Equal(t, 0.05, score)
	assert.Equal(t, 0.05, store.scores[4])
	assert.True(t, store.flags[4])
	assert.Equal(t, 0.05, pr.AIConfidenceScore)
}

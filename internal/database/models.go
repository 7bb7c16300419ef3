package database

import "time"

// PipelineStatus tracks which stage of onboarding or background refresh a team is in
type PipelineStatus string

const (
	StatusPending           PipelineStatus = "pending"
	StatusSyncing           PipelineStatus = "syncing"
	StatusLLMProcessing     PipelineStatus = "llm_processing"
	StatusComputingMetrics  PipelineStatus = "computing_metrics"
	StatusComputingInsights PipelineStatus = "computing_insights"
	StatusComplete          PipelineStatus = "complete"

	StatusBackgroundSyncing  PipelineStatus = "background_syncing"
	StatusBackgroundLLM      PipelineStatus = "background_llm"
	StatusBackgroundMetrics  PipelineStatus = "background_metrics"
	StatusBackgroundInsights PipelineStatus = "background_insights"

	StatusFailed PipelineStatus = "failed"
)

// NextAfterEnrichment returns the status that follows LLM processing on
// whichever track the team currently sits. ok is false when the team is not
// in an LLM stage, in which case no transition applies.
func NextAfterEnrichment(current PipelineStatus) (next PipelineStatus, ok bool) {
	switch current {
	case StatusLLMProcessing:
		return StatusComputingMetrics, true
	case StatusBackgroundLLM:
		return StatusBackgroundMetrics, true
	default:
		return "", false
	}
}

// Team is the tenant whose integrations and work items are processed
type Team struct {
	ID                      int64          `json:"id"`
	Name                    string         `json:"name"`
	PipelineStatus          PipelineStatus `json:"pipeline_status"`
	PipelineStatusChangedAt *time.Time     `json:"pipeline_status_changed_at,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
}

type AccountType string

const (
	AccountTypeUser         AccountType = "User"
	AccountTypeOrganization AccountType = "Organization"
)

type RepositorySelection string

const (
	RepositorySelectionAll      RepositorySelection = "all"
	RepositorySelectionSelected RepositorySelection = "selected"
)

// Installation is one authorization grant from an external account.
// TeamID is nil while the installation awaits team assignment.
type Installation struct {
	ID                  int64               `json:"id"`
	InstallationID      int64               `json:"installation_id"`
	AccountID           int64               `json:"account_id"`
	AccountType         AccountType         `json:"account_type"`
	AccountLogin        string              `json:"account_login"`
	IsActive            bool                `json:"is_active"`
	SuspendedAt         *time.Time          `json:"suspended_at,omitempty"`
	Permissions         map[string]string   `json:"permissions"`
	Events              []string            `json:"events"`
	RepositorySelection RepositorySelection `json:"repository_selection"`
	TeamID              *int64              `json:"team_id,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// UpsertResult describes what an installation upsert changed
type UpsertResult struct {
	Installation        *Installation
	Created             bool
	PreviousAccountType AccountType
}

// TrackedRepository is a repository synced under an installation
type TrackedRepository struct {
	ID             int64      `json:"id"`
	TeamID         int64      `json:"team_id"`
	InstallationID int64      `json:"installation_id"`
	GitHubRepoID   int64      `json:"github_repo_id"`
	FullName       string     `json:"full_name"`
	IsActive       bool       `json:"is_active"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PullRequest is the enriched unit of work
type PullRequest struct {
	ID                int64       `json:"id"`
	TeamID            int64       `json:"team_id"`
	RepositoryID      int64       `json:"repository_id"`
	RepoFullName      string      `json:"repo_full_name"`
	InstallationID    int64       `json:"installation_id"`
	GitHubPRID        int64       `json:"github_pr_id"`
	Number            int         `json:"number"`
	Title             string      `json:"title"`
	Body              string      `json:"body"`
	AuthorLogin       string      `json:"author_login"`
	Additions         int         `json:"additions"`
	Deletions         int         `json:"deletions"`
	LLMSummary        *LLMSummary `json:"llm_summary,omitempty"`
	LLMSummaryVersion string      `json:"llm_summary_version,omitempty"`
	IsAIAssisted      bool        `json:"is_ai_assisted"`
	AIToolsDetected   []string    `json:"ai_tools_detected"`
	HasAICommits      bool        `json:"has_ai_commits"`
	HasAIReview       bool        `json:"has_ai_review"`
	HasAIFiles        bool        `json:"has_ai_files"`
	AIConfidenceScore float64     `json:"ai_confidence_score"`
	AISignals         *AISignals  `json:"ai_signals,omitempty"`

	Commits  []*PRCommit  `json:"commits,omitempty"`
	Reviews  []*PRReview  `json:"reviews,omitempty"`
	Comments []*PRComment `json:"comments,omitempty"`
	Files    []*PRFile    `json:"files,omitempty"`
}

type PRCommit struct {
	PullRequestID int64    `json:"pull_request_id"`
	SHA           string   `json:"sha"`
	Message       string   `json:"message"`
	AuthorLogin   string   `json:"author_login"`
	IsAIAssisted  bool     `json:"is_ai_assisted"`
	AICoAuthors   []string `json:"ai_co_authors"`
}

type PRReview struct {
	PullRequestID  int64  `json:"pull_request_id"`
	GitHubReviewID int64  `json:"github_review_id"`
	ReviewerLogin  string `json:"reviewer_login"`
	State          string `json:"state"`
	Body           string `json:"body"`
	IsAIReview     bool   `json:"is_ai_review"`
}

type PRComment struct {
	PullRequestID int64  `json:"pull_request_id"`
	AuthorLogin   string `json:"author_login"`
	Body          string `json:"body"`
}

type PRFile struct {
	PullRequestID int64  `json:"pull_request_id"`
	Filename      string `json:"filename"`
	Additions     int    `json:"additions"`
	Deletions     int    `json:"deletions"`
}

// LLMSummary is the structured language-model result stored per pull request.
// A skipped summary marks an item that can never be enriched.
type LLMSummary struct {
	Skipped bool          `json:"skipped,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	AI      *AIAssessment `json:"ai,omitempty"`
	Tech    *TechProfile  `json:"tech,omitempty"`
	Summary *WorkSummary  `json:"summary,omitempty"`
}

type AIAssessment struct {
	IsAssisted bool     `json:"is_assisted"`
	Tools      []string `json:"tools,omitempty"`
	UsageType  string   `json:"usage_type,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type TechProfile struct {
	Languages  []string `json:"languages,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type WorkSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// SkipReasonNoBody marks pull requests without body text
const SkipReasonNoBody = "no_body"

// AISignals is the per-signal breakdown persisted next to the confidence score
type AISignals struct {
	LLM     SignalScore `json:"llm"`
	Regex   SignalScore `json:"regex"`
	Commits SignalScore `json:"commits"`
	Reviews SignalScore `json:"reviews"`
	Files   SignalScore `json:"files"`
}

type SignalScore struct {
	Detected bool    `json:"detected"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
}

package llm

import (
	"fmt"
	"strings"

	"team-activity-pipeline/internal/database"
)

// PromptVersion is stored next to every summary so results from older
// prompts can be told apart
const PromptVersion = "pr-summary-v1"

const (
	maxBodyChars    = 4000
	maxSnippetChars = 300
	maxCommits      = 20
	maxReviews      = 10
	maxComments     = 10
	maxFiles        = 50
)

const systemPrompt = `You analyse GitHub pull requests for an engineering analytics dashboard.
Reply with a single JSON object and nothing else, using this shape:
{
  "ai": {"is_assisted": bool, "tools": [string], "usage_type": "authored"|"assisted"|"reviewed"|"none", "confidence": number between 0 and 1},
  "tech": {"languages": [string], "frameworks": [string], "categories": [string]},
  "summary": {"title": string, "description": string, "type": "feature"|"bugfix"|"refactor"|"docs"|"test"|"chore"|"ci"}
}
Only mark is_assisted when the pull request text, commits or reviews show concrete evidence of AI tooling.`

// BuildPrompt renders the user message for one pull request. Every section is
// bounded so a single large pull request cannot blow the token budget.
func BuildPrompt(pr *database.PullRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repository: %s\n", pr.RepoFullName)
	fmt.Fprintf(&b, "Pull request #%d by %s (+%d/-%d)\n", pr.Number, pr.AuthorLogin, pr.Additions, pr.Deletions)
	fmt.Fprintf(&b, "Title: %s\n\n", pr.Title)
	fmt.Fprintf(&b, "Description:\n%s\n", truncate(pr.Body, maxBodyChars))

	if len(pr.Commits) > 0 {
		b.WriteString("\nCommits:\n")
		for _, c := range head(pr.Commits, maxCommits) {
			fmt.Fprintf(&b, "- %s\n", truncate(oneLine(c.Message), maxSnippetChars))
		}
	}

	if len(pr.Reviews) > 0 {
		b.WriteString("\nReviews:\n")
		for _, r := range head(pr.Reviews, maxReviews) {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.ReviewerLogin, r.State, truncate(oneLine(r.Body), maxSnippetChars))
		}
	}

	if len(pr.Comments) > 0 {
		b.WriteString("\nComments:\n")
		for _, c := range head(pr.Comments, maxComments) {
			fmt.Fprintf(&b, "- %s: %s\n", c.AuthorLogin, truncate(oneLine(c.Body), maxSnippetChars))
		}
	}

	if len(pr.Files) > 0 {
		b.WriteString("\nChanged files:\n")
		for _, f := range head(pr.Files, maxFiles) {
			fmt.Fprintf(&b, "- %s\n", f.Filename)
		}
		if len(pr.Files) > maxFiles {
			fmt.Fprintf(&b, "- ... and %d more\n", len(pr.Files)-maxFiles)
		}
	}

	return b.String()
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

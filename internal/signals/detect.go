package signals

import (
	"regexp"
	"strings"

	"team-activity-pipeline/internal/database"

	"github.com/samber/lo"
)

// TextDetection is the outcome of scanning free text for AI disclosures
type TextDetection struct {
	Detected bool
	Tools    []string
}

// DetectText scans texts for explicit AI-assistance disclosures. A disclaimer
// such as "no AI was used" in any text cancels the detection.
func DetectText(texts ...string) TextDetection {
	negated := lo.SomeBy(texts, func(text string) bool {
		return lo.SomeBy(aiTextNegations, func(re *regexp.Regexp) bool { return re.MatchString(text) })
	})
	if negated {
		return TextDetection{}
	}

	var tools []string
	for _, text := range texts {
		for _, pat := range aiTextPatterns {
			if pat.re.MatchString(text) {
				tools = append(tools, pat.tool)
			}
		}
	}
	tools = lo.Uniq(tools)
	return TextDetection{Detected: len(tools) > 0, Tools: tools}
}

// CoAuthorTools returns the AI tools named in a commit message's
// Co-authored-by trailers
func CoAuthorTools(message string) []string {
	var tools []string
	for _, m := range coAuthorTrailer.FindAllStringSubmatch(message, -1) {
		name, email := m[1], m[2]
		for _, pat := range aiCoAuthors {
			if pat.re.MatchString(name) || pat.re.MatchString(email) {
				tools = append(tools, pat.tool)
				break
			}
		}
	}
	return lo.Uniq(tools)
}

// AnalyzeCommit flags a commit from its message: AI co-author trailers or
// an explicit disclosure in the message body
func AnalyzeCommit(c *database.PRCommit) {
	c.AICoAuthors = CoAuthorTools(c.Message)
	c.IsAIAssisted = len(c.AICoAuthors) > 0 || DetectText(c.Message).Detected
}

// ReviewerTool reports the AI reviewer behind a login, if it is one
func ReviewerTool(login string) (string, bool) {
	tool, ok := aiReviewers[strings.ToLower(login)]
	return tool, ok
}

// ConfigFileTool reports which AI tool reads the config file at path. Exclusions
// are checked first.
func ConfigFileTool(path string) (string, bool) {
	if lo.SomeBy(aiConfigExclusions, func(re *regexp.Regexp) bool { return re.MatchString(path) }) {
		return "", false
	}
	for _, pat := range aiConfigFiles {
		if pat.re.MatchString(path) {
			return pat.tool, true
		}
	}
	return "", false
}

// ComputeFlags derives the aggregate commit, review and file flags from the
// loaded related rows and merges the tools they name into AIToolsDetected.
func ComputeFlags(pr *database.PullRequest) {
	tools := append([]string{}, pr.AIToolsDetected...)

	pr.HasAICommits = lo.SomeBy(pr.Commits, func(c *database.PRCommit) bool {
		return c.IsAIAssisted || len(c.AICoAuthors) > 0
	})
	for _, c := range pr.Commits {
		tools = append(tools, c.AICoAuthors...)
	}

	pr.HasAIReview = false
	for _, r := range pr.Reviews {
		if tool, ok := ReviewerTool(r.ReviewerLogin); ok {
			r.IsAIReview = true
			pr.HasAIReview = true
			tools = append(tools, tool)
		}
	}

	pr.HasAIFiles = false
	for _, f := range pr.Files {
		if tool, ok := ConfigFileTool(f.Filename); ok {
			pr.HasAIFiles = true
			tools = append(tools, tool)
		}
	}

	pr.AIToolsDetected = lo.Uniq(tools)
}

// ApplyTextDetection sets the explicit pattern flag from the PR title and body
func ApplyTextDetection(pr *database.PullRequest) {
	d := DetectText(pr.Title, pr.Body)
	pr.IsAIAssisted = d.Detected
	pr.AIToolsDetected = lo.Uniq(append(pr.AIToolsDetected, d.Tools...))
}

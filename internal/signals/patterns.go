package signals

import "regexp"

// toolPattern maps a regular expression to the AI tool it indicates
type toolPattern struct {
	re   *regexp.Regexp
	tool string
}

func p(expr, tool string) toolPattern {
	return toolPattern{re: regexp.MustCompile(expr), tool: tool}
}

// aiConfigFiles are paths that AI coding tools read instructions from
var aiConfigFiles = []toolPattern{
	p(`(?i)(^|/)\.cursorrules$`, "cursor"),
	p(`(?i)(^|/)\.cursor/`, "cursor"),
	p(`(?i)(^|/)rules/[^/]+\.mdc$`, "cursor"),
	p(`(?i)(^|/)claude\.md$`, "claude"),
	p(`(?i)(^|/)\.claude/`, "claude"),
	p(`(?i)(^|/)\.github/copilot-instructions\.md$`, "copilot"),
	p(`(?i)(^|/)\.github/instructions/[^/]+\.instructions\.md$`, "copilot"),
	p(`(?i)(^|/)\.windsurfrules$`, "windsurf"),
	p(`(?i)(^|/)\.windsurf/`, "windsurf"),
	p(`(?i)(^|/)\.clinerules`, "cline"),
	p(`(?i)(^|/)\.roo(rules|/)`, "roo"),
	p(`(?i)(^|/)\.aider[^/]*$`, "aider"),
	p(`(?i)(^|/)agents\.md$`, "codex"),
	p(`(?i)(^|/)gemini\.md$`, "gemini"),
	p(`(?i)(^|/)\.continue/`, "continue"),
	p(`(?i)(^|/)\.kiro/steering/`, "kiro"),
	p(`(?i)(^|/)\.rules$`, "zed"),
}

// aiConfigExclusions are checked before aiConfigFiles. They cover paths that
// collide lexically with AI config files.
var aiConfigExclusions = []*regexp.Regexp{
	// cursor-based pagination and database cursors
	regexp.MustCompile(`(?i)(^|/)(db|database|sql|store|storage|pagination|paginator|paging|api|pkg|internal|lib|utils?)/\.?cursor/`),
	regexp.MustCompile(`(?i)cursor[-_]?(pagination|paginator|based)`),
	// source trees of AI products themselves
	regexp.MustCompile(`(?i)(^|/)(src|packages|extensions|apps)/(copilot|cursor|claude|anthropic|openai|codex)[-_a-z0-9]*/`),
}

// aiTextPatterns are explicit disclosures of AI assistance in PR or commit text
var aiTextPatterns = []toolPattern{
	p(`(?i)generated with \[?claude code`, "claude"),
	p(`(?i)co-authored-by:\s*claude`, "claude"),
	p(`(?i)\b(written|generated|created|assisted) (with|by|using) claude\b`, "claude"),
	p(`(?i)\b(written|generated|created|assisted) (with|by|using) (github )?copilot\b`, "copilot"),
	p(`(?i)\bcopilot (agent|workspace|coding agent)\b`, "copilot"),
	p(`(?i)\bcursor (ai|agent|composer|tab)\b`, "cursor"),
	p(`(?i)\b(written|generated|created|assisted) (with|by|using) cursor\b`, "cursor"),
	p(`(?i)\b(chatgpt|gpt-4o?|gpt-5|openai codex)\b`, "chatgpt"),
	p(`(?i)\bcodex (cli|agent)\b`, "codex"),
	p(`(?i)devin(\.ai|-ai)`, "devin"),
	p(`(?i)\baider\b`, "aider"),
	p(`(?i)\bwindsurf\b`, "windsurf"),
	p(`(?i)\bgemini (code assist|cli)\b`, "gemini"),
	p(`(?i)\bai[- ](generated|assisted|written)\b`, "unknown"),
	p(`🤖 Generated with`, "unknown"),
}

// aiTextNegations cancel text detection when the author disclaims AI use
var aiTextNegations = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bno (ai|llm|copilot|chatgpt)( tools?)?( was| were)? used\b`),
	regexp.MustCompile(`(?i)\bwithout (any )?(ai|llm)( assistance| tools?)?\b`),
	regexp.MustCompile(`(?i)\bnot (ai|llm)[- ](generated|assisted|written)\b`),
}

// coAuthorTrailer matches "Co-authored-by: Name <email>" lines
var coAuthorTrailer = regexp.MustCompile(`(?im)^\s*co-authored-by:\s*(.+?)\s*<([^>]*)>\s*$`)

// aiCoAuthors identify AI agents by trailer name or email
var aiCoAuthors = []toolPattern{
	p(`(?i)^claude\b|noreply@anthropic\.com`, "claude"),
	p(`(?i)^copilot\b|\+copilot@users\.noreply\.github\.com|copilot@github\.com`, "copilot"),
	p(`(?i)^cursor( agent)?\b|cursoragent@cursor\.com`, "cursor"),
	p(`(?i)aider@aider\.chat|^aider\b`, "aider"),
	p(`(?i)devin-ai-integration|^devin ai\b`, "devin"),
	p(`(?i)chatgpt-codex-connector|^codex\b`, "codex"),
	p(`(?i)gemini-code-assist|^gemini\b`, "gemini"),
	p(`(?i)^windsurf\b|codeium\.com`, "windsurf"),
}

// aiReviewers are bot accounts of automated AI code reviewers
var aiReviewers = map[string]string{
	"coderabbitai[bot]":                  "coderabbit",
	"copilot-pull-request-reviewer[bot]": "copilot",
	"github-copilot[bot]":                "copilot",
	"copilot":                            "copilot",
	"gemini-code-assist[bot]":            "gemini",
	"sourcery-ai[bot]":                   "sourcery",
	"codeant-ai[bot]":                    "codeant",
	"greptile-apps[bot]":                 "greptile",
	"ellipsis-dev[bot]":                  "ellipsis",
	"qodo-merge-pro[bot]":                "qodo",
	"korbit-ai[bot]":                     "korbit",
	"cursor[bot]":                        "cursor",
	"claude[bot]":                        "claude",
	"chatgpt-codex-connector[bot]":       "codex",
	"devin-ai-integration[bot]":          "devin",
}

package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// CommitRequest carries everything the drafter needs to write a commit
// message.
type CommitRequest struct {
	Diff           string   // staged diff, already truncated by the caller
	Files          []string // staged file paths
	RecentSubjects []string // recent commit subjects, for style matching
	CharterTitle   string   // project title, if a charter exists
}

// FailureSummaryRequest carries batch failure context for summarization.
type FailureSummaryRequest struct {
	BatchID  string
	Failures []ItemFailure
}

// ItemFailure is one failed batch item.
type ItemFailure struct {
	Item     string
	Attempts int
	Error    string
}

var (
	commitTemplate  = template.Must(template.New("commit").Parse(commitPromptTemplate))
	failureTemplate = template.Must(template.New("failure").Parse(failurePromptTemplate))
)

// DraftCommitMessage asks the model for a commit message describing the
// staged changes. The result is trimmed to subject-plus-body form.
func (c *Client) DraftCommitMessage(ctx context.Context, req CommitRequest) (string, error) {
	prompt, err := renderTemplate(commitTemplate, req)
	if err != nil {
		return "", fmt.Errorf("rendering commit prompt: %w", err)
	}
	out, err := c.complete(ctx, "commit-message", prompt)
	if err != nil {
		return "", err
	}
	return cleanDraft(out), nil
}

// SummarizeFailures asks the model for a short human-readable summary
// of a batch run's failures.
func (c *Client) SummarizeFailures(ctx context.Context, req FailureSummaryRequest) (string, error) {
	prompt, err := renderTemplate(failureTemplate, req)
	if err != nil {
		return "", fmt.Errorf("rendering failure prompt: %w", err)
	}
	out, err := c.complete(ctx, "failure-summary", prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// cleanDraft strips code fences and surrounding whitespace that models
// sometimes wrap answers in.
func cleanDraft(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
		}
		for len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
			lines = lines[:len(lines)-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return s
}

// FallbackCommitMessage builds a commit subject without calling the
// API: the file list is usually enough for a serviceable subject line.
func FallbackCommitMessage(files []string) string {
	switch len(files) {
	case 0:
		return "Update workspace"
	case 1:
		return fmt.Sprintf("Update %s", files[0])
	case 2:
		return fmt.Sprintf("Update %s and %s", files[0], files[1])
	default:
		return fmt.Sprintf("Update %s and %d other files", files[0], len(files)-1)
	}
}

const commitPromptTemplate = `Write a git commit message for the staged changes below.

Rules:
- First line: imperative subject, at most 72 characters, no trailing period.
- Optional body after a blank line explaining what changed and why.
- Output only the commit message, nothing else.
{{if .CharterTitle}}
Project: {{.CharterTitle}}
{{end}}
{{if .RecentSubjects}}Recent commit subjects in this repository, match their style:
{{range .RecentSubjects}}- {{.}}
{{end}}
{{end}}Staged files:
{{range .Files}}- {{.}}
{{end}}
Diff:
{{.Diff}}`

const failurePromptTemplate = `Summarize the failures from an automated batch run for a human operator.

Rules:
- At most five sentences.
- Group similar failures together.
- End with the single most likely root cause if one stands out.

Batch: {{.BatchID}}

Failures:
{{range .Failures}}- {{.Item}} (attempts: {{.Attempts}}): {{.Error}}
{{end}}`

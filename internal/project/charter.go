// Package project parses the workspace PROJECT.md charter and scores
// proposed work against it. The charter's Goals, Scope, Constraints,
// and Non-goals sections are how a human keeps an autonomous agent
// pointed at the right problem.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// CharterFileName is the charter file looked up at the workspace root.
const CharterFileName = "PROJECT.md"

// Regex patterns for charter parsing.
var (
	sectionPattern = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	bulletPattern  = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)
)

// Charter is the parsed PROJECT.md.
type Charter struct {
	Title       string         `json:"title,omitempty"`
	Goals       []string       `json:"goals,omitempty"`
	Scope       []string       `json:"scope,omitempty"`
	Constraints []string       `json:"constraints,omitempty"`
	NonGoals    []string       `json:"non_goals,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// Empty reports whether the charter has no usable sections.
func (c *Charter) Empty() bool {
	return len(c.Goals) == 0 && len(c.Scope) == 0 && len(c.Constraints) == 0 && len(c.NonGoals) == 0
}

// Load reads and parses the charter from the workspace root.
// A missing PROJECT.md returns (nil, nil): no charter is not an error.
func Load(workDir string) (*Charter, error) {
	path := filepath.Join(workDir, CharterFileName)
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the workspace root
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", CharterFileName, err)
	}
	return Parse(string(data))
}

// Parse parses charter markdown. Section headers are matched
// case-insensitively; list items under each known section become its
// entries. Unknown sections are ignored.
func Parse(content string) (*Charter, error) {
	charter := &Charter{}

	body := content
	if strings.HasPrefix(body, "---\n") || strings.HasPrefix(body, "---\r\n") {
		fm, rest, err := extractFrontmatter(body)
		if err == nil {
			charter.Frontmatter = fm
			body = rest
		}
	}

	charter.Title = extractTitle(body)
	if title, ok := charter.Frontmatter["title"].(string); ok && title != "" {
		charter.Title = title
	}

	matches := sectionPattern.FindAllStringSubmatchIndex(body, -1)
	for i, match := range matches {
		name := strings.TrimSpace(body[match[2]:match[3]])

		sectionStart := match[1]
		sectionEnd := len(body)
		if i < len(matches)-1 {
			sectionEnd = matches[i+1][0]
		}
		items := extractBullets(body[sectionStart:sectionEnd])

		switch normalizeSection(name) {
		case "goals":
			charter.Goals = append(charter.Goals, items...)
		case "scope":
			charter.Scope = append(charter.Scope, items...)
		case "constraints":
			charter.Constraints = append(charter.Constraints, items...)
		case "nongoals":
			charter.NonGoals = append(charter.NonGoals, items...)
		}
	}

	return charter, nil
}

// normalizeSection folds header variants ("Non-Goals", "Non goals",
// "NON-GOALS") into canonical keys.
func normalizeSection(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "-", "")
	lower = strings.ReplaceAll(lower, " ", "")
	return lower
}

// extractTitle extracts the first H1 heading from the body.
func extractTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// extractBullets returns the trimmed text of each list item in a block.
func extractBullets(block string) []string {
	var items []string
	for _, m := range bulletPattern.FindAllStringSubmatch(block, -1) {
		item := strings.TrimSpace(m[1])
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// extractFrontmatter splits YAML frontmatter from the markdown body.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	start := len(delimiter)
	if len(content) > start && content[start] == '\r' {
		start++
	}
	if len(content) > start && content[start] == '\n' {
		start++
	}

	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		closeIdx = strings.Index(content[start:], "\r\n"+delimiter)
	}
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && (content[bodyStart] == '\n' || content[bodyStart] == '\r') {
		bodyStart++
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &fm); err != nil {
		return nil, content, fmt.Errorf("parsing frontmatter: %w", err)
	}
	return fm, content[bodyStart:], nil
}

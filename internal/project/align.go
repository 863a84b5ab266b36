package project

import (
	"regexp"
	"sort"
	"strings"
)

// Verdict classifies how a piece of work relates to the charter.
type Verdict string

const (
	VerdictAligned    Verdict = "aligned"
	VerdictReview     Verdict = "review"     // no goal overlap, needs a human look
	VerdictMisaligned Verdict = "misaligned" // overlaps a stated non-goal
)

// Result is a single alignment judgment.
type Result struct {
	Text             string   `json:"text"`
	Verdict          Verdict  `json:"verdict"`
	Score            float64  `json:"score"` // 0..1, share of goal keywords matched
	MatchedGoals     []string `json:"matched_goals,omitempty"`
	ViolatedNonGoals []string `json:"violated_non_goals,omitempty"`
}

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_-]{2,}`)

// stopwords are ignored when extracting keywords from charter entries.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "are": true, "not": true,
	"all": true, "any": true, "its": true, "our": true, "their": true,
	"should": true, "must": true, "will": true, "can": true, "may": true,
	"add": true, "use": true, "using": true, "via": true, "when": true,
	"support": true, "new": true, "make": true, "keep": true, "avoid": true,
	"never": true, "always": true, "only": true, "more": true, "less": true,
}

// keywords extracts the meaningful lowercase terms from a charter entry.
func keywords(entry string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(entry), -1) {
		if stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Check scores a piece of text (a prompt, a commit subject, a task
// description) against the charter.
//
// A non-goal keyword hit wins over any goal overlap: working on a
// stated non-goal is misalignment even when goal words also appear.
func (c *Charter) Check(text string) Result {
	res := Result{Text: text, Verdict: VerdictReview}
	if c == nil || c.Empty() {
		// Nothing to align with: treat as aligned rather than nagging.
		res.Verdict = VerdictAligned
		res.Score = 1
		return res
	}

	lower := strings.ToLower(text)
	textWords := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		textWords[w] = true
	}

	for _, ng := range c.NonGoals {
		if entryMatches(ng, textWords) {
			res.ViolatedNonGoals = append(res.ViolatedNonGoals, ng)
		}
	}

	goalTerms := 0
	matchedTerms := 0
	matchedGoals := make(map[string]bool)
	for _, goal := range append(append([]string{}, c.Goals...), c.Scope...) {
		kws := keywords(goal)
		goalTerms += len(kws)
		hit := false
		for _, kw := range kws {
			if textWords[kw] {
				matchedTerms++
				hit = true
			}
		}
		if hit {
			matchedGoals[goal] = true
		}
	}

	if goalTerms > 0 {
		res.Score = float64(matchedTerms) / float64(goalTerms)
	}
	for goal := range matchedGoals {
		res.MatchedGoals = append(res.MatchedGoals, goal)
	}
	sort.Strings(res.MatchedGoals)

	switch {
	case len(res.ViolatedNonGoals) > 0:
		res.Verdict = VerdictMisaligned
	case len(res.MatchedGoals) > 0:
		res.Verdict = VerdictAligned
	default:
		res.Verdict = VerdictReview
	}
	return res
}

// entryMatches reports whether enough of an entry's keywords appear in
// the text to call it a hit. Single-keyword entries need that keyword;
// longer entries need at least two matches, which keeps common words
// from triggering a whole non-goal.
func entryMatches(entry string, textWords map[string]bool) bool {
	kws := keywords(entry)
	if len(kws) == 0 {
		return false
	}
	hits := 0
	for _, kw := range kws {
		if textWords[kw] {
			hits++
		}
	}
	if len(kws) == 1 {
		return hits == 1
	}
	return hits >= 2
}

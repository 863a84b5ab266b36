package safety

import (
	"regexp"
	"strings"
)

// Verdict classifies a command proposed by an agent.
type Verdict struct {
	Blocked     bool   `json:"blocked"`
	Rule        string `json:"rule,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Alternative string `json:"alternative,omitempty"`
}

// gitRule pattern-matches a destructive git invocation.
type gitRule struct {
	id          string
	pattern     *regexp.Regexp
	reason      string
	alternative string
}

// destructiveGitRules block operations that destroy uncommitted work or
// rewrite shared history. Ordering matters: the first match wins, and the
// force-with-lease allowance is carved out before the generic force-push
// rule fires.
var destructiveGitRules = []gitRule{
	{
		id:          "force-push",
		pattern:     regexp.MustCompile(`\bgit\s+push\b.*(\s--force\b|\s-f\b)`),
		reason:      "force push rewrites remote history",
		alternative: "git push --force-with-lease",
	},
	{
		id:          "hard-reset",
		pattern:     regexp.MustCompile(`\bgit\s+reset\s+(.*\s)?--hard\b`),
		reason:      "hard reset discards uncommitted changes",
		alternative: "git reset --soft, or git stash first",
	},
	{
		id:          "force-clean",
		pattern:     regexp.MustCompile(`\bgit\s+clean\b.*\s-[a-zA-Z]*f`),
		reason:      "force clean deletes untracked files",
		alternative: "git clean -n to preview, git stash -u to preserve",
	},
	{
		id:          "checkout-dot",
		pattern:     regexp.MustCompile(`\bgit\s+checkout\s+(--\s+)?\.($|\s)`),
		reason:      "checkout . overwrites all working tree changes",
		alternative: "git checkout -- <specific-file>, or git stash",
	},
	{
		id:          "restore-dot",
		pattern:     regexp.MustCompile(`\bgit\s+restore\s+(.*\s)?\.($|\s)`),
		reason:      "restore . overwrites all working tree changes",
		alternative: "git restore <specific-file>, or git stash",
	},
	{
		id:          "force-branch-delete",
		pattern:     regexp.MustCompile(`\bgit\s+branch\s+(.*\s)?-D\b`),
		reason:      "force branch delete discards unmerged commits",
		alternative: "git branch -d (refuses to drop unmerged work)",
	},
	{
		id:          "filter-branch",
		pattern:     regexp.MustCompile(`\bgit\s+filter-branch\b`),
		reason:      "filter-branch rewrites history across the whole repo",
		alternative: "leave history rewrites to a human",
	},
	{
		id:      "stash-clear",
		pattern: regexp.MustCompile(`\bgit\s+stash\s+(clear|drop)\b`),
		reason:  "dropping stashes destroys saved work",
	},
}

// forceWithLeasePattern matches the sanctioned force-push variant.
var forceWithLeasePattern = regexp.MustCompile(`\bgit\s+push\b.*\s--force-with-lease\b`)

// plainForcePattern matches a bare --force or -f flag. A command can
// carry both --force-with-lease and --force, in which case git honors
// the plain force and the lease is meaningless.
var plainForcePattern = regexp.MustCompile(`\s(--force|-f)($|\s)`)

// protectedBranchPattern matches pushes that target commonly protected
// branches. Used to narrow the force-with-lease allowance.
var protectedBranchPattern = regexp.MustCompile(`\bgit\s+push\b.*\s(origin|upstream)\s+(main|master|release[^\s]*)($|\s)`)

// ClassifyGitCommand checks a shell command string against the
// destructive-git rules. Commands that don't invoke git are always
// allowed; this classifier is not a general shell sandbox.
func ClassifyGitCommand(command string) Verdict {
	cmd := strings.TrimSpace(command)
	if cmd == "" || !strings.Contains(cmd, "git") {
		return Verdict{}
	}

	// --force-with-lease is the safe escape hatch, but not on protected
	// branches where even a leased force push rewrites shared history,
	// and not alongside a plain --force, which overrides the lease.
	if forceWithLeasePattern.MatchString(cmd) && !plainForcePattern.MatchString(cmd) {
		if protectedBranchPattern.MatchString(cmd) {
			return Verdict{
				Blocked: true,
				Rule:    "force-push-protected",
				Reason:  "force-with-lease to a protected branch still rewrites shared history",
			}
		}
		return Verdict{}
	}

	for _, rule := range destructiveGitRules {
		if rule.pattern.MatchString(cmd) {
			return Verdict{
				Blocked:     true,
				Rule:        rule.id,
				Reason:      rule.reason,
				Alternative: rule.alternative,
			}
		}
	}
	return Verdict{}
}

package git

import (
	"fmt"
	"regexp"
	"strings"
)

// branchNamePattern validates git branch names. Based on the
// git-check-ref-format rules.
var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*[a-zA-Z0-9]$`)

// ValidateBranchName checks a branch name against a subset of git's ref
// format rules. An empty name is rejected; callers that mean "current
// branch" should resolve it first.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("branch name too long (max 255 characters)")
	}
	if len(name) == 1 {
		if !isAlnum(name[0]) {
			return fmt.Errorf("invalid branch name %q", name)
		}
		return nil
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("invalid branch name %q: must start and end with alphanumeric, may contain .-_/ in the middle", name)
	}
	if name == "HEAD" {
		return fmt.Errorf("invalid branch name: HEAD is reserved")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid branch name: cannot contain '..'")
	}
	return nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// IsProtected reports whether branch matches the protected list. Entries
// ending in "*" are treated as prefixes (release/* style).
func IsProtected(branch string, protected []string) bool {
	for _, p := range protected {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(branch, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if branch == p {
			return true
		}
	}
	return false
}

package safety

import (
	"fmt"
	"regexp"
)

// Identifier rules: IDs flow into file paths (gate markers, batch item
// state) and shell arguments, so they are restricted to a conservative
// character set. No path separators, no dots, no shell metacharacters.
var (
	idPattern      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	sessionPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
)

const maxIDLength = 128

// ValidateItemID checks a batch item or gate ID.
func ValidateItemID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("id too long (max %d characters)", maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid id %q: must start alphanumeric and contain only alphanumerics, hyphens, underscores", id)
	}
	return nil
}

// ValidateSessionID checks a host session ID. Hosts use UUIDs and
// dotted timestamps, so dots are allowed here but path separators and
// ".." sequences are not.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("session id too long (max %d characters)", maxIDLength)
	}
	if !sessionPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	if containsDotDot(id) {
		return fmt.Errorf("invalid session id %q: cannot contain '..'", id)
	}
	return nil
}

func containsDotDot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}

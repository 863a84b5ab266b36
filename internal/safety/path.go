// Package safety provides input validation and guard rails for
// agent-driven operations: path confinement to the workspace, identifier
// validation, and classification of destructive git commands.
//
// Agents feed file paths, item IDs, and shell commands into the rest of
// the toolchain. Everything that crosses that boundary is validated here
// so the callers don't each reinvent the checks.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CanonicalizePath converts a path to its canonical form: absolute with
// symlinks resolved. If symlink resolution fails (path may not exist yet)
// the absolute path is returned; if even that fails, the input is returned
// unchanged.
func CanonicalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return absPath
	}
	return canonical
}

// normalizeForComparison resolves a path for equality checks. On
// case-insensitive filesystems (darwin, windows) the result is lowercased
// so /Users/foo/Desktop and /Users/foo/desktop compare equal.
func normalizeForComparison(path string) string {
	if path == "" {
		return ""
	}
	canonical := CanonicalizePath(path)
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		canonical = strings.ToLower(canonical)
	}
	return canonical
}

// PathsEqual compares two paths for equality, handling symlinks and
// case-insensitive filesystems.
func PathsEqual(a, b string) bool {
	return normalizeForComparison(a) == normalizeForComparison(b)
}

// ConfinePath validates that path stays inside root after canonicalization
// and returns the canonical absolute path. Tilde prefixes are rejected
// outright: they are shell syntax, and a literal "~" directory inside the
// workspace is almost always an agent mistake.
//
// For paths that don't exist yet, the deepest existing ancestor is
// resolved so a symlinked parent can't smuggle the target outside root.
func ConfinePath(root, path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("path %q: tilde paths are not allowed", path)
	}

	rootCanonical := CanonicalizePath(root)

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(rootCanonical, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExistingPrefix(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}

	if !isWithin(rootCanonical, resolved) {
		return "", fmt.Errorf("path %q escapes workspace root %s", path, root)
	}
	return resolved, nil
}

// resolveExistingPrefix resolves symlinks on the longest existing prefix of
// path and rejoins the non-existent suffix.
func resolveExistingPrefix(path string) (string, error) {
	var suffix []string
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		suffix = append([]string{filepath.Base(current)}, suffix...)
		current = parent
	}

	resolved, err := filepath.EvalSymlinks(current)
	if err != nil {
		resolved = current
	}
	return filepath.Join(append([]string{resolved}, suffix...)...), nil
}

// isWithin reports whether path is root or a descendant of root. Both
// arguments must already be canonical.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ResolveForWrite returns the path to write to, resolving a symlink to its
// target. A nonexistent path is returned unchanged (new file).
func ResolveForWrite(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return filepath.EvalSymlinks(path)
	}
	return path, nil
}

// Package git wraps subprocess git for the automation layer: repository
// discovery, status queries, staged commits, and guarded pushes. All
// operations take a context so hook invocations can impose deadlines.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Repo is a handle on a git repository rooted at Dir.
type Repo struct {
	dir string
}

// Open verifies dir is inside a git repository and returns a handle on its
// top level.
func Open(ctx context.Context, dir string) (*Repo, error) {
	r := &Repo{dir: dir}
	top, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	r.dir = top
	return r, nil
}

// Dir returns the repository's top-level directory.
func (r *Repo) Dir() string {
	return r.dir
}

// run executes git with the given args in the repo directory and returns
// trimmed stdout. Stderr is folded into the error.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// GitDir returns the actual .git directory path. In a worktree, .git is a
// file pointing at the real directory, so rev-parse is the only reliable
// way to find it.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	return out, nil
}

// IsWorktree reports whether the repo handle points into a linked
// worktree, determined by comparing --git-dir and --git-common-dir.
func (r *Repo) IsWorktree(ctx context.Context) bool {
	gitDir, err := r.run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return false
	}
	commonDir, err := r.run(ctx, "rev-parse", "--git-common-dir")
	if err != nil {
		return false
	}
	if !strings.HasPrefix(commonDir, "/") {
		// --git-common-dir may come back relative to the worktree.
		commonDir = r.dir + "/" + commonDir
	}
	return gitDir != commonDir
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when
// detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// IsClean reports whether the working tree has no staged or unstaged
// changes (untracked files count as dirty).
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// HasStaged reports whether anything is staged for commit.
func (r *Repo) HasStaged(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--quiet")
	cmd.Dir = r.dir
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached: %w", err)
}

// Status summarizes working tree state for doctor output and gates.
type Status struct {
	Branch    string `json:"branch"`
	Clean     bool   `json:"clean"`
	Staged    int    `json:"staged"`
	Unstaged  int    `json:"unstaged"`
	Untracked int    `json:"untracked"`
	Ahead     int    `json:"ahead"`
	Behind    int    `json:"behind"`
}

// Status returns a parsed porcelain-v2 status summary.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	out, err := r.run(ctx, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return nil, err
	}

	st := &Status{}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "# branch.head "):
			st.Branch = strings.TrimPrefix(line, "# branch.head ")
		case strings.HasPrefix(line, "# branch.ab "):
			// "# branch.ab +N -M"
			fields := strings.Fields(strings.TrimPrefix(line, "# branch.ab "))
			if len(fields) == 2 {
				st.Ahead, _ = strconv.Atoi(strings.TrimPrefix(fields[0], "+"))
				st.Behind, _ = strconv.Atoi(strings.TrimPrefix(fields[1], "-"))
			}
		case strings.HasPrefix(line, "1 ") || strings.HasPrefix(line, "2 "):
			// Ordinary or renamed entry: XY field is the second token.
			fields := strings.Fields(line)
			if len(fields) > 1 && len(fields[1]) == 2 {
				if fields[1][0] != '.' {
					st.Staged++
				}
				if fields[1][1] != '.' {
					st.Unstaged++
				}
			}
		case strings.HasPrefix(line, "? "):
			st.Untracked++
		}
	}
	st.Clean = st.Staged == 0 && st.Unstaged == 0 && st.Untracked == 0
	return st, nil
}

// StageAll stages every change in the working tree.
func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "-A")
	return err
}

// Stage stages the given paths.
func (r *Repo) Stage(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	_, err := r.run(ctx, args...)
	return err
}

// StagedDiff returns the staged diff, truncated to maxBytes (0 means no
// limit). Used to feed commit-message drafting without blowing the prompt
// budget.
func (r *Repo) StagedDiff(ctx context.Context, maxBytes int) (string, error) {
	out, err := r.run(ctx, "diff", "--cached")
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && len(out) > maxBytes {
		out = out[:maxBytes] + "\n... (diff truncated)"
	}
	return out, nil
}

// StagedFiles lists the staged file paths.
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Commit records the staged changes. The message is passed via -m;
// multi-paragraph messages are fine, git treats embedded blank lines as
// paragraph breaks.
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message cannot be empty")
	}
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return r.run(ctx, "rev-parse", "HEAD")
}

// Push pushes branch to remote. Force pushing is not offered: the
// automation layer never rewrites remote history.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return err
	}
	_, err := r.run(ctx, "push", remote, branch)
	return err
}

// PushSetUpstream pushes branch and sets its upstream tracking ref.
func (r *Repo) PushSetUpstream(ctx context.Context, remote, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return err
	}
	_, err := r.run(ctx, "push", "-u", remote, branch)
	return err
}

// CreateBranch creates and checks out a new branch.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	_, err := r.run(ctx, "checkout", "-b", name)
	return err
}

// RecentSubjects returns the last n commit subject lines, newest first.
func (r *Repo) RecentSubjects(ctx context.Context, n int) ([]string, error) {
	out, err := r.run(ctx, "log", fmt.Sprintf("-%d", n), "--pretty=format:%s")
	if err != nil {
		// An unborn branch has no log; treat as empty history.
		if strings.Contains(err.Error(), "does not have any commits") {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// UserName returns git config user.name, falling back to $USER.
func UserName(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "git", "config", "user.name")
	if out, err := cmd.Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	return os.Getenv("USER")
}

// UserEmail returns git config user.email, or "".
func UserEmail(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "git", "config", "user.email")
	if out, err := cmd.Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	return ""
}

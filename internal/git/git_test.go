package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setupTestRepo creates a git repo with one commit in a temp dir.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@example.com")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")

	return dir
}

func TestOpenAndStatus(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "main" {
		t.Errorf("branch = %q, want main", branch)
	}

	clean, err := repo.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean failed: %v", err)
	}
	if !clean {
		t.Error("fresh repo should be clean")
	}

	st, err := repo.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Clean || st.Branch != "main" {
		t.Errorf("Status = %+v, want clean on main", st)
	}
}

func TestOpenNotARepo(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(context.Background(), dir); err == nil {
		t.Error("Open should fail outside a git repository")
	}
}

func TestStageAndCommit(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "feature.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	staged, err := repo.HasStaged(ctx)
	if err != nil {
		t.Fatalf("HasStaged failed: %v", err)
	}
	if staged {
		t.Error("nothing staged yet")
	}

	if err := repo.Stage(ctx, "feature.go"); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	staged, err = repo.HasStaged(ctx)
	if err != nil {
		t.Fatalf("HasStaged failed: %v", err)
	}
	if !staged {
		t.Error("feature.go should be staged")
	}

	files, err := repo.StagedFiles(ctx)
	if err != nil {
		t.Fatalf("StagedFiles failed: %v", err)
	}
	if len(files) != 1 || files[0] != "feature.go" {
		t.Errorf("StagedFiles = %v", files)
	}

	diff, err := repo.StagedDiff(ctx, 0)
	if err != nil {
		t.Fatalf("StagedDiff failed: %v", err)
	}
	if diff == "" {
		t.Error("staged diff should not be empty")
	}

	sha, err := repo.Commit(ctx, "add feature stub")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("commit sha = %q", sha)
	}

	subjects, err := repo.RecentSubjects(ctx, 5)
	if err != nil {
		t.Fatalf("RecentSubjects failed: %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "add feature stub" {
		t.Errorf("RecentSubjects = %v", subjects)
	}
}

func TestCommitEmptyMessage(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := repo.Commit(ctx, "   "); err == nil {
		t.Error("Commit should reject a blank message")
	}
}

func TestCreateBranch(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := repo.CreateBranch(ctx, "feature/retry-state"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "feature/retry-state" {
		t.Errorf("branch = %q", branch)
	}

	if err := repo.CreateBranch(ctx, "bad..name"); err == nil {
		t.Error("CreateBranch should reject invalid names")
	}
}

func TestStagedDiffTruncation(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	big := make([]byte, 8192)
	for i := range big {
		big[i] = 'a'
	}
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), big, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := repo.StageAll(ctx); err != nil {
		t.Fatalf("StageAll failed: %v", err)
	}

	diff, err := repo.StagedDiff(ctx, 100)
	if err != nil {
		t.Fatalf("StagedDiff failed: %v", err)
	}
	if len(diff) > 200 {
		t.Errorf("diff not truncated: %d bytes", len(diff))
	}
}

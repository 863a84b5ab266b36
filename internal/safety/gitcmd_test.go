package safety

import "testing"

func TestClassifyGitCommand(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		wantBlock bool
		wantRule  string
	}{
		{"plain push", "git push origin feature", false, ""},
		{"force push long", "git push --force origin main", true, "force-push"},
		{"force push short", "git push -f", true, "force-push"},
		{"force with lease feature", "git push --force-with-lease origin feature/retry", false, ""},
		{"force with lease main", "git push --force-with-lease origin main", true, "force-push-protected"},
		{"lease plus plain force", "git push --force-with-lease --force origin feature/x", true, "force-push"},
		{"lease plus short force", "git push --force-with-lease -f origin feature/x", true, "force-push"},
		{"hard reset", "git reset --hard HEAD~3", true, "hard-reset"},
		{"soft reset", "git reset --soft HEAD~1", false, ""},
		{"force clean", "git clean -fd", true, "force-clean"},
		{"clean preview", "git clean -n", false, ""},
		{"checkout dot", "git checkout .", true, "checkout-dot"},
		{"checkout dashes dot", "git checkout -- .", true, "checkout-dot"},
		{"checkout file", "git checkout -- main.go", false, ""},
		{"checkout branch", "git checkout feature/x", false, ""},
		{"restore dot", "git restore .", true, "restore-dot"},
		{"restore file", "git restore cmd/main.go", false, ""},
		{"force branch delete", "git branch -D feature/old", true, "force-branch-delete"},
		{"safe branch delete", "git branch -d feature/old", false, ""},
		{"filter branch", "git filter-branch --tree-filter 'rm -f secrets' HEAD", true, "filter-branch"},
		{"stash clear", "git stash clear", true, "stash-clear"},
		{"stash push", "git stash push -m wip", false, ""},
		{"not git at all", "ls -la", false, ""},
		{"empty", "", false, ""},
		{"git inside pipeline", "make test && git push -f origin main", true, "force-push"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ClassifyGitCommand(tt.command)
			if v.Blocked != tt.wantBlock {
				t.Fatalf("ClassifyGitCommand(%q).Blocked = %v, want %v (rule %q)", tt.command, v.Blocked, tt.wantBlock, v.Rule)
			}
			if tt.wantBlock && v.Rule != tt.wantRule {
				t.Errorf("ClassifyGitCommand(%q).Rule = %q, want %q", tt.command, v.Rule, tt.wantRule)
			}
			if tt.wantBlock && v.Reason == "" {
				t.Errorf("blocked verdict for %q should carry a reason", tt.command)
			}
		})
	}
}

func TestValidateItemID(t *testing.T) {
	valid := []string{"task-001", "a", "retry_batch-2", "X9"}
	for _, id := range valid {
		if err := ValidateItemID(id); err != nil {
			t.Errorf("ValidateItemID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "-leading", "has space", "dot.dot", "a/b", "../escape", "semi;colon"}
	for _, id := range invalid {
		if err := ValidateItemID(id); err == nil {
			t.Errorf("ValidateItemID(%q) = nil, want error", id)
		}
	}
}

func TestValidateSessionID(t *testing.T) {
	valid := []string{"550e8400-e29b-41d4-a716-446655440000", "sess.2024-06-01", "abc123"}
	for _, id := range valid {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "a/../b", "a/b", "..", "has space"}
	for _, id := range invalid {
		if err := ValidateSessionID(id); err == nil {
			t.Errorf("ValidateSessionID(%q) = nil, want error", id)
		}
	}
}

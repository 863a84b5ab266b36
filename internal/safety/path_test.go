package safety

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestConfinePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative inside", "tasks/item.json", false},
		{"dot", ".", false},
		{"nested new file", "a/b/c/d.txt", false},
		{"dotdot escape", "../outside.txt", true},
		{"embedded dotdot escape", "tasks/../../outside.txt", true},
		{"tilde", "~/secrets", true},
		{"absolute outside", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfinePath(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfinePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err == nil && !strings.HasPrefix(got, CanonicalizePath(root)) {
				t.Errorf("ConfinePath(%q) = %q, not under root", tt.path, got)
			}
		})
	}
}

func TestConfinePathAbsoluteInside(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "notes.md")

	got, err := ConfinePath(root, inside)
	if err != nil {
		t.Fatalf("ConfinePath(%q) failed: %v", inside, err)
	}
	if filepath.Base(got) != "notes.md" {
		t.Errorf("ConfinePath = %q, want notes.md under root", got)
	}
}

func TestConfinePathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}

	root := t.TempDir()
	outside := t.TempDir()

	// A symlink inside the workspace pointing outside must not pass.
	link := filepath.Join(root, "sneaky")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := ConfinePath(root, "sneaky/data.txt"); err == nil {
		t.Error("ConfinePath should reject paths routed through an escaping symlink")
	}
}

func TestPathsEqual(t *testing.T) {
	dir := t.TempDir()

	if !PathsEqual(dir, dir) {
		t.Error("identical paths should compare equal")
	}
	if !PathsEqual(dir, filepath.Join(dir, ".")) {
		t.Error("path and path/. should compare equal")
	}
	if PathsEqual(dir, filepath.Join(dir, "sub")) {
		t.Error("different paths should not compare equal")
	}
}

func TestResolveForWrite(t *testing.T) {
	dir := t.TempDir()

	// Nonexistent path comes back unchanged.
	fresh := filepath.Join(dir, "new.json")
	got, err := ResolveForWrite(fresh)
	if err != nil {
		t.Fatalf("ResolveForWrite failed: %v", err)
	}
	if got != fresh {
		t.Errorf("ResolveForWrite(%q) = %q, want unchanged", fresh, got)
	}

	if runtime.GOOS != "windows" {
		target := filepath.Join(dir, "target.json")
		if err := os.WriteFile(target, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write target: %v", err)
		}
		link := filepath.Join(dir, "link.json")
		if err := os.Symlink(target, link); err != nil {
			t.Fatalf("symlink: %v", err)
		}

		got, err = ResolveForWrite(link)
		if err != nil {
			t.Fatalf("ResolveForWrite(symlink) failed: %v", err)
		}
		if !PathsEqual(got, target) {
			t.Errorf("ResolveForWrite(symlink) = %q, want %q", got, target)
		}
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/akaszubski/autonomous-dev/internal/config"
	"github.com/akaszubski/autonomous-dev/internal/git"
	"github.com/akaszubski/autonomous-dev/internal/github"
	"github.com/akaszubski/autonomous-dev/internal/hooks"
	"github.com/akaszubski/autonomous-dev/internal/llm"
	"github.com/akaszubski/autonomous-dev/internal/logging"
	"github.com/akaszubski/autonomous-dev/internal/project"
	"github.com/akaszubski/autonomous-dev/internal/safety"
	"github.com/akaszubski/autonomous-dev/internal/ui"
)

// maxDiffBytes bounds the staged diff sent to the model for drafting.
const maxDiffBytes = 32 * 1024

var gitCmd = &cobra.Command{
	Use:     "git",
	GroupID: "work",
	Short:   "Git automation with consent and guard rails",
	Long: `Git automation for agent sessions. Commits are drafted from the staged
diff; pushes require explicit consent; destructive git commands are
classified and refused with a safer alternative.

Nothing here ever force-pushes, rewrites published history, or touches a
protected branch without being told to.`,
}

func openRepo() *git.Repo {
	repo, err := git.Open(rootCtx, mustWorkspace())
	if err != nil {
		fatal("%v", err)
	}
	return repo
}

// confirm asks the user for consent on a TTY. Non-interactive runs must
// pass --yes; without a terminal and without --yes the answer is no.
func confirm(title string, yesFlag bool) bool {
	if yesFlag {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	var ok bool
	prompt := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if err := prompt.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		fatal("prompt error: %v", err)
	}
	return ok
}

func protectedBranches() []string {
	branches := config.GetStringSlice("git.protected-branches")
	if len(branches) == 0 {
		branches = []string{"main", "master"}
	}
	return branches
}

var gitCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit staged changes with a drafted message",
	Long: `Commit staged changes. The commit message is drafted by the model from
the staged diff and recent commit subjects; without an API key a plain
file-based message is used instead. Use --message to skip drafting.

With --all, everything is staged first. Committing directly on a
protected branch is refused unless --allow-protected is given. The
pre-commit lifecycle hook runs before the commit and can veto it by
exiting non-zero.`,
	Run: func(cmd *cobra.Command, _ []string) {
		stageAll, _ := cmd.Flags().GetBool("all")
		message, _ := cmd.Flags().GetString("message")
		yesFlag, _ := cmd.Flags().GetBool("yes")
		allowProtected, _ := cmd.Flags().GetBool("allow-protected")

		repo := openRepo()

		branch, err := repo.CurrentBranch(rootCtx)
		if err != nil {
			fatal("%v", err)
		}
		if git.IsProtected(branch, protectedBranches()) && !allowProtected {
			fatal("%q is a protected branch; commit on a feature branch or use --allow-protected", branch)
		}

		if stageAll {
			if err := repo.StageAll(rootCtx); err != nil {
				fatal("%v", err)
			}
		}

		staged, err := repo.HasStaged(rootCtx)
		if err != nil {
			fatal("%v", err)
		}
		if !staged {
			fatal("nothing staged (use --all to stage everything)")
		}

		files, err := repo.StagedFiles(rootCtx)
		if err != nil {
			fatal("%v", err)
		}

		if message == "" {
			message = draftCommitMessage(repo, files)
		}

		if !yesFlag && !jsonOutput {
			fmt.Printf("%s\n\n%s\n\n", ui.RenderHeader("Commit message"), message)
			if !confirm(fmt.Sprintf("Commit %d files with this message?", len(files)), false) {
				fatal("commit declined")
			}
		}

		if hookRunner != nil {
			if err := hookRunner.RunSync(hooks.Payload{
				SessionID: sessionID(nil),
				Event:     hooks.EventPreCommit,
				Workspace: workspaceRoot,
				Timestamp: time.Now(),
				Detail:    map[string]string{"files": strings.Join(files, ",")},
			}); err != nil {
				fatal("pre-commit hook rejected the commit: %v", err)
			}
		}

		hash, err := repo.Commit(rootCtx, message)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"commit":  hash,
				"message": message,
				"files":   files,
			})
			return
		}
		info("%s Committed %s (%d files)", ui.RenderPass(ui.IconPass), hash, len(files))
	},
}

// draftCommitMessage asks the model for a commit message, falling back to
// a file-based one when no API key is configured or drafting fails.
func draftCommitMessage(repo *git.Repo, files []string) string {
	client, err := llm.NewClient("")
	if err != nil {
		if !errors.Is(err, llm.ErrAPIKeyRequired) {
			logging.L().Warn("llm client init failed", zap.Error(err))
		}
		return llm.FallbackCommitMessage(files)
	}

	diff, err := repo.StagedDiff(rootCtx, maxDiffBytes)
	if err != nil {
		return llm.FallbackCommitMessage(files)
	}
	subjects, _ := repo.RecentSubjects(rootCtx, 5)

	req := llm.CommitRequest{
		Diff:           diff,
		Files:          files,
		RecentSubjects: subjects,
	}
	if charter, cerr := project.Load(workspaceRoot); cerr == nil && charter != nil {
		req.CharterTitle = charter.Title
	}

	message, err := client.DraftCommitMessage(rootCtx, req)
	if err != nil {
		logging.L().Warn("commit drafting failed, using fallback", zap.Error(err))
		return llm.FallbackCommitMessage(files)
	}
	return message
}

var gitPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the current branch, with consent",
	Long: `Push the current branch to its remote. Always asks for consent on a
terminal; non-interactive callers must pass --yes. Pushing a protected
branch additionally requires --allow-protected.`,
	Run: func(cmd *cobra.Command, _ []string) {
		yesFlag, _ := cmd.Flags().GetBool("yes")
		remote, _ := cmd.Flags().GetString("remote")
		allowProtected, _ := cmd.Flags().GetBool("allow-protected")
		setUpstream, _ := cmd.Flags().GetBool("set-upstream")

		repo := openRepo()

		branch, err := repo.CurrentBranch(rootCtx)
		if err != nil {
			fatal("%v", err)
		}

		if git.IsProtected(branch, protectedBranches()) && !allowProtected {
			fatal("%q is a protected branch (use --allow-protected to override)", branch)
		}

		if config.GetBool("git.auto-push") {
			yesFlag = true
		}
		if !confirm(fmt.Sprintf("Push %s to %s?", branch, remote), yesFlag) {
			fatal("push declined (pass --yes for non-interactive use)")
		}

		if setUpstream {
			err = repo.PushSetUpstream(rootCtx, remote, branch)
		} else {
			err = repo.Push(rootCtx, remote, branch)
		}
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"branch": branch, "remote": remote, "pushed": true})
			return
		}
		info("%s Pushed %s to %s", ui.RenderPass(ui.IconPass), branch, remote)
	},
}

var gitPrCmd = &cobra.Command{
	Use:   "pr",
	Short: "Open a pull request for the current branch",
	Long: `Create a pull request on GitHub for the current branch. Requires a
token in GITHUB_TOKEN or GH_TOKEN, and --repo in owner/name
form (or the github.repo config key).`,
	Run: func(cmd *cobra.Command, _ []string) {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		base, _ := cmd.Flags().GetString("base")
		draft, _ := cmd.Flags().GetBool("draft")
		repoFlag, _ := cmd.Flags().GetString("repo")

		token := github.TokenFromEnv()
		if token == "" {
			fatal("no GitHub token (set GITHUB_TOKEN or GH_TOKEN)")
		}

		if repoFlag == "" {
			repoFlag = config.GetString("github.repo")
		}
		owner, name, ok := strings.Cut(repoFlag, "/")
		if !ok || owner == "" || name == "" {
			fatal("--repo must be in owner/name form")
		}

		repo := openRepo()
		branch, err := repo.CurrentBranch(rootCtx)
		if err != nil {
			fatal("%v", err)
		}
		if git.IsProtected(branch, protectedBranches()) {
			fatal("refusing to open a PR from protected branch %q", branch)
		}

		if title == "" {
			subjects, serr := repo.RecentSubjects(rootCtx, 1)
			if serr != nil || len(subjects) == 0 {
				fatal("--title is required when the branch has no commits")
			}
			title = subjects[0]
		}

		client := github.NewClient(token, owner, name)
		pr, err := client.CreatePullRequest(rootCtx, title, body, branch, base, draft)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(pr)
			return
		}
		info("%s Opened PR #%d: %s", ui.RenderPass(ui.IconPass), pr.Number, pr.HTMLURL)
	},
}

var gitGuardCmd = &cobra.Command{
	Use:   "guard <command>",
	Short: "Classify a git command as safe or destructive",
	Long: `Classify a git command the way the PreToolUse gate does. Exits 0 for
safe commands, 1 for blocked ones, printing the rule and a safer
alternative when one exists.

Examples:
  autodev git guard 'git push --force origin main'
  autodev git guard 'git status' --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		verdict := safety.ClassifyGitCommand(args[0])

		if jsonOutput {
			outputJSON(verdict)
			if verdict.Blocked {
				os.Exit(1)
			}
			return
		}

		if !verdict.Blocked {
			info("%s Safe: %s", ui.RenderPass(ui.IconPass), args[0])
			return
		}

		fmt.Printf("%s Blocked (%s): %s\n", ui.RenderFail(ui.IconFail), verdict.Rule, verdict.Reason)
		if verdict.Alternative != "" {
			fmt.Printf("  Instead: %s\n", ui.RenderAccent(verdict.Alternative))
		}
		os.Exit(1)
	},
}

func init() {
	gitCommitCmd.Flags().BoolP("all", "a", false, "Stage all changes before committing")
	gitCommitCmd.Flags().StringP("message", "m", "", "Commit message (skips drafting)")
	gitCommitCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	gitCommitCmd.Flags().Bool("allow-protected", false, "Allow committing on a protected branch")

	gitPushCmd.Flags().BoolP("yes", "y", false, "Consent to the push without prompting")
	gitPushCmd.Flags().String("remote", "origin", "Remote to push to")
	gitPushCmd.Flags().Bool("allow-protected", false, "Allow pushing a protected branch")
	gitPushCmd.Flags().BoolP("set-upstream", "u", false, "Set the upstream on first push")

	gitPrCmd.Flags().String("title", "", "PR title (default: latest commit subject)")
	gitPrCmd.Flags().String("body", "", "PR body")
	gitPrCmd.Flags().String("base", "main", "Base branch")
	gitPrCmd.Flags().Bool("draft", false, "Open as a draft PR")
	gitPrCmd.Flags().String("repo", "", "GitHub repository in owner/name form")

	gitCmd.AddCommand(gitCommitCmd)
	gitCmd.AddCommand(gitPushCmd)
	gitCmd.AddCommand(gitPrCmd)
	gitCmd.AddCommand(gitGuardCmd)

	rootCmd.AddCommand(gitCmd)
}

package gitrepo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
)

var testIdentity = Identity{Name: "tester", Email: "tester@example.com"}

func initRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	if _, err := gogit.PlainInit(dir, false); err != nil {
		t.Fatal(err)
	}
	repo, err := Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return repo, dir
}

func writeAndCommit(t *testing.T, repo *Repo, dir, relPath, content, message string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(relPath); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: testIdentity.Name, Email: testIdentity.Email, When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return hash.String()
}

func TestBranchNames(t *testing.T) {
	if got := FeatureBranchName("Support Bot", "new intents"); got != "Feature/Support-Bot-new-intents" {
		t.Errorf("FeatureBranchName = %q", got)
	}
	if got := SyncBranchName("support-bot_14_03_2026"); got != "support-bot_14_03_2026_Repo_Sync" {
		t.Errorf("SyncBranchName = %q", got)
	}
	if got := SyncBranchName("Support Bot 01_01_2026"); got != "Support-Bot-01_01_2026_Repo_Sync" {
		t.Errorf("SyncBranchName with spaces = %q", got)
	}
}

func TestDetectIdentity(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("TF_BUILD", "")
	if got := DetectIdentity(); got.Name != "local-user" {
		t.Errorf("local identity = %+v", got)
	}

	t.Setenv("GITHUB_ACTIONS", "true")
	if got := DetectIdentity(); got.Name != "github-actions" {
		t.Errorf("github identity = %+v", got)
	}

	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("TF_BUILD", "True")
	if got := DetectIdentity(); got.Name != "azure-pipelines" {
		t.Errorf("azure identity = %+v", got)
	}
}

func TestEnsureBranch(t *testing.T) {
	repo, dir := initRepo(t)
	writeAndCommit(t, repo, dir, "agent/flow.json", `{"v": 1}`, "initial")

	if err := repo.EnsureBranch("Feature/bot-change"); err != nil {
		t.Fatal(err)
	}
	exists, err := repo.BranchExists("Feature/bot-change")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("branch was not created")
	}

	// Second call checks out the existing branch instead of failing.
	if err := repo.EnsureBranch("Feature/bot-change"); err != nil {
		t.Fatal(err)
	}

	head, err := repo.repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.Name().Short() != "Feature/bot-change" {
		t.Errorf("HEAD on %s", head.Name().Short())
	}
}

func TestCommitPaths(t *testing.T) {
	repo, dir := initRepo(t)
	writeAndCommit(t, repo, dir, "agent/flow.json", `{"v": 1}`, "initial")

	if err := os.WriteFile(filepath.Join(dir, "agent", "flow.json"), []byte(`{"v": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	committed, err := repo.CommitPaths([]string{"agent"}, "update export", testIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Error("changed tree was not committed")
	}

	committed, err = repo.CommitPaths([]string{"agent"}, "update export", testIdentity)
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Error("clean tree produced a commit")
	}
}

func TestMergeBaseAndMaterializeTree(t *testing.T) {
	repo, dir := initRepo(t)
	base := writeAndCommit(t, repo, dir, "agent/flow.json", `{"v": "base"}`, "initial")

	if err := repo.EnsureBranch("feature"); err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, repo, dir, "agent/flow.json", `{"v": "feature"}`, "feature change")

	if err := repo.Checkout("master"); err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, repo, dir, "agent/other.json", `{"v": "main"}`, "main change")

	got, err := repo.MergeBase("master", "feature")
	if err != nil {
		t.Fatal(err)
	}
	if got != base {
		t.Errorf("merge base = %s, want %s", got, base)
	}

	dest := filepath.Join(dir, "merge_base_dir", "base_agent")
	if err := repo.MaterializeTree(got, "agent", dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "flow.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"v": "base"}` {
		t.Errorf("materialized content = %s", data)
	}

	if err := repo.MaterializeTree(got, "missing_dir", dest); err == nil {
		t.Error("expected error for directory absent at commit")
	}
}

func TestPushToLocalRemote(t *testing.T) {
	repo, dir := initRepo(t)
	writeAndCommit(t, repo, dir, "agent/flow.json", `{"v": 1}`, "initial")

	remoteDir := t.TempDir()
	if _, err := gogit.PlainInit(remoteDir, true); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.repo.CreateRemote(&gitcfg.RemoteConfig{
		Name: DefaultRemote,
		URLs: []string{remoteDir},
	}); err != nil {
		t.Fatal(err)
	}

	if err := repo.Push(DefaultRemote, "master"); err != nil {
		t.Fatal(err)
	}
	// Pushing again with nothing new is not an error.
	if err := repo.Push(DefaultRemote, "master"); err != nil {
		t.Fatal(err)
	}

	remote, err := gogit.PlainOpen(remoteDir)
	if err != nil {
		t.Fatal(err)
	}
	refs, err := remote.References()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	if err := refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().Short() == "master" {
			found = true
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("master was not pushed to the remote")
	}
}

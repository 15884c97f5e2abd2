// Package gitrepo wraps the go-git operations the pipeline commands need:
// branch management, commits, pushes and merge-base lookups against an
// explicit working-tree path.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

// DefaultRemote is the remote the pipeline pushes to unless configured
// otherwise.
const DefaultRemote = "origin"

// Identity is the author stamped onto pipeline commits.
type Identity struct {
	Name  string
	Email string
}

// DetectIdentity picks the commit author from the CI environment the
// pipeline runs in.
func DetectIdentity() Identity {
	switch {
	case strings.EqualFold(os.Getenv("GITHUB_ACTIONS"), "true"):
		return Identity{Name: "github-actions", Email: "actions@github.com"}
	case strings.EqualFold(os.Getenv("TF_BUILD"), "true"):
		return Identity{Name: "azure-pipelines", Email: "azure-pipelines@devops.com"}
	default:
		return Identity{Name: "local-user", Email: "local@user.com"}
	}
}

// FeatureBranchName builds the branch name a feature agent lives on.
func FeatureBranchName(bot, desc string) string {
	return fmt.Sprintf("Feature/%s-%s", fsutil.SanitizeName(bot), fsutil.SanitizeName(desc))
}

// SyncBranchName builds the branch name a repository sync run pushes to.
func SyncBranchName(snapshotName string) string {
	return fsutil.SanitizeName(snapshotName) + "_Repo_Sync"
}

// Repo is a repository opened at a working-tree path.
type Repo struct {
	repo *gogit.Repository
	path string
	log  zerolog.Logger
}

// Open opens the repository rooted at path.
func Open(path string, log zerolog.Logger) (*Repo, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repo{repo: repo, path: path, log: log}, nil
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repo) BranchExists(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve branch %s: %w", name, err)
	}
	return true, nil
}

// EnsureBranch checks out the named branch, creating it from HEAD when it
// does not exist yet.
func (r *Repo) EnsureBranch(name string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	exists, err := r.BranchExists(name)
	if err != nil {
		return err
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: !exists,
	}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", name, err)
	}
	r.log.Debug().Str("branch", name).Bool("created", !exists).Msg("checked out branch")
	return nil
}

// Checkout switches the worktree to an existing branch.
func (r *Repo) Checkout(name string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", name, err)
	}
	return nil
}

// CommitPaths stages the given paths (relative to the repository root) and
// commits them. Returns false when nothing under those paths changed.
func (r *Repo) CommitPaths(paths []string, message string, id Identity) (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(filepath.ToSlash(p)); err != nil {
			return false, fmt.Errorf("stage %s: %w", p, err)
		}
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("inspect worktree status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}
	if _, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  id.Name,
			Email: id.Email,
			When:  time.Now(),
		},
	}); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	r.log.Debug().Str("message", message).Msg("created commit")
	return true, nil
}

// Push publishes a local branch to the remote. An up-to-date remote is not
// an error.
func (r *Repo) Push(remote, branch string) error {
	refSpec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err := r.repo.Push(&gogit.PushOptions{
		RemoteName: remote,
		RefSpecs:   []gitcfg.RefSpec{refSpec},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s to %s: %w", branch, remote, err)
	}
	return nil
}

// MergeBase returns the common ancestor commit of two branches.
func (r *Repo) MergeBase(base, feature string) (string, error) {
	baseCommit, err := r.branchCommit(base)
	if err != nil {
		return "", err
	}
	featureCommit, err := r.branchCommit(feature)
	if err != nil {
		return "", err
	}
	ancestors, err := baseCommit.MergeBase(featureCommit)
	if err != nil {
		return "", fmt.Errorf("merge base of %s and %s: %w", base, feature, err)
	}
	if len(ancestors) == 0 {
		return "", fmt.Errorf("branches %s and %s have no common ancestor", base, feature)
	}
	return ancestors[0].Hash.String(), nil
}

// MaterializeTree writes the files under subdir at the given commit into
// destDir, replacing any previous content. The worktree itself is left
// untouched.
func (r *Repo) MaterializeTree(commitHash, subdir, destDir string) error {
	commit, err := r.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return fmt.Errorf("resolve commit %s: %w", commitHash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("read commit tree: %w", err)
	}
	if subdir != "" {
		tree, err = tree.Tree(filepath.ToSlash(subdir))
		if err != nil {
			return fmt.Errorf("directory %s not present at commit %s: %w", subdir, commitHash, err)
		}
	}
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("reset %s: %w", destDir, err)
	}

	iter := tree.Files()
	defer iter.Close()
	for {
		f, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("iterate commit tree: %w", err)
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read %s at commit %s: %w", f.Name, commitHash, err)
		}
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if err := fsutil.WriteFile(target, []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) branchCommit(name string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return nil, fmt.Errorf("branch %s does not exist: %w", name, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("resolve commit for branch %s: %w", name, err)
	}
	return commit, nil
}

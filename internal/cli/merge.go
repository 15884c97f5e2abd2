package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dialogfabrik/cogctl/internal/artifact"
	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/export"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/gitrepo"
	"github.com/dialogfabrik/cogctl/internal/state"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// developmentBranch is the base branch feature branches merge back into.
const developmentBranch = "development"

// MergeCommand prepares a feature branch for merging: it materialises the
// merge-base agent tree, refreshes the feature export with a new package and
// commits everything to the feature branch.
type MergeCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
	noPush  *bool
	extract *bool
}

// NewMergeCommand constructs a merge command.
func NewMergeCommand(stdout, stderr io.Writer) *MergeCommand {
	return &MergeCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *MergeCommand) Name() string {
	return "merge"
}

func (c *MergeCommand) Summary() string {
	return "Materialise the merge base and refresh the feature export for merging"
}

func (c *MergeCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.noPush = fs.Bool("no-push", false, "commit locally without pushing")
	c.extract = fs.Bool("extract-packages", false, "unpack the package zips of all three trees")
}

func (c *MergeCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLDev,
		config.EnvAPIKeyDev,
		config.EnvBotName,
		config.EnvBranchName,
	)
	if err != nil {
		return err
	}
	log := newLogger(c.verbose != nil && *c.verbose, env.LogLevel)

	marker, err := state.LoadFeatureMarker(fsutil.FeatureAgentJSON)
	if err != nil {
		return err
	}

	releaseLock, err := fsutil.AcquireLock("merge")
	if err != nil {
		if errors.Is(err, fsutil.ErrLocked) {
			return fmt.Errorf("another operation is already running; please retry later")
		}
		return err
	}
	defer func() {
		if err := releaseLock(); err != nil {
			log.Warn().Err(err).Msg("release lock")
		}
	}()

	repo, err := gitrepo.Open(".", log)
	if err != nil {
		return err
	}
	if err := repo.Checkout(env.BranchName); err != nil {
		return err
	}

	c.console.Section("Resolving merge base")
	mergeBase, err := repo.MergeBase(developmentBranch, env.BranchName)
	if err != nil {
		return err
	}
	baseTree := filepath.Join(env.MergeBaseDir, "base_agent")
	if err := repo.MaterializeTree(mergeBase, env.AgentDir, baseTree); err != nil {
		return err
	}
	c.console.Info("Merge base %s written to %s", mergeBase[:12], baseTree)

	if _, err := repo.CommitPaths(
		[]string{env.MergeBaseDir},
		fmt.Sprintf("Save merge base directory: %s", env.MergeBaseDir),
		gitrepo.DetectIdentity(),
	); err != nil {
		return err
	}

	client, err := newPlatformClient(env, "dev", marker.ProjectID, log)
	if err != nil {
		return err
	}
	svc := &export.Service{Client: client, Console: c.console, Log: log}

	c.console.Section("Refreshing feature export")
	result, err := svc.ExportTree(ctx, env.FeatureDir)
	if err != nil {
		return err
	}
	packageName, err := client.CreatePackage(ctx, env.BotName, timestampedDescription("Merge preparation"), result.PackageResourceIDs)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	if _, err := client.DownloadPackage(ctx, packageName, fsutil.PackageDir(env.FeatureDir)); err != nil {
		return fmt.Errorf("download package: %w", err)
	}

	if c.extract != nil && *c.extract {
		for _, tree := range []string{env.FeatureDir, baseTree, env.AgentDir} {
			dest := filepath.Join(tree, "extractedPackage")
			if err := artifact.ExtractPackage(tree, dest); err != nil {
				return fmt.Errorf("extract package of %s: %w", tree, err)
			}
			c.console.Info("Extracted package of %s", tree)
		}
	}

	committed, err := repo.CommitPaths(
		[]string{env.FeatureDir},
		fmt.Sprintf("Update agent export for %s", env.BotName),
		gitrepo.DetectIdentity(),
	)
	if err != nil {
		return err
	}
	if !committed {
		c.console.Info("No changes to commit")
		return nil
	}
	if c.noPush != nil && *c.noPush {
		c.console.Success("Committed to %s (push skipped)", env.BranchName)
		return nil
	}
	if err := repo.Push(env.GitRemote, env.BranchName); err != nil {
		return err
	}
	c.console.Success("Pushed branch %s", env.BranchName)
	return nil
}

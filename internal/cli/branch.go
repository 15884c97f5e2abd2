package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dialogfabrik/cogctl/internal/artifact"
	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/export"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/gitrepo"
	"github.com/dialogfabrik/cogctl/internal/platform"
	"github.com/dialogfabrik/cogctl/internal/state"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// BranchCommand creates a feature-branch agent: a fresh platform project
// seeded from a snapshot of the base dev project, paired with a git feature
// branch carrying the exported base tree.
type BranchCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
	noPush  *bool
}

// NewBranchCommand constructs a branch command.
func NewBranchCommand(stdout, stderr io.Writer) *BranchCommand {
	return &BranchCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *BranchCommand) Name() string {
	return "branch"
}

func (c *BranchCommand) Summary() string {
	return "Create a feature-branch agent seeded from the dev project"
}

func (c *BranchCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.noPush = fs.Bool("no-push", false, "commit locally without pushing")
}

func (c *BranchCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLDev,
		config.EnvAPIKeyDev,
		config.EnvMaxSnapshots,
		config.EnvBotName,
		config.EnvBranchDesc,
		config.EnvLocale,
	)
	if err != nil {
		return err
	}
	log := newLogger(c.verbose != nil && *c.verbose, env.LogLevel)

	entry, err := botEntry(env)
	if err != nil {
		return err
	}
	baseProjectID, err := entry.ProjectID("dev")
	if err != nil {
		return err
	}

	releaseLock, err := fsutil.AcquireLock("branch")
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

	baseClient, err := newPlatformClient(env, "dev", baseProjectID, log)
	if err != nil {
		return err
	}
	svc := &export.Service{Client: baseClient, Console: c.console, Log: log}

	c.console.Section(fmt.Sprintf("Exporting base agent %s", env.BotName))
	snap, err := exportAndArchive(ctx, baseClient, svc, env, env.AgentDir, "Export snapshot for feature branch agent.")
	if err != nil {
		return err
	}

	projectName := platform.FeatureProjectName(env.BotName, env.BranchDesc)
	c.console.Section(fmt.Sprintf("Creating feature project %s", projectName))
	featureProjectID, err := baseClient.CreateProject(ctx, projectName, env.Locale)
	if err != nil {
		return fmt.Errorf("create feature project: %w", err)
	}

	branch := gitrepo.FeatureBranchName(env.BotName, env.BranchDesc)
	marker := state.FeatureMarker{
		ProjectID: featureProjectID,
		Bot:       env.BotName,
		Branch:    branch,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := state.SaveFeatureMarker(fsutil.FeatureAgentJSON, marker); err != nil {
		return err
	}

	featureClient, err := newPlatformClient(env, "dev", featureProjectID, log)
	if err != nil {
		return err
	}

	csnapPath, err := artifact.FindSnapshot(env.AgentDir)
	if err != nil {
		return err
	}
	c.console.Info("Seeding feature project from %s", csnapPath)
	if err := featureClient.UploadSnapshot(ctx, csnapPath); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	if err := featureClient.RestoreSnapshot(ctx, snap.Name); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	c.console.Success("Feature project %s ready", featureProjectID)

	repo, err := gitrepo.Open(".", log)
	if err != nil {
		return err
	}
	if err := repo.EnsureBranch(branch); err != nil {
		return err
	}
	committed, err := repo.CommitPaths(
		[]string{env.AgentDir, fsutil.FeatureAgentJSON},
		fmt.Sprintf("Created feature agent - %s", branch),
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
		c.console.Success("Committed to %s (push skipped)", branch)
		return nil
	}
	if err := repo.Push(env.GitRemote, branch); err != nil {
		return err
	}
	c.console.Success("Pushed branch %s", branch)
	return nil
}

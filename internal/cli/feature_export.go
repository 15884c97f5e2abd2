package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/export"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/gitrepo"
	"github.com/dialogfabrik/cogctl/internal/reconcile"
	"github.com/dialogfabrik/cogctl/internal/state"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// FeatureExportCommand exports the feature agent, reconciles its identifiers
// against the main tree and commits the result to the feature branch.
type FeatureExportCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
	noPush  *bool
}

// NewFeatureExportCommand constructs a feature-export command.
func NewFeatureExportCommand(stdout, stderr io.Writer) *FeatureExportCommand {
	return &FeatureExportCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *FeatureExportCommand) Name() string {
	return "feature-export"
}

func (c *FeatureExportCommand) Summary() string {
	return "Export the feature agent, reconcile identifiers against the main tree"
}

func (c *FeatureExportCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.noPush = fs.Bool("no-push", false, "commit locally without pushing")
}

func (c *FeatureExportCommand) Run(ctx context.Context, _ []string) error {
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
	entry, err := botEntry(env)
	if err != nil {
		return err
	}
	mainProjectID, err := entry.ProjectID("dev")
	if err != nil {
		return err
	}

	releaseLock, err := fsutil.AcquireLock("feature-export")
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
	exists, err := repo.BranchExists(env.BranchName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("branch %q does not exist; run the branch command first", env.BranchName)
	}
	if err := repo.Checkout(env.BranchName); err != nil {
		return err
	}

	client, err := newPlatformClient(env, "dev", marker.ProjectID, log)
	if err != nil {
		return err
	}
	svc := &export.Service{Client: client, Console: c.console, Log: log}

	c.console.Section(fmt.Sprintf("Exporting feature agent %s", marker.ProjectID))
	if _, err := svc.ExportTree(ctx, env.FeatureDir); err != nil {
		return err
	}

	c.console.Section("Reconciling identifiers")
	reconciler := reconcile.Reconciler{
		ExtraPairs:      map[string]string{marker.ProjectID: mainProjectID},
		FreshnessWindow: env.FreshnessWindow,
		Log:             log,
	}
	stats, err := reconciler.Run(env.AgentDir, env.FeatureDir)
	if err != nil {
		return fmt.Errorf("reconcile %s against %s: %w", env.FeatureDir, env.AgentDir, err)
	}
	c.console.Info("Substitutions: %d, files rewritten: %d", stats.Substitutions, stats.RewrittenFiles)

	committed, err := repo.CommitPaths(
		[]string{env.FeatureDir},
		fmt.Sprintf("Add extracted resources in '%s' folder", env.FeatureDir),
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

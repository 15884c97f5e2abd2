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
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// SyncCommand exports the development agent and pushes the refreshed tree to
// a snapshot-named sync branch.
type SyncCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
	noPush  *bool
}

// NewSyncCommand constructs a sync command.
func NewSyncCommand(stdout, stderr io.Writer) *SyncCommand {
	return &SyncCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *SyncCommand) Name() string {
	return "sync"
}

func (c *SyncCommand) Summary() string {
	return "Export the dev agent with package and snapshot, commit to a sync branch"
}

func (c *SyncCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.noPush = fs.Bool("no-push", false, "commit locally without pushing")
}

func (c *SyncCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLDev,
		config.EnvAPIKeyDev,
		config.EnvMaxSnapshots,
		config.EnvBotName,
	)
	if err != nil {
		return err
	}
	log := newLogger(c.verbose != nil && *c.verbose, env.LogLevel)

	entry, err := botEntry(env)
	if err != nil {
		return err
	}
	projectID, err := entry.ProjectID("dev")
	if err != nil {
		return err
	}

	releaseLock, err := fsutil.AcquireLock("sync")
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

	client, err := newPlatformClient(env, "dev", projectID, log)
	if err != nil {
		return err
	}
	svc := &export.Service{Client: client, Console: c.console, Log: log}

	c.console.Section(fmt.Sprintf("Syncing %s", env.BotName))
	snap, err := exportAndArchive(ctx, client, svc, env, env.AgentDir, timestampedDescription("Syncing Repository"))
	if err != nil {
		return err
	}
	c.console.Success("Export complete: snapshot %s", snap.Name)

	repo, err := gitrepo.Open(".", log)
	if err != nil {
		return err
	}
	branch := gitrepo.SyncBranchName(snap.Name)
	if err := repo.EnsureBranch(branch); err != nil {
		return err
	}
	committed, err := repo.CommitPaths(
		[]string{env.AgentDir},
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
		c.console.Success("Committed to %s (push skipped)", branch)
		return nil
	}
	if err := repo.Push(env.GitRemote, branch); err != nil {
		return err
	}
	c.console.Success("Pushed branch %s", branch)
	return nil
}

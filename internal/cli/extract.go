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

// ExtractCommand exports the dev agent for a release: optional playbook test
// gate, full tree export, package, snapshot, and a commit on a branch named
// after the snapshot.
type ExtractCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
	noPush  *bool
}

// NewExtractCommand constructs an extract command.
func NewExtractCommand(stdout, stderr io.Writer) *ExtractCommand {
	return &ExtractCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *ExtractCommand) Name() string {
	return "extract"
}

func (c *ExtractCommand) Summary() string {
	return "Export the dev agent for a release, gated by the playbook test suite"
}

func (c *ExtractCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.noPush = fs.Bool("no-push", false, "commit locally without pushing")
}

func (c *ExtractCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLDev,
		config.EnvAPIKeyDev,
		config.EnvMaxSnapshots,
		config.EnvBotName,
		config.EnvReleaseDesc,
		config.EnvRunTests,
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

	releaseLock, err := fsutil.AcquireLock("extract")
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

	if env.RunAutomatedTests {
		if err := runPlaybookGate(ctx, client, entry, c.console); err != nil {
			return fmt.Errorf("agent extraction aborted: %w", err)
		}
	} else {
		c.console.Info("Automated tests skipped (%s not set to true)", config.EnvRunTests)
	}

	svc := &export.Service{Client: client, Console: c.console, Log: log}

	c.console.Section(fmt.Sprintf("Extracting %s", env.BotName))
	snap, err := exportAndArchive(ctx, client, svc, env, env.AgentDir, env.ReleaseDescription)
	if err != nil {
		return err
	}
	c.console.Success("Export complete: snapshot %s", snap.Name)

	repo, err := gitrepo.Open(".", log)
	if err != nil {
		return err
	}
	branch := fsutil.SanitizeName(snap.Name)
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

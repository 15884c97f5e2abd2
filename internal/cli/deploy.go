package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dialogfabrik/cogctl/internal/artifact"
	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// DeployCommand uploads the committed snapshot to the production project and
// restores it.
type DeployCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
}

// NewDeployCommand constructs a deploy command.
func NewDeployCommand(stdout, stderr io.Writer) *DeployCommand {
	return &DeployCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *DeployCommand) Name() string {
	return "deploy"
}

func (c *DeployCommand) Summary() string {
	return "Upload the committed snapshot to the prod project and restore it"
}

func (c *DeployCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
}

func (c *DeployCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLProd,
		config.EnvAPIKeyProd,
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
	projectID, err := entry.ProjectID("prod")
	if err != nil {
		return err
	}

	// The snapshot check runs before anything touches the platform so a
	// broken tree aborts the deploy cleanly.
	csnapPath, err := artifact.FindSnapshot(env.AgentDir)
	if err != nil {
		return err
	}
	snapshotName := strings.TrimSuffix(filepath.Base(csnapPath), fsutil.SnapshotFileExt)

	releaseLock, err := fsutil.AcquireLock("deploy")
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

	client, err := newPlatformClient(env, "prod", projectID, log)
	if err != nil {
		return err
	}

	c.console.Section(fmt.Sprintf("Deploying %s to production", env.BotName))
	if err := client.EnsureSnapshotLimit(ctx, env.MaxSnapshots); err != nil {
		return fmt.Errorf("enforce snapshot limit: %w", err)
	}
	if err := client.UploadSnapshot(ctx, csnapPath); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	c.console.Info("Uploaded %s", filepath.Base(csnapPath))
	if err := client.RestoreSnapshot(ctx, snapshotName); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	c.console.Success("Snapshot %s restored in production", snapshotName)
	return nil
}

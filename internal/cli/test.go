package cli

import (
	"context"
	"flag"
	"io"

	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// TestCommand runs the configured playbook suite against the dev project.
type TestCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose *bool
}

// NewTestCommand constructs a test command.
func NewTestCommand(stdout, stderr io.Writer) *TestCommand {
	return &TestCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *TestCommand) Name() string {
	return "test"
}

func (c *TestCommand) Summary() string {
	return "Run the playbook test suite against the dev project"
}

func (c *TestCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
}

func (c *TestCommand) Run(ctx context.Context, _ []string) error {
	env, err := loadEnv(
		config.EnvBaseURLDev,
		config.EnvAPIKeyDev,
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

	client, err := newPlatformClient(env, "dev", projectID, log)
	if err != nil {
		return err
	}
	return runPlaybookGate(ctx, client, entry, c.console)
}

package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dialogfabrik/cogctl/internal/config"
)

// HelpCommand prints usage information for the pipeline commands. The
// special topic "config" bootstraps a starter cogctl.toml instead.
type HelpCommand struct {
	app *App
}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Summary() string {
	return "Show usage for a command; 'help config' writes a starter cogctl.toml"
}

func (c *HelpCommand) RegisterFlags(_ *flag.FlagSet) {}

func (c *HelpCommand) Run(_ context.Context, args []string) error {
	if len(args) == 0 {
		c.app.printUsage()
		return nil
	}

	if args[0] == "config" {
		return c.writeStarterConfig()
	}

	target, ok := c.app.commands[args[0]]
	if !ok {
		c.app.printUnknownCommand(args[0])
		return fmt.Errorf("unknown command: %s", args[0])
	}

	fs := flag.NewFlagSet(target.Name(), flag.ContinueOnError)
	fs.SetOutput(c.app.stderr)
	target.RegisterFlags(fs)
	c.app.printCommandUsage(target, fs)
	return nil
}

// writeStarterConfig drops a commented cogctl.toml into the working
// directory. An existing file is never overwritten.
func (c *HelpCommand) writeStarterConfig() error {
	if _, err := os.Stat(config.ConfigFileName); err == nil {
		return fmt.Errorf("%s already exists, not overwriting it", config.ConfigFileName)
	}
	if err := config.WriteExampleConfig(config.ConfigFileName); err != nil {
		return fmt.Errorf("write %s: %w", config.ConfigFileName, err)
	}
	fmt.Fprintf(c.app.stdout, "Wrote %s. Environment variables take precedence over its values.\n", config.ConfigFileName)
	return nil
}

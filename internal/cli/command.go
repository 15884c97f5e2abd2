package cli

import (
	"context"
	"flag"
)

// Command is one cogctl pipeline subcommand. Run receives the positional
// arguments left over after flag parsing.
type Command interface {
	Name() string
	Summary() string
	RegisterFlags(fs *flag.FlagSet)
	Run(ctx context.Context, args []string) error
}

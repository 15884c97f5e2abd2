package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/diff"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/reconcile"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// ReconcileCommand runs the identifier reconciler over two local trees. With
// --dry-run it prints per-file diffs instead of modifying the feature tree.
type ReconcileCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	console *console.Writer

	verbose  *bool
	dryRun   *bool
	mainTree *string
	featTree *string
}

// NewReconcileCommand constructs a reconcile command.
func NewReconcileCommand(stdout, stderr io.Writer) *ReconcileCommand {
	return &ReconcileCommand{
		stdout:  stdout,
		stderr:  stderr,
		console: console.New(stdout, stderr),
	}
}

func (c *ReconcileCommand) Name() string {
	return "reconcile"
}

func (c *ReconcileCommand) Summary() string {
	return "Rewrite feature-tree identifiers to match the main tree"
}

func (c *ReconcileCommand) RegisterFlags(fs *flag.FlagSet) {
	c.verbose = fs.Bool("verbose", false, "enable verbose logging")
	c.dryRun = fs.Bool("dry-run", false, "print diffs instead of writing")
	c.mainTree = fs.String("main", "", "main tree path (default: agent directory)")
	c.featTree = fs.String("feature", "", "feature tree path (default: feature directory)")
}

func (c *ReconcileCommand) Run(_ context.Context, _ []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	log := newLogger(c.verbose != nil && *c.verbose, env.LogLevel)

	mainTree := env.AgentDir
	if c.mainTree != nil && *c.mainTree != "" {
		mainTree = *c.mainTree
	}
	featureTree := env.FeatureDir
	if c.featTree != nil && *c.featTree != "" {
		featureTree = *c.featTree
	}
	for _, tree := range []string{mainTree, featureTree} {
		if _, err := os.Stat(tree); err != nil {
			return fmt.Errorf("tree %s: %w", tree, err)
		}
	}

	reconciler := reconcile.Reconciler{
		FreshnessWindow: env.FreshnessWindow,
		Log:             log,
	}

	if c.dryRun != nil && *c.dryRun {
		return c.runDry(reconciler, mainTree, featureTree)
	}

	stats, err := reconciler.Run(mainTree, featureTree)
	if err != nil {
		return err
	}
	c.console.Info("Substitutions: %d", stats.Substitutions)
	c.console.Info("Files rewritten: %d (lexicons %d, intents %d, extensions %d, metadata %d)",
		stats.RewrittenFiles, stats.LexiconFiles, stats.IntentFiles, stats.ExtensionFiles, stats.MetadataFiles)
	if !stats.Changed() {
		c.console.Success("Trees already reconciled")
	}
	return nil
}

// runDry reconciles a scratch copy of the feature tree and prints what would
// change.
func (c *ReconcileCommand) runDry(reconciler reconcile.Reconciler, mainTree, featureTree string) error {
	scratch, err := os.MkdirTemp("", "cogctl-reconcile-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	scratchTree := filepath.Join(scratch, filepath.Base(featureTree))
	if err := copyTree(featureTree, scratchTree); err != nil {
		return fmt.Errorf("copy feature tree: %w", err)
	}

	stats, err := reconciler.Run(mainTree, scratchTree)
	if err != nil {
		return err
	}

	changedFiles := 0
	err = filepath.WalkDir(scratchTree, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(scratchTree, path)
		if err != nil {
			return err
		}
		after, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		before, err := os.ReadFile(filepath.Join(featureTree, rel))
		if err != nil {
			if os.IsNotExist(err) {
				before = nil
			} else {
				return err
			}
		}
		lines := diff.Generate(before, after, 2)
		if len(lines) == 0 {
			return nil
		}
		changedFiles++
		c.console.Write(diff.Format(filepath.Join(featureTree, rel), lines, false))
		return nil
	})
	if err != nil {
		return err
	}

	if changedFiles == 0 {
		c.console.Success("Trees already reconciled, nothing to change")
		return nil
	}
	c.console.Info("Dry run: %d file(s) would change (%d substitutions)", changedFiles, stats.Substitutions)
	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return fsutil.WriteFile(filepath.Join(dest, rel), data)
	})
}

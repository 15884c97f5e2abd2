package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/export"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/platform"
	"github.com/dialogfabrik/cogctl/internal/state"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
	"github.com/dialogfabrik/cogctl/internal/util"
)

// newLogger builds the diagnostic logger for a command run. Diagnostics are
// off unless the user opts in via --verbose or COGCTL_LOG.
func newLogger(verbose bool, level string) zerolog.Logger {
	if !verbose && level == "" {
		return zerolog.Nop()
	}
	lvl := zerolog.DebugLevel
	if !verbose {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			parsed = zerolog.InfoLevel
		}
		lvl = parsed
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// loadEnv loads the environment and fails fast when required variables are
// missing, before any platform or git work starts.
func loadEnv(required ...string) (config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, err
	}
	if err := env.Require(required...); err != nil {
		return config.Env{}, err
	}
	return env, nil
}

// botEntry resolves BOT_NAME against the committed bot mapping.
func botEntry(env config.Env) (state.BotEntry, error) {
	mapping, err := state.LoadBotMapping(botMappingPath())
	if err != nil {
		return state.BotEntry{}, err
	}
	return mapping.Lookup(env.BotName)
}

func botMappingPath() string {
	return fsutil.BotMappingJSON
}

// newPlatformClient builds a client for one of the three environments.
func newPlatformClient(env config.Env, environment, projectID string, log zerolog.Logger) (*platform.Client, error) {
	var baseURL, apiKey string
	switch environment {
	case "dev":
		baseURL, apiKey = env.BaseURLDev, env.APIKeyDev
	case "test":
		baseURL, apiKey = env.BaseURLTest, env.APIKeyTest
	case "prod":
		baseURL, apiKey = env.BaseURLProd, env.APIKeyProd
	default:
		return nil, fmt.Errorf("unknown environment %q", environment)
	}
	return platform.NewClient(config.CleanBaseURL(baseURL), apiKey, projectID, platform.WithLogger(log))
}

// playbookSuite builds the automated test suite from the bot mapping entry.
func playbookSuite(entry state.BotEntry) (platform.PlaybookSuite, error) {
	if len(entry.Locales) == 0 || len(entry.PlaybookPrefixes) == 0 || len(entry.PlaybookFlows) == 0 {
		return platform.PlaybookSuite{}, fmt.Errorf("bot mapping has no playbook configuration (locales, playbookPrefixes, playbookFlows)")
	}
	return platform.PlaybookSuite{
		Locales:  entry.Locales,
		Prefixes: entry.PlaybookPrefixes,
		Flows:    entry.PlaybookFlows,
	}, nil
}

// runPlaybookGate executes the playbook suite and reports each run. A single
// non-successful run fails the gate.
func runPlaybookGate(ctx context.Context, client *platform.Client, entry state.BotEntry, out *console.Writer) error {
	suite, err := playbookSuite(entry)
	if err != nil {
		return err
	}
	out.Section("Automated tests")
	runs, allPassed, err := client.RunPlaybookSuite(ctx, suite)
	if err != nil {
		return fmt.Errorf("run playbook suite: %w", err)
	}
	for _, run := range runs {
		if run.Passed() {
			out.Success("[%s] %s: %s", run.Locale, run.Name, run.Status)
		} else {
			out.Error("[%s] %s: %s", run.Locale, run.Name, run.Status)
		}
	}
	if !allPassed {
		return fmt.Errorf("automated tests failed")
	}
	out.Success("All playbook runs passed")
	return nil
}

// exportAndArchive runs the full export pipeline against one project: the
// resource tree, a package, a snapshot and the manifest tying them together.
func exportAndArchive(ctx context.Context, client *platform.Client, svc *export.Service, env config.Env, tree, description string) (platform.Snapshot, error) {
	result, err := svc.ExportTree(ctx, tree)
	if err != nil {
		return platform.Snapshot{}, err
	}

	packageName, err := client.CreatePackage(ctx, env.BotName, description, result.PackageResourceIDs)
	if err != nil {
		return platform.Snapshot{}, fmt.Errorf("create package: %w", err)
	}
	packagePath, err := client.DownloadPackage(ctx, packageName, fsutil.PackageDir(tree))
	if err != nil {
		return platform.Snapshot{}, fmt.Errorf("download package: %w", err)
	}

	snap, err := client.CreateSnapshot(ctx, env.BotName, description, env.MaxSnapshots)
	if err != nil {
		return platform.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	snapshotPath, err := client.DownloadSnapshot(ctx, snap, fsutil.SnapshotDir(tree))
	if err != nil {
		return platform.Snapshot{}, fmt.Errorf("download snapshot: %w", err)
	}

	manifest := export.NewManifest(env.BotName, client.ProjectID(), result.Counts)
	manifest.Package = packageName
	manifest.Snapshot = snap.Name
	if manifest.PackageSHA256, err = util.SHA256File(packagePath); err != nil {
		return platform.Snapshot{}, fmt.Errorf("hash package: %w", err)
	}
	if manifest.SnapshotSHA256, err = util.SHA256File(snapshotPath); err != nil {
		return platform.Snapshot{}, fmt.Errorf("hash snapshot: %w", err)
	}
	if err := manifest.Write(tree); err != nil {
		return platform.Snapshot{}, fmt.Errorf("write manifest: %w", err)
	}
	return snap, nil
}

// timestampedDescription builds a human-readable release description.
func timestampedDescription(prefix string) string {
	return fmt.Sprintf("%s - %s", prefix, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
}

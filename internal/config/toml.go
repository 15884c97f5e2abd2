package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is looked up in the working directory. The file is optional;
// environment variables always win over its values.
const ConfigFileName = "cogctl.toml"

type fileConfig struct {
	Defaults fileDefaults `toml:"defaults"`
	Layout   fileLayout   `toml:"layout"`
	Git      fileGit      `toml:"git"`
}

type fileDefaults struct {
	BaseURLDev             string `toml:"base_url_dev"`
	BaseURLTest            string `toml:"base_url_test"`
	BaseURLProd            string `toml:"base_url_prod"`
	MaxSnapshots           int    `toml:"max_snapshots"`
	Locale                 string `toml:"locale"`
	FreshnessWindowSeconds int    `toml:"freshness_window_seconds"`
}

type fileLayout struct {
	AgentDir     string `toml:"agent_dir"`
	FeatureDir   string `toml:"feature_dir"`
	MergeBaseDir string `toml:"merge_base_dir"`
}

type fileGit struct {
	Remote string `toml:"remote"`
}

// mergeTomlConfig fills blank Env fields from cogctl.toml when the file
// exists. A missing file is not an error; a malformed one is.
func mergeTomlConfig(env *Env) error {
	var cfg fileConfig
	meta, err := toml.DecodeFile(ConfigFileName, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse %s: unknown key %q", ConfigFileName, undecoded[0].String())
	}

	if env.BaseURLDev == "" && cfg.Defaults.BaseURLDev != "" {
		env.BaseURLDev = cfg.Defaults.BaseURLDev
		env.raw[EnvBaseURLDev] = cfg.Defaults.BaseURLDev
	}
	if env.BaseURLTest == "" && cfg.Defaults.BaseURLTest != "" {
		env.BaseURLTest = cfg.Defaults.BaseURLTest
		env.raw[EnvBaseURLTest] = cfg.Defaults.BaseURLTest
	}
	if env.BaseURLProd == "" && cfg.Defaults.BaseURLProd != "" {
		env.BaseURLProd = cfg.Defaults.BaseURLProd
		env.raw[EnvBaseURLProd] = cfg.Defaults.BaseURLProd
	}
	if env.MaxSnapshots == 0 && cfg.Defaults.MaxSnapshots > 0 {
		env.MaxSnapshots = cfg.Defaults.MaxSnapshots
		env.raw[EnvMaxSnapshots] = fmt.Sprintf("%d", cfg.Defaults.MaxSnapshots)
	}
	if env.Locale == "" && cfg.Defaults.Locale != "" {
		env.Locale = cfg.Defaults.Locale
		env.raw[EnvLocale] = cfg.Defaults.Locale
	}
	if cfg.Defaults.FreshnessWindowSeconds > 0 {
		env.FreshnessWindow = time.Duration(cfg.Defaults.FreshnessWindowSeconds) * time.Second
	}

	env.AgentDir = cfg.Layout.AgentDir
	env.FeatureDir = cfg.Layout.FeatureDir
	env.MergeBaseDir = cfg.Layout.MergeBaseDir
	env.GitRemote = cfg.Git.Remote
	return nil
}

// WriteExampleConfig writes a commented starter cogctl.toml. `cogctl help
// config` uses it so teams can bootstrap a repository without reading docs.
func WriteExampleConfig(path string) error {
	const example = `# cogctl configuration. Environment variables take precedence.

[defaults]
# base_url_dev = "https://api-dev.cognigy.example"
# base_url_test = "https://api-test.cognigy.example"
# base_url_prod = "https://api.cognigy.example"
max_snapshots = 10
# locale = "en-US"
# freshness_window_seconds = 600

[layout]
agent_dir = "agent"
feature_dir = "feature_agent"
merge_base_dir = "merge_base_dir"

[git]
remote = "origin"
`
	return os.WriteFile(path, []byte(example), 0o644)
}

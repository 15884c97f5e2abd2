package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Environment variable names used by the pipeline commands.
const (
	EnvBaseURLDev   = "COGNIGY_BASE_URL_DEV"
	EnvBaseURLTest  = "COGNIGY_BASE_URL_TEST"
	EnvBaseURLProd  = "COGNIGY_BASE_URL_PROD"
	EnvAPIKeyDev    = "COGNIGY_API_KEY_DEV"
	EnvAPIKeyTest   = "COGNIGY_API_KEY_TEST"
	EnvAPIKeyProd   = "COGNIGY_API_KEY_PROD"
	EnvBotName      = "BOT_NAME"
	EnvMaxSnapshots = "MAX_SNAPSHOTS"
	EnvBranchDesc   = "BRANCH_DESC"
	EnvBranchName   = "BRANCH_NAME"
	EnvLocale       = "LOCALE"
	EnvReleaseDesc  = "RELEASE_DESCRIPTION"
	EnvRunTests     = "RUN_AUTOMATED_TEST"
	EnvLogLevel     = "COGCTL_LOG"
)

// Env holds the validated environment configuration shared by all commands.
// Commands declare which fields they need via Require; nothing is fetched or
// written before that check passes.
type Env struct {
	BaseURLDev  string
	BaseURLTest string
	BaseURLProd string
	APIKeyDev   string
	APIKeyTest  string
	APIKeyProd  string

	BotName            string
	MaxSnapshots       int
	BranchDesc         string
	BranchName         string
	Locale             string
	ReleaseDescription string
	RunAutomatedTests  bool
	LogLevel           string

	// Tool defaults, overridable through cogctl.toml.
	AgentDir        string
	FeatureDir      string
	MergeBaseDir    string
	GitRemote       string
	FreshnessWindow time.Duration

	raw map[string]string
}

// MissingVarsError reports environment variables that a command requires but
// that are unset or empty.
type MissingVarsError struct {
	Names []string
}

func (e *MissingVarsError) Error() string {
	return fmt.Sprintf("missing required environment variable(s): %s", strings.Join(e.Names, ", "))
}

// LoadEnv reads environment variables, merges cogctl.toml defaults, and
// validates the values that are present. Absent variables only become an
// error once a command calls Require.
func LoadEnv() (Env, error) {
	env := Env{
		BaseURLDev:         strings.TrimSpace(os.Getenv(EnvBaseURLDev)),
		BaseURLTest:        strings.TrimSpace(os.Getenv(EnvBaseURLTest)),
		BaseURLProd:        strings.TrimSpace(os.Getenv(EnvBaseURLProd)),
		APIKeyDev:          strings.TrimSpace(os.Getenv(EnvAPIKeyDev)),
		APIKeyTest:         strings.TrimSpace(os.Getenv(EnvAPIKeyTest)),
		APIKeyProd:         strings.TrimSpace(os.Getenv(EnvAPIKeyProd)),
		BotName:            strings.TrimSpace(os.Getenv(EnvBotName)),
		BranchDesc:         strings.TrimSpace(os.Getenv(EnvBranchDesc)),
		BranchName:         strings.TrimSpace(os.Getenv(EnvBranchName)),
		Locale:             strings.TrimSpace(os.Getenv(EnvLocale)),
		ReleaseDescription: strings.TrimSpace(os.Getenv(EnvReleaseDesc)),
		LogLevel:           strings.TrimSpace(os.Getenv(EnvLogLevel)),
		raw:                map[string]string{},
	}

	for _, name := range []string{
		EnvBaseURLDev, EnvBaseURLTest, EnvBaseURLProd,
		EnvAPIKeyDev, EnvAPIKeyTest, EnvAPIKeyProd,
		EnvBotName, EnvMaxSnapshots, EnvBranchDesc, EnvBranchName,
		EnvLocale, EnvReleaseDesc, EnvRunTests,
	} {
		env.raw[name] = strings.TrimSpace(os.Getenv(name))
	}

	if raw := env.raw[EnvMaxSnapshots]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Env{}, fmt.Errorf("%s must be a positive integer, got %q", EnvMaxSnapshots, raw)
		}
		env.MaxSnapshots = n
	}

	env.RunAutomatedTests = strings.EqualFold(env.raw[EnvRunTests], "true")

	if err := mergeTomlConfig(&env); err != nil {
		return Env{}, err
	}

	if env.AgentDir == "" {
		env.AgentDir = "agent"
	}
	if env.FeatureDir == "" {
		env.FeatureDir = "feature_agent"
	}
	if env.MergeBaseDir == "" {
		env.MergeBaseDir = "merge_base_dir"
	}
	if env.GitRemote == "" {
		env.GitRemote = "origin"
	}
	if env.FreshnessWindow == 0 {
		env.FreshnessWindow = 600 * time.Second
	}

	for name, value := range map[string]string{
		EnvBaseURLDev:  env.BaseURLDev,
		EnvBaseURLTest: env.BaseURLTest,
		EnvBaseURLProd: env.BaseURLProd,
	} {
		if value == "" {
			continue
		}
		if err := validateURL(value, name); err != nil {
			return Env{}, err
		}
	}

	return env, nil
}

// Require fails fast when any of the named variables is unset. All missing
// names are reported at once so the CI log shows the full gap, not the first.
func (e Env) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if e.raw[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingVarsError{Names: missing}
	}
	return nil
}

var trailingNewSegment = regexp.MustCompile(`/new/?$|/$`)

// CleanBaseURL strips trailing slashes and a trailing /new segment so the
// client can append its own API prefix deterministically.
func CleanBaseURL(base string) string {
	return trailingNewSegment.ReplaceAllString(strings.TrimSpace(base), "")
}

func validateURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be a valid absolute URL, got %q", name, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, raw)
	}
	return nil
}

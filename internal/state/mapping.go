// Package state reads and writes the small JSON files that tie a git
// repository to the Cognigy projects it mirrors: the committed bot mapping
// and the per-branch feature project marker.
package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

// BotMapping is the committed registry of every bot the repository manages.
// Keys are bot names as used in BOT_NAME.
type BotMapping map[string]BotEntry

// BotEntry describes one bot across the three environments. The playbook
// fields are all keyed by locale name and drive the automated test suite:
// Locales maps to the platform locale ID, PlaybookPrefixes selects playbooks
// by name prefix, PlaybookFlows names the entry flow each run executes in.
type BotEntry struct {
	DevProjectID     string              `json:"devProjectId"`
	TestProjectID    string              `json:"testProjectId"`
	ProdProjectID    string              `json:"prodProjectId"`
	Locales          map[string]string   `json:"locales,omitempty"`
	PlaybookPrefixes map[string][]string `json:"playbookPrefixes,omitempty"`
	PlaybookFlows    map[string]string   `json:"playbookFlows,omitempty"`
}

// LoadBotMapping reads bot_mapping.json from the repository root.
func LoadBotMapping(path string) (BotMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot mapping: %w", err)
	}
	var m BotMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Lookup returns the entry for the named bot.
func (m BotMapping) Lookup(bot string) (BotEntry, error) {
	entry, ok := m[bot]
	if !ok {
		return BotEntry{}, fmt.Errorf("bot %q not found in %s", bot, fsutil.BotMappingJSON)
	}
	return entry, nil
}

// ProjectID resolves the project identifier for one of dev, test, prod.
func (e BotEntry) ProjectID(environment string) (string, error) {
	switch environment {
	case "dev":
		if e.DevProjectID == "" {
			return "", fmt.Errorf("no dev project configured")
		}
		return e.DevProjectID, nil
	case "test":
		if e.TestProjectID == "" {
			return "", fmt.Errorf("no test project configured")
		}
		return e.TestProjectID, nil
	case "prod":
		if e.ProdProjectID == "" {
			return "", fmt.Errorf("no prod project configured")
		}
		return e.ProdProjectID, nil
	}
	return "", fmt.Errorf("unknown environment %q", environment)
}

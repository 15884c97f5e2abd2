package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleMapping = `{
  "support-bot": {
    "devProjectId": "proj-dev-1",
    "testProjectId": "proj-test-1",
    "prodProjectId": "proj-prod-1",
    "locales": {"en-US": "locale-en", "de-DE": "locale-de"},
    "playbookPrefixes": {"en-US": ["[EN]"], "de-DE": ["[DE]"]},
    "playbookFlows": {"en-US": "flow-en", "de-DE": "flow-de"}
  },
  "sales-bot": {
    "devProjectId": "proj-dev-2"
  }
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBotMapping(t *testing.T) {
	path := writeTemp(t, "bot_mapping.json", sampleMapping)
	m, err := LoadBotMapping(path)
	if err != nil {
		t.Fatalf("LoadBotMapping: %v", err)
	}

	entry, err := m.Lookup("support-bot")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := entry.ProjectID("test"); got != "proj-test-1" {
		t.Errorf("test project = %q", got)
	}
	if entry.Locales["de-DE"] != "locale-de" {
		t.Errorf("Locales = %v", entry.Locales)
	}
	if entry.PlaybookFlows["en-US"] != "flow-en" {
		t.Errorf("PlaybookFlows = %v", entry.PlaybookFlows)
	}
	if got := entry.PlaybookPrefixes["de-DE"]; len(got) != 1 || got[0] != "[DE]" {
		t.Errorf("PlaybookPrefixes = %v", entry.PlaybookPrefixes)
	}

	if _, err := m.Lookup("unknown-bot"); err == nil {
		t.Error("expected error for unknown bot")
	}

	sales, _ := m.Lookup("sales-bot")
	if _, err := sales.ProjectID("prod"); err == nil {
		t.Error("expected error for missing prod project")
	}
	if _, err := sales.ProjectID("staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestLoadBotMappingMalformed(t *testing.T) {
	path := writeTemp(t, "bot_mapping.json", "{not json")
	if _, err := LoadBotMapping(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFeatureMarkerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feature_branch_agent_id.json")

	if _, err := LoadFeatureMarker(path); !errors.Is(err, ErrNoFeatureMarker) {
		t.Fatalf("expected ErrNoFeatureMarker, got %v", err)
	}

	in := FeatureMarker{
		ProjectID: "proj-feature-9",
		Bot:       "support-bot",
		Branch:    "Feature/support-bot-new-intents",
		CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if err := SaveFeatureMarker(path, in); err != nil {
		t.Fatalf("SaveFeatureMarker: %v", err)
	}

	out, err := LoadFeatureMarker(path)
	if err != nil {
		t.Fatalf("LoadFeatureMarker: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestFeatureMarkerMissingID(t *testing.T) {
	path := writeTemp(t, "feature_branch_agent_id.json", `{"botName":"x"}`)
	if _, err := LoadFeatureMarker(path); err == nil {
		t.Fatal("expected error for marker without project id")
	}
}

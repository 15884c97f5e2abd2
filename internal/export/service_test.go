package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/platform"
	"github.com/dialogfabrik/cogctl/internal/testutil/httpmock"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// projectMux mocks a small project: one flow with an intent and a state,
// one lexicon, one extension, one knowledge store with a source, and one
// AI agent with a job and tool. Everything else is empty.
func projectMux() *http.ServeMux {
	mux := http.NewServeMux()
	empty := func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page())
	}

	mux.HandleFunc("GET /new/v2.0/flows", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "flow-1"}))
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "flow-1", "name": "Main Flow"})
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/settings", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "settings-1"})
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/chart", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{
			"relations": []any{map[string]any{"_id": "rel-1", "node": "node-1"}},
		})
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/chart/nodes/node-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "node-1", "type": "say"})
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/intents", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "intent-1", "name": "Greeting"}))
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/intents/intent-1/sentences", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "s-1", "text": "hello"}))
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/states", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "state-1", "name": "Start"}))
	})
	mux.HandleFunc("GET /new/v2.0/flows/flow-1/states/state-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "state-1", "name": "Start"})
	})

	mux.HandleFunc("GET /new/v2.0/lexicons", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "lex-1"}))
	})
	mux.HandleFunc("GET /new/v2.0/lexicons/lex-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "lex-1", "name": "Colors"})
	})
	mux.HandleFunc("GET /new/v2.0/extensions", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "ext-1"}))
	})
	mux.HandleFunc("GET /new/v2.0/extensions/ext-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "ext-1", "name": "webchat"})
	})
	mux.HandleFunc("GET /new/v2.0/connections", empty)
	mux.HandleFunc("GET /new/v2.0/nluconnectors", empty)
	mux.HandleFunc("GET /new/v2.0/largelanguagemodels", empty)
	mux.HandleFunc("GET /new/v2.0/functions", empty)
	mux.HandleFunc("GET /new/v2.0/locales", empty)

	mux.HandleFunc("GET /new/v2.0/knowledgestores", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "ks-1"}))
	})
	mux.HandleFunc("GET /new/v2.0/knowledgestores/ks-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "ks-1", "name": "FAQ"})
	})
	mux.HandleFunc("GET /new/v2.0/knowledgestores/ks-1/sources", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "src-1", "name": "handbook"}))
	})
	mux.HandleFunc("GET /new/v2.0/knowledgestores/ks-1/sources/src-1/chunks", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "chunk-1", "text": "..."}))
	})

	mux.HandleFunc("GET /new/v2.0/aiagents", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "agent-1"}))
	})
	mux.HandleFunc("GET /new/v2.0/aiagents/agent-1", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "agent-1", "name": "Concierge"})
	})
	mux.HandleFunc("GET /new/v2.0/aiagents/agent-1/jobs", func(w http.ResponseWriter, r *http.Request) {
		httpmock.WriteJSON(w, http.StatusOK, []any{
			map[string]any{
				"config": map[string]any{"name": "Greeter"},
				"tools": []any{
					map[string]any{"config": map[string]any{"toolId": "lookup"}},
				},
			},
		})
	})
	return mux
}

func testService(t *testing.T) *Service {
	t.Helper()
	stubClient, _ := httpmock.New(projectMux())
	client, err := platform.NewClient(httpmock.BaseURL, "key", "proj-1",
		platform.WithHTTPClient(stubClient),
		platform.WithSleep(func(time.Duration) {}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return &Service{
		Client:  client,
		Console: console.New(io.Discard, io.Discard),
		Log:     zerolog.Nop(),
	}
}

func TestExportTreeLayout(t *testing.T) {
	tree := filepath.Join(t.TempDir(), "agent")
	svc := testService(t)

	result, err := svc.ExportTree(context.Background(), tree)
	if err != nil {
		t.Fatalf("ExportTree: %v", err)
	}

	for _, rel := range []string{
		"flows/Main-Flow/metadata/metadata.json",
		"flows/Main-Flow/chart/chart.json",
		"flows/Main-Flow/settings/settings.json",
		"flows/Main-Flow/intents/intents.json",
		"flows/Main-Flow/states/states.json",
		"lexicons/Colors.json",
		"extensions/webchat.json",
		"knowledgestores/FAQ/metadata.json",
		"knowledgestores/FAQ/handbook.json",
		"aiagents/Concierge/config.json",
		"aiagents/Concierge/jobs/Greeter_0/config.json",
		"aiagents/Concierge/jobs/Greeter_0/tools/lookup_0.json",
	} {
		path := filepath.Join(tree, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", rel, err)
		}
	}

	if result.Counts[platform.EndpointFlows] != 1 {
		t.Errorf("flow count = %d", result.Counts[platform.EndpointFlows])
	}

	// Functions, locales and extensions never enter a package.
	for _, id := range result.PackageResourceIDs {
		if id == "ext-1" {
			t.Error("extensions must not be packaged")
		}
	}
	want := map[string]bool{"flow-1": true, "lex-1": true, "ks-1": true, "agent-1": true}
	for _, id := range result.PackageResourceIDs {
		delete(want, id)
	}
	if len(want) != 0 {
		t.Errorf("package ids missing: %v (got %v)", want, result.PackageResourceIDs)
	}
}

func TestExportTreeResetsPreviousRun(t *testing.T) {
	tree := filepath.Join(t.TempDir(), "agent")
	stale := filepath.Join(tree, "flows", "Removed Flow", "metadata", "metadata.json")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := testService(t).ExportTree(context.Background(), tree); err != nil {
		t.Fatalf("ExportTree: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale files must be removed by the export")
	}
}

func TestExportChartWritesInlinedNodes(t *testing.T) {
	tree := filepath.Join(t.TempDir(), "agent")
	if _, err := testService(t).ExportTree(context.Background(), tree); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(tree, "flows", "Main-Flow", "chart", "chart.json"))
	if err != nil {
		t.Fatal(err)
	}
	var chart []map[string]any
	if err := json.Unmarshal(data, &chart); err != nil {
		t.Fatal(err)
	}
	if len(chart) != 1 || chart[0]["_id"] != "node-1" {
		t.Fatalf("unexpected chart: %v", chart)
	}
	if _, ok := chart[0]["_data"].(map[string]any); !ok {
		t.Fatal("chart node content must be inlined under _data")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	tree := t.TempDir()
	m := NewManifest("support-bot", "proj-1", map[string]int{"flows": 3})
	m.Snapshot = "support-bot_14_03_2026"
	m.Package = "Cognigy-CI-CD-Package_support-bot_20260314_093015"
	m.PackageSHA256 = "a3f1"
	m.SnapshotSHA256 = "b7c2"
	if err := m.Write(tree); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadManifest(tree)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.RunID != m.RunID || got.Bot != "support-bot" || got.Counts["flows"] != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Snapshot != m.Snapshot || got.Package != m.Package {
		t.Fatalf("artifact names lost: %+v", got)
	}
	if got.PackageSHA256 != "a3f1" || got.SnapshotSHA256 != "b7c2" {
		t.Fatalf("artifact digests lost: %+v", got)
	}
	if _, err := os.Stat(filepath.Join(tree, fsutil.ManifestYAML)); err != nil {
		t.Fatal(err)
	}
}

package platform

import (
	"context"
	"net/http"
	"testing"
)

func playbookMux(t *testing.T, statuses map[string]string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /new/v2.0/playbooks", func(w http.ResponseWriter, r *http.Request) {
		writeJSONPage(w,
			map[string]any{"_id": "pb-1", "name": "[EN] greeting"},
			map[string]any{"_id": "pb-2", "name": "[EN] handover"},
			map[string]any{"_id": "pb-3", "name": "unrelated playbook"},
		)
	})
	mux.HandleFunc("POST /new/v2.0/playbooks/{id}/schedule", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"_id": "task-" + r.PathValue("id")})
	})
	mux.HandleFunc("GET /new/v2.0/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]string{"playbookRunId": "run-" + r.PathValue("id")}})
	})
	mux.HandleFunc("GET /new/v2.0/playbooks/{id}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": statuses[r.PathValue("id")]})
	})
	return mux
}

func testSuite() PlaybookSuite {
	return PlaybookSuite{
		Locales:  map[string]string{"en-US": "locale-en"},
		Prefixes: map[string][]string{"en-US": {"[EN]"}},
		Flows:    map[string]string{"en-US": "flow-en"},
	}
}

func TestRunPlaybookSuiteAllPass(t *testing.T) {
	t.Parallel()

	client := testClient(t, playbookMux(t, map[string]string{"pb-1": "successful", "pb-2": "successful"}))
	runs, passed, err := client.RunPlaybookSuite(context.Background(), testSuite())
	if err != nil {
		t.Fatalf("RunPlaybookSuite: %v", err)
	}
	if !passed {
		t.Fatal("expected suite to pass")
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 matched playbooks, got %d", len(runs))
	}
	for _, run := range runs {
		if !run.Passed() {
			t.Errorf("run %s status %q", run.Name, run.Status)
		}
	}
}

func TestRunPlaybookSuiteReportsFailure(t *testing.T) {
	t.Parallel()

	client := testClient(t, playbookMux(t, map[string]string{"pb-1": "successful", "pb-2": "failed"}))
	runs, passed, err := client.RunPlaybookSuite(context.Background(), testSuite())
	if err != nil {
		t.Fatal(err)
	}
	if passed {
		t.Fatal("suite must fail when any run fails")
	}
	failures := 0
	for _, run := range runs {
		if !run.Passed() {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d", failures)
	}
}

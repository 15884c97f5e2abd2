package platform

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dialogfabrik/cogctl/internal/testutil/httpmock"
)

func testClient(t *testing.T, handler http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	stubClient, _ := httpmock.New(handler)
	opts = append([]ClientOption{
		WithHTTPClient(stubClient),
		WithSleep(func(time.Duration) {}),
	}, opts...)
	client, err := NewClient(httpmock.BaseURL, "secret-key", "proj-1", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClientSendsAPIKey(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/new/v2.0/flows" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-KEY"); got != "secret-key" {
			t.Fatalf("missing api key header: %q", got)
		}
		if got := r.URL.Query().Get("projectId"); got != "proj-1" {
			t.Fatalf("missing projectId param: %q", got)
		}
		httpmock.WriteJSON(w, http.StatusOK, httpmock.Page(map[string]any{"_id": "flow-1"}))
	}))

	ids, err := client.ResourceIDs(context.Background(), EndpointFlows)
	if err != nil {
		t.Fatalf("ResourceIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "flow-1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestClientBaseURLNormalised(t *testing.T) {
	t.Parallel()

	for _, base := range []string{
		"https://api.example.com",
		"https://api.example.com/",
		"https://api.example.com/new",
	} {
		client, err := NewClient(base, "key", "proj-1")
		if err != nil {
			t.Fatalf("NewClient(%q): %v", base, err)
		}
		got := client.buildURL("flows", nil)
		if got != "https://api.example.com/new/v2.0/flows" {
			t.Errorf("buildURL for base %q = %q", base, got)
		}
	}
}

func TestClientFollowsPagination(t *testing.T) {
	t.Parallel()

	calls := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("next") {
		case "":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{
				"items":      []any{map[string]any{"_id": "lex-1"}},
				"total":      2,
				"nextCursor": "cursor-2",
			})
		case "cursor-2":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{
				"items": []any{map[string]any{"_id": "lex-2"}},
				"total": 2,
			})
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("next"))
		}
	}))

	ids, err := client.ResourceIDs(context.Background(), EndpointLexicons)
	if err != nil {
		t.Fatalf("ResourceIDs: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 pages, got %d", calls)
	}
	if len(ids) != 2 || ids[0] != "lex-1" || ids[1] != "lex-2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	calls := 0
	stubClient, _ := httpmock.New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "conn-1", "name": "crm"})
	}))
	client, err := NewClient(httpmock.BaseURL, "key", "proj-1",
		WithHTTPClient(stubClient),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := client.FetchResource(context.Background(), EndpointConnections, "conn-1")
	if err != nil {
		t.Fatalf("FetchResource after retries: %v", err)
	}
	if doc["name"] != "crm" {
		t.Fatalf("unexpected doc: %v", doc)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	for _, d := range slept {
		if d != retryBackoff {
			t.Fatalf("unexpected backoff %v", d)
		}
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchResource(context.Background(), EndpointLexicons, "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls)
	}
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("StatusOf = %d", StatusOf(err))
	}
}

func TestClientGivesUpAfterRetriesExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.FetchResource(context.Background(), EndpointLexicons, "lex-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != retryAttempts {
		t.Fatalf("expected %d attempts, got %d", retryAttempts, calls)
	}
}

func TestFetchFlowChartNodeRename(t *testing.T) {
	t.Parallel()

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/new/v2.0/flows/flow-1":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "flow-1", "name": "Main Flow"})
		case "/new/v2.0/flows/flow-1/settings":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "settings-1"})
		case "/new/v2.0/flows/flow-1/chart":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{
				"relations": []any{
					map[string]any{"_id": "rel-1", "node": "node-7", "parent": nil},
				},
			})
		case "/new/v2.0/flows/flow-1/chart/nodes/node-7":
			httpmock.WriteJSON(w, http.StatusOK, map[string]any{"_id": "node-7", "type": "say"})
		case "/new/v2.0/flows/flow-1/intents":
			httpmock.WriteJSON(w, http.StatusOK, httpmock.Page())
		case "/new/v2.0/flows/flow-1/states":
			httpmock.WriteJSON(w, http.StatusOK, httpmock.Page())
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))

	bundle, err := client.FetchFlow(context.Background(), "flow-1")
	if err != nil {
		t.Fatalf("FetchFlow: %v", err)
	}
	name, err := bundle.Name()
	if err != nil || name != "Main Flow" {
		t.Fatalf("Name = %q, %v", name, err)
	}
	if len(bundle.Chart) != 1 {
		t.Fatalf("chart entries: %d", len(bundle.Chart))
	}
	entry := bundle.Chart[0]
	if entry["_id"] != "node-7" {
		t.Errorf("relation _id must be the node id, got %v", entry["_id"])
	}
	if _, ok := entry["node"]; ok {
		t.Error("node key must be removed after rename")
	}
	data, ok := entry["_data"].(map[string]any)
	if !ok || data["type"] != "say" {
		t.Errorf("node content not inlined: %v", entry["_data"])
	}
}

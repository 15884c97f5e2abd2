package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreatePackageName(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/new/v2.0/packages" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}), WithClock(fixedClock(time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC))))

	name, err := client.CreatePackage(context.Background(), "support-bot", "pipeline run abc", []string{"flow-1", "lex-1"})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	want := "Cognigy-CI-CD-Package_support-bot_20260314_093015"
	if name != want {
		t.Fatalf("package name = %q, want %q", name, want)
	}
	if payload["name"] != want || payload["projectId"] != "proj-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	ids, _ := payload["resourceIds"].([]any)
	if len(ids) != 2 {
		t.Fatalf("resourceIds = %v", payload["resourceIds"])
	}
}

// The platform reports a download link before the archive is fully written.
// A zero-size read retries, the first non-zero read is provisional, and the
// download is accepted once two consecutive reads agree.
func TestDownloadPackageWaitsForStableSize(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 120_000, 120_000}
	downloads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /new/v2.0/packages", func(w http.ResponseWriter, r *http.Request) {
		writeJSONPage(w, map[string]any{"_id": "pkg-1", "name": "the-package"})
	})
	mux.HandleFunc("POST /new/v2.0/packages/pkg-1/downloadLink", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"downloadLink": "https://mock.cognigy.local/files/the-package.zip"})
	})
	mux.HandleFunc("GET /files/the-package.zip", func(w http.ResponseWriter, r *http.Request) {
		if downloads >= len(sizes) {
			t.Fatal("archive downloaded more often than expected")
		}
		_, _ = w.Write(make([]byte, sizes[downloads]))
		downloads++
	})

	client := testClient(t, mux)
	dest := t.TempDir()
	path, err := client.DownloadPackage(context.Background(), "the-package", dest)
	if err != nil {
		t.Fatalf("DownloadPackage: %v", err)
	}
	if downloads != 3 {
		t.Fatalf("expected 3 downloads, got %d", downloads)
	}
	if filepath.Base(path) != "the-package.zip" {
		t.Fatalf("unexpected path: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 120_000 {
		t.Fatalf("final archive size = %d", info.Size())
	}
}

func TestDownloadPackageWaitsForListing(t *testing.T) {
	t.Parallel()

	listCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /new/v2.0/packages", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		if listCalls < 3 {
			writeJSONPage(w, map[string]any{"_id": "old", "name": "previous-package"})
			return
		}
		writeJSONPage(w, map[string]any{"_id": "pkg-2", "name": "fresh-package"})
	})
	mux.HandleFunc("POST /new/v2.0/packages/pkg-2/downloadLink", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"downloadLink": "https://mock.cognigy.local/files/fresh.zip"})
	})
	served := 0
	mux.HandleFunc("GET /files/fresh.zip", func(w http.ResponseWriter, r *http.Request) {
		served++
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	})

	client := testClient(t, mux)
	if _, err := client.DownloadPackage(context.Background(), "fresh-package", t.TempDir()); err != nil {
		t.Fatalf("DownloadPackage: %v", err)
	}
	if listCalls != 3 {
		t.Fatalf("expected 3 listing polls, got %d", listCalls)
	}
	if served != 2 {
		t.Fatalf("expected 2 downloads (provisional + stable), got %d", served)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONPage(w http.ResponseWriter, items ...any) {
	writeJSON(w, map[string]any{"items": items, "total": len(items)})
}

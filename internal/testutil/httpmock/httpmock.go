// Package httpmock routes HTTP requests to an in-process handler so platform
// client tests run without network sockets.
package httpmock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
)

// BaseURL is the canonical URL used by HTTP mocks. Tests point their client
// configuration at this URL.
const BaseURL = "https://mock.cognigy.local"

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// New constructs an HTTP client and transport that route requests to the supplied handler without opening network sockets.
// The returned client and transport can be injected into production code during tests.
func New(handler http.Handler) (*http.Client, http.RoundTripper) {
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}

	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		resp := rec.Result()
		resp.Request = req
		return resp, nil
	})

	return &http.Client{Transport: transport}, transport
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Page wraps items in the platform's paginated list envelope.
func Page(items ...any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{
		"items":      items,
		"total":      len(items),
		"nextCursor": nil,
	}
}

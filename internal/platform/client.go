// Package platform implements the HTTP client for the Cognigy.AI REST API:
// resource listing and extraction, packages, snapshots, projects and
// playbook runs. All calls authenticate with an X-API-KEY header and target
// the v2.0 API prefix.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/config"
	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	maxErrorBodyBytes  = 512 << 10

	apiPrefix = "new/v2.0"
	pageLimit = 100

	retryAttempts = 3
	retryBackoff  = 5 * time.Second
)

var defaultTransport http.RoundTripper = http.DefaultTransport

// SetTransportForTesting overrides the transport used for outbound HTTP calls. The caller must invoke the returned
// cleanup function to restore the previous transport when finished.
func SetTransportForTesting(rt http.RoundTripper) func() {
	prev := defaultTransport
	if rt == nil {
		rt = http.DefaultTransport
	}
	defaultTransport = rt
	return func() {
		defaultTransport = prev
	}
}

// Client wraps HTTP access to one Cognigy project in one environment.
type Client struct {
	base      *url.URL
	http      *http.Client
	projectID string

	sleep func(time.Duration)
	now   func() time.Time
	log   zerolog.Logger
}

// ClientOption customises the client behaviour.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithSleep replaces the delay function used between retries and polls.
// Tests inject a no-op to keep polling scenarios fast.
func WithSleep(sleep func(time.Duration)) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithClock replaces the time source used for snapshot and package names.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a structured logger for retry and poll diagnostics.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient constructs a platform client for the given project. The base URL
// may carry a trailing slash or /new segment; both are normalised away
// before the API prefix is appended.
func NewClient(baseURL, apiKey, projectID string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	u, err := url.Parse(config.CleanBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := &Client{
		base:      u,
		projectID: projectID,
		http: &http.Client{
			Timeout: defaultHTTPTimeout,
			Transport: &authTransport{
				base:   defaultTransport,
				apiKey: apiKey,
			},
		},
		sleep: time.Sleep,
		now:   time.Now,
		log:   zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	// Ensure custom transport also carries the key
	if _, ok := client.http.Transport.(*authTransport); !ok {
		client.http.Transport = &authTransport{
			base:   client.http.Transport,
			apiKey: apiKey,
		}
	}

	return client, nil
}

// ProjectID returns the project this client operates on.
func (c *Client) ProjectID() string {
	return c.projectID
}

type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.base == nil {
		t.base = defaultTransport
	}
	req2 := cloneRequest(req)
	req2.Header.Set("X-API-KEY", t.apiKey)
	req2.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req2)
}

func cloneRequest(r *http.Request) *http.Request {
	r2 := r.Clone(r.Context())
	if r.Body != nil {
		buf, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewBuffer(buf))
		r2.Body = io.NopCloser(bytes.NewBuffer(buf))
	}
	return r2
}

func (c *Client) buildURL(p string, query map[string]string) string {
	u := *c.base
	u.Path = path.Join(c.base.Path, apiPrefix, p)
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do issues one API request and decodes the JSON response into dest.
// Temporary failures (5xx, 429) are retried a fixed number of times with a
// fixed backoff; client errors propagate immediately.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body any, dest any) error {
	return c.withRetry(method+" "+path, func() error {
		return c.doOnce(ctx, method, path, query, body, dest)
	})
}

// withRetry applies the client's bounded-retry policy to fn. Every vendor
// call goes through it, including the multipart upload and presigned-link
// downloads that bypass the JSON path.
func (c *Client) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			c.log.Debug().Str("op", op).Int("attempt", attempt).
				Msg("retrying platform request")
			c.sleep(retryBackoff)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		apiErr, ok := lastErr.(*APIError)
		if !ok || !apiErr.Temporary() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, query map[string]string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, networkError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(bytes.TrimSpace(payload)),
		}
	}

	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

type page struct {
	Items      []json.RawMessage `json:"items"`
	Total      int               `json:"total"`
	NextCursor string            `json:"nextCursor"`
}

// list walks a paginated collection endpoint, following nextCursor until
// the collection is exhausted.
func (c *Client) list(ctx context.Context, endpoint string, query map[string]string) ([]json.RawMessage, error) {
	params := map[string]string{
		"limit":     strconv.Itoa(pageLimit),
		"projectId": c.projectID,
	}
	for k, v := range query {
		params[k] = v
	}

	var all []json.RawMessage
	for {
		var pg page
		if err := c.do(ctx, http.MethodGet, endpoint, params, nil, &pg); err != nil {
			return nil, err
		}
		all = append(all, pg.Items...)
		if pg.NextCursor == "" || len(pg.Items) >= pg.Total {
			return all, nil
		}
		params["next"] = pg.NextCursor
	}
}

// listDocs is list with each item decoded into a generic document.
func (c *Client) listDocs(ctx context.Context, endpoint string, query map[string]string) ([]map[string]any, error) {
	raw, err := c.list(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		var doc map[string]any
		if err := json.Unmarshal(item, &doc); err != nil {
			return nil, fmt.Errorf("decode %s item: %w", endpoint, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// downloadTo streams a presigned download link into destPath and returns the
// number of bytes written. Links are absolute URLs outside the API prefix.
func (c *Client) downloadTo(ctx context.Context, link, destPath string) (int64, error) {
	var n int64
	err := c.withRetry("GET "+link, func() error {
		var err error
		n, err = c.downloadOnce(ctx, link, destPath)
		return err
	})
	return n, err
}

func (c *Client) downloadOnce(ctx context.Context, link, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", networkError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return 0, &APIError{Method: http.MethodGet, Path: link, Status: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
	}

	if err := fsutil.EnsureParentDir(destPath); err != nil {
		return 0, err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", destPath, err)
	}
	return n, nil
}

func networkError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("request timeout: %w", err)
	}
	return err
}

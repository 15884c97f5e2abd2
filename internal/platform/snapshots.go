package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	snapshotPollDelay   = 5 * time.Second
	snapshotDeletePoll  = 2 * time.Second
	conflictMaxRetries  = 5
	placeholderResponse = "csnap"
)

// Snapshot is one entry in the project's snapshot listing, newest first.
type Snapshot struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// ListSnapshots returns the project's snapshots in the order the platform
// reports them (newest first).
func (c *Client) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	params := map[string]string{
		"limit":     strconv.Itoa(pageLimit),
		"projectId": c.projectID,
	}
	var pg struct {
		Items []Snapshot `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "snapshots", params, nil, &pg); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return pg.Items, nil
}

// EnsureSnapshotLimit deletes the oldest snapshot when the project is at its
// limit, then polls until the deletion is visible. Nothing happens below the
// limit.
func (c *Client) EnsureSnapshotLimit(ctx context.Context, maxSnapshots int) error {
	snapshots, err := c.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	c.log.Debug().Int("count", len(snapshots)).Int("max", maxSnapshots).Msg("snapshot limit check")
	if len(snapshots) < maxSnapshots {
		return nil
	}

	oldest := snapshots[len(snapshots)-1]
	if err := c.do(ctx, http.MethodDelete, "snapshots/"+oldest.ID, nil, nil, nil); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", oldest.Name, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining, err := c.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		if len(remaining) < maxSnapshots {
			c.log.Info().Str("snapshot", oldest.Name).Msg("deleted oldest snapshot")
			return nil
		}
		c.sleep(snapshotDeletePoll)
	}
}

// NextSnapshotName derives a date-based name unique among the existing
// snapshots: <bot>_<dd_mm_yyyy>, with a numeric suffix when taken.
func NextSnapshotName(bot string, day time.Time, existing []Snapshot) string {
	base := fmt.Sprintf("%s_%s", bot, day.Format("02_01_2006"))
	taken := map[string]bool{}
	for _, s := range existing {
		taken[s.Name] = true
	}
	if !taken[base] {
		return base
	}
	for suffix := 1; ; suffix++ {
		name := fmt.Sprintf("%s_%d", base, suffix)
		if !taken[name] {
			return name
		}
	}
}

// CreateSnapshot enforces the snapshot limit, creates a snapshot under a
// fresh date-based name and waits until it appears in the listing. Returns
// the snapshot's name and ID.
func (c *Client) CreateSnapshot(ctx context.Context, bot, description string, maxSnapshots int) (Snapshot, error) {
	if err := c.EnsureSnapshotLimit(ctx, maxSnapshots); err != nil {
		return Snapshot{}, err
	}
	existing, err := c.ListSnapshots(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	name := NextSnapshotName(bot, c.now(), existing)

	payload := map[string]string{
		"name":        name,
		"description": description,
		"projectId":   c.projectID,
	}
	if err := c.do(ctx, http.MethodPost, "snapshots", nil, payload, nil); err != nil {
		return Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	c.log.Info().Str("snapshot", name).Msg("snapshot creation requested")

	snap, err := c.waitForSnapshot(ctx, name)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) waitForSnapshot(ctx context.Context, name string) (Snapshot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		snapshots, err := c.ListSnapshots(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		for _, s := range snapshots {
			if s.Name == name {
				return s, nil
			}
		}
		c.log.Debug().Str("snapshot", name).Msg("snapshot not listed yet")
		c.sleep(snapshotPollDelay)
	}
}

// DownloadSnapshot packages the snapshot and downloads the .csnap file to
// destDir. The downloadLink endpoint answers 409 while a previous packaging
// task is active and may serve a literal "csnap" placeholder until the
// archive is ready; both are retried.
func (c *Client) DownloadSnapshot(ctx context.Context, snap Snapshot, destDir string) (string, error) {
	if err := c.do(ctx, http.MethodPost, "snapshots/"+snap.ID+"/package", nil, nil, nil); err != nil {
		return "", fmt.Errorf("package snapshot %s: %w", snap.Name, err)
	}

	destPath := filepath.Join(destDir, snap.Name+".csnap")
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		link, err := c.snapshotDownloadLink(ctx, snap.ID)
		if err != nil {
			return "", err
		}
		if _, err := c.downloadTo(ctx, link, destPath); err != nil {
			return "", err
		}

		content, err := os.ReadFile(destPath)
		if err != nil {
			return "", fmt.Errorf("read snapshot file: %w", err)
		}
		if string(bytes.TrimSpace(content)) == placeholderResponse {
			c.log.Debug().Str("snapshot", snap.Name).Msg("placeholder body, snapshot still packaging")
			c.sleep(snapshotPollDelay)
			continue
		}
		c.log.Info().Str("snapshot", snap.Name).Str("path", destPath).Msg("snapshot downloaded")
		return destPath, nil
	}
}

func (c *Client) snapshotDownloadLink(ctx context.Context, snapshotID string) (string, error) {
	var linkResp struct {
		DownloadLink string `json:"downloadLink"`
	}
	for attempt := 1; ; attempt++ {
		err := c.do(ctx, http.MethodPost, "snapshots/"+snapshotID+"/downloadLink", nil, nil, &linkResp)
		if err == nil {
			return linkResp.DownloadLink, nil
		}
		if !IsConflict(err) || attempt >= conflictMaxRetries {
			return "", fmt.Errorf("snapshot download link: %w", err)
		}
		c.log.Debug().Int("attempt", attempt).Msg("packaging still in progress (409), retrying")
		c.sleep(snapshotPollDelay)
	}
}

// UploadSnapshot pushes a local .csnap file into the client's project via
// multipart upload.
func (c *Client) UploadSnapshot(ctx context.Context, csnapPath string) error {
	f, err := os.Open(csnapPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("projectId", c.projectID); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(csnapPath))
	if err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}

	// The form bytes are kept so each retry sends a fresh body.
	form := buf.Bytes()
	err = c.withRetry("POST snapshots/upload", func() error {
		return c.uploadSnapshotOnce(ctx, form, mw.FormDataContentType())
	})
	if err != nil {
		return err
	}
	c.log.Info().Str("file", filepath.Base(csnapPath)).Msg("snapshot uploaded")
	return nil
}

func (c *Client) uploadSnapshotOnce(ctx context.Context, form []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("snapshots/upload", nil), bytes.NewReader(form))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", networkError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{Method: http.MethodPost, Path: "snapshots/upload", Status: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RestoreSnapshot waits until the named snapshot is visible in the project
// (uploads register asynchronously) and triggers its restore.
func (c *Client) RestoreSnapshot(ctx context.Context, name string) error {
	snap, err := c.waitForSnapshot(ctx, name)
	if err != nil {
		return err
	}
	payload := map[string]string{"projectId": c.projectID}
	if err := c.do(ctx, http.MethodPost, "snapshots/"+snap.ID+"/restore", nil, payload, nil); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", name, err)
	}
	c.log.Info().Str("snapshot", name).Msg("snapshot restore initiated")
	return nil
}

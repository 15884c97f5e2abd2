package platform

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
)

const (
	packageNamePrefix = "Cognigy-CI-CD-Package"
	pollDelay         = 5 * time.Second
)

// CreatePackage requests a package containing the given resources and
// returns its timestamped name. Packaging is asynchronous; DownloadPackage
// polls for the result.
func (c *Client) CreatePackage(ctx context.Context, bot, description string, resourceIDs []string) (string, error) {
	name := fmt.Sprintf("%s_%s_%s", packageNamePrefix, bot, c.now().Format("20060102_150405"))
	payload := map[string]any{
		"name":        name,
		"description": description,
		"resourceIds": resourceIDs,
		"projectId":   c.projectID,
	}
	if err := c.do(ctx, http.MethodPost, "packages", nil, payload, nil); err != nil {
		return "", fmt.Errorf("create package: %w", err)
	}
	c.log.Info().Str("package", name).Int("resources", len(resourceIDs)).Msg("package creation requested")
	return name, nil
}

// DownloadPackage waits until the named package is listed, then downloads it
// to destDir. The platform keeps writing into the archive while it reports a
// download link, so a download only counts once two consecutive reads see
// the same non-zero size.
func (c *Client) DownloadPackage(ctx context.Context, name, destDir string) (string, error) {
	packageID, err := c.waitForPackage(ctx, name)
	if err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, name+".zip")
	var prevSize int64
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var linkResp struct {
			DownloadLink string `json:"downloadLink"`
		}
		if err := c.do(ctx, http.MethodPost, "packages/"+packageID+"/downloadLink", nil,
			map[string]string{"packageId": packageID}, &linkResp); err != nil {
			return "", fmt.Errorf("package download link: %w", err)
		}
		size, err := c.downloadTo(ctx, linkResp.DownloadLink, destPath)
		if err != nil {
			return "", err
		}

		sizeKB := size / 1000
		c.log.Debug().Int64("kilobytes", sizeKB).Str("package", name).Msg("package downloaded")
		switch {
		case sizeKB == 0:
			c.log.Debug().Msg("package archive empty, retrying")
		case prevSize == 0:
			prevSize = sizeKB
		case sizeKB != prevSize:
			prevSize = sizeKB
		default:
			return destPath, nil
		}
		c.sleep(pollDelay)
	}
}

// waitForPackage polls the package listing until the newest entry carries
// the expected name.
func (c *Client) waitForPackage(ctx context.Context, name string) (string, error) {
	params := map[string]string{
		"limit":     strconv.Itoa(1),
		"projectId": c.projectID,
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var pg struct {
			Items []struct {
				ID   string `json:"_id"`
				Name string `json:"name"`
			} `json:"items"`
		}
		if err := c.do(ctx, http.MethodGet, "packages", params, nil, &pg); err != nil {
			return "", fmt.Errorf("list packages: %w", err)
		}
		if len(pg.Items) > 0 && pg.Items[0].Name == name {
			return pg.Items[0].ID, nil
		}
		c.sleep(pollDelay)
	}
}

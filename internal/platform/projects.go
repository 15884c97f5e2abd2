package platform

import (
	"context"
	"fmt"
	"net/http"
)

// FeatureProjectName formats the platform project name used for feature
// branch agents.
func FeatureProjectName(bot, branchDesc string) string {
	return fmt.Sprintf("Dev-Branch[%s][%s]", bot, branchDesc)
}

// CreateProject creates an empty platform project for a feature branch agent
// and returns its ID. The project is populated afterwards by uploading and
// restoring a snapshot of the base agent.
func (c *Client) CreateProject(ctx context.Context, name, locale string) (string, error) {
	payload := map[string]string{
		"name":   name,
		"color":  "purple",
		"locale": locale,
	}
	var created struct {
		ID string `json:"_id"`
	}
	if err := c.do(ctx, http.MethodPost, "projects", nil, payload, &created); err != nil {
		return "", fmt.Errorf("create project %s: %w", name, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create project %s: response without _id", name)
	}
	c.log.Info().Str("project", name).Str("id", created.ID).Msg("project created")
	return created.ID, nil
}

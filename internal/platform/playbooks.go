package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	taskPollRetries = 5
	taskPollDelay   = 2 * time.Second
	runPollRetries  = 10
	runPollDelay    = 2 * time.Second
)

// PlaybookSuite selects the playbooks to run per locale and where to run
// them. All maps are keyed by locale name (e.g. "en-US").
type PlaybookSuite struct {
	// Locales maps locale name to the platform locale ID.
	Locales map[string]string
	// Prefixes filters playbooks by name substring per locale.
	Prefixes map[string][]string
	// Flows names the entry flow ID each run executes in.
	Flows map[string]string
}

// PlaybookRun is the outcome of one scheduled playbook.
type PlaybookRun struct {
	Locale string
	Name   string
	ID     string
	RunID  string
	Status string
}

// Passed reports whether the run finished successfully.
func (r PlaybookRun) Passed() bool {
	return r.Status == "successful"
}

// RunPlaybookSuite schedules every matching playbook per locale, waits for
// the runs to finish and returns their outcomes. The second return value is
// true only when every run passed.
func (c *Client) RunPlaybookSuite(ctx context.Context, suite PlaybookSuite) ([]PlaybookRun, bool, error) {
	matched, err := c.matchPlaybooks(ctx, suite)
	if err != nil {
		return nil, false, err
	}

	var runs []PlaybookRun
	for _, pb := range matched {
		runID, err := c.schedulePlaybook(ctx, pb, suite)
		if err != nil {
			return nil, false, fmt.Errorf("schedule playbook %s: %w", pb.Name, err)
		}
		pb.RunID = runID
		runs = append(runs, pb)
	}

	allPassed := true
	for i := range runs {
		status, err := c.waitForRun(ctx, runs[i].ID, runs[i].RunID)
		if err != nil {
			return nil, false, fmt.Errorf("playbook %s: %w", runs[i].Name, err)
		}
		runs[i].Status = status
		if !runs[i].Passed() {
			allPassed = false
			c.log.Warn().Str("playbook", runs[i].Name).Str("status", status).Msg("playbook run did not pass")
		}
	}
	return runs, allPassed, nil
}

// matchPlaybooks lists the project's playbooks and selects those whose name
// contains one of the locale's prefixes.
func (c *Client) matchPlaybooks(ctx context.Context, suite PlaybookSuite) ([]PlaybookRun, error) {
	docs, err := c.listDocs(ctx, "playbooks", nil)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}

	var matched []PlaybookRun
	for locale := range suite.Locales {
		prefixes := suite.Prefixes[locale]
		for _, doc := range docs {
			name, _ := doc["name"].(string)
			id, _ := doc["_id"].(string)
			if name == "" || id == "" {
				continue
			}
			for _, prefix := range prefixes {
				if strings.Contains(name, prefix) {
					matched = append(matched, PlaybookRun{Locale: locale, Name: name, ID: id})
					break
				}
			}
		}
	}
	return matched, nil
}

// schedulePlaybook starts one playbook run and resolves the run ID from the
// resulting task, which may take a few polls to carry it.
func (c *Client) schedulePlaybook(ctx context.Context, pb PlaybookRun, suite PlaybookSuite) (string, error) {
	payload := map[string]string{
		"entrypoint": c.projectID,
		"flowId":     suite.Flows[pb.Locale],
		"localeId":   suite.Locales[pb.Locale],
	}
	var task struct {
		ID string `json:"_id"`
	}
	if err := c.do(ctx, http.MethodPost, "playbooks/"+pb.ID+"/schedule", nil, payload, &task); err != nil {
		return "", err
	}

	for attempt := 0; attempt <= taskPollRetries; attempt++ {
		if attempt > 0 {
			c.sleep(taskPollDelay)
		}
		var taskStatus struct {
			Data struct {
				PlaybookRunID string `json:"playbookRunId"`
			} `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, "tasks/"+task.ID, nil, nil, &taskStatus); err != nil {
			return "", err
		}
		if taskStatus.Data.PlaybookRunID != "" {
			return taskStatus.Data.PlaybookRunID, nil
		}
	}
	return "", fmt.Errorf("task %s never reported a playbook run id", task.ID)
}

// waitForRun polls a playbook run until it reaches a terminal status. A run
// that never finishes before the poll attempts run out is reported as timed
// out rather than failing the whole suite scheduler.
func (c *Client) waitForRun(ctx context.Context, playbookID, runID string) (string, error) {
	for attempt := 0; attempt < runPollRetries; attempt++ {
		if attempt > 0 {
			c.sleep(runPollDelay)
		}
		var run struct {
			Status string `json:"status"`
		}
		if err := c.do(ctx, http.MethodGet, "playbooks/"+playbookID+"/runs/"+runID, nil, nil, &run); err != nil {
			return "", err
		}
		if run.Status == "successful" || run.Status == "failed" {
			return run.Status, nil
		}
	}
	return "timeout", nil
}

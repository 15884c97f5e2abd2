package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

// FeatureMarker records the dev project that backs the current feature
// branch. The branch command writes it; feature-export and merge read it.
type FeatureMarker struct {
	ProjectID string    `json:"featureProjectId"`
	Bot       string    `json:"botName"`
	Branch    string    `json:"branchName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrNoFeatureMarker is returned when the branch has no feature project yet.
var ErrNoFeatureMarker = errors.New("no feature project marker; run the branch command first")

// LoadFeatureMarker reads feature_branch_agent_id.json.
func LoadFeatureMarker(path string) (FeatureMarker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FeatureMarker{}, ErrNoFeatureMarker
		}
		return FeatureMarker{}, fmt.Errorf("read feature marker: %w", err)
	}
	var m FeatureMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return FeatureMarker{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.ProjectID == "" {
		return FeatureMarker{}, fmt.Errorf("%s has no featureProjectId", path)
	}
	return m, nil
}

// SaveFeatureMarker writes the marker with stable formatting so commits of
// the file diff cleanly.
func SaveFeatureMarker(path string, m FeatureMarker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFile(path, append(data, '\n'))
}

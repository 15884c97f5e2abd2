package export

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
)

// Manifest records what one export run produced. It is committed alongside
// the tree so a reviewer can tell which project and run a tree came from
// without consulting pipeline logs.
type Manifest struct {
	RunID      string         `yaml:"runId"`
	Bot        string         `yaml:"bot"`
	ProjectID  string         `yaml:"projectId"`
	ExportedAt time.Time      `yaml:"exportedAt"`
	Counts     map[string]int `yaml:"resourceCounts"`
	Package    string         `yaml:"package,omitempty"`
	Snapshot   string         `yaml:"snapshot,omitempty"`

	// Digests of the downloaded artifacts so a committed tree can be
	// checked against the archive it claims to carry.
	PackageSHA256  string `yaml:"packageSha256,omitempty"`
	SnapshotSHA256 string `yaml:"snapshotSha256,omitempty"`
}

// NewManifest stamps a fresh run identifier.
func NewManifest(bot, projectID string, counts map[string]int) Manifest {
	return Manifest{
		RunID:      uuid.NewString(),
		Bot:        bot,
		ProjectID:  projectID,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Counts:     counts,
	}
}

// Write stores the manifest at the tree root.
func (m Manifest) Write(tree string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return fsutil.WriteFile(fsutil.ManifestPath(tree), data)
}

// ReadManifest loads a tree's manifest.
func ReadManifest(tree string) (Manifest, error) {
	data, err := os.ReadFile(fsutil.ManifestPath(tree))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

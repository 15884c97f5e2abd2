package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	StateDirName   = ".cogctl"
	lockDirName    = "locks"
	lockStaleAfter = 15 * time.Minute

	// Directory and file permissions used across the workspace.
	DirPerm  = 0o755
	FilePerm = 0o644

	// Export tree directory names.
	AgentDirName      = "agent"
	FeatureDirName    = "feature_agent"
	MergeBaseDirName  = "merge_base_dir"
	SnapshotDirName   = "snapshot"
	PackageDirName    = "package"
	FlowsDirName      = "flows"
	LexiconsDirName   = "lexicons"
	ExtensionsDirName = "extensions"
	KnowledgeDirName  = "knowledgestores"
	AIAgentsDirName   = "aiagents"
	JobsDirName       = "jobs"
	ToolsDirName      = "tools"
	ManifestYAML      = "manifest.yaml"
	SnapshotFileExt   = ".csnap"
	PackageFileExt    = ".zip"
	BotMappingJSON    = "bot_mapping.json"
	FeatureAgentJSON  = "feature_branch_agent_id.json"
	FlowMetadataName  = "metadata"
	FlowChartName     = "chart"
	FlowSettingsName  = "settings"
	FlowIntentsName   = "intents"
	FlowStatesName    = "states"
	KnowledgeMetaJSON = "metadata.json"
	AIAgentConfigJSON = "config.json"
)

// ErrLocked indicates the workspace is already locked by another process.
var ErrLocked = errors.New("workspace is locked")

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeName strips characters that are unsafe in file paths and git branch
// names, replacing spaces with hyphens first.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"), "")
}

// FlowsDir returns the directory holding all flow exports under a tree.
func FlowsDir(tree string) string {
	return filepath.Join(tree, FlowsDirName)
}

// FlowDir returns the directory holding one flow's aspect subdirectories.
func FlowDir(tree, flowName string) string {
	return filepath.Join(tree, FlowsDirName, SanitizeName(flowName))
}

// FlowAspectPath returns the JSON file for one aspect (metadata, chart,
// settings, intents, states) of a flow. Each aspect lives in its own
// subdirectory so per-aspect diffs stay isolated in version control.
func FlowAspectPath(tree, flowName, aspect string) string {
	return filepath.Join(FlowDir(tree, flowName), aspect, aspect+".json")
}

// ResourcePath returns the JSON file for a flat resource (lexicons,
// connections, nluconnectors, largelanguagemodels, functions, locales,
// extensions).
func ResourcePath(tree, resourceType, name string) string {
	return filepath.Join(tree, resourceType, SanitizeName(name)+".json")
}

// KnowledgeStoreDir returns the directory for one knowledge store.
func KnowledgeStoreDir(tree, storeName string) string {
	return filepath.Join(tree, KnowledgeDirName, SanitizeName(storeName))
}

// KnowledgeSourcePath returns the JSON file for one knowledge source.
func KnowledgeSourcePath(tree, storeName, sourceName string) string {
	return filepath.Join(KnowledgeStoreDir(tree, storeName), SanitizeName(sourceName)+".json")
}

// AIAgentDir returns the directory for one AI agent.
func AIAgentDir(tree, agentName string) string {
	return filepath.Join(tree, AIAgentsDirName, SanitizeName(agentName))
}

// AIAgentJobDir returns the directory for one AI agent job. Jobs are indexed
// because job names are not unique.
func AIAgentJobDir(tree, agentName, jobName string, index int) string {
	return filepath.Join(AIAgentDir(tree, agentName), JobsDirName, fmt.Sprintf("%s_%d", SanitizeName(jobName), index))
}

// SnapshotDir returns the snapshot directory under an export tree.
func SnapshotDir(tree string) string {
	return filepath.Join(tree, SnapshotDirName)
}

// PackageDir returns the package directory under an export tree.
func PackageDir(tree string) string {
	return filepath.Join(tree, PackageDirName)
}

// ManifestPath returns the export manifest path under a tree.
func ManifestPath(tree string) string {
	return filepath.Join(tree, ManifestYAML)
}

// EnsureDir creates a directory and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirPerm)
}

// EnsureParentDir makes sure the parent directory for a file exists.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ResetTree removes a tree and recreates it empty. Export trees are rebuilt
// from scratch on every pipeline run.
func ResetTree(tree string) error {
	if err := os.RemoveAll(tree); err != nil {
		return fmt.Errorf("remove %s: %w", tree, err)
	}
	return EnsureDir(tree)
}

// WriteFile writes content, creating parent directories as needed.
func WriteFile(path string, content []byte) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, content, FilePerm)
}

func lockDirectory() string {
	return filepath.Join(StateDirName, lockDirName)
}

// AcquireLock creates a lock file preventing concurrent mutating operations.
// Stale locks older than lockStaleAfter are broken.
func AcquireLock(operation string) (func() error, error) {
	if err := EnsureDir(lockDirectory()); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	lockPath := filepath.Join(lockDirectory(), fmt.Sprintf("%s.lock", operation))

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, FilePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			info, statErr := os.Stat(lockPath)
			if statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
				_ = os.Remove(lockPath)
				return AcquireLock(operation)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	release := func() error {
		_ = file.Close()
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		return nil
	}
	return release, nil
}

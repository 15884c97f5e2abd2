package reconcile

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// DefaultFreshnessWindow bounds lastChanged-createdAt for an extension to
// still count as untouched since its creation. Restoring a snapshot
// re-creates extensions and stamps both fields within moments of each other;
// a real edit pushes lastChanged far past createdAt.
const DefaultFreshnessWindow = 600 * time.Second

// ReconcileExtensions aligns extension identifiers across the two trees.
// Extensions carry no reliable referenceId, so they are matched by name. On
// a match the feature extension adopts the main _id, imageUrlToken and
// creation metadata; lastChanged/lastChangedBy are adopted only when the
// main extension looks untouched since creation (see freshness window).
// Nested nodes are matched by defaultLabel and connections by fieldName,
// depth-first through the whole document.
func ReconcileExtensions(mainTree, featureTree string, window time.Duration, log zerolog.Logger) (int, error) {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	mainDir := filepath.Join(mainTree, fsutil.ExtensionsDirName)
	featureDir := filepath.Join(featureTree, fsutil.ExtensionsDirName)

	mainByName, err := extensionsByName(mainDir, log)
	if err != nil {
		return 0, err
	}
	if len(mainByName) == 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(featureDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	updated := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		featurePath := filepath.Join(featureDir, entry.Name())
		featureDoc, err := serialize.ReadDoc(featurePath)
		if err != nil {
			log.Warn().Str("file", featurePath).Err(err).Msg("skipping unreadable extension")
			continue
		}
		name, _ := featureDoc["name"].(string)
		mainDoc, hit := mainByName[name]
		if name == "" || !hit {
			continue
		}

		if !adoptExtension(mainDoc, featureDoc, window) {
			continue
		}
		changed, err := serialize.WriteValueIfChanged(featurePath, featureDoc)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

func extensionsByName(dir string, log zerolog.Logger) (map[string]map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	byName := map[string]map[string]any{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := serialize.ReadDoc(path)
		if err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping unreadable extension")
			continue
		}
		if name, _ := doc["name"].(string); name != "" {
			byName[name] = doc
		}
	}
	return byName, nil
}

func adoptExtension(mainDoc, featureDoc map[string]any, window time.Duration) bool {
	changed := copyFields(mainDoc, featureDoc, "_id", "imageUrlToken", "createdBy", "createdAt")
	if untouchedSinceCreation(mainDoc, window) {
		if copyFields(mainDoc, featureDoc, "lastChanged", "lastChangedBy") {
			changed = true
		}
	}
	if alignByKey(mainDoc["nodes"], featureDoc["nodes"], "defaultLabel") {
		changed = true
	}
	if alignByKey(mainDoc["connections"], featureDoc["connections"], "fieldName") {
		changed = true
	}
	return changed
}

// untouchedSinceCreation reports whether the extension's lastChanged lies
// within the freshness window of its createdAt.
func untouchedSinceCreation(doc map[string]any, window time.Duration) bool {
	created, ok1 := parseTimestamp(doc["createdAt"])
	changed, ok2 := parseTimestamp(doc["lastChanged"])
	if !ok1 || !ok2 {
		return false
	}
	return changed.Sub(created) < window
}

// parseTimestamp accepts the formats the platform emits: RFC 3339 strings
// and unix epoch numbers (seconds or milliseconds).
func parseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t, true
		}
	case float64:
		// Epoch milliseconds are 13 digits well past 1e12.
		if ts > 1e12 {
			return time.UnixMilli(int64(ts)), true
		}
		return time.Unix(int64(ts), 0), true
	}
	return time.Time{}, false
}

func copyFields(src, dst map[string]any, keys ...string) bool {
	changed := false
	for _, key := range keys {
		value, ok := src[key]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(dst[key], value) {
			dst[key] = value
			changed = true
		}
	}
	return changed
}

// alignByKey pairs objects across two nested structures by the value of
// matchKey and copies the main object's _id onto the feature object. The
// search is depth-first: candidate objects may appear at any depth inside
// maps or lists.
func alignByKey(mainNode, featureNode any, matchKey string) bool {
	mainByKey := map[string]string{}
	collectByKey(mainNode, matchKey, mainByKey)
	if len(mainByKey) == 0 {
		return false
	}
	return applyByKey(featureNode, matchKey, mainByKey)
}

func collectByKey(v any, matchKey string, out map[string]string) {
	switch node := v.(type) {
	case map[string]any:
		key, _ := node[matchKey].(string)
		id, _ := node["_id"].(string)
		if key != "" && id != "" {
			if _, seen := out[key]; !seen {
				out[key] = id
			}
		}
		for _, child := range node {
			collectByKey(child, matchKey, out)
		}
	case []any:
		for _, item := range node {
			collectByKey(item, matchKey, out)
		}
	}
}

func applyByKey(v any, matchKey string, mainByKey map[string]string) bool {
	changed := false
	switch node := v.(type) {
	case map[string]any:
		key, _ := node[matchKey].(string)
		if mainID, hit := mainByKey[key]; hit && key != "" {
			if _, hasID := node["_id"]; hasID && node["_id"] != mainID {
				node["_id"] = mainID
				changed = true
			}
		}
		for _, child := range node {
			if applyByKey(child, matchKey, mainByKey) {
				changed = true
			}
		}
	case []any:
		for _, item := range node {
			if applyByKey(item, matchKey, mainByKey) {
				changed = true
			}
		}
	}
	return changed
}

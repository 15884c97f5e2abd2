// Package reconcile makes a feature resource tree reference-compatible with
// a main resource tree. Matching resources are paired by their stable
// referenceId, every occurrence of a feature identifier is rewritten to the
// main identifier, and type-specific matchers handle the resources that lack
// a usable referenceId (lexicon values, intent slots, extensions). After a
// run, diffing the two trees reflects only genuine content changes.
package reconcile

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// Entry pairs the environment-specific identifiers of one logical resource.
// The object snapshots feed the metadata comparison.
type Entry struct {
	MainID     string
	FeatureID  string
	MainObj    map[string]any
	FeatureObj map[string]any
}

// IdentifierMap indexes matched resources by referenceId.
type IdentifierMap map[string]*Entry

// BuildIdentifierMap walks every JSON file under both trees and records the
// _id of each object that carries a referenceId. A referenceId seen more
// than once within one tree keeps its first _id; a disagreeing later
// occurrence is logged and ignored.
func BuildIdentifierMap(mainTree, featureTree string, log zerolog.Logger) (IdentifierMap, error) {
	m := IdentifierMap{}
	if err := scanTree(m, mainTree, true, log); err != nil {
		return nil, err
	}
	if err := scanTree(m, featureTree, false, log); err != nil {
		return nil, err
	}
	return m, nil
}

// SubstitutionTable derives featureId -> mainId for every resource present
// in both trees, merged with extra fixed pairs supplied by the caller.
func (m IdentifierMap) SubstitutionTable(extra map[string]string) map[string]string {
	table := make(map[string]string, len(m)+len(extra))
	for _, entry := range m {
		if entry.MainID != "" && entry.FeatureID != "" {
			table[entry.FeatureID] = entry.MainID
		}
	}
	for from, to := range extra {
		if from != "" && to != "" {
			table[from] = to
		}
	}
	return table
}

func scanTree(m IdentifierMap, tree string, main bool, log zerolog.Logger) error {
	return walkJSONFiles(tree, log, func(path string, doc any) {
		collectReferences(doc, func(obj map[string]any) {
			refID, _ := obj["referenceId"].(string)
			id, _ := obj["_id"].(string)
			if refID == "" || id == "" {
				return
			}
			entry := m[refID]
			if entry == nil {
				entry = &Entry{}
				m[refID] = entry
			}
			switch {
			case main && entry.MainID == "":
				entry.MainID = id
				entry.MainObj = obj
			case !main && entry.FeatureID == "":
				entry.FeatureID = id
				entry.FeatureObj = obj
			case main && entry.MainID != id:
				log.Warn().Str("referenceId", refID).Str("file", path).
					Str("kept", entry.MainID).Str("ignored", id).
					Msg("referenceId maps to multiple ids within the main tree")
			case !main && entry.FeatureID != id:
				log.Warn().Str("referenceId", refID).Str("file", path).
					Str("kept", entry.FeatureID).Str("ignored", id).
					Msg("referenceId maps to multiple ids within the feature tree")
			}
		})
	})
}

// collectReferences visits every object in the document carrying a
// referenceId, including objects nested inside matched ones.
func collectReferences(v any, visit func(map[string]any)) {
	switch node := v.(type) {
	case map[string]any:
		if _, ok := node["referenceId"]; ok {
			visit(node)
		}
		for _, child := range node {
			collectReferences(child, visit)
		}
	case []any:
		for _, item := range node {
			collectReferences(item, visit)
		}
	}
}

// walkJSONFiles parses every *.json file under tree and hands the decoded
// document to fn. A missing tree is treated as empty; malformed files are
// skipped with a warning.
func walkJSONFiles(tree string, log zerolog.Logger, fn func(path string, doc any)) error {
	err := filepath.WalkDir(tree, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		doc, err := serialize.ReadValue(path)
		if err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping unreadable json file")
			return nil
		}
		fn(path, doc)
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

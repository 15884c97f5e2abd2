package reconcile

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// ReconcileLexicons aligns lexicon value identifiers across the two trees.
// Lexicon values carry no referenceId, so entries are matched by their
// keyphrase instead: on a match the feature entry adopts the main entry's
// _id. Unmatched entries keep their own _id, since those are genuinely new.
func ReconcileLexicons(mainTree, featureTree string, log zerolog.Logger) (int, error) {
	mainDir := filepath.Join(mainTree, fsutil.LexiconsDirName)
	featureDir := filepath.Join(featureTree, fsutil.LexiconsDirName)

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
		mainPath := filepath.Join(mainDir, entry.Name())

		mainDoc, err := serialize.ReadDoc(mainPath)
		if err != nil {
			// Lexicon only exists on the feature side, nothing to align.
			if os.IsNotExist(err) {
				continue
			}
			log.Warn().Str("file", mainPath).Err(err).Msg("skipping unreadable lexicon")
			continue
		}
		featureDoc, err := serialize.ReadDoc(featurePath)
		if err != nil {
			log.Warn().Str("file", featurePath).Err(err).Msg("skipping unreadable lexicon")
			continue
		}

		if !alignLexiconValues(mainDoc, featureDoc) {
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

func alignLexiconValues(mainDoc, featureDoc map[string]any) bool {
	mainValues, _ := mainDoc["values"].([]any)
	featureValues, _ := featureDoc["values"].([]any)
	if len(mainValues) == 0 || len(featureValues) == 0 {
		return false
	}

	byKeyphrase := map[string]string{}
	for _, v := range mainValues {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		keyphrase, _ := obj["keyphrase"].(string)
		id, _ := obj["_id"].(string)
		if keyphrase != "" && id != "" {
			byKeyphrase[keyphrase] = id
		}
	}

	changed := false
	for _, v := range featureValues {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		keyphrase, _ := obj["keyphrase"].(string)
		mainID, hit := byKeyphrase[keyphrase]
		if !hit || keyphrase == "" {
			continue
		}
		if obj["_id"] != mainID {
			obj["_id"] = mainID
			changed = true
		}
	}
	return changed
}

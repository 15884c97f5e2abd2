package reconcile

import (
	"os"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// ReconcileIntentSlots aligns slot identifiers inside intent training
// sentences. Flows are paired by directory name; within a flow's intents
// file, sentences are matched by referenceId and slots by structural
// equality of everything except _id. Matched feature slots adopt the main
// slot's _id.
func ReconcileIntentSlots(mainTree, featureTree string, log zerolog.Logger) (int, error) {
	flowDirs, err := os.ReadDir(fsutil.FlowsDir(featureTree))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	updated := 0
	for _, dir := range flowDirs {
		if !dir.IsDir() {
			continue
		}
		featurePath := fsutil.FlowAspectPath(featureTree, dir.Name(), fsutil.FlowIntentsName)
		mainPath := fsutil.FlowAspectPath(mainTree, dir.Name(), fsutil.FlowIntentsName)

		mainDoc, err := serialize.ReadDoc(mainPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Warn().Str("file", mainPath).Err(err).Msg("skipping unreadable intents file")
			continue
		}
		featureDoc, err := serialize.ReadDoc(featurePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Warn().Str("file", featurePath).Err(err).Msg("skipping unreadable intents file")
			continue
		}

		if !alignIntentSlots(mainDoc, featureDoc) {
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

// alignIntentSlots walks every intent's training sentences. The intents
// document maps intent name to {metadata, training_sentences}.
func alignIntentSlots(mainDoc, featureDoc map[string]any) bool {
	changed := false
	for intentName, featureIntent := range featureDoc {
		featureBundle, ok := featureIntent.(map[string]any)
		if !ok {
			continue
		}
		mainBundle, ok := mainDoc[intentName].(map[string]any)
		if !ok {
			continue
		}
		mainSentences, _ := mainBundle["training_sentences"].([]any)
		featureSentences, _ := featureBundle["training_sentences"].([]any)
		if len(mainSentences) == 0 || len(featureSentences) == 0 {
			continue
		}

		byRef := map[string]map[string]any{}
		for _, s := range mainSentences {
			sentence, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if ref, _ := sentence["referenceId"].(string); ref != "" {
				byRef[ref] = sentence
			}
		}

		for _, s := range featureSentences {
			featureSentence, ok := s.(map[string]any)
			if !ok {
				continue
			}
			ref, _ := featureSentence["referenceId"].(string)
			mainSentence, hit := byRef[ref]
			if ref == "" || !hit {
				continue
			}
			if alignSlots(mainSentence, featureSentence) {
				changed = true
			}
		}
	}
	return changed
}

func alignSlots(mainSentence, featureSentence map[string]any) bool {
	mainSlots, _ := mainSentence["slots"].([]any)
	featureSlots, _ := featureSentence["slots"].([]any)
	if len(mainSlots) == 0 || len(featureSlots) == 0 {
		return false
	}

	changed := false
	for _, fs := range featureSlots {
		featureSlot, ok := fs.(map[string]any)
		if !ok {
			continue
		}
		for _, ms := range mainSlots {
			mainSlot, ok := ms.(map[string]any)
			if !ok {
				continue
			}
			if !equalExcept(mainSlot, featureSlot, "_id") {
				continue
			}
			if mainID, _ := mainSlot["_id"].(string); mainID != "" && featureSlot["_id"] != mainID {
				featureSlot["_id"] = mainID
				changed = true
			}
			break
		}
	}
	return changed
}

// equalExcept reports deep equality of two objects ignoring the given keys.
func equalExcept(a, b map[string]any, ignored ...string) bool {
	return reflect.DeepEqual(stripKeys(a, ignored), stripKeys(b, ignored))
}

func stripKeys(obj map[string]any, ignored []string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		skip := false
		for _, ig := range ignored {
			if k == ig {
				skip = true
				break
			}
		}
		if !skip {
			out[k] = v
		}
	}
	return out
}

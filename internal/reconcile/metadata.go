package reconcile

import (
	"reflect"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// metadataKeys are the audit fields the platform rewrites on every copy or
// restore. They carry no semantic content.
var metadataKeys = []string{"createdAt", "createdBy", "lastChanged", "lastChangedBy"}

// ReconcileMetadata copies the main object's audit fields onto feature
// objects that are otherwise structurally identical, suppressing diffs
// caused purely by re-creation timestamps. Objects are paired through the
// identifier map; an object whose non-metadata fields differ is left alone.
func ReconcileMetadata(featureTree string, m IdentifierMap, log zerolog.Logger) (int, error) {
	adoptable := map[string]map[string]any{}
	for refID, entry := range m {
		if entry.MainObj == nil || entry.FeatureObj == nil {
			continue
		}
		if equalExcept(entry.MainObj, entry.FeatureObj, metadataKeys...) {
			adoptable[refID] = entry.MainObj
		}
	}
	if len(adoptable) == 0 {
		return 0, nil
	}

	updated := 0
	err := walkJSONFiles(featureTree, log, func(path string, doc any) {
		touched := false
		collectReferences(doc, func(obj map[string]any) {
			refID, _ := obj["referenceId"].(string)
			mainObj, hit := adoptable[refID]
			if !hit {
				return
			}
			for _, key := range metadataKeys {
				value, ok := mainObj[key]
				if !ok {
					continue
				}
				if !reflect.DeepEqual(obj[key], value) {
					obj[key] = value
					touched = true
				}
			}
		})
		if !touched {
			return
		}
		changed, err := serialize.WriteValueIfChanged(path, doc)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("failed to write metadata update")
			return
		}
		if changed {
			updated++
		}
	})
	return updated, err
}

package reconcile

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// FlowSettingsPairs derives extra substitution pairs for flow settings
// documents. Settings carry no top-level referenceId, so the two trees are
// paired by flow directory name instead and the settings _id values are fed
// into the substitution table.
func FlowSettingsPairs(mainTree, featureTree string, log zerolog.Logger) (map[string]string, error) {
	flowDirs, err := os.ReadDir(fsutil.FlowsDir(featureTree))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	pairs := map[string]string{}
	for _, dir := range flowDirs {
		if !dir.IsDir() {
			continue
		}
		featurePath := fsutil.FlowAspectPath(featureTree, dir.Name(), fsutil.FlowSettingsName)
		mainPath := fsutil.FlowAspectPath(mainTree, dir.Name(), fsutil.FlowSettingsName)

		mainDoc, err := serialize.ReadDoc(mainPath)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Str("file", mainPath).Err(err).Msg("skipping unreadable settings file")
			}
			continue
		}
		featureDoc, err := serialize.ReadDoc(featurePath)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Str("file", featurePath).Err(err).Msg("skipping unreadable settings file")
			}
			continue
		}

		mainID, _ := mainDoc["_id"].(string)
		featureID, _ := featureDoc["_id"].(string)
		if mainID != "" && featureID != "" && mainID != featureID {
			pairs[featureID] = mainID
		}
	}
	return pairs, nil
}

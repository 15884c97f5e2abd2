package reconcile

import (
	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/serialize"
)

// RewriteTree replaces every string value in every JSON file under tree that
// exactly equals a table key with the mapped value. Files are written back
// only when the pass changed them, so a second run with the same table is a
// no-op. Returns the number of files rewritten.
func RewriteTree(tree string, table map[string]string, log zerolog.Logger) (int, error) {
	if len(table) == 0 {
		return 0, nil
	}
	rewritten := 0
	err := walkJSONFiles(tree, log, func(path string, doc any) {
		if !substituteStrings(doc, table) {
			return
		}
		changed, err := serialize.WriteValueIfChanged(path, doc)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("failed to write rewritten file")
			return
		}
		if changed {
			rewritten++
		}
	})
	return rewritten, err
}

// substituteStrings replaces matching string values in place and reports
// whether anything changed. Map keys are never rewritten, only values.
func substituteStrings(v any, table map[string]string) bool {
	changed := false
	switch node := v.(type) {
	case map[string]any:
		for key, value := range node {
			if s, ok := value.(string); ok {
				if replacement, hit := table[s]; hit && replacement != s {
					node[key] = replacement
					changed = true
					continue
				}
			}
			if substituteStrings(value, table) {
				changed = true
			}
		}
	case []any:
		for i, item := range node {
			if s, ok := item.(string); ok {
				if replacement, hit := table[s]; hit && replacement != s {
					node[i] = replacement
					changed = true
					continue
				}
			}
			if substituteStrings(item, table) {
				changed = true
			}
		}
	}
	return changed
}

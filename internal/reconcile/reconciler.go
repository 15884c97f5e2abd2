package reconcile

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler runs the full identifier reconciliation pipeline over two
// resource trees. The zero value is usable; fields customise behaviour.
type Reconciler struct {
	// ExtraPairs are fixed substitutions merged into the table, typically
	// the feature-to-main project identifier pair.
	ExtraPairs map[string]string
	// FreshnessWindow tunes the extension metadata heuristic.
	FreshnessWindow time.Duration
	Log             zerolog.Logger
}

// Stats summarises what one reconciliation run changed.
type Stats struct {
	Substitutions  int
	RewrittenFiles int
	LexiconFiles   int
	IntentFiles    int
	ExtensionFiles int
	MetadataFiles  int
}

// Run reconciles featureTree against mainTree in place. The order matters:
// the generic substitution pass first, then the type-specific matchers, then
// the metadata pass over the re-read trees. Every pass is idempotent, so a
// crashed run is recovered by running again.
func (r Reconciler) Run(mainTree, featureTree string) (Stats, error) {
	var stats Stats

	idMap, err := BuildIdentifierMap(mainTree, featureTree, r.Log)
	if err != nil {
		return stats, fmt.Errorf("build identifier map: %w", err)
	}

	extra := make(map[string]string, len(r.ExtraPairs))
	for from, to := range r.ExtraPairs {
		extra[from] = to
	}
	settingsPairs, err := FlowSettingsPairs(mainTree, featureTree, r.Log)
	if err != nil {
		return stats, fmt.Errorf("flow settings pairs: %w", err)
	}
	for from, to := range settingsPairs {
		extra[from] = to
	}

	table := idMap.SubstitutionTable(extra)
	stats.Substitutions = len(table)

	if stats.RewrittenFiles, err = RewriteTree(featureTree, table, r.Log); err != nil {
		return stats, fmt.Errorf("rewrite tree: %w", err)
	}
	if stats.LexiconFiles, err = ReconcileLexicons(mainTree, featureTree, r.Log); err != nil {
		return stats, fmt.Errorf("reconcile lexicons: %w", err)
	}
	if stats.IntentFiles, err = ReconcileIntentSlots(mainTree, featureTree, r.Log); err != nil {
		return stats, fmt.Errorf("reconcile intent slots: %w", err)
	}
	if stats.ExtensionFiles, err = ReconcileExtensions(mainTree, featureTree, r.FreshnessWindow, r.Log); err != nil {
		return stats, fmt.Errorf("reconcile extensions: %w", err)
	}

	// The metadata comparison needs the post-rewrite feature objects, so the
	// identifier map is rebuilt from the updated tree.
	idMap, err = BuildIdentifierMap(mainTree, featureTree, r.Log)
	if err != nil {
		return stats, fmt.Errorf("rebuild identifier map: %w", err)
	}
	if stats.MetadataFiles, err = ReconcileMetadata(featureTree, idMap, r.Log); err != nil {
		return stats, fmt.Errorf("reconcile metadata: %w", err)
	}

	r.Log.Info().
		Int("substitutions", stats.Substitutions).
		Int("rewritten", stats.RewrittenFiles).
		Int("lexicons", stats.LexiconFiles).
		Int("intents", stats.IntentFiles).
		Int("extensions", stats.ExtensionFiles).
		Int("metadata", stats.MetadataFiles).
		Msg("reconciliation complete")
	return stats, nil
}

// Changed reports whether the run modified any file.
func (s Stats) Changed() bool {
	return s.RewrittenFiles+s.LexiconFiles+s.IntentFiles+s.ExtensionFiles+s.MetadataFiles > 0
}

// Package confidence maps anomaly age to an ordinal confidence level.
// Bands are data, not code: rules override the defaults because the
// scenario catalogue disagrees on exact cutoffs.
package confidence

import (
	"fmt"
	"sort"

	"github.com/skimworks/skim/types"
)

// DefaultBands are the recurring cutoffs across the scenario
// catalogue: under a week is barely a signal, a quarter is certainty.
func DefaultBands() []types.ConfidenceBand {
	return []types.ConfidenceBand{
		{MinAgeDays: 0, Level: types.ConfidenceLow},
		{MinAgeDays: 7, Level: types.ConfidenceMedium},
		{MinAgeDays: 30, Level: types.ConfidenceHigh},
		{MinAgeDays: 90, Level: types.ConfidenceCritical},
	}
}

// Score maps anomaly age to the highest band it clears. An empty or
// nil band table falls back to the defaults.
func Score(anomalyAgeDays int, bands []types.ConfidenceBand) types.ConfidenceLevel {
	if len(bands) == 0 {
		bands = DefaultBands()
	}

	sorted := make([]types.ConfidenceBand, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAgeDays < sorted[j].MinAgeDays
	})

	level := sorted[0].Level
	for _, band := range sorted {
		if anomalyAgeDays >= band.MinAgeDays {
			level = band.Level
		}
	}
	return level
}

// ValidateBands rejects band tables that would break monotonicity:
// a higher age threshold must never map to a lower level.
func ValidateBands(bands []types.ConfidenceBand) error {
	sorted := make([]types.ConfidenceBand, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAgeDays < sorted[j].MinAgeDays
	})

	prevRank := -1
	for _, band := range sorted {
		if !band.Level.Valid() {
			return fmt.Errorf("unknown confidence level %q", band.Level)
		}
		if band.MinAgeDays < 0 {
			return fmt.Errorf("negative min_age_days %d", band.MinAgeDays)
		}
		if band.Level.Rank() < prevRank {
			return fmt.Errorf("confidence bands not monotonic at min_age_days %d", band.MinAgeDays)
		}
		prevRank = band.Level.Rank()
	}
	return nil
}

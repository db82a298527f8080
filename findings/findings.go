// Package findings assembles findings from rule matches and
// reconciles each scan's results against what earlier scans reported.
package findings

import (
	"fmt"
	"time"

	"github.com/skimworks/skim/confidence"
	"github.com/skimworks/skim/pricing"
	"github.com/skimworks/skim/types"
)

// Assemble turns a rule match and its waste estimate into a finding.
// It refuses to produce a finding without evidence; a match that
// carried none is a bug upstream, not a findable anomaly.
func Assemble(match types.MatchResult, estimate pricing.WasteEstimate, now time.Time) (types.Finding, error) {
	if len(match.Evidence) == 0 && len(match.Rule.Metrics) > 0 {
		return types.Finding{}, fmt.Errorf("match for rule %s on %s carries no evidence",
			match.Rule.RuleID, match.Resource.ID)
	}

	level := confidence.Score(match.AnomalyAgeDays, match.Rule.Confidence)

	return types.Finding{
		ResourceID:     match.Resource.ID,
		RuleID:         match.Rule.RuleID,
		Family:         match.Resource.Family,
		Account:        match.Resource.Account,
		Region:         match.Resource.Region,
		Status:         types.FindingOpen,
		MatchedAt:      now,
		FirstSeenAt:    now,
		Evidence:       match.Evidence,
		MonthlyCost:    estimate.MonthlyCost.Total(),
		MonthlySavings: estimate.MonthlySavings,
		AlreadyWasted:  estimate.AlreadyWasted,
		Confidence:     level,
		Recommendation: match.Rule.Recommendation,
	}, nil
}

// Reconciliation is the delta between one scan's findings and the
// open findings from previous scans
type Reconciliation struct {
	// ToCreate are findings never seen before
	ToCreate []types.Finding
	// ToUpdate are open findings seen again, refreshed in place
	ToUpdate []types.Finding
	// ToClose are open findings the scan no longer reproduces
	ToClose []types.Finding
}

// Reconcile compares current findings against prior open ones, keyed
// by (resource, rule). A finding seen again keeps its FirstSeenAt; a
// finding that disappeared is closed at now. Nothing is emitted twice.
func Reconcile(current []types.Finding, priorOpen []types.Finding, now time.Time) Reconciliation {
	prior := make(map[string]types.Finding, len(priorOpen))
	for _, f := range priorOpen {
		prior[f.Key()] = f
	}

	var recon Reconciliation
	seen := make(map[string]bool, len(current))

	for _, f := range current {
		key := f.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		old, exists := prior[key]
		if !exists {
			recon.ToCreate = append(recon.ToCreate, f)
			continue
		}

		f.FirstSeenAt = old.FirstSeenAt
		f.MatchedAt = now
		recon.ToUpdate = append(recon.ToUpdate, f)
	}

	for _, f := range priorOpen {
		if seen[f.Key()] {
			continue
		}
		closed := f
		closed.Status = types.FindingClosed
		closedAt := now
		closed.ClosedAt = &closedAt
		recon.ToClose = append(recon.ToClose, closed)
	}

	return recon
}

// PartialScanFilter drops close candidates for units the scan failed
// to cover. A finding in an uncollected unit is unknown, not gone.
func PartialScanFilter(recon Reconciliation, covered func(account, region string, family types.Family) bool) Reconciliation {
	kept := recon.ToClose[:0:0]
	for _, f := range recon.ToClose {
		if covered(f.Account, f.Region, f.Family) {
			kept = append(kept, f)
		}
	}
	recon.ToClose = kept
	return recon
}

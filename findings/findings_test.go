package findings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimworks/skim/pricing"
	"github.com/skimworks/skim/types"
)

func testMatch() types.MatchResult {
	return types.MatchResult{
		Rule: types.DetectionRule{
			RuleID:         "ebs-gp2-to-gp3",
			Family:         types.FamilyBlockVolume,
			Recommendation: "Migrate the volume to gp3",
		},
		Resource: types.Resource{
			ID:      "vol-0abc",
			Family:  types.FamilyBlockVolume,
			Account: "111122223333",
			Region:  "us-east-1",
		},
		Evidence:       map[string]types.Value{"volume_type": types.String("gp2")},
		AnomalyAgeDays: 45,
	}
}

func testEstimate() pricing.WasteEstimate {
	cost := pricing.NewMonthlyCost()
	cost.Set(pricing.ComponentStorageGB, decimal.RequireFromString("45.00"))
	cost.Set(pricing.ComponentProvisionedIOPS, decimal.RequireFromString("5.00"))
	return pricing.WasteEstimate{
		MonthlyCost:    cost,
		MonthlySavings: decimal.RequireFromString("10.00"),
		AlreadyWasted:  decimal.RequireFromString("15.00"),
	}
}

func TestAssemble(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	finding, err := Assemble(testMatch(), testEstimate(), now)
	require.NoError(t, err)

	assert.Equal(t, "vol-0abc", finding.ResourceID)
	assert.Equal(t, "ebs-gp2-to-gp3", finding.RuleID)
	assert.Equal(t, types.FindingOpen, finding.Status)
	assert.Equal(t, now, finding.MatchedAt)
	assert.Equal(t, now, finding.FirstSeenAt)
	assert.Nil(t, finding.ClosedAt)
	assert.Equal(t, types.ConfidenceHigh, finding.Confidence)
	assert.True(t, decimal.RequireFromString("50.00").Equal(finding.MonthlyCost))
	assert.True(t, decimal.RequireFromString("10.00").Equal(finding.MonthlySavings))
	assert.Equal(t, "Migrate the volume to gp3", finding.Recommendation)
	assert.Equal(t, "vol-0abc|ebs-gp2-to-gp3", finding.Key())
}

func TestAssembleRejectsEvidencelessMetricMatch(t *testing.T) {
	match := testMatch()
	match.Evidence = nil
	match.Rule.Metrics = []types.MetricRequirement{{Name: "idle"}}

	_, err := Assemble(match, testEstimate(), time.Now())
	require.Error(t, err)
}

func TestAssembleUsesRuleConfidenceBands(t *testing.T) {
	match := testMatch()
	match.Rule.Confidence = []types.ConfidenceBand{
		{MinAgeDays: 0, Level: types.ConfidenceMedium},
		{MinAgeDays: 10, Level: types.ConfidenceCritical},
	}
	match.AnomalyAgeDays = 12

	finding, err := Assemble(match, testEstimate(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceCritical, finding.Confidence)
}

func openFinding(resourceID, ruleID string, firstSeen time.Time) types.Finding {
	return types.Finding{
		ResourceID:  resourceID,
		RuleID:      ruleID,
		Family:      types.FamilyBlockVolume,
		Account:     "111122223333",
		Region:      "us-east-1",
		Status:      types.FindingOpen,
		FirstSeenAt: firstSeen,
		MatchedAt:   firstSeen,
	}
}

func TestReconcileSplitsCreateUpdateClose(t *testing.T) {
	firstSeen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	prior := []types.Finding{
		openFinding("vol-1", "rule-a", firstSeen),
		openFinding("vol-2", "rule-a", firstSeen),
	}
	current := []types.Finding{
		openFinding("vol-1", "rule-a", now),
		openFinding("vol-3", "rule-a", now),
	}

	recon := Reconcile(current, prior, now)

	require.Len(t, recon.ToCreate, 1)
	assert.Equal(t, "vol-3", recon.ToCreate[0].ResourceID)

	require.Len(t, recon.ToUpdate, 1)
	assert.Equal(t, "vol-1", recon.ToUpdate[0].ResourceID)
	assert.Equal(t, firstSeen, recon.ToUpdate[0].FirstSeenAt)
	assert.Equal(t, now, recon.ToUpdate[0].MatchedAt)

	require.Len(t, recon.ToClose, 1)
	assert.Equal(t, "vol-2", recon.ToClose[0].ResourceID)
	assert.Equal(t, types.FindingClosed, recon.ToClose[0].Status)
	require.NotNil(t, recon.ToClose[0].ClosedAt)
	assert.Equal(t, now, *recon.ToClose[0].ClosedAt)
}

func TestReconcileSameResourceDifferentRules(t *testing.T) {
	now := time.Now()
	prior := []types.Finding{openFinding("vol-1", "rule-a", now)}
	current := []types.Finding{
		openFinding("vol-1", "rule-a", now),
		openFinding("vol-1", "rule-b", now),
	}

	recon := Reconcile(current, prior, now)
	assert.Len(t, recon.ToCreate, 1)
	assert.Len(t, recon.ToUpdate, 1)
	assert.Empty(t, recon.ToClose)
}

func TestReconcileDeduplicatesWithinScan(t *testing.T) {
	now := time.Now()
	current := []types.Finding{
		openFinding("vol-1", "rule-a", now),
		openFinding("vol-1", "rule-a", now),
	}

	recon := Reconcile(current, nil, now)
	assert.Len(t, recon.ToCreate, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	now := time.Now()
	current := []types.Finding{openFinding("vol-1", "rule-a", now)}

	first := Reconcile(current, nil, now)
	require.Len(t, first.ToCreate, 1)

	second := Reconcile(current, first.ToCreate, now)
	assert.Empty(t, second.ToCreate)
	assert.Len(t, second.ToUpdate, 1)
	assert.Empty(t, second.ToClose)
}

func TestPartialScanFilterKeepsUncoveredOpen(t *testing.T) {
	now := time.Now()
	stale := openFinding("vol-1", "rule-a", now)
	stale.Region = "eu-west-1"
	covered := openFinding("vol-2", "rule-a", now)

	recon := Reconcile(nil, []types.Finding{stale, covered}, now)
	require.Len(t, recon.ToClose, 2)

	filtered := PartialScanFilter(recon, func(_, region string, _ types.Family) bool {
		return region == "us-east-1"
	})
	require.Len(t, filtered.ToClose, 1)
	assert.Equal(t, "vol-2", filtered.ToClose[0].ResourceID)
}

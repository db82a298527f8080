package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimworks/skim/types"
)

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog("testdata/rules.yaml")
	require.NoError(t, err)

	assert.Equal(t, "2026-03", catalog.Version)
	assert.Len(t, catalog.Rules, 4)

	volumes := catalog.ForFamily(types.FamilyBlockVolume)
	require.Len(t, volumes, 1)
	assert.Equal(t, "ebs-gp2-to-gp3", volumes[0].RuleID)
	assert.Equal(t, types.WasteModify, volumes[0].Waste.Action)

	gp3, ok := volumes[0].Waste.Set["volume_type"].AsString()
	require.True(t, ok)
	assert.Equal(t, "gp3", gp3)
}

func TestValidateRejectsBadCatalogs(t *testing.T) {
	base := func() types.DetectionRule {
		return types.DetectionRule{
			RuleID:         "r1",
			Family:         types.FamilyBlockVolume,
			Recommendation: "do something",
			Predicates: []types.Predicate{
				{Attr: "volume_type", Op: types.OpEqual, Value: types.String("gp2")},
			},
			Waste: types.WasteSpec{Action: types.WasteDelete},
		}
	}

	tests := []struct {
		name   string
		mutate func(*types.DetectionRule)
	}{
		{"missing rule id", func(r *types.DetectionRule) { r.RuleID = "" }},
		{"unknown family", func(r *types.DetectionRule) { r.Family = "mainframe" }},
		{"no recommendation", func(r *types.DetectionRule) { r.Recommendation = "" }},
		{"negative age gate", func(r *types.DetectionRule) { r.MinAgeDays = -1 }},
		{"empty rule", func(r *types.DetectionRule) { r.Predicates = nil }},
		{"bad predicate op", func(r *types.DetectionRule) { r.Predicates[0].Op = "like" }},
		{"modify without set", func(r *types.DetectionRule) {
			r.Waste = types.WasteSpec{Action: types.WasteModify}
		}},
		{"scale without component", func(r *types.DetectionRule) {
			r.Waste = types.WasteSpec{Action: types.WasteScaleUnused}
		}},
		{"unknown waste action", func(r *types.DetectionRule) {
			r.Waste = types.WasteSpec{Action: "resize"}
		}},
		{"inverted confidence bands", func(r *types.DetectionRule) {
			r.Confidence = []types.ConfidenceBand{
				{MinAgeDays: 0, Level: types.ConfidenceHigh},
				{MinAgeDays: 30, Level: types.ConfidenceLow},
			}
		}},
		{"bad ratio reference", func(r *types.DetectionRule) {
			r.Metrics = []types.MetricRequirement{{
				Name: "m1", Namespace: "AWS/EBS", Metric: "VolumeReadOps",
				Stat: types.StatSum, WindowDays: 7,
				Op: types.OpLessThan, Threshold: 1, RatioOf: "nope",
			}}
		}},
		{"zero window", func(r *types.DetectionRule) {
			r.Metrics = []types.MetricRequirement{{
				Name: "m1", Namespace: "AWS/EBS", Metric: "VolumeReadOps",
				Stat: types.StatSum, WindowDays: 0,
				Op: types.OpLessThan, Threshold: 1,
			}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base()
			tt.mutate(&rule)
			catalog := &Catalog{Version: "1", Rules: []types.DetectionRule{rule}}
			assert.Error(t, catalog.Validate())
		})
	}
}

func TestValidateRejectsDuplicateRuleIDs(t *testing.T) {
	rule := types.DetectionRule{
		RuleID:         "dup",
		Family:         types.FamilyBlockVolume,
		Recommendation: "x",
		Predicates: []types.Predicate{
			{Attr: "volume_type", Op: types.OpExists},
		},
		Waste: types.WasteSpec{Action: types.WasteDelete},
	}
	catalog := &Catalog{Version: "1", Rules: []types.DetectionRule{rule, rule}}
	assert.Error(t, catalog.Validate())
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	original, err := os.ReadFile("testdata/rules.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, original, 0o600))

	loader, err := NewLoader(path)
	require.NoError(t, err)

	catalog, err := loader.Current()
	require.NoError(t, err)
	assert.Len(t, catalog.Rules, 4)

	// A broken edit keeps the last good catalogue serving
	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\nrules: [{}]"), 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	catalog, err = loader.Current()
	assert.Error(t, err)
	require.NotNil(t, catalog)
	assert.Len(t, catalog.Rules, 4)
}

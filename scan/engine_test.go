package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/pricing"
	"github.com/skimworks/skim/rules"
	"github.com/skimworks/skim/storage"
	"github.com/skimworks/skim/telemetry"
	"github.com/skimworks/skim/types"
)

var scanTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeCollector struct {
	family    types.Family
	resources map[string][]types.Resource
	errs      map[string]error
	calls     map[string]int
}

func (f *fakeCollector) Family() types.Family { return f.family }

func (f *fakeCollector) List(_ context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[unit.String()]++
	if err := f.errs[unit.String()]; err != nil {
		return nil, err
	}
	return f.resources[unit.String()], nil
}

type fakeSource struct {
	series map[string]types.MetricSeries
	err    error
}

func (f *fakeSource) Query(ctx context.Context, q types.MetricQuery) (types.MetricSeries, error) {
	results, err := f.QueryBatch(ctx, []types.MetricQuery{q})
	if err != nil {
		return types.MetricSeries{}, err
	}
	return results[q.Key()], nil
}

func (f *fakeSource) QueryBatch(_ context.Context, queries []types.MetricQuery) (map[string]types.MetricSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make(map[string]types.MetricSeries, len(queries))
	for _, q := range queries {
		if s, ok := f.series[q.MetricName]; ok {
			s.Query = q
			if s.Stat == "" {
				s.Stat = q.Stat
			}
			results[q.Key()] = s
		}
	}
	return results, nil
}

func testTable() *pricing.Table {
	rate := func(s string) pricing.Rate {
		return pricing.Rate{Decimal: decimal.RequireFromString(s)}
	}
	return &pricing.Table{
		Version: "2026-03",
		Rates: map[types.Family]map[string]pricing.Rate{
			types.FamilyBlockVolume: {
				"gp2_volume_gb_month": rate("0.10"),
				"gp3_volume_gb_month": rate("0.08"),
			},
			types.FamilyContainerOrch: {
				"control_plane_hour": rate("0.10"),
			},
		},
	}
}

func gp2Rule() types.DetectionRule {
	return types.DetectionRule{
		RuleID:         "ebs-gp2-to-gp3",
		Family:         types.FamilyBlockVolume,
		Recommendation: "Migrate the volume to gp3",
		MinAgeDays:     7,
		Predicates: []types.Predicate{
			{Attr: "volume_type", Op: types.OpEqual, Value: types.String("gp2")},
		},
		Waste: types.WasteSpec{
			Action: types.WasteModify,
			Set:    map[string]types.Value{"volume_type": types.String("gp3")},
		},
	}
}

func idleClusterRule() types.DetectionRule {
	return types.DetectionRule{
		RuleID:         "eks-no-nodes",
		Family:         types.FamilyContainerOrch,
		Recommendation: "Delete the empty cluster",
		MinAgeDays:     7,
		Predicates: []types.Predicate{
			{Attr: "node_group_count", Op: types.OpEqual, Value: types.Number(0)},
		},
		Metrics: []types.MetricRequirement{
			{
				Name:       "api_requests",
				Namespace:  "AWS/Usage",
				Metric:     "CallCount",
				Stat:       types.StatSum,
				WindowDays: 14,
				Op:         types.OpLessThan,
				Threshold:  10,
			},
		},
		Waste: types.WasteSpec{Action: types.WasteDelete},
	}
}

func testCatalog(ruleSet ...types.DetectionRule) func() *rules.Catalog {
	catalog := &rules.Catalog{Version: "test", Rules: ruleSet}
	return func() *rules.Catalog { return catalog }
}

func gp2Volume(id string) types.Resource {
	return types.Resource{
		ID:        id,
		Family:    types.FamilyBlockVolume,
		Provider:  "aws",
		Account:   "111122223333",
		Region:    "us-east-1",
		Name:      id,
		CreatedAt: scanTime.AddDate(0, 0, -45),
		Attributes: map[string]types.Value{
			"volume_type": types.String("gp2"),
			"size_gb":     types.Number(500),
		},
	}
}

func newTestEngine(t *testing.T, collectors []collector.Collector, source *fakeSource, catalog func() *rules.Catalog) (*Engine, *storage.FindingStore) {
	t.Helper()
	store, err := storage.NewFindingStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := NewEngine(collectors, source, catalog, testTable(), store,
		telemetry.NewLogger("test"), Options{
			UnitWorkers: 2,
			Clock:       func() time.Time { return scanTime },
		})
	return engine, store
}

func TestRunCreatesFindings(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	c := &fakeCollector{
		family:    types.FamilyBlockVolume,
		resources: map[string][]types.Resource{unit.String(): {gp2Volume("vol-1")}},
	}
	engine, store := newTestEngine(t, []collector.Collector{c}, &fakeSource{}, testCatalog(gp2Rule()))

	run, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)

	assert.Equal(t, types.ScanCompleted, run.Status)
	require.Len(t, run.Units, 1)
	assert.Equal(t, types.UnitCompleted, run.Units[0].Status)
	assert.Equal(t, 1, run.Units[0].Resources)
	assert.Equal(t, 1, run.Units[0].Findings)

	finding, ok := store.Get("vol-1", "ebs-gp2-to-gp3")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("10").Equal(finding.MonthlySavings))
	assert.Equal(t, types.ConfidenceHigh, finding.Confidence)
	assert.Equal(t, scanTime, finding.FirstSeenAt)
}

func TestRunIsIdempotent(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	c := &fakeCollector{
		family:    types.FamilyBlockVolume,
		resources: map[string][]types.Resource{unit.String(): {gp2Volume("vol-1")}},
	}
	engine, store := newTestEngine(t, []collector.Collector{c}, &fakeSource{}, testCatalog(gp2Rule()))

	_, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)
	first, _ := store.Get("vol-1", "ebs-gp2-to-gp3")

	_, err = engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)

	assert.Len(t, store.OpenFindings(), 1)
	second, _ := store.Get("vol-1", "ebs-gp2-to-gp3")
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
}

func TestRunClosesResolvedFindings(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	c := &fakeCollector{
		family:    types.FamilyBlockVolume,
		resources: map[string][]types.Resource{unit.String(): {gp2Volume("vol-1")}},
	}
	engine, store := newTestEngine(t, []collector.Collector{c}, &fakeSource{}, testCatalog(gp2Rule()))

	_, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)
	require.Len(t, store.OpenFindings(), 1)

	// volume migrated between scans
	migrated := gp2Volume("vol-1")
	migrated.Attributes["volume_type"] = types.String("gp3")
	c.resources[unit.String()] = []types.Resource{migrated}

	_, err = engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)

	assert.Empty(t, store.OpenFindings())
	closed, err := store.ClosedFindings()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, types.FindingClosed, closed[0].Status)
}

func TestRunPartialOnUnitFailure(t *testing.T) {
	volUnit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	volumes := &fakeCollector{
		family:    types.FamilyBlockVolume,
		resources: map[string][]types.Resource{volUnit.String(): {gp2Volume("vol-1")}},
	}
	clusterUnit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyContainerOrch}
	clusters := &fakeCollector{
		family: types.FamilyContainerOrch,
		errs: map[string]error{
			clusterUnit.String(): &collector.CollectionError{
				Unit: clusterUnit,
				Kind: collector.KindPermanent,
				Err:  errors.New("access denied"),
			},
		},
	}
	engine, store := newTestEngine(t, []collector.Collector{volumes, clusters}, &fakeSource{},
		testCatalog(gp2Rule(), idleClusterRule()))

	run, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"},
		[]types.Family{types.FamilyBlockVolume, types.FamilyContainerOrch})
	require.NoError(t, err)

	assert.Equal(t, types.ScanPartial, run.Status)
	assert.Len(t, store.OpenFindings(), 1)
	assert.Equal(t, 1, clusters.calls[clusterUnit.String()], "permanent failures are not retried")
}

func TestRunFailedUnitDoesNotCloseItsFindings(t *testing.T) {
	clusterUnit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyContainerOrch}
	cluster := types.Resource{
		ID:        "arn:aws:eks:us-east-1:111122223333:cluster/empty",
		Family:    types.FamilyContainerOrch,
		Account:   "111122223333",
		Region:    "us-east-1",
		Name:      "empty",
		CreatedAt: scanTime.AddDate(0, 0, -120),
		Attributes: map[string]types.Value{
			"node_group_count": types.Number(0),
		},
	}
	clusters := &fakeCollector{
		family:    types.FamilyContainerOrch,
		resources: map[string][]types.Resource{clusterUnit.String(): {cluster}},
	}
	source := &fakeSource{series: map[string]types.MetricSeries{
		"CallCount": {Stat: types.StatSum, Points: []types.MetricPoint{{Value: 2}}},
	}}
	engine, store := newTestEngine(t, []collector.Collector{clusters}, source, testCatalog(idleClusterRule()))

	_, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"},
		[]types.Family{types.FamilyContainerOrch})
	require.NoError(t, err)
	require.Len(t, store.OpenFindings(), 1)

	// next scan cannot reach the provider; the finding must survive
	clusters.errs = map[string]error{
		clusterUnit.String(): &collector.CollectionError{
			Unit: clusterUnit,
			Kind: collector.KindPermanent,
			Err:  errors.New("access denied"),
		},
	}
	run, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"},
		[]types.Family{types.FamilyContainerOrch})
	require.NoError(t, err)

	assert.Equal(t, types.ScanFailed, run.Status)
	assert.Len(t, store.OpenFindings(), 1, "findings in uncovered units stay open")
}

func TestRunSkipsOnInsufficientData(t *testing.T) {
	clusterUnit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyContainerOrch}
	cluster := types.Resource{
		ID:        "arn:aws:eks:us-east-1:111122223333:cluster/quiet",
		Family:    types.FamilyContainerOrch,
		Account:   "111122223333",
		Region:    "us-east-1",
		CreatedAt: scanTime.AddDate(0, 0, -30),
		Attributes: map[string]types.Value{
			"node_group_count": types.Number(0),
		},
	}
	clusters := &fakeCollector{
		family:    types.FamilyContainerOrch,
		resources: map[string][]types.Resource{clusterUnit.String(): {cluster}},
	}
	// no series at all for the required metric
	engine, store := newTestEngine(t, []collector.Collector{clusters}, &fakeSource{}, testCatalog(idleClusterRule()))

	run, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"},
		[]types.Family{types.FamilyContainerOrch})
	require.NoError(t, err)

	assert.Equal(t, types.ScanCompleted, run.Status)
	assert.Equal(t, 1, run.Units[0].Skipped)
	assert.Equal(t, 0, run.Units[0].Findings)
	assert.Empty(t, store.OpenFindings())
}

func TestRunTransientCollectionIsRetried(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	c := &retryingCollector{
		unit:     unit,
		failures: 1,
		resource: gp2Volume("vol-1"),
	}
	engine, _ := newTestEngine(t, []collector.Collector{c}, &fakeSource{}, testCatalog(gp2Rule()))

	run, err := engine.Run(context.Background(), []string{"111122223333"}, []string{"us-east-1"},
		[]types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)

	assert.Equal(t, types.ScanCompleted, run.Status)
	assert.Equal(t, 2, run.Units[0].Attempts)
}

type retryingCollector struct {
	unit     types.ScanUnit
	failures int
	calls    int
	resource types.Resource
}

func (c *retryingCollector) Family() types.Family { return types.FamilyBlockVolume }

func (c *retryingCollector) List(_ context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, &collector.CollectionError{Unit: unit, Kind: collector.KindTransient, Err: errors.New("throttled")}
	}
	return []types.Resource{c.resource}, nil
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	unit := types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: types.FamilyBlockVolume}
	c := &fakeCollector{
		family:    types.FamilyBlockVolume,
		resources: map[string][]types.Resource{unit.String(): {gp2Volume("vol-1")}},
	}
	engine, _ := newTestEngine(t, []collector.Collector{c}, &fakeSource{}, testCatalog(gp2Rule()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := engine.Run(ctx, []string{"111122223333"}, []string{"us-east-1"}, []types.Family{types.FamilyBlockVolume})
	require.NoError(t, err)
	assert.Equal(t, types.ScanFailed, run.Status)
	assert.Equal(t, types.UnitAborted, run.Units[0].Status)
}

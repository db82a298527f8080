// Package scan orchestrates full scans: fan out over (account,
// region, family) units, evaluate the rule catalogue against each
// inventory, and reconcile the results into the finding store.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/findings"
	"github.com/skimworks/skim/internal/emitter"
	"github.com/skimworks/skim/metrics"
	"github.com/skimworks/skim/pricing"
	"github.com/skimworks/skim/rules"
	"github.com/skimworks/skim/storage"
	"github.com/skimworks/skim/telemetry"
	"github.com/skimworks/skim/types"
)

// Store is the slice of the finding store the engine needs
type Store interface {
	OpenFindings() []types.Finding
	ApplyReconciliation(recon findings.Reconciliation) error
}

// Options tune a scan engine
type Options struct {
	// UnitWorkers bounds how many units run concurrently
	UnitWorkers int
	// UnitAttempts bounds retries of a unit after transient failures
	UnitAttempts int
	// Clock is injectable for deterministic runs
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.UnitWorkers <= 0 {
		o.UnitWorkers = 4
	}
	if o.UnitAttempts <= 0 {
		o.UnitAttempts = 2
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Engine runs scans
type Engine struct {
	collectors map[types.Family]collector.Collector
	source     metrics.Source
	catalog    func() *rules.Catalog
	table      *pricing.Table
	store      Store
	logger     *telemetry.Logger
	emit       emitter.Emitter
	opts       Options
}

// WithEmitter attaches an output sink for finding deltas
func (e *Engine) WithEmitter(sink emitter.Emitter) *Engine {
	e.emit = sink
	return e
}

// NewEngine wires a scan engine. The catalog is a func so a hot
// reloading loader can hand each scan the current rule set.
func NewEngine(
	collectors []collector.Collector,
	source metrics.Source,
	catalog func() *rules.Catalog,
	table *pricing.Table,
	store Store,
	logger *telemetry.Logger,
	opts Options,
) *Engine {
	byFamily := make(map[types.Family]collector.Collector, len(collectors))
	for _, c := range collectors {
		byFamily[c.Family()] = c
	}
	return &Engine{
		collectors: byFamily,
		source:     source,
		catalog:    catalog,
		table:      table,
		store:      store,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// unitResult is what one processed unit hands back to the scan
type unitResult struct {
	outcome  types.UnitOutcome
	findings []types.Finding
}

// Run executes one full scan over the unit grid and returns the run
// manifest. A unit failure degrades the scan to partial; only a scan
// with zero completed units fails outright.
func (e *Engine) Run(ctx context.Context, accounts, regions []string, families []types.Family) (*types.ScanRun, error) {
	now := e.opts.Clock()
	run := &types.ScanRun{
		ScanID:    uuid.NewString(),
		Accounts:  accounts,
		Regions:   regions,
		Families:  families,
		Status:    types.ScanQueued,
		StartedAt: now,
	}

	units := buildUnits(accounts, regions, families)
	if err := run.Transition(types.ScanRunning); err != nil {
		return nil, err
	}
	e.logger.LogScanStart(ctx, run.ScanID, len(units))

	results := e.processUnits(ctx, units, now)

	var current []types.Finding
	for _, result := range results {
		run.Units = append(run.Units, result.outcome)
		current = append(current, result.findings...)
	}

	if err := e.reconcile(ctx, run, current, now); err != nil {
		_ = run.Transition(types.ScanFailed)
		run.CompletedAt = e.opts.Clock()
		return run, err
	}

	if err := run.Transition(run.Summarize()); err != nil {
		return run, err
	}
	run.CompletedAt = e.opts.Clock()

	elapsed := run.CompletedAt.Sub(run.StartedAt)
	telemetry.RecordScanDuration(ctx, elapsed.Seconds())
	e.logger.LogScanEnd(ctx, run.ScanID, run.Status, float64(elapsed.Milliseconds()))
	return run, nil
}

func buildUnits(accounts, regions []string, families []types.Family) []types.ScanUnit {
	var units []types.ScanUnit
	for _, account := range accounts {
		for _, region := range regions {
			for _, family := range families {
				units = append(units, types.ScanUnit{Account: account, Region: region, Family: family})
			}
		}
	}
	return units
}

// processUnits runs units under a bounded worker pool
func (e *Engine) processUnits(ctx context.Context, units []types.ScanUnit, now time.Time) []unitResult {
	results := make([]unitResult, len(units))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.opts.UnitWorkers)

	for i, unit := range units {
		wg.Add(1)
		go func(i int, unit types.ScanUnit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = e.processUnit(ctx, unit, now)
		}(i, unit)
	}
	wg.Wait()

	return results
}

// processUnit collects one unit's inventory and evaluates the rule
// catalogue over it. Failures stay inside the unit.
func (e *Engine) processUnit(ctx context.Context, unit types.ScanUnit, now time.Time) unitResult {
	start := time.Now()
	outcome := types.UnitOutcome{Unit: unit, Status: types.UnitCompleted}

	defer func() {
		outcome.Duration = time.Since(start)
		telemetry.RecordUnitDuration(ctx, outcome.Duration.Seconds())
		e.logger.LogUnitDone(ctx, unit, outcome)
	}()

	if ctx.Err() != nil {
		outcome.Status = types.UnitAborted
		outcome.Error = ctx.Err().Error()
		return unitResult{outcome: outcome}
	}

	c, ok := e.collectors[unit.Family]
	if !ok {
		outcome.Status = types.UnitFailed
		outcome.Error = fmt.Sprintf("no collector for family %s", unit.Family)
		return unitResult{outcome: outcome}
	}

	resources, attempts, err := e.collectWithRetry(ctx, c, unit)
	outcome.Attempts = attempts
	if err != nil {
		if errors.Is(err, context.Canceled) {
			outcome.Status = types.UnitAborted
		} else {
			outcome.Status = types.UnitFailed
		}
		outcome.Error = err.Error()
		return unitResult{outcome: outcome}
	}

	outcome.Resources = len(resources)
	telemetry.AddResourcesScanned(ctx, int64(len(resources)))

	found, skipped := e.evaluateResources(ctx, unit, resources, now)
	outcome.Findings = len(found)
	outcome.Skipped = skipped

	return unitResult{outcome: outcome, findings: found}
}

func (e *Engine) collectWithRetry(ctx context.Context, c collector.Collector, unit types.ScanUnit) ([]types.Resource, int, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.UnitAttempts; attempt++ {
		resources, err := c.List(ctx, unit)
		if err == nil {
			return resources, attempt, nil
		}
		lastErr = err
		if !collector.IsTransient(err) {
			return nil, attempt, err
		}
	}
	return nil, e.opts.UnitAttempts, lastErr
}

// evaluateResources runs every applicable rule over every resource in
// the unit, fetching each resource's metric needs in one batch
func (e *Engine) evaluateResources(ctx context.Context, unit types.ScanUnit, resources []types.Resource, now time.Time) ([]types.Finding, int) {
	applicable := e.catalog().ForFamily(unit.Family)
	if len(applicable) == 0 {
		return nil, 0
	}

	var found []types.Finding
	var skipped int

	for _, resource := range resources {
		series, fetchErr := e.fetchSeries(ctx, applicable, resource, now)
		if fetchErr != nil {
			series = map[string]map[string]types.MetricSeries{}
		}

		for _, rule := range applicable {
			// Metric backend exhausted for this resource; every
			// metric-dependent rule is skipped, not failed
			if fetchErr != nil && len(rule.Metrics) > 0 {
				skipped++
				telemetry.AddRulesSkipped(ctx, 1)
				e.logger.LogRuleSkipped(ctx, rule.RuleID, resource.ID, fetchErr)
				continue
			}
			match, err := rules.Evaluate(rule, resource, series[rule.RuleID], now)
			if err != nil {
				if errors.Is(err, rules.ErrInsufficientData) {
					skipped++
					telemetry.AddRulesSkipped(ctx, 1)
					e.logger.LogRuleSkipped(ctx, rule.RuleID, resource.ID, err)
					continue
				}
				e.logger.LogRuleSkipped(ctx, rule.RuleID, resource.ID, err)
				continue
			}
			if match == nil {
				continue
			}

			finding, ok := e.assembleFinding(ctx, *match, now)
			if !ok {
				continue
			}
			found = append(found, finding)
		}
	}
	return found, skipped
}

// fetchSeries resolves every metric requirement of every applicable
// rule for one resource, keyed rule -> requirement name
func (e *Engine) fetchSeries(ctx context.Context, applicable []types.DetectionRule, resource types.Resource, now time.Time) (map[string]map[string]types.MetricSeries, error) {
	var queries []types.MetricQuery
	type slot struct {
		ruleID string
		name   string
		key    string
	}
	var slots []slot

	for _, rule := range applicable {
		ruleQueries := rules.Requirements(rule, resource, now)
		for i, q := range ruleQueries {
			queries = append(queries, q)
			slots = append(slots, slot{ruleID: rule.RuleID, name: rule.Metrics[i].Name, key: q.Key()})
		}
	}
	if len(queries) == 0 {
		return map[string]map[string]types.MetricSeries{}, nil
	}

	telemetry.AddMetricQueries(ctx, int64(len(queries)))
	answers, err := e.source.QueryBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	result := make(map[string]map[string]types.MetricSeries)
	for _, s := range slots {
		if result[s.ruleID] == nil {
			result[s.ruleID] = make(map[string]types.MetricSeries)
		}
		if answer, ok := answers[s.key]; ok {
			result[s.ruleID][s.name] = answer
		}
	}
	return result, nil
}

func (e *Engine) assembleFinding(ctx context.Context, match types.MatchResult, now time.Time) (types.Finding, bool) {
	estimate, err := pricing.EstimateWaste(&match, e.table)
	if err != nil {
		var logicErr *pricing.LogicError
		if errors.As(err, &logicErr) {
			e.logger.LogEstimateRejected(ctx, match.Rule.RuleID, match.Resource.ID, err)
		} else {
			e.logger.LogRuleSkipped(ctx, match.Rule.RuleID, match.Resource.ID, err)
		}
		return types.Finding{}, false
	}

	finding, err := findings.Assemble(match, estimate, now)
	if err != nil {
		e.logger.LogEstimateRejected(ctx, match.Rule.RuleID, match.Resource.ID, err)
		return types.Finding{}, false
	}
	return finding, true
}

// reconcile merges the scan's findings into the store, protecting
// findings in units the scan failed to cover
func (e *Engine) reconcile(ctx context.Context, run *types.ScanRun, current []types.Finding, now time.Time) error {
	covered := make(map[string]bool, len(run.Units))
	for _, u := range run.Units {
		if u.Status == types.UnitCompleted {
			covered[u.Unit.String()] = true
		}
	}

	recon := findings.Reconcile(current, e.store.OpenFindings(), now)
	recon = findings.PartialScanFilter(recon, func(account, region string, family types.Family) bool {
		return covered[types.ScanUnit{Account: account, Region: region, Family: family}.String()]
	})

	if err := e.store.ApplyReconciliation(recon); err != nil {
		e.logger.LogStorageError(ctx, "apply_reconciliation", err)
		return fmt.Errorf("failed to persist reconciliation: %w", err)
	}

	telemetry.AddFindingsCreated(ctx, int64(len(recon.ToCreate)))
	telemetry.AddFindingsClosed(ctx, int64(len(recon.ToClose)))
	telemetry.RecordOpenFindings(ctx, int64(len(e.store.OpenFindings())))
	e.logger.LogReconciliation(ctx, len(recon.ToCreate), len(recon.ToUpdate), len(recon.ToClose))

	if e.emit != nil {
		delta := emitter.Delta{
			ScanID:  run.ScanID,
			Created: recon.ToCreate,
			Updated: recon.ToUpdate,
			Closed:  recon.ToClose,
			Open:    e.store.OpenFindings(),
		}
		if err := e.emit.Emit(ctx, delta); err != nil {
			e.logger.LogStorageError(ctx, "emit_findings", err)
		}
	}
	return nil
}

// Ensure FindingStore satisfies the engine's store dependency
var _ Store = (*storage.FindingStore)(nil)

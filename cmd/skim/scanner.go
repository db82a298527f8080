package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skimworks/skim/config"
	"github.com/skimworks/skim/internal/emitter"
	"github.com/skimworks/skim/internal/ratelimit"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/metrics"
	"github.com/skimworks/skim/pricing"
	awsprovider "github.com/skimworks/skim/providers/aws"
	"github.com/skimworks/skim/rules"
	"github.com/skimworks/skim/scan"
	"github.com/skimworks/skim/storage"
	"github.com/skimworks/skim/telemetry"
	"github.com/skimworks/skim/types"
)

// engineRunner is the slice of the scan engine the region scanner drives
type engineRunner interface {
	Run(ctx context.Context, accounts, regions []string, families []types.Family) (*types.ScanRun, error)
}

// regionScanner runs one engine per region and folds the per-region
// manifests into a single run. SDK clients are regional, so each region
// carries its own collectors and metric source; the shared finding
// store keeps reconciliation global.
type regionScanner struct {
	engines map[string]engineRunner
	clock   func() time.Time
}

// Run scans every requested region in sequence and merges the unit
// outcomes. The merged status follows the same rule as a single run:
// failed only when nothing completed, partial when some units failed.
func (s *regionScanner) Run(ctx context.Context, accounts, regions []string, families []types.Family) (*types.ScanRun, error) {
	combined := &types.ScanRun{
		ScanID:    uuid.NewString(),
		Accounts:  accounts,
		Regions:   regions,
		Families:  families,
		Status:    types.ScanRunning,
		StartedAt: s.clock(),
	}

	var firstErr error
	for _, region := range regions {
		engine, ok := s.engines[region]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("no engine for region %q", region)
			}
			continue
		}

		run, err := engine.Run(ctx, accounts, []string{region}, families)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if run != nil {
			combined.Units = append(combined.Units, run.Units...)
		}
	}

	if err := combined.Transition(combined.Summarize()); err != nil {
		return combined, err
	}
	combined.CompletedAt = s.clock()
	return combined, firstErr
}

// runtime bundles everything a command needs to scan
type runtime struct {
	scanner *regionScanner
	store   *storage.FindingStore
	emit    emitter.Emitter
}

// Close releases the store and flushes emitters
func (rt *runtime) Close() error {
	if rt.emit != nil {
		_ = rt.emit.Close()
	}
	return rt.store.Close()
}

// buildRuntime wires the full scanning stack from configuration: rule
// loader, pricing table, finding store, shared rate limit registry and
// one engine per configured region.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *telemetry.Logger, emit emitter.Emitter) (*runtime, error) {
	loader, err := rules.NewLoader(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalogue: %w", err)
	}

	table, err := pricing.LoadTable(cfg.PricingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing table: %w", err)
	}

	store, err := storage.NewFindingStore(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open finding store: %w", err)
	}

	registry := ratelimit.NewRegistry(cfg.Metrics.CallsPerSecond, cfg.Metrics.Burst)
	policy := retry.DefaultPolicy()

	// A broken catalogue edit keeps the previous catalogue serving
	catalog := func() *rules.Catalog {
		current, err := loader.Current()
		if err != nil {
			logger.LogCatalogReload(ctx, "", 0, err)
		}
		return current
	}

	engines := make(map[string]engineRunner, len(cfg.Regions))
	for _, region := range cfg.Regions {
		clients, err := awsprovider.NewClients(ctx, region)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to build clients for %s: %w", region, err)
		}

		collectors, err := clients.Collectors(cfg.Families, registry, policy)
		if err != nil {
			_ = store.Close()
			return nil, err
		}

		source := metrics.NewCloudWatchSource(clients.CloudWatch, clients.Account,
			metrics.WithPacer(registry),
			metrics.WithCacheTTL(cfg.Metrics.CacheTTL),
			metrics.WithRetryPolicy(policy),
		)

		engine := scan.NewEngine(collectors, source, catalog, table, store, logger, scan.Options{
			UnitWorkers:  cfg.Scan.UnitWorkers,
			UnitAttempts: cfg.Scan.UnitAttempts,
		})
		if emit != nil {
			engine.WithEmitter(emit)
		}
		engines[region] = engine
	}

	return &runtime{
		scanner: &regionScanner{engines: engines, clock: time.Now},
		store:   store,
		emit:    emit,
	}, nil
}

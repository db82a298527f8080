package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skimworks/skim/config"
	"github.com/skimworks/skim/internal/daemon"
	"github.com/skimworks/skim/internal/emitter"
	"github.com/skimworks/skim/telemetry"
)

var daemonFindingsOut string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous scanning",
	Long: `Run Skim in daemon mode: a full scan on every interval, findings
exported as Prometheus metrics on the configured listen address, and
optional OTLP export of traces and metrics.

The first scan starts immediately. SIGTERM and SIGINT shut the daemon
down cleanly.`,
	Example: `  skim daemon                             # Run with skim.yaml
  skim daemon --config /etc/skim.yaml     # Explicit config
  skim daemon --findings changes.jsonl    # Also log finding changes`,
	RunE: runDaemonCmd,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonFindingsOut, "findings", "", "Also write finding changes as JSONL to a file, or - for stdout")
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger("skim").WithLevel(cfg.Telemetry.LogLevel)

	ctx := context.Background()
	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "skim",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTELEndpoint:   cfg.Telemetry.OTELEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = shutdown(ctx) }()

	emit, cleanup, err := daemonEmitter(daemonFindingsOut)
	if err != nil {
		return err
	}
	defer cleanup()

	rt, err := buildRuntime(ctx, cfg, logger, emit)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	d, err := daemon.New(daemon.Config{
		Interval:   cfg.Daemon.Interval,
		ListenAddr: cfg.Daemon.ListenAddr,
		Accounts:   cfg.Accounts,
		Regions:    cfg.Regions,
		Families:   cfg.Families,
	}, rt.scanner, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("interval", cfg.Daemon.Interval.String()).
		Str("listen", cfg.Daemon.ListenAddr).
		Int("regions", len(cfg.Regions)).
		Msg("starting daemon")

	return d.Run(ctx)
}

// daemonEmitter always exports findings as Prometheus gauges and adds
// the JSONL sink when one is configured
func daemonEmitter(path string) (emitter.Emitter, func(), error) {
	prom, err := emitter.NewPrometheusEmitter()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus emitter: %w", err)
	}

	jsonl, cleanup, err := findingsEmitter(path)
	if err != nil {
		return nil, nil, err
	}
	if jsonl == nil {
		return prom, cleanup, nil
	}
	return emitter.NewMultiEmitter(prom, jsonl), cleanup, nil
}

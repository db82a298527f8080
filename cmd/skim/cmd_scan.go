package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/skimworks/skim/config"
	"github.com/skimworks/skim/internal/emitter"
	"github.com/skimworks/skim/telemetry"
	"github.com/skimworks/skim/types"
)

var scanFindingsOut string

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and reconcile findings",
	Long: `Run a single scan over the configured accounts, regions and
resource families, evaluate the rule catalogue and reconcile the
results into the finding store.

The command exits after one pass. Use "skim daemon" for continuous
operation.`,
	Example: `  skim scan --config skim.yaml            # Scan everything configured
  skim scan --findings -                  # Stream finding changes to stdout
  skim scan --findings changes.jsonl      # Append finding changes to a file`,
	RunE: runScanCmd,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanFindingsOut, "findings", "", "Write finding changes as JSONL to a file, or - for stdout")
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger("skim").WithLevel(cfg.Telemetry.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	emit, cleanup, err := findingsEmitter(scanFindingsOut)
	if err != nil {
		return err
	}
	defer cleanup()

	rt, err := buildRuntime(ctx, cfg, logger, emit)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	run, err := rt.scanner.Run(ctx, cfg.Accounts, cfg.Regions, cfg.Families)
	if run != nil {
		printSummary(run, rt)
	}
	if err != nil {
		return err
	}
	if run.Status == types.ScanFailed {
		return fmt.Errorf("scan %s failed", run.ScanID)
	}
	return nil
}

// findingsEmitter builds the optional JSONL sink for finding changes
func findingsEmitter(path string) (emitter.Emitter, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return emitter.NewJSONLEmitter(os.Stdout), func() {}, nil
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path is intentional user input
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open findings output: %w", err)
		}
		return emitter.NewJSONLEmitter(f), func() { _ = f.Close() }, nil
	}
}

func printSummary(run *types.ScanRun, rt *runtime) {
	var resources, found, skipped, failed int
	for _, u := range run.Units {
		resources += u.Resources
		found += u.Findings
		skipped += u.Skipped
		if u.Status != types.UnitCompleted {
			failed++
		}
	}

	open := rt.store.OpenFindings()
	savings := decimal.Zero
	for _, f := range open {
		savings = savings.Add(f.MonthlySavings)
	}

	fmt.Printf("Scan %s: %s\n", run.ScanID, run.Status)
	fmt.Printf("  units:      %d (%d failed)\n", len(run.Units), failed)
	fmt.Printf("  resources:  %d\n", resources)
	fmt.Printf("  matched:    %d (%d rule evaluations skipped)\n", found, skipped)
	fmt.Printf("  open:       %d findings, $%s/month potential savings\n", len(open), savings.StringFixed(2))

	for _, u := range run.Units {
		if u.Status == types.UnitCompleted {
			continue
		}
		fmt.Printf("  %s %s: %s\n", u.Status, u.Unit, u.Error)
	}
}

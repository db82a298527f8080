// Package daemon runs the engine continuously: a scan on every tick,
// a metrics endpoint for Prometheus, and clean signal-driven shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skimworks/skim/telemetry"
	"github.com/skimworks/skim/types"
)

// Scanner is the one operation the daemon drives
type Scanner interface {
	Run(ctx context.Context, accounts, regions []string, families []types.Family) (*types.ScanRun, error)
}

// Config holds daemon configuration
type Config struct {
	Interval   time.Duration
	ListenAddr string
	Accounts   []string
	Regions    []string
	Families   []types.Family
}

// Daemon manages continuous scanning
type Daemon struct {
	cfg       Config
	scanner   Scanner
	metrics   *Metrics
	logger    *telemetry.Logger
	startTime time.Time
	cycles    atomic.Int64
}

// New creates a daemon around a scanner
func New(cfg Config, scanner Scanner, logger *telemetry.Logger) (*Daemon, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive")
	}
	metrics, err := NewMetrics()
	if err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:       cfg,
		scanner:   scanner,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Run blocks until a signal arrives or an actor fails. One scan runs
// immediately so a fresh deployment reports findings before the first
// full interval elapses.
func (d *Daemon) Run(ctx context.Context) error {
	var group run.Group

	// scan loop
	loopCtx, cancelLoop := context.WithCancel(ctx)
	group.Add(func() error {
		return d.scanLoop(loopCtx)
	}, func(error) {
		cancelLoop()
	})

	// metrics and health endpoint
	server := d.newServer()
	group.Add(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	// signals
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := group.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		d.logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

func (d *Daemon) scanLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.runScan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runScan(ctx)
		}
	}
}

func (d *Daemon) runScan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	d.cycles.Add(1)
	start := time.Now()

	scanRun, err := d.scanner.Run(ctx, d.cfg.Accounts, d.cfg.Regions, d.cfg.Families)
	status := "error"
	if err == nil {
		status = string(scanRun.Status)
	} else {
		d.logger.Error().Err(err).Msg("scan cycle failed")
	}

	d.metrics.RecordCycle(ctx, status)
	d.metrics.RecordCycleDuration(ctx, time.Since(start).Seconds(), status)
}

func (d *Daemon) newServer() *http.Server {
	registry := telemetry.PrometheusRegistry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := d.Health()
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "%s uptime=%ds cycles=%d\n", health.Status, health.Uptime, health.Cycles)
	})

	return &http.Server{
		Addr:              d.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// HealthStatus reports daemon liveness
type HealthStatus struct {
	Status string
	Uptime int64
	Cycles int64
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Cycles: d.cycles.Load(),
	}
}

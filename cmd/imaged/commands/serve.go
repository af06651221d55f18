package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ashgrove/imaged/internal/logger"
	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/config"
	"github.com/ashgrove/imaged/pkg/derive"
	"github.com/ashgrove/imaged/pkg/metrics"
	prommetrics "github.com/ashgrove/imaged/pkg/metrics/prometheus"
	"github.com/ashgrove/imaged/pkg/transform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the imaged derivation service",
	Long: `Start imaged: build the cache chain and the derivation coordinator
from configuration, verify the origin object store is reachable, and
block serving derivation requests until an interrupt or terminate signal
is received.

The coordinator itself implements no HTTP routing (that is an external
collaborator's job, per spec.md); serve exposes only the operational
surfaces owned by this process: the Prometheus /metrics endpoint.

Examples:
  imaged serve
  imaged serve --config /etc/imaged/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	if err := InitLogger(cfg); err != nil {
		return &exitError{code: 1, err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics must be initialised before the cache chain and coordinator
	// are constructed, so metrics.IsEnabled() is true by the time their
	// constructors decide whether to build a Prometheus-backed collector.
	if cfg.Metrics.Enabled {
		metrics.Init(promclient.NewRegistry())
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics collection disabled")
	}

	chain, err := buildChain(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build cache chain: %w", err)
	}
	defer func() {
		if err := chain.closer(); err != nil {
			logger.Error("error closing cache levels", "error", err)
		}
	}()

	if err := chain.origin.Healthcheck(ctx); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("origin object store unreachable: %w", err)}
	}

	levelEntries := make([]derive.LevelEntry, 0, len(chain.levels))
	for _, lvl := range chain.levels {
		levelEntries = append(levelEntries, derive.LevelEntry{
			Level:     lvl,
			Writeback: cache.WritebackLazy,
		})
	}

	// Constructed and kept alive for the lifetime of serve; Resolve is
	// called by the external router this process hands the coordinator
	// to, not by this command itself (spec.md §6 scopes HTTP out).
	_ = derive.New(
		levelEntries, chain.origin, transform.Default{},
		cfg.PersistentStore.URLLifetime, cfg.PersistentStore.URLLifetimeSlack,
		prommetrics.NewCoordinatorMetrics(),
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port))
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("imaged is running", "memory_cache", cfg.MemoryCache.Enabled,
		"local_cache", cfg.LocalCache.Enabled, "swift_cache", cfg.SwiftCache.Enabled,
		"max_images", cfg.MaxImages, "max_size", cfg.MaxSize.String())

	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := metrics.Shutdown(shutdownCtx, metricsServer); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("imaged stopped gracefully")
	return nil
}

// exitError carries a specific process exit code (spec.md §6: 0 ok, 1
// config error, 2 store unreachable) through cobra's error-returning
// RunE without cobra swallowing the distinction.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string  { return e.err.Error() }
func (e *exitError) Unwrap() error  { return e.err }
func (e *exitError) ExitCode() int  { return e.code }

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/telemetry"
	"github.com/marmos91/dittoca/pkg/api"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/config"
	"github.com/marmos91/dittoca/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittoca/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Channel Access server",
	Long: `Start the Channel Access server with the specified configuration.

The server runs in the foreground until interrupted; run it under a
process supervisor for production use.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittoca/config.yaml.

Examples:
  # Start with the default config file
  dittoca start

  # Start with a custom config file
  dittoca start --config /etc/dittoca/config.yaml

  # Override settings from the environment
  DITTOCA_LOGGING_LEVEL=DEBUG EPICS_CAS_SERVER_PORT=5070 dittoca start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file while running")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoca",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is canceled by then
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	fmt.Println("DittoCA - EPICS Channel Access server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// The registry must exist before the stores and the server ask for
	// their metrics
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	store, err := config.CreateAutosaveStore(cfg.Autosave)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Autosave store close error", logger.KeyError, err)
			}
		}()
		logger.Info("Autosave enabled", logger.KeyPath, cfg.Autosave.Path)
	}

	host, err := config.InitializeHost(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("failed to initialize PVs: %w", err)
	}
	logger.Info("PVs configured", "count", len(host.Names()))

	server, err := cas.NewServer(cfg.CASConfig(), host, metrics.NewCASMetrics())
	if err != nil {
		return fmt.Errorf("failed to create CA server: %w", err)
	}
	host.Bind(server)

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoca",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           map[string]string{"server_id": server.ID()},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	var wg sync.WaitGroup
	serverDone := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := host.Run(ctx); err != nil {
			logger.Error("PV host stopped", logger.KeyError, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		serverDone <- server.Serve(ctx)
	}()

	if cfg.API.IsEnabled() {
		backends := api.Backends{Status: server, PVs: host, Metrics: registry}
		if store != nil {
			backends.Autosave = store
		}
		apiServer := api.NewServer(cfg.API, backends)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				logger.Error("API server error", logger.KeyError, err)
			}
		}()
		logger.Info("API server enabled", logger.KeyPort, cfg.API.Port)
	} else {
		logger.Info("API server disabled")
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case serveErr = <-serverDone:
		signal.Stop(sigChan)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("Graceful shutdown timed out", "timeout", cfg.ShutdownTimeout)
	}

	if serveErr != nil {
		logger.Error("Server error", logger.KeyError, serveErr)
		return serveErr
	}
	logger.Info("Server stopped gracefully")
	return nil
}

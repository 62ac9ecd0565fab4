// Quasar Teradata - Teradata health and metrics agent for Gravito Zenith
//
// Runs the Teradata check on an interval, publishes every cycle to the
// transport Redis and optionally exposes the values to Prometheus.
//
// Usage:
//
//	QUASAR_SERVICE=edw TERADATA_SERVER=td.internal TERADATA_USERNAME=dd TERADATA_PASSWORD=secret quasar-teradata
//
// Or with a config file:
//
//	quasar-teradata --config /etc/quasar/teradata.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gravito-framework/quasar-teradata/pkg/agent"
	"github.com/gravito-framework/quasar-teradata/pkg/config"
	"github.com/gravito-framework/quasar-teradata/pkg/sink"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	configPath := ""
	once := false
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			printHelp()
			os.Exit(0)
		case "--version", "-v":
			fmt.Printf("quasar-teradata %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		case "--once":
			once = true
		case "--config", "-c":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a path")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown option %s\n", args[i])
			os.Exit(2)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration error", "error", err)
		fmt.Println("\nRun 'quasar-teradata --help' for usage information.")
		os.Exit(1)
	}

	agent.Version = version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []agent.Option{agent.WithLogger(logger)}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		prom := sink.NewPrometheusSink()
		reg := prometheus.NewRegistry()
		if err := prom.Register(reg); err != nil {
			logger.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
		opts = append(opts, agent.WithPrometheus(prom))
		metricsServer = serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	a, err := agent.New(cfg, opts...)
	if err != nil {
		logger.Error("Failed to create agent", "error", err)
		os.Exit(1)
	}

	if once {
		report, err := a.RunOnce(ctx)
		if err != nil {
			logger.Error("Check cycle failed", "error", err)
		} else {
			logger.Info("Check cycle reported", "runId", report.RunID, "errors", report.QueryErrors)
		}
		_ = a.Stop(ctx)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		logger.Error("Failed to start agent", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	// Graceful shutdown
	cancel()
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
		done()
	}
	if err := a.Stop(context.Background()); err != nil {
		logger.Error("Shutdown error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving Prometheus metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("QUASAR_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func printHelp() {
	fmt.Println(`Usage: quasar-teradata [options]

Quasar Teradata connects to a Teradata database on an interval, runs the
metric queries and reports can_connect / can_query health to Zenith.

Environment Variables:
  QUASAR_SERVICE              (Required) Service name identifier
  QUASAR_NAME                 Custom node name (default: hostname)
  QUASAR_REDIS_URL            Redis URL for Zenith transport (default: redis://localhost:6379)
  QUASAR_TRANSPORT_REDIS_URL  Same as QUASAR_REDIS_URL
  QUASAR_INTERVAL             Check interval in seconds (default: 15)
  QUASAR_METRICS_ADDR         Prometheus listen address, e.g. :9187 (default: disabled)
  QUASAR_LOG_LEVEL            debug, info, warn or error (default: info)
  TERADATA_SERVER             (Required) Teradata host
  TERADATA_DATABASE           Database substituted into the queries
  TERADATA_USERNAME           Username for TD2/LDAP
  TERADATA_PASSWORD           Password for TD2/LDAP

Options:
  -c, --config PATH   Load a YAML config file (environment still overrides it)
      --once          Run a single cycle and exit
  -h, --help          Show this help message
  -v, --version       Show version information

The Teradata SQL driver ("teradatasql") must be linked into the binary.
Without it every cycle reports teradata.can_connect CRITICAL.`)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command correlatord runs the correlation engine's tumbling-cadence
// scan loop against the telemetry store, emitting incidents for the
// shipped rule set.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amoskys/amoskys/internal/config"
	"github.com/amoskys/amoskys/internal/correlate"
	"github.com/amoskys/amoskys/internal/health"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the bus YAML config (for the shared telemetry store path)")
	cadenceSec := flag.Int("cadence", 0, "tumbling scan cadence in seconds, overrides the default")
	metricsAddr := flag.String("metrics-addr", ":9091", "address for the Prometheus/liveness HTTP server")
	flag.Parse()

	log := logging.WithComponent("correlatord")

	cfg, err := config.LoadBusConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		log.Error("failed to create store directory", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Error("failed to open telemetry store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	m := metrics.New()
	engine := correlate.New(correlate.DefaultWindowRetention, correlate.DefaultRules, st, m)

	cadence := correlate.DefaultCadence
	if *cadenceSec > 0 {
		cadence = time.Duration(*cadenceSec) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	healthHandler := health.NewHandler()
	healthHandler.Register("store", func() error { _, err := st.DistinctDeviceIDs(time.Unix(0, 0)); return err })

	go runMetricsServer(ctx, *metricsAddr, m, healthHandler, log)

	log.Info("correlator starting tumbling scan loop", "cadence", cadence)
	correlate.RunTumbling(ctx, engine, cadence, time.Now)
}

func runMetricsServer(ctx context.Context, addr string, m *metrics.Collector, handler *health.Handler, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", handler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server exited with error", "error", err)
	}
}

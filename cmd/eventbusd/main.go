// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command eventbusd runs the EventBus ingest service: the admission
// pipeline, the legacy and universal publish RPCs, a Prometheus scrape
// endpoint, and a liveness endpoint.
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
	"google.golang.org/grpc"

	"github.com/amoskys/amoskys/internal/config"
	"github.com/amoskys/amoskys/internal/dedupe"
	"github.com/amoskys/amoskys/internal/eventbus"
	"github.com/amoskys/amoskys/internal/health"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/store"
	"github.com/amoskys/amoskys/internal/wal"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

func main() {
	configPath := flag.String("config", "", "path to the bus YAML config")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the Prometheus/liveness HTTP server")
	flag.Parse()

	log := logging.WithComponent("eventbusd")

	cfg, err := config.LoadBusConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.WALPath), 0o755); err != nil {
		log.Error("failed to create wal directory", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		log.Error("failed to create store directory", "error", err)
		os.Exit(1)
	}

	w, err := wal.Open(cfg.WALPath)
	if err != nil {
		log.Error("failed to open WAL", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Error("failed to open telemetry store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	m := metrics.New()
	d := dedupe.New(cfg.DedupeTTL, cfg.DedupeMaxEntries)
	srv := eventbus.New(cfg.MaxEnvelopeBytes, int64(cfg.WorkerPoolSize), d, w, st, m)
	switch cfg.Overload {
	case "on":
		srv.SetOverloadMode(eventbus.OverloadOn)
	case "off":
		srv.SetOverloadMode(eventbus.OverloadOff)
	default:
		srv.SetOverloadMode(eventbus.OverloadAuto)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	lis, creds, err := busrpc.Listen(busrpc.ListenOptions{
		Address:           cfg.ListenAddress,
		CertPath:          cfg.ServerCertPath,
		KeyPath:           cfg.ServerKeyPath,
		ClientCAPath:      cfg.ClientCAPath,
		RequireClientAuth: cfg.RequireClientAuth,
	})
	if err != nil {
		log.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(creds)
	busrpc.RegisterLegacyServer(grpcServer, srv)
	busrpc.RegisterUniversalServer(grpcServer, srv)
	busrpc.RegisterReservedServer(grpcServer, srv)

	healthHandler := health.NewHandler()
	healthHandler.Register("wal", func() error { _, err := w.Count(); return err })
	healthHandler.Register("store", func() error { _, err := st.DistinctDeviceIDs(time.Unix(0, 0)); return err })

	go runRetentionLoop(ctx, w, st, cfg.WALRetention, cfg.TelemetryRetention, log)
	go runMetricsServer(ctx, *metricsAddr, m, healthHandler, log)

	go func() {
		<-ctx.Done()
		log.Info("shutting down eventbus, draining in-flight publishes")
		grpcServer.GracefulStop()
	}()

	log.Info("eventbus listening", "address", cfg.ListenAddress)
	if err := grpcServer.Serve(lis); err != nil {
		log.Error("grpc server exited with error", "error", err)
		os.Exit(1)
	}
}

func runRetentionLoop(ctx context.Context, w *wal.WAL, st *store.Store, walRetention, telemetryRetention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Prune(walRetention); err != nil {
				log.Warn("wal prune failed", "error", err)
			} else if n > 0 {
				log.Info("pruned wal records", "count", n)
			}
			if n, err := st.Prune(telemetryRetention); err != nil {
				log.Warn("store prune failed", "error", err)
			} else if n > 0 {
				log.Info("pruned telemetry records", "count", n)
			}
		}
	}
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

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command agentd runs the host-resident collector runtime: FIM,
// process, kernel-audit, network, DNS, and auth-log collectors feeding
// a durable local queue that ships to the EventBus.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amoskys/amoskys/internal/agent"
	"github.com/amoskys/amoskys/internal/config"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/queue"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

func main() {
	configPath := flag.String("config", "", "path to the agent YAML config")
	intervalSec := flag.Int("interval", 0, "collector cadence in seconds, overrides config")
	scanOnce := flag.Bool("scan-once", false, "run every collector once and exit")
	baselineOnly := flag.Bool("baseline-only", false, "write a fresh FIM baseline without emitting envelopes, then exit")
	flag.Parse()

	log := logging.WithComponent("agentd")

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *intervalSec > 0 {
		cfg.Interval = time.Duration(*intervalSec) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	fim := agent.NewFIMCollector(cfg.AgentID, cfg.FIMRoots, cfg.FIMBaselinePath)

	if *baselineOnly {
		if _, err := fim.Baseline(ctx); err != nil {
			log.Error("baseline scan failed", "error", err)
			os.Exit(1)
		}
		log.Info("baseline written", "path", cfg.FIMBaselinePath)
		return
	}

	collectors := []agent.Collector{
		fim,
		agent.NewProcessCollector(cfg.AgentID),
		agent.NewKernelAuditCollector(cfg.AgentID, cfg.SUIDScanRoots),
	}

	if cfg.AuthLogPath != "" {
		collectors = append(collectors, agent.NewAuthLogCollector(cfg.AgentID, cfg.AuthLogPath))
	}
	if cfg.NetworkIface != "" {
		if nc, err := agent.NewNetworkCollector(cfg.AgentID, cfg.NetworkIface, cfg.LocalIP); err != nil {
			log.Warn("network collector unavailable, continuing without it", "error", err)
		} else {
			defer nc.Close()
			collectors = append(collectors, nc)
		}
		if dc, err := agent.NewDNSCollector(cfg.AgentID, cfg.NetworkIface); err != nil {
			log.Warn("dns collector unavailable, continuing without it", "error", err)
		} else {
			defer dc.Close()
			collectors = append(collectors, dc)
		}
	}

	conn, err := busrpc.Dial(cfg.BusAddress, busrpc.DialOptions{
		CertPath:     cfg.ClientCertPath,
		KeyPath:      cfg.ClientKeyPath,
		ServerCAPath: cfg.ServerCAPath,
		Insecure:     cfg.ClientCertPath == "",
	})
	if err != nil {
		log.Error("failed to dial eventbus", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.QueuePath), 0o755); err != nil {
		log.Error("failed to create queue directory", "error", err)
		os.Exit(1)
	}
	q, err := queue.Open(cfg.QueuePath, cfg.QueueMaxBytes, cfg.QueueMaxRetries)
	if err != nil {
		log.Error("failed to open local queue", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	shipper := agent.NewShipper(busrpc.NewLegacyClient(conn), q, m, 10*time.Second)
	a := agent.New(collectors, shipper, cfg.Interval)

	if *scanOnce {
		if err := a.RunOnce(ctx); err != nil {
			log.Error("scan-once cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("agent starting", "agent_id", cfg.AgentID, "interval", cfg.Interval)
	a.Run(ctx)
}

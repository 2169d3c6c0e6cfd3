// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"time"

	"github.com/amoskys/amoskys/internal/logging"
)

// Agent runs a fixed set of collectors on a shared interval and hands
// every envelope they produce to a Shipper for durable delivery.
type Agent struct {
	collectors []Collector
	shipper    *Shipper
	interval   time.Duration
	log        *logging.Logger
}

// New builds an Agent. interval is the collector cadence (agentd's
// --interval flag overrides the config default).
func New(collectors []Collector, shipper *Shipper, interval time.Duration) *Agent {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Agent{
		collectors: collectors,
		shipper:    shipper,
		interval:   interval,
		log:        logging.WithComponent("agent"),
	}
}

// RunOnce runs every collector exactly once, enqueuing their envelopes.
// Used by the --scan-once CLI mode.
func (a *Agent) RunOnce(ctx context.Context) error {
	for _, c := range a.collectors {
		envs, err := c.Collect(ctx)
		if err != nil {
			a.log.Warn("collector failed", "collector", c.Name(), "error", err)
			continue
		}
		for _, env := range envs {
			if err := a.shipper.Enqueue(env); err != nil {
				a.log.Warn("failed to enqueue envelope", "collector", c.Name(), "error", err)
			}
		}
	}
	return nil
}

// Run starts the shipper's delivery loop in the background and ticks
// every collector on a.interval until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	go a.shipper.Run(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	if err := a.RunOnce(ctx); err != nil {
		a.log.Warn("initial collection cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.log.Warn("collection cycle failed", "error", err)
			}
		}
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package agent implements the host-resident collector runtime:
// periodic collectors observe local activity, invoke the detection
// primitives, wrap findings into envelopes, and ship them to the
// EventBus with local-queue fallback on backoff.
package agent

import (
	"context"

	"github.com/amoskys/amoskys/internal/envelope"
)

// Collector is one periodic observation source (FIM, process, network
// flow, DNS, security/audit log). Each collector is single-threaded:
// it runs to completion on every tick before the next tick fires.
type Collector interface {
	// Name identifies the collector in logs and metrics.
	Name() string
	// Collect runs one observation cycle and returns zero or more
	// envelopes ready to publish. Collect must respect ctx
	// cancellation for long-running scans (FIM walks).
	Collect(ctx context.Context) ([]*envelope.Envelope, error)
}

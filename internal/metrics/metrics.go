// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics owns the Prometheus registry for the EventBus and
// agent: a *Collector wrapping a dedicated *prometheus.Registry, safe
// for concurrent reads, covering the bus, dedupe, and correlation
// counters this pipeline needs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every metric the EventBus and agent publish.
type Collector struct {
	Registry *prometheus.Registry

	PublishTotal      *prometheus.CounterVec
	InvalidTotal      prometheus.Counter
	RetryTotal        prometheus.Counter
	PublishLatencyMs  prometheus.Histogram
	InflightRequests  prometheus.Gauge

	DedupeHits      prometheus.Counter
	DedupeMisses    prometheus.Counter
	DedupeEvictions prometheus.Counter

	IncidentsTotal *prometheus.CounterVec

	QueueDroppedTotal prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// New builds a Collector with every metric registered against a fresh
// registry, so tests never collide with the process-wide default
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Envelopes accepted by the EventBus, by outcome.",
		}, []string{"outcome"}),
		InvalidTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_invalid_total",
			Help: "Envelopes rejected as permanently invalid.",
		}),
		RetryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_retry_total",
			Help: "Publish attempts that returned RETRY.",
		}),
		PublishLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bus_publish_latency_ms",
			Help:    "Publish admission-pipeline latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		InflightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bus_inflight_requests",
			Help: "Publish RPCs currently in flight.",
		}),
		DedupeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_dedupe_hits_total",
			Help: "Idempotency keys seen before (not re-appended to WAL).",
		}),
		DedupeMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_dedupe_misses_total",
			Help: "Idempotency keys admitted as new.",
		}),
		DedupeEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_dedupe_evictions_total",
			Help: "Dedupe cache entries evicted for capacity.",
		}),
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "correlate_incidents_total",
			Help: "Incidents emitted by the correlation engine, by rule.",
		}, []string{"rule"}),
		QueueDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_queue_dropped_total",
			Help: "Envelopes dropped from the local durable queue under backpressure.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_queue_depth",
			Help: "Entries currently held in the local durable queue.",
		}),
	}

	reg.MustRegister(
		c.PublishTotal, c.InvalidTotal, c.RetryTotal, c.PublishLatencyMs, c.InflightRequests,
		c.DedupeHits, c.DedupeMisses, c.DedupeEvictions, c.IncidentsTotal,
		c.QueueDroppedTotal, c.QueueDepth,
	)
	return c
}

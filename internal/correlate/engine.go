// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package correlate implements the correlation engine: a
// per-device bounded sliding window of telemetry events evaluated by a
// fixed sequence of rules, each emitting at most one incident per
// invocation. The engine runs single-threaded per device (so window
// semantics stay simple) with devices fanned out in parallel, and a
// rule panic is isolated to that rule rather than blocking ingest.
package correlate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/model"
	"github.com/amoskys/amoskys/internal/store"
)

// DefaultWindowRetention is the default per-device sliding window size.
const DefaultWindowRetention = 30 * time.Minute

// DefaultCadence is the default tumbling-scan interval.
const DefaultCadence = 30 * time.Second

// Engine holds one Window per device and evaluates DefaultRules (or a
// caller-supplied rule set) against it, either from an in-process
// fan-out of admitted envelopes (preferred, lowest latency) or from a
// periodic scan of the telemetry store.
type Engine struct {
	mu      sync.Mutex
	windows map[string]*Window

	retain  time.Duration
	rules   []Rule
	store   *store.Store
	metrics *metrics.Collector
	log     *logging.Logger
}

// New builds an Engine. store may be nil only for tests that call
// Ingest directly and inspect emitted incidents without persistence.
func New(retain time.Duration, rules []Rule, s *store.Store, m *metrics.Collector) *Engine {
	if retain <= 0 {
		retain = DefaultWindowRetention
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Engine{
		windows: make(map[string]*Window),
		retain:  retain,
		rules:   rules,
		store:   s,
		metrics: m,
		log:     logging.WithComponent("correlate"),
	}
}

func (e *Engine) windowFor(deviceID string) *Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.windows[deviceID]
	if !ok {
		w = NewWindow(e.retain)
		e.windows[deviceID] = w
	}
	return w
}

// Ingest is the low-latency path: it adds one event to its device's
// window and immediately evaluates rules against it. eventbusd does not
// call it for admitted events; cmd/correlatord uses RunTumbling.
func (e *Engine) Ingest(now time.Time, ev Event) []*model.Incident {
	w := e.windowFor(ev.DeviceID)
	w.Add(now, ev)
	return e.evaluate(ev.DeviceID, w.Snapshot())
}

// evaluate runs every rule against the device's current window in
// sequence, isolating panics per-rule, and persists any emitted
// incident. A rule failure is logged and skipped; it never blocks
// evaluation of the remaining rules or other devices.
func (e *Engine) evaluate(deviceID string, events []Event) []*model.Incident {
	var out []*model.Incident
	for _, rule := range e.rules {
		inc := e.runRuleSafely(rule, events, deviceID)
		if inc == nil {
			continue
		}
		out = append(out, inc)
		if e.metrics != nil {
			e.metrics.IncidentsTotal.WithLabelValues(rule.Name()).Inc()
		}
		if e.store != nil {
			if err := e.store.RecordIncident(*inc); err != nil {
				e.log.Warn("failed to persist incident", "rule", rule.Name(), "device_id", deviceID, "error", err)
			}
		}
	}
	return out
}

func (e *Engine) runRuleSafely(rule Rule, events []Event, deviceID string) (incident *model.Incident) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("correlation rule panicked", "rule", rule.Name(), "device_id", deviceID, "panic", r)
			incident = nil
		}
	}()
	if inc, ok := rule.Evaluate(events, deviceID); ok {
		return inc
	}
	return nil
}

// ScanTumbling implements the alternative, higher-latency input mode
//: scan the telemetry store for events since `since` across
// every device with recent activity, evaluated in parallel (one
// goroutine per device, window semantics stay single-threaded within
// that goroutine).
func (e *Engine) ScanTumbling(ctx context.Context, since, now time.Time) ([]*model.Incident, error) {
	if e.store == nil {
		return nil, nil
	}
	deviceIDs, err := e.store.DistinctDeviceIDs(since)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var incidents []*model.Incident

	g, ctx := errgroup.WithContext(ctx)
	for _, deviceID := range deviceIDs {
		deviceID := deviceID
		g.Go(func() error {
			events, err := e.store.QueryEvents(deviceID, "", since, now)
			if err != nil {
				return err
			}
			w := e.windowFor(deviceID)
			for _, te := range events {
				w.Add(now, eventFromTelemetry(deviceID, te))
			}
			w.Evict(now)
			inc := e.evaluate(deviceID, w.Snapshot())
			if len(inc) == 0 {
				return nil
			}
			mu.Lock()
			incidents = append(incidents, inc...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return incidents, err
	}
	return incidents, nil
}

// RunTumbling loops ScanTumbling on cadence until ctx is cancelled, the
// mode its calls "correlation engine" when run as a standalone scanner
// rather than wired to the EventBus's in-process fan-out.
func RunTumbling(ctx context.Context, e *Engine, cadence time.Duration, clockNow func() time.Time) {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	last := clockNow()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := e.ScanTumbling(ctx, last, now); err != nil {
				e.log.Warn("tumbling scan failed", "error", err)
			}
			last = now
		}
	}
}

func eventFromTelemetry(deviceID string, te model.TelemetryEvent) Event {
	return Event{
		EventID:   te.EventID,
		DeviceID:  deviceID,
		EventType: te.EventType,
		Severity:  te.Severity,
		EventTSNs: te.EventTSNs,
		Body:      te,
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package correlate

import (
	"sort"
	"sync"
	"time"

	"github.com/amoskys/amoskys/internal/model"
)

// Event is the correlation engine's view of one telemetry observation:
// the typed body plus the envelope metadata rules need to reason about
// ordering and provenance.
type Event struct {
	EventID   string
	DeviceID  string
	EventType model.EventType
	Severity  model.Severity
	EventTSNs uint64
	Body      model.TelemetryEvent
}

// EventTime returns the event's timestamp as a time.Time for window math.
func (e Event) EventTime() time.Time {
	return time.Unix(0, int64(e.EventTSNs))
}

// Window is a per-device bounded sliding buffer of recent events. Events
// older than the configured retention are evicted on every Add/Evict
// call. A Window is safe for concurrent use; the engine runs one per
// device but callers may share a Window across goroutines.
type Window struct {
	mu       sync.Mutex
	retain   time.Duration
	events   []Event
}

// NewWindow builds a Window retaining events within the last retain
// duration (the correlation engine's default is DefaultWindowRetention,
// 30 minutes, overridable per deployment).
func NewWindow(retain time.Duration) *Window {
	if retain <= 0 {
		retain = 30 * time.Minute
	}
	return &Window{retain: retain}
}

// Add inserts e and evicts anything older than retain relative to now.
func (w *Window) Add(now time.Time, e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	w.evictLocked(now)
}

// Evict drops events older than retain relative to now without adding
// anything; used by idle tumbling-cadence scans.
func (w *Window) Evict(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
}

func (w *Window) evictLocked(now time.Time) {
	cutoff := now.Add(-w.retain)
	kept := w.events[:0:0]
	for _, e := range w.events {
		if !e.EventTime().Before(cutoff) {
			kept = append(kept, e)
		}
	}
	w.events = kept
}

// Snapshot returns the window's current events sorted by EventTSNs
// ascending ordering requirement for "followed by" rules.
func (w *Window) Snapshot() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, len(w.events))
	copy(out, w.events)
	sort.Slice(out, func(i, j int) bool { return out[i].EventTSNs < out[j].EventTSNs })
	return out
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/model"
)

// FIMCollector walks a fixed set of roots each cycle, diffs the
// current filesystem state against a persisted baseline, and
// replaces the baseline atomically afterward. An
// fsnotify watch on the roots lets the collector short-circuit an
// idle cycle when nothing has changed since the last walk.
type FIMCollector struct {
	deviceID     string
	roots        []string
	baselinePath string
	log          *logging.Logger

	mu       sync.Mutex
	baseline map[string]model.FileState
	dirty    bool
	watcher  *fsnotify.Watcher
}

// NewFIMCollector builds a FIMCollector over roots, loading any
// existing baseline at baselinePath. A failure to start the fsnotify
// watch is non-fatal: the collector still walks every cycle.
func NewFIMCollector(deviceID string, roots []string, baselinePath string) *FIMCollector {
	c := &FIMCollector{
		deviceID: deviceID, roots: roots, baselinePath: baselinePath,
		log: logging.WithComponent("agent.fim"), dirty: true,
	}
	c.baseline, _ = loadBaseline(baselinePath)

	if w, err := fsnotify.NewWatcher(); err == nil {
		c.watcher = w
		for _, root := range roots {
			_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d == nil || !d.IsDir() {
					return nil
				}
				return w.Add(path)
			})
		}
		go c.drainWatch()
	} else {
		c.log.Warn("fsnotify watch unavailable, falling back to poll-only FIM", "error", err)
	}
	return c
}

func (c *FIMCollector) drainWatch() {
	for {
		select {
		case _, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.mu.Lock()
			c.dirty = true
			c.mu.Unlock()
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (c *FIMCollector) Name() string { return "fim" }

// Baseline backs --baseline-only mode: it walks the roots and replaces
// both the in-memory and the persisted baseline with the result,
// without emitting any envelopes.
func (c *FIMCollector) Baseline(ctx context.Context) (map[string]model.FileState, error) {
	current, err := c.walk(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.baseline = current
	c.mu.Unlock()
	if err := saveBaseline(c.baselinePath, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (c *FIMCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		return nil, nil
	}

	current, err := c.walk(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	baseline := c.baseline
	c.mu.Unlock()

	changes := detect.DiffBaseline(baseline, current)

	c.mu.Lock()
	c.baseline = current
	c.dirty = false
	c.mu.Unlock()
	if err := saveBaseline(c.baselinePath, current); err != nil {
		c.log.Warn("failed to persist FIM baseline", "error", err)
	}

	if len(changes) == 0 {
		return nil, nil
	}

	now := clock.Now()
	events := make([]model.TelemetryEvent, 0, len(changes))
	for _, ch := range changes {
		events = append(events, model.TelemetryEvent{
			EventID:   uuid.NewString(),
			EventType: model.EventAudit,
			Severity:  ch.Severity,
			EventTSNs: uint64(now.UnixNano()),
			Audit: &model.AuditEvent{
				Action: string(ch.ChangeType),
				Path:   ch.Path,
				Class:  auditClassFor(ch.ChangeType),
			},
		})
	}

	dt := model.DeviceTelemetry{
		DeviceID: c.deviceID, DeviceType: model.DeviceEndpoint,
		CollectionTSNs: uint64(now.UnixNano()), Events: events,
	}
	env := envelope.NewTelemetry(uint64(now.UnixNano()), uuid.NewString(), c.deviceID, dt)
	return []*envelope.Envelope{env}, nil
}

func auditClassFor(ct model.FileChangeType) model.AuditChangeClass {
	switch ct {
	case model.FileCreated:
		return model.ObjectCreated
	case model.FileDeleted:
		return model.ObjectDeleted
	default:
		return model.ObjectModified
	}
}

func (c *FIMCollector) walk(ctx context.Context) (map[string]model.FileState, error) {
	current := make(map[string]model.FileState)
	for _, root := range c.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil || d == nil || d.IsDir() {
				return nil
			}
			st, serr := detect.StatFileState(path)
			if serr != nil {
				return nil
			}
			current[path] = st
			return nil
		})
		if err != nil && err != ctx.Err() {
			c.log.Warn("FIM walk failed", "root", root, "error", err)
		}
		if ctx.Err() != nil {
			return current, ctx.Err()
		}
	}
	return current, nil
}

func loadBaseline(path string) (map[string]model.FileState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return make(map[string]model.FileState), err
	}
	var baseline map[string]model.FileState
	if err := json.Unmarshal(b, &baseline); err != nil {
		return make(map[string]model.FileState), err
	}
	return baseline, nil
}

// saveBaseline persists baseline as JSON with an atomic rename, so a
// crash mid-write never leaves a corrupt baseline on disk.
func saveBaseline(path string, baseline map[string]model.FileState) error {
	b, err := json.Marshal(baseline)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

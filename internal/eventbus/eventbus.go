// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eventbus implements the ingest admission pipeline:
// a process-wide overload tri-state and in-flight counter, both
// lock-free atomics, backed by the dedupe cache (guarded by its own
// mutex) and the WAL (serialized by sqlite), with no lock spanning
// both.
package eventbus

import (
	"sync/atomic"

	"github.com/amoskys/amoskys/internal/dedupe"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/store"
	"github.com/amoskys/amoskys/internal/wal"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

// OverloadMode is the process-wide overload tri-state.
type OverloadMode int32

const (
	OverloadOff OverloadMode = iota
	OverloadOn
	OverloadAuto
)

// DefaultMaxInflight is the soft in-flight cap unless the operator
// overrides it.
const DefaultMaxInflight = 50

// Server is the EventBus ingest core. It is safe for concurrent use by
// many RPC handlers: the only shared mutable state besides the dedupe
// cache and WAL (each independently synchronized) is the overload mode
// and the in-flight counter, both atomics.
type Server struct {
	// Reserved operations (PublishBatch, RegisterDevice, GetHealth,
	// GetMetrics, Subscribe) have no designed admission path; embedding
	// answers them all with UNIMPLEMENTED per §4.1/§6.1.
	busrpc.UnimplementedReservedServer

	mode           atomic.Int32
	autoOverloaded atomic.Bool
	inflight       atomic.Int64
	maxInflight    int64
	maxEnvBytes    int

	dedupe  *dedupe.Cache
	wal     *wal.WAL
	store   *store.Store
	metrics *metrics.Collector
	log     *logging.Logger
}

// New builds a Server wired to the given dedupe cache, WAL, and
// telemetry store. store may be nil: telemetry persistence is
// best-effort and the admission decision never depends on it.
func New(maxEnvBytes int, maxInflight int64, d *dedupe.Cache, w *wal.WAL, s *store.Store, m *metrics.Collector) *Server {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	srv := &Server{
		maxInflight: maxInflight,
		maxEnvBytes: maxEnvBytes,
		dedupe:      d,
		wal:         w,
		store:       s,
		metrics:     m,
		log:         logging.WithComponent("eventbus"),
	}
	srv.mode.Store(int32(OverloadAuto))
	return srv
}

// SetOverloadMode sets the tri-state overload flag (settable at
// startup, or via a reload signal).
func (s *Server) SetOverloadMode(mode OverloadMode) {
	s.mode.Store(int32(mode))
}

// SetAutoOverloaded sets the runtime signal consulted when the
// overload mode is OverloadAuto.
func (s *Server) SetAutoOverloaded(v bool) {
	s.autoOverloaded.Store(v)
}

// isOverloaded is a lock-free read of the current effective overload
// state.
func (s *Server) isOverloaded() bool {
	switch OverloadMode(s.mode.Load()) {
	case OverloadOn:
		return true
	case OverloadOff:
		return false
	default: // OverloadAuto
		return s.autoOverloaded.Load()
	}
}

// Inflight returns the current in-flight RPC count, for metrics and
// tests.
func (s *Server) Inflight() int64 {
	return s.inflight.Load()
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eventbus

import (
	"fmt"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/errors"
	"github.com/amoskys/amoskys/internal/wal"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

// Result is the bus's internal admission verdict, mirroring the wire
// Ack without depending on the gRPC layer.
type Result struct {
	Status    string
	Reason    string
	BackoffMs int64
}

func okResult(reason string) Result      { return Result{Status: busrpc.StatusOK, Reason: reason} }
func invalidResult(reason string) Result { return Result{Status: busrpc.StatusInvalid, Reason: reason} }
func retryResult(reason string, backoffMs int64) Result {
	return Result{Status: busrpc.StatusRetry, Reason: reason, BackoffMs: backoffMs}
}

// Admit runs the normative admission pipeline against env and
// returns the resulting Ack verdict. It never panics: any unexpected
// failure is recovered, logged with full detail, and reported as a
// RETRY with an Internal error kind, never leaking internal text to
// the caller.
func (s *Server) Admit(env *envelope.Envelope) (result Result) {
	start := clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in admission pipeline", "panic", r)
			result = retryResult("internal error", 5000)
		}
		s.metrics.PublishLatencyMs.Observe(float64(clock.Now().Sub(start).Milliseconds()))
	}()

	// 1. Overload check.
	if s.isOverloaded() {
		s.metrics.RetryTotal.Inc()
		return retryResult("Server is overloaded", 2000)
	}

	// 2. Size gate.
	if _, err := envelope.CheckSize(env, s.maxEnvBytes); err != nil {
		s.metrics.InvalidTotal.Inc()
		s.metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return invalidResult(err.Error())
	}

	// 3. In-flight gate. Release happens in this same scope regardless
	// of exit path, never across network I/O.
	inflight := s.inflight.Add(1)
	s.metrics.InflightRequests.Set(float64(inflight))
	defer func() {
		s.inflight.Add(-1)
		s.metrics.InflightRequests.Set(float64(s.inflight.Load()))
	}()
	if inflight > s.maxInflight {
		s.metrics.RetryTotal.Inc()
		return retryResult(fmt.Sprintf("Server at capacity (%d inflight)", inflight), 1000)
	}

	// 4. Payload extraction / structural validation.
	if err := env.Validate(); err != nil {
		s.metrics.InvalidTotal.Inc()
		s.metrics.PublishTotal.WithLabelValues("invalid").Inc()
		return invalidResult("Envelope missing flow/payload")
	}

	// 5. Dedupe.
	if s.dedupe.SeenOrAdmit(env.IdempotencyKey) {
		s.metrics.DedupeHits.Inc()
		s.metrics.PublishTotal.WithLabelValues("duplicate").Inc()
		return okResult("duplicate")
	}
	s.metrics.DedupeMisses.Inc()

	// 6. WAL append.
	raw, err := envelope.Encode(env)
	if err != nil {
		s.dedupe.Remove(env.IdempotencyKey)
		s.metrics.InvalidTotal.Inc()
		return invalidResult("failed to encode envelope")
	}
	if err := s.wal.Append(env.IdempotencyKey, env.TSNs, raw); err != nil {
		if errors.Is(err, wal.ErrDuplicate) {
			// Uniqueness violation is itself a dedupe hit: two
			// admissions raced on the same key.
			s.metrics.PublishTotal.WithLabelValues("duplicate").Inc()
			return okResult("duplicate")
		}
		// Transient write failure: must not be recorded in the dedupe
		// cache (its failure semantics), so a retry can succeed.
		s.dedupe.Remove(env.IdempotencyKey)
		s.metrics.RetryTotal.Inc()
		return retryResult("wal append failed", 1000)
	}

	s.ingestTelemetry(env)

	// 7. Return OK and emit metrics.
	s.metrics.PublishTotal.WithLabelValues("accepted").Inc()
	return okResult("accepted")
}

// ingestTelemetry best-effort persists a DeviceTelemetry payload to the
// telemetry store. A store failure here never changes the Ack: once an
// envelope is durably in the WAL, admission has already succeeded:
// the EventBus owns an envelope once it is appended to the WAL.
func (s *Server) ingestTelemetry(env *envelope.Envelope) {
	if s.store == nil || env.Payload.Kind != envelope.KindDeviceTelemetry || env.Payload.Telemetry == nil {
		return
	}
	if err := s.store.RecordTelemetry(*env.Payload.Telemetry); err != nil {
		s.log.Warn("failed to persist telemetry", "device_id", env.Payload.Telemetry.DeviceID, "error", err)
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"math/rand"
	"time"

	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/queue"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

// DefaultUnreachableBackoffMs is used when the bus cannot be reached
// at all (no Ack to read a backoff hint from).
const DefaultUnreachableBackoffMs = 2000

// jitterFraction is the ±20% jitter applied to every backoff delay.
const jitterFraction = 0.20

// Shipper drains the local durable queue against the EventBus,
// honoring RETRY backoff and dropping non-retryable outcomes. It owns
// the queue's pop/push-back lifecycle: a successful Publish commits
// the entry; RETRY/unreachable requeues it (incrementing its retry
// counter) and sleeps a jittered backoff before trying again.
type Shipper struct {
	client  busrpc.LegacyClient
	q       *queue.Queue
	metrics *metrics.Collector
	log     *logging.Logger

	deadline time.Duration
	idleWait time.Duration
}

// NewShipper builds a Shipper. deadline bounds each RPC
// cancellation policy; idleWait is how long to sleep when the queue is
// empty before checking again.
func NewShipper(client busrpc.LegacyClient, q *queue.Queue, m *metrics.Collector, deadline time.Duration) *Shipper {
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	return &Shipper{
		client:   client,
		q:        q,
		metrics:  m,
		log:      logging.WithComponent("agent.shipper"),
		deadline: deadline,
		idleWait: time.Second,
	}
}

// Enqueue durably persists env for later delivery. Called by the agent
// runtime immediately after a collector produces an envelope, before
// any attempt to reach the bus.
func (s *Shipper) Enqueue(env *envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	dropped, err := s.q.Push(raw)
	if err != nil {
		return err
	}
	if dropped && s.metrics != nil {
		s.metrics.QueueDroppedTotal.Inc()
	}
	return nil
}

// Run drains the queue until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.reportDepth()

		entry, err := s.q.Peek()
		if err != nil {
			s.log.Warn("queue peek failed", "error", err)
			sleepCtx(ctx, s.idleWait)
			continue
		}
		if entry == nil {
			sleepCtx(ctx, s.idleWait)
			continue
		}

		env, err := envelope.Decode(entry.Bytes)
		if err != nil {
			s.log.Warn("dropping unparseable queue entry", "rowid", entry.RowID, "error", err)
			if err := s.q.Commit(entry.RowID); err != nil {
				s.log.Warn("failed to drop unparseable entry", "error", err)
			}
			continue
		}

		backoffMs := s.attempt(ctx, entry.RowID, env)
		if backoffMs > 0 {
			sleepCtx(ctx, jitter(backoffMs))
		}
	}
}

// attempt publishes env once and resolves the queue entry according to
// the Ack. It returns a backoff in milliseconds to wait before the next
// loop iteration, or 0 if the caller should proceed immediately.
func (s *Shipper) attempt(ctx context.Context, rowID int64, env *envelope.Envelope) int64 {
	rpcCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	ack, err := s.client.Publish(rpcCtx, env)
	if err != nil {
		s.requeue(rowID, "bus unreachable", err)
		return DefaultUnreachableBackoffMs
	}

	switch ack.Status {
	case busrpc.StatusOK:
		if err := s.q.Commit(rowID); err != nil {
			s.log.Warn("failed to commit delivered entry", "rowid", rowID, "error", err)
		}
		return 0

	case busrpc.StatusRetry:
		s.requeue(rowID, ack.Reason, nil)
		if ack.BackoffHintMs > 0 {
			return ack.BackoffHintMs
		}
		return DefaultUnreachableBackoffMs

	case busrpc.StatusInvalid, busrpc.StatusUnauthorized:
		// Never retried failure semantics: retrying a
		// malformed or unauthorized envelope cannot succeed.
		s.log.Warn("dropping non-retryable envelope", "status", ack.Status, "reason", ack.Reason)
		if err := s.q.Commit(rowID); err != nil {
			s.log.Warn("failed to drop non-retryable entry", "error", err)
		}
		return 0

	default:
		s.requeue(rowID, ack.Reason, nil)
		return DefaultUnreachableBackoffMs
	}
}

func (s *Shipper) requeue(rowID int64, reason string, err error) {
	dropped, qerr := s.q.Requeue(rowID)
	if qerr != nil {
		s.log.Warn("failed to requeue entry", "rowid", rowID, "error", qerr)
		return
	}
	if dropped {
		s.log.Warn("discarding entry after exceeding max retries", "rowid", rowID, "reason", reason)
		return
	}
	if err != nil {
		s.log.Warn("publish failed, will retry", "rowid", rowID, "error", err)
	} else {
		s.log.Info("publish not accepted, will retry", "rowid", rowID, "reason", reason)
	}
}

func (s *Shipper) reportDepth() {
	if s.metrics == nil {
		return
	}
	if n, err := s.q.Size(); err == nil {
		s.metrics.QueueDepth.Set(float64(n))
	}
}

// jitter applies ±20% jitter to a backoff duration given in milliseconds.
func jitter(ms int64) time.Duration {
	base := time.Duration(ms) * time.Millisecond
	delta := float64(base) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return base + time.Duration(offset)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eventbus

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/dedupe"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/model"
	"github.com/amoskys/amoskys/internal/wal"
	"github.com/amoskys/amoskys/internal/wire/busrpc"
)

func newTestServer(t *testing.T, maxEnvBytes int, maxInflight int64) (*Server, *wal.WAL) {
	t.Helper()
	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	d := dedupe.New(0, 0)
	srv := New(maxEnvBytes, maxInflight, d, w, nil, metrics.New())
	srv.SetOverloadMode(OverloadOff)
	return srv, w
}

func flowEnvelope(tsNs uint64, key string) *envelope.Envelope {
	return envelope.NewFlow(tsNs, key, "agent-1", model.FlowEvent{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: "tcp"})
}

// Duplicate idempotency key is admitted once and acked OK on replay.
func TestAdmitDedupe(t *testing.T) {
	srv, w := newTestServer(t, envelope.DefaultMaxBytes, DefaultMaxInflight)

	env := flowEnvelope(1000, "k1")
	first := srv.Admit(env)
	require.Equal(t, busrpc.StatusOK, first.Status)
	require.Equal(t, "accepted", first.Reason)

	second := srv.Admit(env)
	require.Equal(t, busrpc.StatusOK, second.Status)
	require.Equal(t, "duplicate", second.Reason)

	n, err := w.Count()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

// Oversized envelope is rejected invalid, never reaching the WAL.
func TestAdmitOversize(t *testing.T) {
	srv, w := newTestServer(t, 131072, DefaultMaxInflight)

	env := flowEnvelope(1000, "k2")
	env.Payload.Legacy = make([]byte, 250000)

	res := srv.Admit(env)
	require.Equal(t, busrpc.StatusInvalid, res.Status)
	require.True(t, strings.Contains(res.Reason, "Envelope too large"), res.Reason)
	require.Regexp(t, `Envelope too large \(\d+ > 131072`, res.Reason)

	n, err := w.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

// Overload mode forces every admit to retry, WAL untouched.
func TestAdmitOverloadOn(t *testing.T) {
	srv, w := newTestServer(t, envelope.DefaultMaxBytes, DefaultMaxInflight)
	srv.SetOverloadMode(OverloadOn)

	res := srv.Admit(flowEnvelope(1000, "k3"))
	require.Equal(t, busrpc.StatusRetry, res.Status)
	require.Equal(t, int64(2000), res.BackoffMs)

	n, err := w.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

// With MAX_INFLIGHT=1 and one request already counted as in flight,
// assert that a further publish overflows the in-flight gate.
func TestAdmitInflightCapacity(t *testing.T) {
	srv, _ := newTestServer(t, envelope.DefaultMaxBytes, 1)

	// Saturate the in-flight counter directly to deterministically
	// exercise the capacity branch without relying on goroutine timing.
	srv.inflight.Store(1)

	res := srv.Admit(flowEnvelope(1000, "k4"))
	require.Equal(t, busrpc.StatusRetry, res.Status)
	require.Equal(t, int64(1000), res.BackoffMs)
	require.Contains(t, res.Reason, "Server at capacity")
}

func TestAdmitInvalidMissingPayload(t *testing.T) {
	srv, w := newTestServer(t, envelope.DefaultMaxBytes, DefaultMaxInflight)

	env := &envelope.Envelope{Version: envelope.CurrentVersion, TSNs: 1, IdempotencyKey: "k5"}
	res := srv.Admit(env)
	require.Equal(t, busrpc.StatusInvalid, res.Status)

	n, err := w.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAdmitConcurrentPublishesAreRaceFree(t *testing.T) {
	srv, w := newTestServer(t, envelope.DefaultMaxBytes, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			srv.Admit(flowEnvelope(uint64(i+1), "concurrent-key"))
		}(i)
	}
	wg.Wait()

	n, err := w.Count()
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "all 50 publishes share one idempotency key")
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package correlate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/metrics"
	"github.com/amoskys/amoskys/internal/model"
	"github.com/amoskys/amoskys/internal/store"
)

type panickyRule struct{}

func (panickyRule) Name() string { return "panicky" }
func (panickyRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	panic("boom")
}

func TestEngineIngestIsolatesPanickingRule(t *testing.T) {
	e := New(time.Hour, []Rule{panickyRule{}, &SuspiciousSudoRule{}}, nil, nil)

	base := time.Unix(1_700_000_000, 0)
	ev := sudoEvent("s1", base, "rm -rf / --no-preserve-root")
	ev.DeviceID = "dev-1"

	incidents := e.Ingest(base, ev)
	require.Len(t, incidents, 1, "the panicking rule is skipped, not fatal")
	require.Equal(t, "suspicious_sudo", incidents[0].RuleName)
}

func TestEngineIngestPersistsToStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(time.Hour, []Rule{&SuspiciousSudoRule{}}, s, metrics.New())

	base := time.Unix(1_700_000_000, 0)
	ev := sudoEvent("s1", base, "rm -rf / --no-preserve-root")
	ev.DeviceID = "dev-1"
	incidents := e.Ingest(base, ev)
	require.Len(t, incidents, 1)

	stored, err := s.ListIncidents("dev-1", "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, incidents[0].IncidentID, stored[0].IncidentID)
}

func TestEngineScanTumblingFindsIncidentsAcrossDevices(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.RecordTelemetry(model.DeviceTelemetry{
		DeviceID:   "dev-1",
		DeviceType: model.DeviceEndpoint,
		Events: []model.TelemetryEvent{
			{
				EventID: "e1", EventType: model.EventSecurity, EventTSNs: uint64(base.UnixNano()),
				Security: &model.SecurityEvent{Source: "sudo", Outcome: model.OutcomeSudo, Command: "rm -rf / --no-preserve-root"},
			},
		},
	}))

	e := New(time.Hour, []Rule{&SuspiciousSudoRule{}}, s, metrics.New())
	incidents, err := e.ScanTumbling(context.Background(), base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, "dev-1", incidents[0].DeviceID)
}

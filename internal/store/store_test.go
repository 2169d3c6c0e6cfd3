// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTelemetry(deviceID string, n int) model.DeviceTelemetry {
	dt := model.DeviceTelemetry{DeviceID: deviceID, DeviceType: model.DeviceEndpoint, CollectionTSNs: 1}
	for i := 0; i < n; i++ {
		dt.Events = append(dt.Events, model.TelemetryEvent{
			EventID:   string(rune('a' + i)),
			EventType: model.EventProcess,
			Severity:  model.SeverityInfo,
			EventTSNs: uint64(1000 + i),
			Process:   &model.ProcessEvent{PID: i, Executable: "/bin/sh"},
		})
	}
	return dt
}

func TestRecordAndQueryTelemetry(t *testing.T) {
	s := openTest(t)
	require.NoError(t, s.RecordTelemetry(sampleTelemetry("dev-1", 3)))

	events, err := s.QueryEvents("dev-1", "", time.Unix(0, 0), time.Unix(0, 10000))
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, uint64(1000), events[0].EventTSNs)
}

func TestRecordTelemetryIsIdempotentOnEventID(t *testing.T) {
	s := openTest(t)
	dt := sampleTelemetry("dev-1", 2)
	require.NoError(t, s.RecordTelemetry(dt))
	require.NoError(t, s.RecordTelemetry(dt))

	events, err := s.QueryEvents("dev-1", "", time.Unix(0, 0), time.Unix(0, 10000))
	require.NoError(t, err)
	require.Len(t, events, 2, "re-inserting the same event IDs must not duplicate rows")
}

func TestQueryEventsFiltersByType(t *testing.T) {
	s := openTest(t)
	dt := sampleTelemetry("dev-1", 2)
	dt.Events = append(dt.Events, model.TelemetryEvent{
		EventID:   "audit-1",
		EventType: model.EventAudit,
		Severity:  model.SeverityWarn,
		EventTSNs: 1500,
		Audit:     &model.AuditEvent{Path: "/etc/passwd", Class: model.ObjectModified},
	})
	require.NoError(t, s.RecordTelemetry(dt))

	auditOnly, err := s.QueryEvents("dev-1", model.EventAudit, time.Unix(0, 0), time.Unix(0, 10000))
	require.NoError(t, err)
	require.Len(t, auditOnly, 1)
	require.Equal(t, "audit-1", auditOnly[0].EventID)
}

func TestRecordIncidentUpsertsByIncidentID(t *testing.T) {
	s := openTest(t)
	inc := model.Incident{
		IncidentID: "inc-1",
		DeviceID:   "dev-1",
		Severity:   model.SeverityWarn,
		RuleName:   "ssh_brute_force",
		Summary:    "repeated ssh failures",
		Tactics:    []string{"credential-access"},
		StartTS:    time.Unix(100, 0),
		EndTS:      time.Unix(200, 0),
		State:      model.IncidentNew,
	}
	require.NoError(t, s.RecordIncident(inc))

	inc.Severity = model.SeverityCritical
	inc.EndTS = time.Unix(300, 0)
	require.NoError(t, s.RecordIncident(inc))

	found, err := s.ListIncidents("dev-1", "")
	require.NoError(t, err)
	require.Len(t, found, 1, "re-recording the same incident_id must update, not duplicate")
	require.Equal(t, model.SeverityCritical, found[0].Severity)
}

func TestTransitionIncidentState(t *testing.T) {
	s := openTest(t)
	inc := model.Incident{IncidentID: "inc-2", DeviceID: "dev-1", Severity: model.SeverityInfo, State: model.IncidentNew, StartTS: time.Unix(1, 0), EndTS: time.Unix(2, 0)}
	require.NoError(t, s.RecordIncident(inc))

	require.NoError(t, s.Transition("inc-2", model.IncidentInvestigating))
	found, err := s.ListIncidents("dev-1", model.IncidentInvestigating)
	require.NoError(t, err)
	require.Len(t, found, 1)

	err = s.Transition("does-not-exist", model.IncidentResolved)
	require.Error(t, err)
}

func TestPruneRemovesOldTelemetryOnly(t *testing.T) {
	s := openTest(t)

	mc := clock.NewMock(time.Unix(1_000_000, 0))
	orig := clock.Now
	clock.Now = mc.Now
	defer func() { clock.Now = orig }()

	old := model.DeviceTelemetry{DeviceID: "dev-1", Events: []model.TelemetryEvent{
		{EventID: "old-1", EventType: model.EventProcess, Severity: model.SeverityInfo, EventTSNs: uint64(mc.Now().UnixNano())},
	}}
	require.NoError(t, s.RecordTelemetry(old))

	mc.Advance(2 * time.Hour)
	fresh := model.DeviceTelemetry{DeviceID: "dev-1", Events: []model.TelemetryEvent{
		{EventID: "new-1", EventType: model.EventProcess, Severity: model.SeverityInfo, EventTSNs: uint64(mc.Now().UnixNano())},
	}}
	require.NoError(t, s.RecordTelemetry(fresh))

	n, err := s.Prune(time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	events, err := s.QueryEvents("dev-1", "", time.Unix(0, 0), time.Unix(0, mc.Now().UnixNano()+1))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "new-1", events[0].EventID)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/model"
)

func sshEvent(id string, ts time.Time, outcome model.SSHOutcome, srcIP string) Event {
	return Event{
		EventID:   id,
		DeviceID:  "dev-1",
		EventType: model.EventSecurity,
		EventTSNs: uint64(ts.UnixNano()),
		Body: model.TelemetryEvent{
			EventID: id, EventType: model.EventSecurity, EventTSNs: uint64(ts.UnixNano()),
			Security: &model.SecurityEvent{Source: "ssh", Outcome: outcome, SourceIP: srcIP},
		},
	}
}

func TestSSHBruteForceRuleFiresOnThreeFailuresThenSuccess(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var events []Event
	for i := 0; i < 3; i++ {
		events = append(events, sshEvent("fail"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Second), model.OutcomeFailure, "203.0.113.9"))
	}
	events = append(events, sshEvent("success1", base.Add(10*time.Second), model.OutcomeSuccess, "203.0.113.9"))

	rule := &SSHBruteForceRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityError, inc.Severity)
	require.Contains(t, inc.Techniques, "T1110")
	require.Len(t, inc.EvidenceEventIDs, 4)
}

func TestSSHBruteForceRuleNoFireOnTwoFailures(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		sshEvent("f1", base, model.OutcomeFailure, "203.0.113.9"),
		sshEvent("f2", base.Add(time.Second), model.OutcomeFailure, "203.0.113.9"),
		sshEvent("s1", base.Add(2*time.Second), model.OutcomeSuccess, "203.0.113.9"),
	}
	rule := &SSHBruteForceRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func auditEvent(id string, ts time.Time, class model.AuditChangeClass, path, content string) Event {
	return Event{
		EventID: id, DeviceID: "dev-1", EventType: model.EventAudit, EventTSNs: uint64(ts.UnixNano()),
		Body: model.TelemetryEvent{
			EventID: id, EventType: model.EventAudit, EventTSNs: uint64(ts.UnixNano()),
			Audit: &model.AuditEvent{Path: path, Class: class, Content: content},
		},
	}
}

func TestPersistenceAfterAuthRuleEscalatesUnderUserHome(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		sshEvent("s1", base, model.OutcomeSuccess, "203.0.113.9"),
		auditEvent("a1", base.Add(30*time.Second), model.ObjectCreated, "/Users/bob/Library/LaunchAgents/com.evil.plist", "RunAtLoad"),
	}
	rule := &PersistenceAfterAuthRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityCritical, inc.Severity)
}

func TestPersistenceAfterAuthRuleNoFireOutsideWindow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		sshEvent("s1", base, model.OutcomeSuccess, "203.0.113.9"),
		auditEvent("a1", base.Add(900*time.Second), model.ObjectCreated, "/Library/LaunchDaemons/com.evil.plist", "RunAtLoad"),
	}
	rule := &PersistenceAfterAuthRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func sudoEvent(id string, ts time.Time, cmd string) Event {
	return Event{
		EventID: id, DeviceID: "dev-1", EventType: model.EventSecurity, EventTSNs: uint64(ts.UnixNano()),
		Body: model.TelemetryEvent{
			EventID: id, EventType: model.EventSecurity, EventTSNs: uint64(ts.UnixNano()),
			Security: &model.SecurityEvent{Source: "sudo", Outcome: model.OutcomeSudo, Command: cmd},
		},
	}
}

func TestSuspiciousSudoRuleMatchesDangerousPattern(t *testing.T) {
	events := []Event{sudoEvent("s1", time.Unix(1_700_000_000, 0), "rm -rf / --no-preserve-root")}
	rule := &SuspiciousSudoRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityCritical, inc.Severity)
}

func TestSuspiciousSudoRuleNoFireOnBenignCommand(t *testing.T) {
	events := []Event{sudoEvent("s1", time.Unix(1_700_000_000, 0), "apt-get update")}
	rule := &SuspiciousSudoRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func flowEvent(id string, ts time.Time, dir model.Direction, dstIP string, dstPort int, bytesOut int64) Event {
	return Event{
		EventID: id, DeviceID: "dev-1", EventType: model.EventFlow, EventTSNs: uint64(ts.UnixNano()),
		Body: model.TelemetryEvent{
			EventID: id, EventType: model.EventFlow, EventTSNs: uint64(ts.UnixNano()),
			Flow: &model.FlowEvent{DstIP: dstIP, DstPort: dstPort, Direction: dir, BytesOut: bytesOut},
		},
	}
}

func TestSSHLateralMovementRuleFiresOnDifferentRemote(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		sshEvent("s1", base, model.OutcomeSuccess, "203.0.113.9"),
		flowEvent("f1", base.Add(10*time.Second), model.DirectionOutbound, "198.51.100.4", 22, 1000),
	}
	rule := &SSHLateralMovementRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Contains(t, inc.Techniques, "T1021.004")
}

func TestSSHLateralMovementRuleNoFireOnSameRemote(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		sshEvent("s1", base, model.OutcomeSuccess, "203.0.113.9"),
		flowEvent("f1", base.Add(10*time.Second), model.DirectionOutbound, "203.0.113.9", 22, 1000),
	}
	rule := &SSHLateralMovementRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func TestExfiltrationSpikeRuleFiresAtThreshold(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		flowEvent("f1", base, model.DirectionOutbound, "198.51.100.4", 443, 6*1024*1024),
		flowEvent("f2", base.Add(30*time.Second), model.DirectionOutbound, "198.51.100.4", 443, 5*1024*1024),
	}
	rule := &ExfiltrationSpikeRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityCritical, inc.Severity)
}

func TestExfiltrationSpikeRuleNoFireBelowThreshold(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		flowEvent("f1", base, model.DirectionOutbound, "198.51.100.4", 443, 1024*1024),
	}
	rule := &ExfiltrationSpikeRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func processEvent(id string, ts time.Time, exe string, parentIsShell bool) Event {
	return Event{
		EventID: id, DeviceID: "dev-1", EventType: model.EventProcess, EventTSNs: uint64(ts.UnixNano()),
		Body: model.TelemetryEvent{
			EventID: id, EventType: model.EventProcess, EventTSNs: uint64(ts.UnixNano()),
			Process: &model.ProcessEvent{Executable: exe, ParentIsShell: parentIsShell},
		},
	}
}

func TestSuspiciousProcessTreeRuleEscalatesWithNearbyFlow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		processEvent("p1", base, "/tmp/.hidden/payload", true),
		flowEvent("f1", base.Add(30*time.Second), model.DirectionOutbound, "198.51.100.4", 4444, 100),
	}
	rule := &SuspiciousProcessTreeRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityCritical, inc.Severity)
}

func TestSuspiciousProcessTreeRuleNoEscalationWithoutFlow(t *testing.T) {
	events := []Event{processEvent("p1", time.Unix(1_700_000_000, 0), "/tmp/.hidden/payload", true)}
	rule := &SuspiciousProcessTreeRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, model.SeverityError, inc.Severity)
}

func TestSuspiciousProcessTreeRuleNoFireWithoutShellParent(t *testing.T) {
	events := []Event{processEvent("p1", time.Unix(1_700_000_000, 0), "/tmp/payload", false)}
	rule := &SuspiciousProcessTreeRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func TestMultiTacticAttackRuleFiresOnFlowProcessAndPersistenceWithinWindow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		flowEvent("f1", base, model.DirectionOutbound, "198.51.100.4", 8443, 2048),
		processEvent("p1", base.Add(300*time.Second), "/tmp/.hidden/payload", true),
		auditEvent("a1", base.Add(600*time.Second), model.ObjectCreated, "/Users/bob/Library/LaunchAgents/com.evil.plist", "RunAtLoad"),
	}
	rule := &MultiTacticAttackRule{}
	inc, ok := rule.Evaluate(events, "dev-1")
	require.True(t, ok)
	require.Equal(t, "multi_tactic_attack", inc.RuleName)
	require.Equal(t, model.SeverityCritical, inc.Severity)
	require.Equal(t, []string{"command_and_control", "execution", "persistence"}, inc.Tactics)
	require.Equal(t, []string{"T1071", "T1059", "T1543.001"}, inc.Techniques)
	require.Len(t, inc.EvidenceEventIDs, 3)
}

func TestMultiTacticAttackRuleNoFireOutsideWindow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	events := []Event{
		flowEvent("f1", base, model.DirectionOutbound, "198.51.100.4", 8443, 2048),
		processEvent("p1", base.Add(300*time.Second), "/tmp/.hidden/payload", true),
		auditEvent("a1", base.Add(901*time.Second), model.ObjectCreated, "/Users/bob/Library/LaunchAgents/com.evil.plist", "RunAtLoad"),
	}
	rule := &MultiTacticAttackRule{}
	_, ok := rule.Evaluate(events, "dev-1")
	require.False(t, ok)
}

func TestIncidentIDIsDeterministic(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	id1 := incidentID("ssh_brute_force", "dev-1", start)
	id2 := incidentID("ssh_brute_force", "dev-1", start)
	require.Equal(t, id1, id2)

	id3 := incidentID("ssh_brute_force", "dev-2", start)
	require.NotEqual(t, id1, id3)
}

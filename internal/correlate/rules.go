// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package correlate

import (
	"fmt"
	"strings"
	"time"

	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/model"
)

// DefaultRules is the core set of shipped correlation rules, evaluated
// in this order against every device window.
var DefaultRules = []Rule{
	&SSHBruteForceRule{},
	&PersistenceAfterAuthRule{},
	&SuspiciousSudoRule{},
	&MultiTacticAttackRule{},
	&SSHLateralMovementRule{},
	&ExfiltrationSpikeRule{},
	&SuspiciousProcessTreeRule{},
}

func isSSHSecurity(e Event) bool {
	return e.EventType == model.EventSecurity && e.Body.Security != nil && e.Body.Security.Source == "ssh"
}

// SSHBruteForceRule implements rule 1: ≥3 SSH failures from one
// source IP followed by a success within 1800s.
type SSHBruteForceRule struct{}

func (r *SSHBruteForceRule) Name() string { return "ssh_brute_force" }

func (r *SSHBruteForceRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	failuresByIP := make(map[string][]Event)
	for _, e := range events {
		if !isSSHSecurity(e) || e.Body.Security.Outcome != model.OutcomeFailure {
			continue
		}
		failuresByIP[e.Body.Security.SourceIP] = append(failuresByIP[e.Body.Security.SourceIP], e)
	}

	for _, e := range events {
		if !isSSHSecurity(e) || e.Body.Security.Outcome != model.OutcomeSuccess {
			continue
		}
		ip := e.Body.Security.SourceIP
		fails := failuresByIP[ip]
		var evidence []Event
		for _, f := range fails {
			if f.EventTSNs < e.EventTSNs && e.EventTSNs-f.EventTSNs <= uint64(1800*time.Second) {
				evidence = append(evidence, f)
			}
		}
		if len(evidence) < 3 {
			continue
		}
		ids := eventIDs(evidence)
		ids = append(ids, e.EventID)
		start := evidence[0].EventTime()
		return newIncident(r.Name(), deviceID, model.SeverityError,
			[]string{"TA0006", "TA0008"}, []string{"T1110", "T1021.004"},
			fmt.Sprintf("%d SSH failures from %s followed by a successful login", len(evidence), ip),
			ids, start, e.EventTime()), true
	}
	return nil, false
}

// PersistenceAfterAuthRule implements rule 2: an auth success
// followed within 600s by a persistence-class file creation.
type PersistenceAfterAuthRule struct{}

func (r *PersistenceAfterAuthRule) Name() string { return "persistence_after_auth" }

func (r *PersistenceAfterAuthRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	var auths []Event
	for _, e := range events {
		if e.EventType == model.EventSecurity && e.Body.Security != nil &&
			(e.Body.Security.Outcome == model.OutcomeSuccess || e.Body.Security.Outcome == model.OutcomeSudo) {
			auths = append(auths, e)
		}
	}
	if len(auths) == 0 {
		return nil, false
	}

	for _, e := range events {
		if e.EventType != model.EventAudit || e.Body.Audit == nil || e.Body.Audit.Class != model.ObjectCreated {
			continue
		}
		hit, ok := detect.CheckPersistencePath(e.Body.Audit.Path, e.Body.Audit.Content)
		if !ok {
			continue
		}
		for _, a := range auths {
			if a.EventTSNs >= e.EventTSNs || e.EventTSNs-a.EventTSNs > uint64(600*time.Second) {
				continue
			}
			severity := model.SeverityError
			if strings.Contains(e.Body.Audit.Path, "/Users/") || strings.Contains(e.Body.Audit.Path, "/home/") {
				severity = model.SeverityCritical
			}
			return newIncident(r.Name(), deviceID, severity,
				[]string{"TA0003"}, hit.Mitre,
				fmt.Sprintf("persistence object created at %s shortly after authentication", e.Body.Audit.Path),
				[]string{a.EventID, e.EventID}, a.EventTime(), e.EventTime()), true
		}
	}
	return nil, false
}

// dangerousSudoPatterns maps a substring match against a sudo command
// to its severity and MITRE technique.
var dangerousSudoPatterns = []struct {
	substr   string
	severity model.Severity
	mitre    string
}{
	{"rm -rf /", model.SeverityCritical, "T1485"},
	{"visudo", model.SeverityError, "T1548.003"},
	{"/etc/sudoers", model.SeverityCritical, "T1548.003"},
	{"kextload", model.SeverityError, "T1547.006"},
	{"launchctl load", model.SeverityError, "T1543.001"},
}

// SuspiciousSudoRule implements rule 3: sudo commands matching a
// fixed dangerous-pattern list.
type SuspiciousSudoRule struct{}

func (r *SuspiciousSudoRule) Name() string { return "suspicious_sudo" }

func (r *SuspiciousSudoRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	for _, e := range events {
		if e.EventType != model.EventSecurity || e.Body.Security == nil || e.Body.Security.Outcome != model.OutcomeSudo {
			continue
		}
		cmd := e.Body.Security.Command
		for _, p := range dangerousSudoPatterns {
			if strings.Contains(cmd, p.substr) {
				return newIncident(r.Name(), deviceID, p.severity,
					[]string{"TA0004"}, []string{p.mitre},
					fmt.Sprintf("sudo command matched dangerous pattern %q", p.substr),
					[]string{e.EventID}, e.EventTime(), e.EventTime()), true
			}
		}
	}
	return nil, false
}

// MultiTacticAttackRule implements rule 4: an outbound flow, a
// process in a suspicious path, and a persistence creation, all within
// 900s of each other.
type MultiTacticAttackRule struct{}

func (r *MultiTacticAttackRule) Name() string { return "multi_tactic_attack" }

func (r *MultiTacticAttackRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	var flows, suspiciousProcs, persists []Event
	for _, e := range events {
		switch e.EventType {
		case model.EventFlow:
			if e.Body.Flow != nil && e.Body.Flow.Direction == model.DirectionOutbound {
				flows = append(flows, e)
			}
		case model.EventProcess:
			if e.Body.Process != nil {
				res := detect.CheckSuspiciousPath(e.Body.Process.Executable)
				if res.Suspicious {
					suspiciousProcs = append(suspiciousProcs, e)
				}
			}
		case model.EventAudit:
			if e.Body.Audit != nil && e.Body.Audit.Class == model.ObjectCreated {
				if _, ok := detect.CheckPersistencePath(e.Body.Audit.Path, e.Body.Audit.Content); ok {
					persists = append(persists, e)
				}
			}
		}
	}

	for _, p := range persists {
		for _, sp := range suspiciousProcs {
			if !within(p.EventTSNs, sp.EventTSNs, 900*time.Second) {
				continue
			}
			for _, f := range flows {
				if !within(p.EventTSNs, f.EventTSNs, 900*time.Second) || !within(sp.EventTSNs, f.EventTSNs, 900*time.Second) {
					continue
				}
				ev := []Event{f, sp, p}
				sortEvents(ev)
				return newIncident(r.Name(), deviceID, model.SeverityCritical,
					[]string{"command_and_control", "execution", "persistence"}, []string{"T1071", "T1059", "T1543.001"},
					"outbound flow, suspicious-path process, and persistence creation co-occurred",
					eventIDs(ev), ev[0].EventTime(), ev[len(ev)-1].EventTime()), true
			}
		}
	}
	return nil, false
}

// SSHLateralMovementRule implements rule 5: an inbound SSH success
// followed within 300s by an outbound connection to TCP/22 at a
// different remote.
type SSHLateralMovementRule struct{}

func (r *SSHLateralMovementRule) Name() string { return "ssh_lateral_movement" }

func (r *SSHLateralMovementRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	for _, e := range events {
		if !isSSHSecurity(e) || e.Body.Security.Outcome != model.OutcomeSuccess {
			continue
		}
		for _, f := range events {
			if f.EventType != model.EventFlow || f.Body.Flow == nil {
				continue
			}
			flow := f.Body.Flow
			if flow.Direction != model.DirectionOutbound || flow.DstPort != 22 {
				continue
			}
			if flow.DstIP == e.Body.Security.SourceIP {
				continue // same remote: not lateral movement
			}
			if f.EventTSNs <= e.EventTSNs || f.EventTSNs-e.EventTSNs > uint64(300*time.Second) {
				continue
			}
			return newIncident(r.Name(), deviceID, model.SeverityError,
				[]string{"TA0008"}, []string{"T1021.004"},
				fmt.Sprintf("SSH login from %s followed by outbound SSH to %s", e.Body.Security.SourceIP, flow.DstIP),
				[]string{e.EventID, f.EventID}, e.EventTime(), f.EventTime()), true
		}
	}
	return nil, false
}

// ExfiltrationSpikeRule implements rule 6: ≥10 MiB outbound to a
// single destination within 300s.
type ExfiltrationSpikeRule struct{}

const exfilSpikeThresholdBytes = 10 * 1024 * 1024

func (r *ExfiltrationSpikeRule) Name() string { return "exfiltration_spike" }

func (r *ExfiltrationSpikeRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	type bucket struct {
		total int64
		first Event
		last  Event
		ids   []string
	}
	byDst := make(map[string]*bucket)

	for _, e := range events {
		if e.EventType != model.EventFlow || e.Body.Flow == nil || e.Body.Flow.Direction != model.DirectionOutbound {
			continue
		}
		flow := e.Body.Flow
		b, ok := byDst[flow.DstIP]
		if !ok {
			b = &bucket{first: e}
			byDst[flow.DstIP] = b
		}
		if e.EventTSNs-b.first.EventTSNs > uint64(300*time.Second) {
			// Window slides: restart accumulation from this event.
			b.total, b.first, b.ids = 0, e, nil
		}
		b.total += flow.BytesOut
		b.last = e
		b.ids = append(b.ids, e.EventID)

		if b.total >= exfilSpikeThresholdBytes {
			return newIncident(r.Name(), deviceID, model.SeverityCritical,
				[]string{"TA0010"}, []string{"T1041"},
				fmt.Sprintf("%d bytes exfiltrated to %s within 300s", b.total, flow.DstIP),
				b.ids, b.first.EventTime(), b.last.EventTime()), true
		}
	}
	return nil, false
}

// SuspiciousProcessTreeRule implements rule 7: a process whose
// parent is an interactive shell and whose path is under a writable
// temp/download directory.
type SuspiciousProcessTreeRule struct{}

var suspiciousProcessRoots = []string{"/tmp", "/private/tmp", "/var/tmp", "Downloads"}

func (r *SuspiciousProcessTreeRule) Name() string { return "suspicious_process_tree" }

func (r *SuspiciousProcessTreeRule) Evaluate(events []Event, deviceID string) (*model.Incident, bool) {
	for _, e := range events {
		if e.EventType != model.EventProcess || e.Body.Process == nil || !e.Body.Process.ParentIsShell {
			continue
		}
		exe := e.Body.Process.Executable
		var matchedRoot bool
		for _, root := range suspiciousProcessRoots {
			if strings.Contains(exe, root) {
				matchedRoot = true
				break
			}
		}
		if !matchedRoot {
			continue
		}

		severity := model.SeverityError
		evidence := []string{e.EventID}
		end := e.EventTime()
		for _, f := range events {
			if f.EventType != model.EventFlow || f.Body.Flow == nil {
				continue
			}
			if within(e.EventTSNs, f.EventTSNs, 60*time.Second) {
				severity = model.SeverityCritical
				evidence = append(evidence, f.EventID)
				if f.EventTime().After(end) {
					end = f.EventTime()
				}
				break
			}
		}
		return newIncident(r.Name(), deviceID, severity,
			[]string{"TA0002"}, []string{"T1059"},
			fmt.Sprintf("process %s spawned by a shell from a writable path", exe),
			evidence, e.EventTime(), end), true
	}
	return nil, false
}

func within(a, b uint64, window time.Duration) bool {
	w := uint64(window)
	if a > b {
		return a-b <= w
	}
	return b-a <= w
}

func eventIDs(events []Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.EventID
	}
	return ids
}

func sortEvents(events []Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].EventTSNs < events[j-1].EventTSNs; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

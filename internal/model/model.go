// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package model holds the wire-independent domain types: the
// envelope's payload variants, the telemetry event hierarchy, threat
// indicators, file-integrity state, and incidents. These types are shared
// by the codec, the EventBus, the correlation engine, and the detection
// primitives; none of them know about gRPC or SQL.
package model

import "time"

// DeviceType classifies the device a telemetry batch originated from.
type DeviceType string

const (
	DeviceEndpoint   DeviceType = "ENDPOINT"
	DeviceMedical    DeviceType = "MEDICAL"
	DeviceIndustrial DeviceType = "INDUSTRIAL"
	DeviceIoT        DeviceType = "IOT"
	DeviceNetwork    DeviceType = "NETWORK"
)

// EventType identifies which typed body a TelemetryEvent carries.
type EventType string

const (
	EventSecurity EventType = "SECURITY"
	EventFlow     EventType = "FLOW"
	EventProcess  EventType = "PROCESS"
	EventAudit    EventType = "AUDIT"
)

// Severity is monotone with business impact.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank gives Severity a total order for comparisons.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarn:     1,
	SeverityError:     2,
	SeverityCritical: 3,
}

// Less reports whether s is strictly less severe than other.
func (s Severity) Less(other Severity) bool {
	return severityRank[s] < severityRank[other]
}

// Direction of a flow relative to the observing host.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// FlowEvent is a 5-tuple network flow observation.
type FlowEvent struct {
	SrcIP       string
	DstIP       string
	SrcPort     int
	DstPort     int
	Protocol    string
	Direction   Direction
	BytesIn     int64
	BytesOut    int64
	PacketCount int64
	StartTSNs   uint64
	EndTSNs     uint64
}

// SSHOutcome narrows SecurityEvent.Outcome for the shipped SSH rules.
type SSHOutcome string

const (
	OutcomeFailure SSHOutcome = "FAILURE"
	OutcomeSuccess SSHOutcome = "SUCCESS"
	OutcomeSudo    SSHOutcome = "SUDO"
)

// SecurityEvent is the typed body for EventSecurity TelemetryEvents:
// authentication attempts, sudo invocations, and other access-control
// observations that feed the correlation rules.
type SecurityEvent struct {
	Source     string // e.g. "ssh", "sudo"
	Outcome    SSHOutcome
	User       string
	SourceIP   string
	Command    string // populated for SUDO outcomes
	Indicators []ThreatIndicator
}

// ProcessEvent is the typed body for EventProcess TelemetryEvents.
type ProcessEvent struct {
	PID         int
	PPID        int
	Executable  string
	CommandLine string
	User        string
	ParentIsShell bool
}

// AuditChangeClass narrows AuditEvent.ObjectClass for persistence tripwires.
type AuditChangeClass string

const (
	ObjectCreated  AuditChangeClass = "CREATED"
	ObjectModified AuditChangeClass = "MODIFIED"
	ObjectDeleted  AuditChangeClass = "DELETED"
)

// AuditEvent is the typed body for EventAudit TelemetryEvents: a kernel
// audit record or file-integrity observation.
type AuditEvent struct {
	Action    string
	Path      string
	Class     AuditChangeClass
	Content   string // best-effort content sample, for persistence-path heuristics
}

// TelemetryEvent is one observation inside a DeviceTelemetry batch.
type TelemetryEvent struct {
	EventID   string
	EventType EventType
	Severity  Severity
	EventTSNs uint64

	Security *SecurityEvent
	Flow     *FlowEvent
	Process  *ProcessEvent
	Audit    *AuditEvent
}

// DeviceTelemetry batches TelemetryEvents from one device.
type DeviceTelemetry struct {
	DeviceID       string
	DeviceType     DeviceType
	CollectionTSNs uint64
	Events         []TelemetryEvent
}

// ThreatIndicator is produced by detection primitives and carried inside a
// SecurityEvent.
type ThreatIndicator struct {
	IndicatorType   string
	Value           string
	Confidence      float64 // [0,1]
	AttackPhase     string  // kill-chain phase
	MitreTechniques []string
	Description     string
	Source          string
	TS              time.Time
}

// FileState is the file-integrity model for one path at one point in time.
type FileState struct {
	Path            string
	SHA256          string
	Size            int64
	Mode            uint32
	UID             uint32
	GID             uint32
	MtimeNs         int64
	IsSUID          bool
	IsSGID          bool
	IsWorldWritable bool
	Xattrs          map[string]string
}

// FileChangeType classifies a FIM diff result.
type FileChangeType string

const (
	FileCreated            FileChangeType = "CREATED"
	FileDeleted            FileChangeType = "DELETED"
	FileModified           FileChangeType = "MODIFIED"
	FilePermissionChanged  FileChangeType = "PERMISSION_CHANGED"
	FileOwnerChanged       FileChangeType = "OWNER_CHANGED"
)

// FileChange is one detected difference between a baseline and the current
// filesystem state.
type FileChange struct {
	Path       string
	ChangeType FileChangeType
	Old        *FileState
	New        *FileState
	Severity   Severity
	Mitre      []string
}

// IncidentState tracks operator triage of an Incident.
type IncidentState string

const (
	IncidentNew           IncidentState = "NEW"
	IncidentInvestigating IncidentState = "INVESTIGATING"
	IncidentResolved      IncidentState = "RESOLVED"
	IncidentFalsePositive IncidentState = "FALSE_POSITIVE"
)

// Incident is a correlation-engine output. IncidentID is
// deterministically derived from (RuleName, DeviceID, StartTS) so re-runs
// of the same evidence are idempotent.
type Incident struct {
	IncidentID       string
	DeviceID         string
	Severity         Severity
	Tactics          []string
	Techniques       []string
	RuleName         string
	Summary          string
	EvidenceEventIDs []string
	Metadata         map[string]string
	StartTS          time.Time
	EndTS            time.Time
	State            IncidentState
}

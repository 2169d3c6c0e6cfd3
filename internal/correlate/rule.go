// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package correlate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amoskys/amoskys/internal/model"
)

// Rule evaluates a device's event window and optionally emits an
// incident. Implementations must be pure with respect to the window
// contents: the same events in the same order must always produce the
// same verdict, so re-running a scan over unchanged evidence is safe.
type Rule interface {
	Name() string
	Evaluate(events []Event, deviceID string) (*model.Incident, bool)
}

// incidentID derives a deterministic incident identity from the rule
// name, device, and the incident's start timestamp, so two evaluations
// over the same evidence collapse to the same record at the incident
// store.
func incidentID(ruleName, deviceID string, startTS time.Time) string {
	name := fmt.Sprintf("%s|%s|%d", ruleName, deviceID, startTS.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func newIncident(ruleName, deviceID string, severity model.Severity, tactics, techniques []string, summary string, evidence []string, start, end time.Time) *model.Incident {
	return &model.Incident{
		IncidentID:       incidentID(ruleName, deviceID, start),
		DeviceID:         deviceID,
		Severity:         severity,
		Tactics:          tactics,
		Techniques:       techniques,
		RuleName:         ruleName,
		Summary:          summary,
		EvidenceEventIDs: evidence,
		StartTS:          start,
		EndTS:            end,
		State:            model.IncidentNew,
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	gops "github.com/mitchellh/go-ps"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/model"
)

var shellNames = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "dash": true, "ksh": true, "fish": true,
}

// ProcessCollector enumerates running processes on each cycle and
// reports ones not yet seen, scored against the LOLBin and
// reverse-shell detection primitives.
type ProcessCollector struct {
	deviceID string

	mu   sync.Mutex
	seen map[int]struct{}
}

// NewProcessCollector builds a ProcessCollector for deviceID.
func NewProcessCollector(deviceID string) *ProcessCollector {
	return &ProcessCollector{deviceID: deviceID, seen: make(map[int]struct{})}
}

func (c *ProcessCollector) Name() string { return "process" }

func (c *ProcessCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	procs, err := gops.Processes()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	fresh := make([]gops.Process, 0)
	current := make(map[int]struct{}, len(procs))
	for _, p := range procs {
		current[p.Pid()] = struct{}{}
		if _, ok := c.seen[p.Pid()]; !ok {
			fresh = append(fresh, p)
		}
	}
	c.seen = current
	c.mu.Unlock()

	if len(fresh) == 0 {
		return nil, nil
	}

	now := clock.Now()
	var events []model.TelemetryEvent
	for _, p := range fresh {
		if ctx.Err() != nil {
			break
		}
		commandLine := readCmdline(p.Pid())
		parentIsShell := shellNames[readComm(p.Ppid())]

		pe := model.ProcessEvent{
			PID: p.Pid(), PPID: p.Ppid(),
			Executable: p.Executable(), CommandLine: commandLine,
			ParentIsShell: parentIsShell,
		}
		events = append(events, model.TelemetryEvent{
			EventID:   uuid.NewString(),
			EventType: model.EventProcess,
			Severity:  model.SeverityInfo,
			EventTSNs: uint64(now.UnixNano()),
			Process:   &pe,
		})

		indicators := detect.MatchLOLBin(p.Executable(), commandLine)
		indicators = append(indicators, detect.MatchReverseShell(p.Executable(), commandLine, 0, false)...)
		if len(indicators) == 0 {
			continue
		}
		events = append(events, model.TelemetryEvent{
			EventID:   uuid.NewString(),
			EventType: model.EventSecurity,
			Severity:  model.SeverityWarn,
			EventTSNs: uint64(now.UnixNano()),
			Security: &model.SecurityEvent{
				Source: "process", Command: commandLine, Indicators: indicators,
			},
		})
	}
	if len(events) == 0 {
		return nil, nil
	}

	dt := model.DeviceTelemetry{
		DeviceID: c.deviceID, DeviceType: model.DeviceEndpoint,
		CollectionTSNs: uint64(now.UnixNano()), Events: events,
	}
	env := envelope.NewTelemetry(uint64(now.UnixNano()), uuid.NewString(), c.deviceID, dt)
	return []*envelope.Envelope{env}, nil
}

func readCmdline(pid int) string {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(strings.Trim(string(b), "\x00"), "\x00", " ")
}

func readComm(pid int) string {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"bufio"
	"context"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/model"
)

var (
	sshFailureRE = regexp.MustCompile(`sshd.*Failed password for (?:invalid user )?(\S+) from (\S+)`)
	sshSuccessRE = regexp.MustCompile(`sshd.*Accepted \S+ for (\S+) from (\S+)`)
	sudoRE       = regexp.MustCompile(`sudo:\s*(\S+)\s*:.*COMMAND=(.+)$`)
)

// AuthLogCollector tails an authentication log (e.g. /var/log/auth.log)
// line by line, tracking its own read offset across cycles, and turns
// SSH and sudo log lines into SecurityEvents that feed the correlation
// rules watching for brute force, lateral movement, and privilege abuse.
type AuthLogCollector struct {
	deviceID string
	path     string
	log      *logging.Logger

	mu     sync.Mutex
	offset int64
}

// NewAuthLogCollector builds a collector that tails path from the end
// of its current contents, so a first cycle doesn't replay history.
func NewAuthLogCollector(deviceID, path string) *AuthLogCollector {
	c := &AuthLogCollector{deviceID: deviceID, path: path, log: logging.WithComponent("agent.authlog")}
	if fi, err := os.Stat(path); err == nil {
		c.offset = fi.Size()
	}
	return c
}

func (c *AuthLogCollector) Name() string { return "authlog" }

func (c *AuthLogCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	if fi, err := f.Stat(); err == nil && fi.Size() < offset {
		// Log rotated out from under us; restart from the beginning.
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	now := clock.Now()
	var events []model.TelemetryEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if ev, ok := parseAuthLine(scanner.Text(), now); ok {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn("auth log scan error", "error", err)
	}

	pos, _ := f.Seek(0, io.SeekCurrent)
	c.mu.Lock()
	c.offset = pos
	c.mu.Unlock()

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

func parseAuthLine(line string, now time.Time) (model.TelemetryEvent, bool) {
	if m := sshFailureRE.FindStringSubmatch(line); m != nil {
		return newAuthEvent(model.SeverityWarn, now, model.SecurityEvent{
			Source: "ssh", Outcome: model.OutcomeFailure, User: m[1], SourceIP: m[2],
		}), true
	}
	if m := sshSuccessRE.FindStringSubmatch(line); m != nil {
		return newAuthEvent(model.SeverityInfo, now, model.SecurityEvent{
			Source: "ssh", Outcome: model.OutcomeSuccess, User: m[1], SourceIP: m[2],
		}), true
	}
	if m := sudoRE.FindStringSubmatch(line); m != nil {
		return newAuthEvent(model.SeverityInfo, now, model.SecurityEvent{
			Source: "sudo", Outcome: model.OutcomeSudo, User: m[1], Command: m[2],
		}), true
	}
	return model.TelemetryEvent{}, false
}

func newAuthEvent(sev model.Severity, now time.Time, sec model.SecurityEvent) model.TelemetryEvent {
	return model.TelemetryEvent{
		EventID: uuid.NewString(), EventType: model.EventSecurity,
		Severity: sev, EventTSNs: uint64(now.UnixNano()), Security: &sec,
	}
}

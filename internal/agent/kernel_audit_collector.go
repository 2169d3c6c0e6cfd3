// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/model"
)

var (
	auditPIDPattern     = regexp.MustCompile(`\bpid=(\d+)`)
	auditUIDPattern     = regexp.MustCompile(`\buid=(\d+)`)
	auditEUIDPattern    = regexp.MustCompile(`\beuid=(\d+)`)
	auditGIDPattern     = regexp.MustCompile(`\bgid=(\d+)`)
	auditSyscallPattern = regexp.MustCompile(`\bsyscall=(\S+)`)
	auditCommPattern    = regexp.MustCompile(`\bcomm="([^"]*)"`)
	auditExePattern     = regexp.MustCompile(`\bexe="([^"]*)"`)
	auditNamePattern    = regexp.MustCompile(`\bname="([^"]*)"`)
	auditA1Pattern      = regexp.MustCompile(`\ba1=(\d+)`)
)

// KernelAuditCollector runs ausearch against the kernel audit log on
// each cycle and scores the records it finds against the kernel-level
// detection primitives: attack-tool execution, privilege escalation,
// process injection, container escape, and credential-file access.
//
// It is Linux-only: it shells out to ausearch/auditd, which has no
// macOS or BSD equivalent in this codebase's agent fleet.
type KernelAuditCollector struct {
	deviceID string

	mu        sync.Mutex
	knownSUID map[string]bool
}

// NewKernelAuditCollector builds a KernelAuditCollector for deviceID,
// baselining the SUID/SGID binaries under scanRoots so CheckPrivilegeEscalation
// can tell a legitimate setuid helper (sudo, su, ping) from an
// unexpected root transition.
func NewKernelAuditCollector(deviceID string, scanRoots []string) *KernelAuditCollector {
	c := &KernelAuditCollector{deviceID: deviceID, knownSUID: make(map[string]bool)}
	c.baselineSUID(scanRoots)
	return c
}

func (c *KernelAuditCollector) baselineSUID(roots []string) {
	for _, root := range roots {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return nil
			}
			if info.Mode()&os.ModeSetuid != 0 || info.Mode()&os.ModeSetgid != 0 {
				c.knownSUID[path] = true
			}
			return nil
		})
	}
}

func (c *KernelAuditCollector) Name() string { return "kernel_audit" }

func (c *KernelAuditCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	lines, err := c.readAuditLines(ctx)
	if err != nil {
		// auditd/ausearch absent or unreadable: degrade gracefully, the
		// way the other collectors treat an unavailable data source.
		return nil, nil
	}
	if len(lines) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	knownSUID := make(map[string]bool, len(c.knownSUID))
	for k, v := range c.knownSUID {
		knownSUID[k] = v
	}
	c.mu.Unlock()

	now := clock.Now()
	var events []model.TelemetryEvent
	for _, line := range lines {
		if ctx.Err() != nil {
			break
		}
		rec, ok := parseAuditLine(line)
		if !ok {
			continue
		}
		indicators := analyzeAuditRecord(rec, knownSUID)
		if len(indicators) == 0 {
			continue
		}
		events = append(events, model.TelemetryEvent{
			EventID:   uuid.NewString(),
			EventType: model.EventSecurity,
			Severity:  model.SeverityWarn,
			EventTSNs: uint64(now.UnixNano()),
			Security: &model.SecurityEvent{
				Source: "kernel_audit", Command: rec.ProcessPath, Indicators: indicators,
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

// readAuditLines invokes ausearch for recent records ("-ts recent",
// the last ten minutes) and returns them one audit event per line. No
// position is kept between cycles, so a record can be returned by more
// than one cycle.
func (c *KernelAuditCollector) readAuditLines(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "ausearch", "-ts", "recent", "--format", "text", "-i",
		"-m", "EXECVE,SYSCALL,PROCTITLE")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// parseAuditLine extracts the fields analyzeAuditRecord needs from one
// ausearch text-format audit line.
func parseAuditLine(line string) (detect.AuditRecord, bool) {
	m := auditSyscallPattern.FindStringSubmatch(line)
	if m == nil {
		return detect.AuditRecord{}, false
	}
	rec := detect.AuditRecord{Syscall: m[1]}

	if m := auditPIDPattern.FindStringSubmatch(line); m != nil {
		rec.PID, _ = strconv.Atoi(m[1])
	}
	if m := auditUIDPattern.FindStringSubmatch(line); m != nil {
		rec.UID, _ = strconv.Atoi(m[1])
	}
	if m := auditEUIDPattern.FindStringSubmatch(line); m != nil {
		rec.EUID, _ = strconv.Atoi(m[1])
	}
	if m := auditGIDPattern.FindStringSubmatch(line); m != nil {
		rec.GID, _ = strconv.Atoi(m[1])
	}
	if m := auditCommPattern.FindStringSubmatch(line); m != nil {
		rec.ProcessName = m[1]
	}
	if m := auditExePattern.FindStringSubmatch(line); m != nil {
		rec.ProcessPath = m[1]
	}
	if m := auditNamePattern.FindStringSubmatch(line); m != nil {
		rec.TargetPath = m[1]
	}
	if m := auditA1Pattern.FindStringSubmatch(line); m != nil {
		rec.TargetPID, _ = strconv.Atoi(m[1])
	}
	return rec, true
}

// analyzeAuditRecord runs rec through every kernel-audit detection
// primitive and collects whichever ones fire.
func analyzeAuditRecord(rec detect.AuditRecord, knownSUID map[string]bool) []model.ThreatIndicator {
	var indicators []model.ThreatIndicator

	if ind, ok := detect.CheckSuspiciousKernelProcess(rec.ProcessName); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := detect.CheckPrivilegeEscalation(rec, knownSUID); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := detect.CheckProcessInjection(rec); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := detect.CheckContainerEscape(rec.TargetPath); ok {
		indicators = append(indicators, ind)
	}
	if ind, ok := detect.CheckSensitiveFileAccess(rec.TargetPath, rec.ProcessName); ok {
		indicators = append(indicators, ind)
	}
	return indicators
}

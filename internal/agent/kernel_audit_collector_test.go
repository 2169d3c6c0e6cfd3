// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amoskys/amoskys/internal/detect"
)

func TestParseAuditLineExtractsFields(t *testing.T) {
	line := `type=SYSCALL msg=audit(1700000000.123:456): arch=c000003e syscall=ptrace success=yes exit=0 ` +
		`a0=0 a1=4242 items=0 ppid=1 pid=9001 auid=1000 uid=1000 gid=1000 euid=1000 suid=1000 fsuid=1000 ` +
		`egid=1000 sgid=1000 fsgid=1000 tty=pts0 ses=1 comm="injector" exe="/tmp/injector" key="kernel-audit"`

	rec, ok := parseAuditLine(line)
	require.True(t, ok)
	require.Equal(t, "ptrace", rec.Syscall)
	require.Equal(t, 9001, rec.PID)
	require.Equal(t, 1000, rec.UID)
	require.Equal(t, 1000, rec.EUID)
	require.Equal(t, "injector", rec.ProcessName)
	require.Equal(t, "/tmp/injector", rec.ProcessPath)
	require.Equal(t, 4242, rec.TargetPID)
}

func TestParseAuditLineRejectsLineWithoutSyscall(t *testing.T) {
	_, ok := parseAuditLine(`type=PROCTITLE msg=audit(1700000000.123:456): proctitle=6C73`)
	require.False(t, ok)
}

func TestAnalyzeAuditRecordFlagsPrivilegeEscalation(t *testing.T) {
	rec := detect.AuditRecord{UID: 1000, EUID: 0, ProcessPath: "/tmp/exploit", Syscall: "execve"}
	indicators := analyzeAuditRecord(rec, map[string]bool{})
	require.Len(t, indicators, 1)
	require.Equal(t, "privilege_escalation", indicators[0].IndicatorType)
}

func TestAnalyzeAuditRecordSkipsKnownSUIDAndBenignSyscall(t *testing.T) {
	rec := detect.AuditRecord{UID: 1000, EUID: 0, ProcessPath: "/usr/bin/sudo", Syscall: "execve", ProcessName: "sudo"}
	indicators := analyzeAuditRecord(rec, map[string]bool{"/usr/bin/sudo": true})
	require.Empty(t, indicators)
}

func TestKernelAuditCollectorDegradesGracefullyWithoutAusearch(t *testing.T) {
	c := NewKernelAuditCollector("dev-1", []string{t.TempDir()})
	envs, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Empty(t, envs, "ausearch is not installed in the test environment, so no envelopes should be emitted")
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckSuspiciousKernelProcessMatchesKnownTool(t *testing.T) {
	ind, ok := CheckSuspiciousKernelProcess("ncat")
	require.True(t, ok)
	require.Equal(t, "execution", ind.AttackPhase)
	require.Contains(t, ind.MitreTechniques, "T1059")
}

func TestCheckSuspiciousKernelProcessNoMatchOnBenignName(t *testing.T) {
	_, ok := CheckSuspiciousKernelProcess("bash")
	require.False(t, ok)
}

func TestCheckPrivilegeEscalationFiresOnUnexpectedRootTransition(t *testing.T) {
	rec := AuditRecord{UID: 1000, EUID: 0, ProcessPath: "/tmp/exploit"}
	ind, ok := CheckPrivilegeEscalation(rec, map[string]bool{})
	require.True(t, ok)
	require.Equal(t, "privilege-escalation", ind.AttackPhase)
}

func TestCheckPrivilegeEscalationSkipsKnownSUIDBinary(t *testing.T) {
	rec := AuditRecord{UID: 1000, EUID: 0, ProcessPath: "/usr/bin/sudo"}
	_, ok := CheckPrivilegeEscalation(rec, map[string]bool{"/usr/bin/sudo": true})
	require.False(t, ok)
}

func TestCheckPrivilegeEscalationSkipsAlreadyRoot(t *testing.T) {
	rec := AuditRecord{UID: 0, EUID: 0, ProcessPath: "/usr/bin/whoami"}
	_, ok := CheckPrivilegeEscalation(rec, map[string]bool{})
	require.False(t, ok)
}

func TestCheckProcessInjectionFiresOnPtrace(t *testing.T) {
	rec := AuditRecord{Syscall: "ptrace", TargetPID: 4242, ProcessPath: "/tmp/injector"}
	ind, ok := CheckProcessInjection(rec)
	require.True(t, ok)
	require.Contains(t, ind.MitreTechniques, "T1055")
}

func TestCheckProcessInjectionNoFireWithoutTarget(t *testing.T) {
	rec := AuditRecord{Syscall: "ptrace", TargetPID: 0, ProcessPath: "/tmp/injector"}
	_, ok := CheckProcessInjection(rec)
	require.False(t, ok)
}

func TestCheckContainerEscapeMatchesDockerSocket(t *testing.T) {
	ind, ok := CheckContainerEscape("/var/run/docker.sock")
	require.True(t, ok)
	require.Equal(t, "privilege-escalation", ind.AttackPhase)
}

func TestCheckContainerEscapeNoFireOnUnrelatedPath(t *testing.T) {
	_, ok := CheckContainerEscape("/home/bob/notes.txt")
	require.False(t, ok)
}

func TestCheckSensitiveFileAccessFiresOnNonAllowlistedProcess(t *testing.T) {
	ind, ok := CheckSensitiveFileAccess("/etc/shadow", "python3")
	require.True(t, ok)
	require.Equal(t, "credential-access", ind.AttackPhase)
}

func TestCheckSensitiveFileAccessSkipsAllowlistedProcess(t *testing.T) {
	_, ok := CheckSensitiveFileAccess("/etc/shadow", "passwd")
	require.False(t, ok)
}

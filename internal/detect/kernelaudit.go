// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"strings"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

// AuditRecord is one parsed kernel audit record (auditd SYSCALL/EXECVE
// line on Linux): a process's syscall-level activity as seen by the
// kernel audit subsystem, distinct from the process table snapshots
// ProcessCollector reports.
type AuditRecord struct {
	PID         int
	UID         int
	EUID        int
	GID         int
	Syscall     string
	ProcessName string
	ProcessPath string
	TargetPath  string
	TargetPID   int
}

// suspiciousKernelProcesses are attack-tool names that should never
// appear on a legitimate host.
var suspiciousKernelProcesses = map[string]bool{
	"nc": true, "ncat": true, "netcat": true, "socat": true,
	"nmap": true, "masscan": true, "hydra": true, "medusa": true,
	"john": true, "hashcat": true, "mimikatz": true, "lazagne": true,
	"bloodhound": true, "rubeus": true, "kerbrute": true,
}

// injectionSyscalls are syscalls used for process injection and
// memory manipulation.
var injectionSyscalls = map[string]bool{
	"ptrace": true, "process_vm_readv": true, "process_vm_writev": true,
	"mmap": true, "mprotect": true,
}

// sensitiveAuditPaths are files whose access outside a small allowlist
// of system processes indicates credential harvesting.
var sensitiveAuditPaths = map[string]bool{
	"/etc/shadow": true, "/etc/sudoers": true, "/etc/master.passwd": true,
	"/etc/security/passwd": true, "/var/db/shadow/hash": true,
}

// sensitiveAuditPathAllowedProcesses are processes expected to touch
// sensitiveAuditPaths as part of normal authentication.
var sensitiveAuditPathAllowedProcesses = map[string]bool{
	"passwd": true, "sudo": true, "su": true, "login": true, "sshd": true, "pam": true,
}

// containerEscapePaths are filesystem objects an escape attempt from
// inside a container would touch.
var containerEscapePaths = []string{
	"/var/run/docker.sock", "/run/docker.sock",
	"/var/run/containerd/containerd.sock", "/.dockerenv",
	"/proc/1/ns/", "/sys/fs/cgroup",
}

// CheckSuspiciousKernelProcess flags a process whose name matches a
// known attack tool.
func CheckSuspiciousKernelProcess(processName string) (model.ThreatIndicator, bool) {
	if !suspiciousKernelProcesses[strings.ToLower(processName)] {
		return model.ThreatIndicator{}, false
	}
	return model.ThreatIndicator{
		IndicatorType:   "suspicious_kernel_process",
		Value:           processName,
		Confidence:      0.7,
		AttackPhase:     "execution",
		MitreTechniques: []string{"T1059"},
		Description:     "known attack tool executed",
		Source:          "detect.CheckSuspiciousKernelProcess",
		TS:              clock.Now(),
	}, true
}

// CheckPrivilegeEscalation flags a UID-to-EUID-0 transition by a
// process that isn't a known SUID binary.
func CheckPrivilegeEscalation(rec AuditRecord, knownSUID map[string]bool) (model.ThreatIndicator, bool) {
	if rec.UID == 0 || rec.EUID != 0 {
		return model.ThreatIndicator{}, false
	}
	if knownSUID[rec.ProcessPath] {
		return model.ThreatIndicator{}, false
	}
	return model.ThreatIndicator{
		IndicatorType:   "privilege_escalation",
		Value:           rec.ProcessPath,
		Confidence:      0.75,
		AttackPhase:     "privilege-escalation",
		MitreTechniques: []string{"T1068", "T1548"},
		Description:     "unexpected privilege escalation to root",
		Source:          "detect.CheckPrivilegeEscalation",
		TS:              clock.Now(),
	}, true
}

// CheckProcessInjection flags a ptrace syscall directed at another
// process, the signature of process-injection attacks.
func CheckProcessInjection(rec AuditRecord) (model.ThreatIndicator, bool) {
	if !injectionSyscalls[rec.Syscall] || rec.Syscall != "ptrace" || rec.TargetPID == 0 {
		return model.ThreatIndicator{}, false
	}
	return model.ThreatIndicator{
		IndicatorType:   "process_injection",
		Value:           rec.ProcessPath,
		Confidence:      0.8,
		AttackPhase:     "defense-evasion",
		MitreTechniques: []string{"T1055.008", "T1055"},
		Description:     "ptrace syscall against another process",
		Source:          "detect.CheckProcessInjection",
		TS:              clock.Now(),
	}, true
}

// CheckContainerEscape flags access to a filesystem object commonly
// used to break out of a container (the docker/containerd control
// socket, cgroup hierarchy, or host PID namespace).
func CheckContainerEscape(targetPath string) (model.ThreatIndicator, bool) {
	for _, p := range containerEscapePaths {
		if targetPath != "" && strings.Contains(targetPath, p) {
			return model.ThreatIndicator{
				IndicatorType:   "container_escape",
				Value:           targetPath,
				Confidence:      0.7,
				AttackPhase:     "privilege-escalation",
				MitreTechniques: []string{"T1611"},
				Description:     "access to a container-escape vector",
				Source:          "detect.CheckContainerEscape",
				TS:              clock.Now(),
			}, true
		}
	}
	return model.ThreatIndicator{}, false
}

// CheckSensitiveFileAccess flags a non-allowlisted process touching a
// credential-bearing system file.
func CheckSensitiveFileAccess(targetPath, processName string) (model.ThreatIndicator, bool) {
	if !sensitiveAuditPaths[targetPath] {
		return model.ThreatIndicator{}, false
	}
	if sensitiveAuditPathAllowedProcesses[strings.ToLower(processName)] {
		return model.ThreatIndicator{}, false
	}
	return model.ThreatIndicator{
		IndicatorType:   "sensitive_file_access",
		Value:           targetPath,
		Confidence:      0.65,
		AttackPhase:     "credential-access",
		MitreTechniques: []string{"T1003", "T1552"},
		Description:     "sensitive system file accessed outside the expected process allowlist",
		Source:          "detect.CheckSensitiveFileAccess",
		TS:              clock.Now(),
	}, true
}

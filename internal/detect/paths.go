// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"regexp"
	"strings"
)

// trustedPathPrefixes short-circuit the suspicious-path check to "not
// suspicious" regardless of base-name shape.
var trustedPathPrefixes = []string{
	"/bin/", "/sbin/", "/usr/bin/", "/usr/sbin/", "/usr/local/bin/",
	"/Applications/", "/System/Applications/",
}

// blacklistedPathPrefixes are locations legitimate software rarely
// executes from.
var blacklistedPathPrefixes = []string{
	"/tmp/", "/var/tmp/", "/dev/shm/",
	"/Downloads/", "/downloads/",
}

var hiddenDirPattern = regexp.MustCompile(`/\.[^/]+/`)

// randomNameBaseline is the minimum base-name length for the
// randomness heuristic to apply.
const randomNameBaseline = 8

// looksRandom reports whether name resembles a high-entropy
// hex/base64-like identifier rather than a human-chosen filename.
func looksRandom(name string) bool {
	base := name
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	if len(base) < randomNameBaseline {
		return false
	}
	return ShannonEntropy(base) >= DGAEntropyThreshold
}

// SuspiciousPathResult reports the outcome of the suspicious-path
// check.
type SuspiciousPathResult struct {
	Suspicious bool
	Reason     string
}

// CheckSuspiciousPath implements the suspicious-path check: trusted
// prefixes short-circuit to not-suspicious; otherwise blacklisted
// prefixes, hidden directories, and random-looking base names each
// independently flag the path.
func CheckSuspiciousPath(path string) SuspiciousPathResult {
	for _, prefix := range trustedPathPrefixes {
		if strings.Contains(path, prefix) {
			return SuspiciousPathResult{Suspicious: false}
		}
	}
	for _, prefix := range blacklistedPathPrefixes {
		if strings.Contains(path, prefix) {
			return SuspiciousPathResult{Suspicious: true, Reason: "blacklisted path prefix: " + prefix}
		}
	}
	if hiddenDirPattern.MatchString(path) {
		return SuspiciousPathResult{Suspicious: true, Reason: "hidden directory component"}
	}
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if looksRandom(base) {
		return SuspiciousPathResult{Suspicious: true, Reason: "high-entropy base name"}
	}
	return SuspiciousPathResult{Suspicious: false}
}

// PersistenceClass categorizes the kind of persistence mechanism a
// tripped path belongs to.
type PersistenceClass string

const (
	PersistenceLaunchAgent PersistenceClass = "LAUNCH_AGENT"
	PersistenceLaunchDaemon PersistenceClass = "LAUNCH_DAEMON"
	PersistenceCron        PersistenceClass = "CRON"
	PersistenceShellProfile PersistenceClass = "SHELL_PROFILE"
	PersistencePeriodic    PersistenceClass = "PERIODIC"
	PersistenceEmond       PersistenceClass = "EMOND"
	PersistenceAuthPlugin  PersistenceClass = "AUTH_PLUGIN"
	PersistenceAuthorizedKeys PersistenceClass = "AUTHORIZED_KEYS"
)

type persistenceRule struct {
	prefix     string
	class      PersistenceClass
	mitre      []string
}

var persistencePaths = []persistenceRule{
	{"/Library/LaunchAgents/", PersistenceLaunchAgent, []string{"T1543.001"}},
	{"/Library/LaunchDaemons/", PersistenceLaunchDaemon, []string{"T1543.004"}},
	{"~/Library/LaunchAgents/", PersistenceLaunchAgent, []string{"T1543.001"}},
	{"/etc/cron.d/", PersistenceCron, []string{"T1053.003"}},
	{"/var/spool/cron/", PersistenceCron, []string{"T1053.003"}},
	{"/etc/periodic/", PersistencePeriodic, []string{"T1053"}},
	{"/etc/emond.d/", PersistenceEmond, []string{"T1546.014"}},
	{"/etc/pam.d/", PersistenceAuthPlugin, []string{"T1556"}},
	{"/etc/profile", PersistenceShellProfile, []string{"T1546.004"}},
	{"/.bash_profile", PersistenceShellProfile, []string{"T1546.004"}},
	{"/.zshrc", PersistenceShellProfile, []string{"T1546.004"}},
	{"/.ssh/authorized_keys", PersistenceAuthorizedKeys, []string{"T1098.004"}},
}

var plistKeywordPattern = regexp.MustCompile(`(?i)RunAtLoad|KeepAlive|ProgramArguments|StartInterval`)
var tempPathRefPattern = regexp.MustCompile(`(?i)/tmp/|/var/tmp/|curl\s`)

// PersistenceHit is produced when a write matches a tripwire path.
type PersistenceHit struct {
	Class      PersistenceClass
	Mitre      []string
	Confidence float64
}

// CheckPersistencePath implements the persistence-path tripwire: a
// write to a matching path yields a hit whose confidence is boosted if
// content references plist launch keywords or temporary paths/curl.
func CheckPersistencePath(path, content string) (PersistenceHit, bool) {
	for _, rule := range persistencePaths {
		if strings.Contains(path, rule.prefix) {
			confidence := 0.6
			if plistKeywordPattern.MatchString(content) {
				confidence += 0.2
			}
			if tempPathRefPattern.MatchString(content) {
				confidence += 0.2
			}
			if confidence > 1.0 {
				confidence = 1.0
			}
			return PersistenceHit{Class: rule.class, Mitre: rule.mitre, Confidence: confidence}, true
		}
	}
	return PersistenceHit{}, false
}

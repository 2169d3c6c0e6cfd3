// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"regexp"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

var reverseShellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/bin/(ba)?sh\s+-i\b`),
	regexp.MustCompile(`(?i)bash\s+-i\s+>&\s*/dev/tcp/`),
	regexp.MustCompile(`(?i)python[0-9.]*\s+-c\s+.*socket.*connect`),
	regexp.MustCompile(`(?i)perl\s+-e\s+.*Socket`),
	regexp.MustCompile(`(?i)mkfifo\s+.*\|\s*/bin/sh`),
	regexp.MustCompile(`(?i)nc\s+.*-e\s+/bin/sh`),
}

// shellExecutables is used by the generic outbound-shell heuristic.
var shellExecutables = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
}

// commonServicePorts are ports a legitimate shell child process is not
// suspicious for connecting to.
var commonServicePorts = map[int]bool{22: true, 80: true, 443: true}

// MatchReverseShell checks a process's command line against the known
// reverse-shell regex table, and applies the generic rule that a shell
// process with an outbound connection to a non-standard port is
// suspicious.
func MatchReverseShell(executable, commandLine string, outboundPort int, hasOutbound bool) []model.ThreatIndicator {
	var out []model.ThreatIndicator
	for _, pattern := range reverseShellPatterns {
		if pattern.MatchString(commandLine) {
			out = append(out, model.ThreatIndicator{
				IndicatorType:   "reverse_shell",
				Value:           commandLine,
				Confidence:      0.85,
				AttackPhase:     "command-and-control",
				MitreTechniques: []string{"T1059.004", "T1095"},
				Description:     "command line matches known reverse-shell pattern",
				Source:          "detect.MatchReverseShell",
				TS:              clock.Now(),
			})
			break
		}
	}

	base := executable
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	if hasOutbound && shellExecutables[base] && !commonServicePorts[outboundPort] {
		out = append(out, model.ThreatIndicator{
			IndicatorType:   "reverse_shell",
			Value:           base,
			Confidence:      0.5,
			AttackPhase:     "command-and-control",
			MitreTechniques: []string{"T1059.004"},
			Description:     "shell process holds outbound connection to non-standard port",
			Source:          "detect.MatchReverseShell",
			TS:              clock.Now(),
		})
	}
	return out
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"regexp"
	"strings"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

// sensitiveFilePaths are locations that hold credential material.
var sensitiveFilePaths = []string{
	"/Library/Keychains/", "~/Library/Keychains/",
	"/.ssh/id_rsa", "/.ssh/id_ed25519", "/.ssh/id_ecdsa",
	"/.aws/credentials", "/.config/gcloud/credentials.db",
	"/Library/Application Support/Google/Chrome/Default/Login Data",
	"/Library/Application Support/Firefox/Profiles/",
}

var credentialCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)security\s+find-(generic|internet)-password`),
	regexp.MustCompile(`(?i)sqlite3\s+.*Login Data`),
	regexp.MustCompile(`(?i)cp\s+.*id_rsa`),
	regexp.MustCompile(`(?i)cat\s+.*\.aws/credentials`),
}

// CheckCredentialAccess implements the credential-access heuristics:
// a write/read to a sensitive file path, or a command line matching the
// credential-dumping pattern table, each produce an indicator.
func CheckCredentialAccess(path, commandLine string) []model.ThreatIndicator {
	var out []model.ThreatIndicator

	for _, prefix := range sensitiveFilePaths {
		if path != "" && strings.Contains(path, prefix) {
			out = append(out, model.ThreatIndicator{
				IndicatorType:   "credential_file_access",
				Value:           prefix,
				Confidence:      0.6,
				AttackPhase:     "credential-access",
				MitreTechniques: []string{"T1555"},
				Description:     "access to sensitive credential store",
				Source:          "detect.CheckCredentialAccess",
				TS:              clock.Now(),
			})
			break
		}
	}

	for _, pattern := range credentialCommandPatterns {
		if commandLine != "" && pattern.MatchString(commandLine) {
			out = append(out, model.ThreatIndicator{
				IndicatorType:   "credential_dump_command",
				Value:           commandLine,
				Confidence:      0.75,
				AttackPhase:     "credential-access",
				MitreTechniques: []string{"T1555.001", "T1555.003"},
				Description:     "command line matches credential-dumping pattern",
				Source:          "detect.CheckCredentialAccess",
				TS:              clock.Now(),
			})
			break
		}
	}

	return out
}

var exfilCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(tar|zip)\s+.*(Documents|Desktop|Keychains|\.ssh)`),
	regexp.MustCompile(`(?i)curl\s+.*-T\s+`),
	regexp.MustCompile(`(?i)scp\s+.*@`),
	regexp.MustCompile(`(?i)rsync\s+.*@.*:`),
}

// CheckExfilCommand implements the archive-and-ship half
// exfiltration heuristics: command lines that archive sensitive
// directories or ship data to an external destination via curl/scp/
// rsync.
func CheckExfilCommand(commandLine string) (model.ThreatIndicator, bool) {
	for _, pattern := range exfilCommandPatterns {
		if pattern.MatchString(commandLine) {
			return model.ThreatIndicator{
				IndicatorType:   "exfil_command",
				Value:           commandLine,
				Confidence:      0.65,
				AttackPhase:     "exfiltration",
				MitreTechniques: []string{"T1560", "T1048"},
				Description:     "command line archives or ships data to an external destination",
				Source:          "detect.CheckExfilCommand",
				TS:              clock.Now(),
			}, true
		}
	}
	return model.ThreatIndicator{}, false
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"regexp"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

type lolbinRule struct {
	binary  string
	pattern *regexp.Regexp
	mitre   []string
}

// lolbinTable is the table-driven set of living-off-the-land binary
// patterns: for each host binary, regexes over its observed command
// line that indicate abuse.
var lolbinTable = []lolbinRule{
	{"osascript", regexp.MustCompile(`(?i)osascript\s+-e`), []string{"T1059.002"}},
	{"curl", regexp.MustCompile(`(?i)curl\s+.*(-o|--output|\|\s*sh|\|\s*bash)`), []string{"T1105"}},
	{"bash", regexp.MustCompile(`(?i)bash\s+-c\s+.*base64`), []string{"T1140", "T1059.004"}},
	{"python", regexp.MustCompile(`(?i)python[0-9.]*\s+-c\s+.*(socket|subprocess)`), []string{"T1059.006"}},
	{"openssl", regexp.MustCompile(`(?i)openssl\s+enc\s+.*-d`), []string{"T1027"}},
	{"nc", regexp.MustCompile(`(?i)\bnc\b.*(-e|-c)\s`), []string{"T1095"}},
	{"dscl", regexp.MustCompile(`(?i)dscl\s+.*-create`), []string{"T1136.001"}},
	{"defaults", regexp.MustCompile(`(?i)defaults\s+write.*LaunchAgent`), []string{"T1547"}},
	{"launchctl", regexp.MustCompile(`(?i)launchctl\s+(load|bootstrap)`), []string{"T1543.001"}},
	{"security", regexp.MustCompile(`(?i)security\s+(find-generic-password|find-internet-password|dump-keychain)`), []string{"T1555.001"}},
	{"sqlite3", regexp.MustCompile(`(?i)sqlite3\s+.*(Login Data|Cookies)`), []string{"T1555.003"}},
}

// MatchLOLBin scans commandLine for living-off-the-land abuse patterns
// associated with executable. It returns at most one ThreatIndicator
// per matching rule.
func MatchLOLBin(executable, commandLine string) []model.ThreatIndicator {
	var out []model.ThreatIndicator
	for _, rule := range lolbinTable {
		if !pathBaseEquals(executable, rule.binary) {
			continue
		}
		if rule.pattern.MatchString(commandLine) {
			out = append(out, model.ThreatIndicator{
				IndicatorType:   "lolbin",
				Value:           rule.binary,
				Confidence:      0.7,
				AttackPhase:     "execution",
				MitreTechniques: rule.mitre,
				Description:     "living-off-the-land binary abuse: " + rule.binary,
				Source:          "detect.MatchLOLBin",
				TS:              clock.Now(),
			})
		}
	}
	return out
}

func pathBaseEquals(path, name string) bool {
	base := path
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	return base == name
}

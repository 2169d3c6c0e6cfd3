// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"net"
	"time"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/model"
)

// highRiskPorts are destination ports commonly associated with C2
// frameworks and remote-access tooling.
var highRiskPorts = map[int]string{
	4444: "metasploit-default", 8080: "common-c2-alt-http",
	8443: "common-c2-alt-https", 1080: "socks-proxy",
	6666: "irc-c2", 6667: "irc-c2", 31337: "elite-backdoor",
}

// ExfilByteRatioThreshold: an outbound/inbound byte ratio above this is
// suggestive of exfiltration over an otherwise ordinary connection.
const ExfilByteRatioThreshold = 10.0

// CheckC2Connection implements the C2 connection checks: a
// high-risk destination port, or private-to-public egress on a
// non-standard port, or an outbound/inbound byte ratio above the
// exfiltration threshold, each independently produce an indicator.
func CheckC2Connection(flow model.FlowEvent) []model.ThreatIndicator {
	var out []model.ThreatIndicator

	if label, ok := highRiskPorts[flow.DstPort]; ok {
		out = append(out, model.ThreatIndicator{
			IndicatorType:   "c2_port",
			Value:           label,
			Confidence:      0.6,
			AttackPhase:     "command-and-control",
			MitreTechniques: []string{"T1071"},
			Description:     "connection to historically high-risk port",
			Source:          "detect.CheckC2Connection",
			TS:              clock.Now(),
		})
	}

	if flow.Direction == model.DirectionOutbound && isPrivate(flow.SrcIP) && !isPrivate(flow.DstIP) && !commonServicePorts[flow.DstPort] {
		out = append(out, model.ThreatIndicator{
			IndicatorType:   "c2_egress",
			Value:           flow.DstIP,
			Confidence:      0.4,
			AttackPhase:     "command-and-control",
			MitreTechniques: []string{"T1071"},
			Description:     "private-to-public egress on non-standard port",
			Source:          "detect.CheckC2Connection",
			TS:              clock.Now(),
		})
	}

	if flow.BytesIn > 0 {
		ratio := float64(flow.BytesOut) / float64(flow.BytesIn)
		if ratio > ExfilByteRatioThreshold {
			out = append(out, model.ThreatIndicator{
				IndicatorType:   "exfil_byte_ratio",
				Value:           flow.DstIP,
				Confidence:      0.55,
				AttackPhase:     "exfiltration",
				MitreTechniques: []string{"T1041"},
				Description:     "outbound/inbound byte ratio exceeds exfiltration threshold",
				Source:          "detect.CheckC2Connection",
				TS:              clock.Now(),
			})
		}
	}

	return out
}

func isPrivate(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(addr) {
			return true
		}
	}
	return false
}

// ExfilVolumeThresholdBytes is the volume of egress traffic (100 MiB)
// within ExfilWindow that constitutes a volumetric exfiltration signal.
const ExfilVolumeThresholdBytes = 100 * 1024 * 1024

// ExfilWindow is the rolling window over which ExfilVolumeThresholdBytes
// is evaluated.
const ExfilWindow = 300 * time.Second

// CheckExfilVolume reports whether bytesOut egressed within window
// reaches the volumetric exfiltration threshold.
func CheckExfilVolume(bytesOut int64, window time.Duration) (model.ThreatIndicator, bool) {
	if window > ExfilWindow || bytesOut < ExfilVolumeThresholdBytes {
		return model.ThreatIndicator{}, false
	}
	return model.ThreatIndicator{
		IndicatorType:   "exfil_volume",
		Confidence:      0.7,
		AttackPhase:     "exfiltration",
		MitreTechniques: []string{"T1030", "T1041"},
		Description:     "egress volume exceeded 100 MiB within window",
		Source:          "detect.CheckExfilVolume",
		TS:              clock.Now(),
	}, true
}

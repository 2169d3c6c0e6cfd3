// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"
	"github.com/miekg/dns"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/model"
)

// dgaScoreThreshold is the DGAScore floor a query name must clear
// before the DNS collector raises a suspicious-domain indicator.
const dgaScoreThreshold = 0.6

// DNSCollector captures UDP/53 traffic on an interface and unpacks
// each payload as a DNS message, scoring the queried name's leading
// label against the DGA entropy heuristic.
type DNSCollector struct {
	deviceID string
	handle   *pcap.Handle
	source   *gopacket.PacketSource
	log      *logging.Logger
}

// NewDNSCollector opens iface for live capture, filtered to UDP/53 via
// a BPF expression so the packet loop never sees unrelated traffic.
func NewDNSCollector(deviceID, iface string) (*DNSCollector, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	if err := handle.SetBPFFilter("udp port 53"); err != nil {
		handle.Close()
		return nil, err
	}
	return &DNSCollector{
		deviceID: deviceID, handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
		log:    logging.WithComponent("agent.dns"),
	}, nil
}

func (c *DNSCollector) Name() string { return "dns" }

func (c *DNSCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	now := clock.Now()
	var events []model.TelemetryEvent

	for {
		if ctx.Err() != nil {
			break
		}
		var packet gopacket.Packet
		select {
		case p, ok := <-c.source.Packets():
			if !ok {
				return wrapDNSEvents(c.deviceID, events, now), nil
			}
			packet = p
		default:
			return wrapDNSEvents(c.deviceID, events, now), nil
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)

		msg := new(dns.Msg)
		if err := msg.Unpack(udp.Payload); err != nil || len(msg.Question) == 0 {
			continue
		}

		for _, q := range msg.Question {
			name := strings.TrimSuffix(q.Name, ".")
			events = append(events, dnsQueryEvents(name, now)...)
		}
	}
	return wrapDNSEvents(c.deviceID, events, now), nil
}

func dnsQueryEvents(name string, now time.Time) []model.TelemetryEvent {
	events := []model.TelemetryEvent{{
		EventID: uuid.NewString(), EventType: model.EventFlow,
		Severity: model.SeverityInfo, EventTSNs: uint64(now.UnixNano()),
		Flow: &model.FlowEvent{
			Protocol: "UDP", DstPort: 53, Direction: model.DirectionOutbound,
			StartTSNs: uint64(now.UnixNano()), EndTSNs: uint64(now.UnixNano()),
		},
	}}

	label := name
	if i := strings.IndexByte(name, '.'); i > 0 {
		label = name[:i]
	}
	if detect.DGAScore(label) < dgaScoreThreshold {
		return events
	}

	events = append(events, model.TelemetryEvent{
		EventID: uuid.NewString(), EventType: model.EventSecurity,
		Severity: model.SeverityWarn, EventTSNs: uint64(now.UnixNano()),
		Security: &model.SecurityEvent{
			Source: "dns",
			Indicators: []model.ThreatIndicator{{
				IndicatorType: "dga_domain", Value: name,
				Confidence:  detect.DGAScore(label),
				AttackPhase: "command-and-control",
				Description: "query name entropy consistent with algorithmically generated domain",
				Source:      "dns", TS: now,
			}},
		},
	})
	return events
}

func wrapDNSEvents(deviceID string, events []model.TelemetryEvent, now time.Time) []*envelope.Envelope {
	if len(events) == 0 {
		return nil
	}
	dt := model.DeviceTelemetry{
		DeviceID: deviceID, DeviceType: model.DeviceEndpoint,
		CollectionTSNs: uint64(now.UnixNano()), Events: events,
	}
	env := envelope.NewTelemetry(uint64(now.UnixNano()), uuid.NewString(), deviceID, dt)
	return []*envelope.Envelope{env}
}

// Close releases the underlying pcap handle.
func (c *DNSCollector) Close() {
	c.handle.Close()
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/detect"
	"github.com/amoskys/amoskys/internal/envelope"
	"github.com/amoskys/amoskys/internal/logging"
	"github.com/amoskys/amoskys/internal/model"
)

const flowIdleTimeout = 30 * time.Second

type flowKey struct {
	srcIP, dstIP     string
	srcPort, dstPort int
	protocol         string
}

type flowAccumulator struct {
	key                  flowKey
	direction            model.Direction
	bytesIn, bytesOut    int64
	packets              int64
	startTSNs, lastTSNs  uint64
}

// NetworkCollector captures live traffic on one interface with
// gopacket/pcap, aggregates packets into 5-tuple flows, and flushes
// flows that have gone idle into FlowEvents scored against the C2 and
// exfiltration-volume detection primitives.
type NetworkCollector struct {
	deviceID string
	iface    string
	localIP  string
	handle   *pcap.Handle
	source   *gopacket.PacketSource

	mu    sync.Mutex
	flows map[flowKey]*flowAccumulator
	log   *logging.Logger
}

// NewNetworkCollector opens iface in promiscuous live-capture mode.
// localIP is used to classify flow direction relative to the host.
func NewNetworkCollector(deviceID, iface, localIP string) (*NetworkCollector, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	return &NetworkCollector{
		deviceID: deviceID, iface: iface, localIP: localIP,
		handle: handle, source: gopacket.NewPacketSource(handle, handle.LinkType()),
		flows: make(map[flowKey]*flowAccumulator),
		log:   logging.WithComponent("agent.network"),
	}, nil
}

func (c *NetworkCollector) Name() string { return "network" }

// Collect drains whatever packets are currently queued on the handle
// without blocking, folds them into per-flow accumulators, and
// returns envelopes for any flow idle longer than flowIdleTimeout.
func (c *NetworkCollector) Collect(ctx context.Context) ([]*envelope.Envelope, error) {
	c.drainPackets(ctx)
	return c.flushIdleFlows(), nil
}

func (c *NetworkCollector) drainPackets(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case packet, ok := <-c.source.Packets():
			if !ok {
				return
			}
			c.observe(packet)
		default:
			return
		}
	}
}

func (c *NetworkCollector) observe(packet gopacket.Packet) {
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return
	}

	var srcPort, dstPort int
	var proto string
	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		srcPort, dstPort, proto = int(tcp.SrcPort), int(tcp.DstPort), "TCP"
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		srcPort, dstPort, proto = int(udp.SrcPort), int(udp.DstPort), "UDP"
	default:
		return
	}

	key := flowKey{srcIP: ip.SrcIP.String(), dstIP: ip.DstIP.String(), srcPort: srcPort, dstPort: dstPort, protocol: proto}
	size := int64(len(packet.Data()))
	now := uint64(clock.Now().UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()
	acc, ok := c.flows[key]
	if !ok {
		acc = &flowAccumulator{key: key, direction: c.directionOf(ip.SrcIP.String()), startTSNs: now}
		c.flows[key] = acc
	}
	if acc.direction == model.DirectionOutbound {
		acc.bytesOut += size
	} else {
		acc.bytesIn += size
	}
	acc.packets++
	acc.lastTSNs = now
}

func (c *NetworkCollector) directionOf(srcIP string) model.Direction {
	if srcIP == c.localIP {
		return model.DirectionOutbound
	}
	return model.DirectionInbound
}

func (c *NetworkCollector) flushIdleFlows() []*envelope.Envelope {
	now := clock.Now()
	cutoff := uint64(now.Add(-flowIdleTimeout).UnixNano())

	c.mu.Lock()
	var flows []*flowAccumulator
	for key, acc := range c.flows {
		if acc.lastTSNs < cutoff {
			flows = append(flows, acc)
			delete(c.flows, key)
		}
	}
	c.mu.Unlock()

	if len(flows) == 0 {
		return nil
	}

	var events []model.TelemetryEvent
	for _, acc := range flows {
		fe := model.FlowEvent{
			SrcIP: acc.key.srcIP, DstIP: acc.key.dstIP,
			SrcPort: acc.key.srcPort, DstPort: acc.key.dstPort,
			Protocol: acc.key.protocol, Direction: acc.direction,
			BytesIn: acc.bytesIn, BytesOut: acc.bytesOut, PacketCount: acc.packets,
			StartTSNs: acc.startTSNs, EndTSNs: acc.lastTSNs,
		}
		events = append(events, model.TelemetryEvent{
			EventID: uuid.NewString(), EventType: model.EventFlow,
			Severity: model.SeverityInfo, EventTSNs: acc.lastTSNs, Flow: &fe,
		})

		indicators := detect.CheckC2Connection(fe)
		if hit, ok := detect.CheckExfilVolume(acc.bytesOut, flowIdleTimeout); ok {
			indicators = append(indicators, hit)
		}
		if len(indicators) == 0 {
			continue
		}
		events = append(events, model.TelemetryEvent{
			EventID: uuid.NewString(), EventType: model.EventSecurity,
			Severity: model.SeverityWarn, EventTSNs: acc.lastTSNs,
			Security: &model.SecurityEvent{Source: "network", Indicators: indicators},
		})
	}

	dt := model.DeviceTelemetry{
		DeviceID: c.deviceID, DeviceType: model.DeviceEndpoint,
		CollectionTSNs: uint64(now.UnixNano()), Events: events,
	}
	env := envelope.NewTelemetry(uint64(now.UnixNano()), uuid.NewString(), c.deviceID, dt)
	return []*envelope.Envelope{env}
}

// Close releases the underlying pcap handle.
func (c *NetworkCollector) Close() {
	c.handle.Close()
}

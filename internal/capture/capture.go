// Package capture is the libpcap packet source: it opens a live capture
// handle on a named interface, filters to DNS query traffic, strips the
// Ethernet/IPv4/UDP framing, and feeds each payload to the parser before
// pushing the resulting QNAMEs onto the ingress queue (spec.md §6).
package capture

import (
	"context"
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"
	"github.com/rs/zerolog"
	"github.com/sentrydns/classifierd/internal/metrics"
	"github.com/sentrydns/classifierd/internal/parser"
	"github.com/sentrydns/classifierd/internal/queue"
)

const (
	bpfFilter = "udp and port 53"
	snapLen   = 1600
	promisc   = false
)

// Source captures DNS query traffic on one interface, feeding parsed
// QNAMEs into q. It is the producer half of the ingress queue.
type Source struct {
	iface string
	q     *queue.Queue
	log   zerolog.Logger
}

// New constructs a Source bound to iface. The capture handle itself is
// opened lazily in Run so construction never touches the network.
func New(iface string, q *queue.Queue, log zerolog.Logger) *Source {
	return &Source{iface: iface, q: q, log: log.With().Str("component", "capture").Str("iface", iface).Logger()}
}

// Run opens the capture handle and blocks, pushing QNAMEs onto the
// ingress queue until ctx is canceled. Returning a non-nil error here is
// a fatal startup failure per spec.md §7 ("cannot acquire capture
// handle").
func (s *Source) Run(ctx context.Context) error {
	handle, err := pcap.OpenLive(s.iface, snapLen, promisc, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("open capture handle on %s: %w", s.iface, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		return fmt.Errorf("set BPF filter on %s: %w", s.iface, err)
	}

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := src.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			s.handlePacket(pkt)
		}
	}
}

func (s *Source) handlePacket(pkt gopacket.Packet) {
	if netLayer := pkt.Layer(layers.LayerTypeIPv6); netLayer != nil {
		metrics.PacketsDropped.WithLabelValues("ipv6").Inc()
		return
	}

	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		metrics.PacketsDropped.WithLabelValues("no_udp").Inc()
		return
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		metrics.PacketsDropped.WithLabelValues("no_udp").Inc()
		return
	}

	names := parser.ExtractQueries(udp.Payload)
	if len(names) == 0 {
		metrics.PacketsDropped.WithLabelValues("no_qname").Inc()
		return
	}
	for _, name := range names {
		metrics.QueriesObserved.Inc()
		s.q.Push(name)
	}
}

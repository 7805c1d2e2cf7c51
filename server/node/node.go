// Package node wires the gossip protocol, the anti-entropy replica and the
// packet transport into a running swarm node, and owns the schedulers that
// drive the caller-ticked protocol.
package node

import (
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/swarmnet/swarm/pkg/antientropy"
	"github.com/swarmnet/swarm/pkg/gossip"
	"github.com/swarmnet/swarm/pkg/log"
	"github.com/swarmnet/swarm/server/config"
	"github.com/swarmnet/swarm/server/transport"
)

type Node struct {
	protocol *gossip.Protocol

	replica *antientropy.Sync

	transport *transport.PacketTransport

	conf *config.Config

	logger log.Logger

	shutdownCh chan struct{}
}

func NewNode(conf *config.Config, logger log.Logger) (*Node, error) {
	logger = logger.WithSubsystem("node")

	conn, err := net.ListenPacket("udp", conf.Transport.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %s: %w", conf.Transport.BindAddr, err)
	}

	packetTransport := transport.NewPacketTransport(
		conn, conf.Transport.MaxPacketSize, logger,
	)

	protocol, err := gossip.NewProtocol(
		conf.Cluster.NodeID, conf.Gossip, packetTransport, logger,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("protocol: %w", err)
	}

	replica := antientropy.New(conf.Cluster.NodeID, protocol, logger)

	node := &Node{
		protocol:   protocol,
		replica:    replica,
		transport:  packetTransport,
		conf:       conf,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	// Discover peers announced via heartbeat and membership messages.
	protocol.Subscribe(gossip.TypeHeartbeat, node.onAnnounce)
	protocol.Subscribe(gossip.TypeMembership, node.onAnnounce)

	return node, nil
}

func (n *Node) Protocol() *gossip.Protocol {
	return n.protocol
}

func (n *Node) Replica() *antientropy.Sync {
	return n.replica
}

func (n *Node) Metrics() *gossip.Metrics {
	return n.protocol.Metrics()
}

func (n *Node) RegisterMetrics(registry *prometheus.Registry) {
	n.protocol.Metrics().Register(registry)
}

// Start begins serving the transport, starts relaying, seeds the peer table
// from the configured join members and announces this node to the swarm.
func (n *Node) Start() {
	n.logger.Info(
		"starting node",
		zap.String("node-id", n.protocol.NodeID()),
		zap.String("addr", n.transport.Addr()),
	)

	go n.transport.Serve(n.protocol)

	n.protocol.Start()

	for _, member := range n.conf.Cluster.Join {
		id, addr, ok := strings.Cut(member, "@")
		if !ok {
			// Validated at startup.
			continue
		}
		n.protocol.AddPeer(id, addr, nil)
	}

	n.protocol.PublishMembership("join", map[string]interface{}{
		"id":   n.protocol.NodeID(),
		"addr": n.conf.Transport.AdvertiseAddr,
	})

	n.schedule()
}

// Close stops the schedulers, announces the node is leaving, halts relaying
// and closes the transport.
func (n *Node) Close() error {
	close(n.shutdownCh)

	n.protocol.PublishMembership("leave", map[string]interface{}{
		"id": n.protocol.NodeID(),
	})
	// Flush the leave announcement before halting relay.
	n.protocol.GossipRound()

	n.protocol.Stop()
	return n.transport.Close()
}

// schedule drives the caller-ticked protocol operations at the configured
// rates.
func (n *Node) schedule() {
	go n.scheduleFunc(n.conf.Gossip.Interval, func() {
		n.protocol.GossipRound()
	})
	go n.scheduleFunc(n.conf.Cluster.HeartbeatInterval, func() {
		n.protocol.PublishHeartbeat(map[string]interface{}{
			"id":   n.protocol.NodeID(),
			"addr": n.conf.Transport.AdvertiseAddr,
		})
	})
	go n.scheduleFunc(n.conf.Cluster.StaleAfter, func() {
		n.protocol.MarkStalePeers(n.conf.Cluster.StaleAfter)
	})
	go n.scheduleFunc(n.conf.Gossip.Interval*10, func() {
		n.protocol.SweepSeen()
	})
}

func (n *Node) scheduleFunc(interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add 10% jitter to avoid nodes synchronising.
			jitterMs := (rand.Int63() % interval.Milliseconds()) / 10
			select {
			case <-time.After(time.Duration(jitterMs) * time.Millisecond):
				f()
			case <-n.shutdownCh:
				return
			}

		case <-n.shutdownCh:
			return
		}
	}
}

// onAnnounce adds unknown peers discovered through heartbeat and membership
// announcements carrying the origin's address.
func (n *Node) onAnnounce(m *gossip.Message) {
	if m.OriginID == n.protocol.NodeID() {
		return
	}

	payload, ok := m.Content.(map[string]interface{})
	if !ok {
		return
	}
	if action, ok := payload["action"].(string); ok && action == "leave" {
		if n.protocol.RemovePeer(m.OriginID) {
			n.logger.Info("peer left", zap.String("peer-id", m.OriginID))
		}
		return
	}

	addr, ok := payload["addr"].(string)
	if !ok || addr == "" {
		return
	}
	if _, known := n.protocol.Peer(m.OriginID); known {
		return
	}

	n.protocol.AddPeer(m.OriginID, addr, nil)
	n.logger.Info(
		"peer discovered",
		zap.String("peer-id", m.OriginID),
		zap.String("addr", addr),
	)
}

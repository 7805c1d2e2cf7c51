package gossip

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/swarmnet/swarm/pkg/log"
)

// Sender relays a message to a peer. It is the injected capability that
// moves bytes between nodes; the protocol itself never performs I/O.
//
// Send is invoked from GossipRound only. A returned error is treated as a
// soft per-peer failure and does not affect relays to other peers in the
// round.
type Sender interface {
	Send(peer Peer, m *Message) error
}

// SenderFunc is an adapter to allow ordinary functions as Senders.
type SenderFunc func(peer Peer, m *Message) error

func (f SenderFunc) Send(peer Peer, m *Message) error {
	return f(peer, m)
}

// Stats contains the protocol counters. Counters increase monotonically
// until ResetStats.
type Stats struct {
	PeerCount         int    `json:"peer_count"`
	MessagesSent      uint64 `json:"messages_sent"`
	DuplicatesIgnored uint64 `json:"duplicates_ignored"`
	GossipRounds      uint64 `json:"gossip_rounds"`
}

// Protocol is one swarm node's gossip layer.
//
// Each instance models a single node and owns all of its state (peer table,
// seen-set, subscriptions, relay queue); instances are independent so many
// simulated nodes can run in one process.
//
// Publish and Receive always operate and deliver locally; Start and Stop
// only gate relaying. The protocol owns no timer: the host drives
// GossipRound on whatever cadence it chooses (Config.Interval is a hint).
type Protocol struct {
	nodeID string
	conf   Config

	peers    *peerTable
	seen     *seenSet
	registry *registry

	sender   Sender
	selector PeerSelector

	// pending is the queue of messages eligible for relay in the next
	// gossip round.
	pending []*Message

	// counter is the local message ID counter.
	counter uint64

	messagesSent      uint64
	duplicatesIgnored uint64
	gossipRounds      uint64

	// mu protects the seen-set, relay queue, selector and counters.
	mu sync.Mutex

	running *atomic.Bool

	metrics *Metrics

	logger log.Logger
}

// NewProtocol creates the gossip protocol for the node with the given ID.
//
// sender may be nil, in which case queued messages are discarded each round
// instead of relayed (useful for local-only or test instances).
func NewProtocol(
	nodeID string,
	conf Config,
	sender Sender,
	logger log.Logger,
) (*Protocol, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("missing node id")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger = logger.WithSubsystem("gossip")

	return &Protocol{
		nodeID:   nodeID,
		conf:     conf,
		peers:    newPeerTable(nodeID),
		seen:     newSeenSet(),
		registry: newRegistry(logger),
		sender:   sender,
		selector: uniformSample,
		running:  atomic.NewBool(false),
		metrics:  newMetrics(),
		logger:   logger,
	}, nil
}

// NodeID returns the local node ID.
func (p *Protocol) NodeID() string {
	return p.nodeID
}

// Start enables relaying. Idempotent.
func (p *Protocol) Start() {
	if p.running.CompareAndSwap(false, true) {
		p.logger.Info("protocol started", zap.String("node-id", p.nodeID))
	}
}

// Stop halts further relaying. A gossip round already underway is allowed
// to finish. Publish, Receive and Subscribe continue to operate while
// stopped. Idempotent.
func (p *Protocol) Stop() {
	if p.running.CompareAndSwap(true, false) {
		p.logger.Info("protocol stopped", zap.String("node-id", p.nodeID))
	}
}

func (p *Protocol) IsRunning() bool {
	return p.running.Load()
}

// AddPeer registers a remote peer. Adding the local node is rejected
// silently. Re-adding a known peer updates its address and metadata.
func (p *Protocol) AddPeer(id, addr string, metadata map[string]string) {
	if p.peers.Add(id, addr, metadata) {
		p.metrics.Peers.Inc()
		p.logger.Debug(
			"peer added",
			zap.String("peer-id", id),
			zap.String("addr", addr),
		)
	}
}

// RemovePeer removes the peer with the given ID, returning false if the
// peer is unknown.
func (p *Protocol) RemovePeer(id string) bool {
	if !p.peers.Remove(id) {
		return false
	}
	p.metrics.Peers.Dec()
	p.logger.Debug("peer removed", zap.String("peer-id", id))
	return true
}

// Peer returns the peer with the given ID.
func (p *Protocol) Peer(id string) (Peer, bool) {
	return p.peers.Get(id)
}

// Peers returns all known peers.
func (p *Protocol) Peers() []Peer {
	return p.peers.All()
}

// ActivePeers returns the known peers considered live.
func (p *Protocol) ActivePeers() []Peer {
	return p.peers.Active()
}

// MarkStalePeers deactivates peers that haven't been attributed a message
// within the given window and returns their IDs. The protocol never calls
// this itself; staleness detection is the host scheduler's decision.
func (p *Protocol) MarkStalePeers(staleAfter time.Duration) []string {
	stale := p.peers.MarkStale(staleAfter, time.Now())
	for _, id := range stale {
		p.logger.Info("peer marked inactive", zap.String("peer-id", id))
	}
	return stale
}

// Publish creates a message with the given content and type and queues it
// for relay in the next gossip round. An empty type defaults to TypeData.
//
// Matching local subscribers are invoked synchronously before Publish
// returns. Publish never blocks on network I/O.
//
// Returns the message ID.
func (p *Protocol) Publish(content interface{}, msgType string) string {
	if msgType == "" {
		msgType = TypeData
	}

	p.mu.Lock()
	p.counter++
	now := nowMillis()
	m := &Message{
		ID:        messageID(p.nodeID, p.counter, now),
		OriginID:  p.nodeID,
		Content:   content,
		Type:      msgType,
		Version:   schemaVersion,
		CreatedAt: now,
		TTL:       p.conf.MaxTTL.Milliseconds(),
		Hops:      0,
		Path:      []string{p.nodeID},
	}
	p.seen.Mark(m.ID, m.ExpiresAt())
	p.pending = append(p.pending, m)
	p.messagesSent++
	p.mu.Unlock()

	p.metrics.MessagesPublished.Inc()

	p.registry.Deliver(m)

	return m.ID
}

// PublishHeartbeat publishes the given payload with the heartbeat type.
func (p *Protocol) PublishHeartbeat(payload interface{}) string {
	return p.Publish(payload, TypeHeartbeat)
}

// PublishMembership publishes a membership event with the given action.
// The payload entries are merged with the action into a single content map.
func (p *Protocol) PublishMembership(action string, payload map[string]interface{}) string {
	content := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		content[k] = v
	}
	content["action"] = action
	return p.Publish(content, TypeMembership)
}

// Receive processes a message relayed by the peer with the given ID.
//
// Returns false, without local delivery, if the message has already been
// processed, has exceeded its TTL, or has exceeded the hop budget.
// Otherwise the message is delivered to matching local subscribers, the
// sending peer's liveness is refreshed, and the message is queued for
// further relay with its hop count incremented.
func (p *Protocol) Receive(m *Message, fromPeerID string) bool {
	now := nowMillis()

	p.mu.Lock()
	if p.seen.Seen(m.ID, now) {
		p.duplicatesIgnored++
		p.mu.Unlock()

		p.metrics.MessagesDropped.With(prometheus.Labels{"reason": "duplicate"}).Inc()
		return false
	}
	if m.Expired(now) {
		p.mu.Unlock()

		p.metrics.MessagesDropped.With(prometheus.Labels{"reason": "expired"}).Inc()
		p.logger.Debug(
			"message expired",
			zap.String("message-id", m.ID),
			zap.Int64("created-at", m.CreatedAt),
			zap.Int64("ttl", m.TTL),
		)
		return false
	}
	if m.Hops > p.conf.MaxHops {
		p.mu.Unlock()

		p.metrics.MessagesDropped.With(prometheus.Labels{"reason": "hops"}).Inc()
		p.logger.Debug(
			"message exceeded hop budget",
			zap.String("message-id", m.ID),
			zap.Int("hops", m.Hops),
			zap.Int("max-hops", p.conf.MaxHops),
		)
		return false
	}

	p.seen.Mark(m.ID, m.ExpiresAt())
	p.pending = append(p.pending, m.forward(p.nodeID))
	p.mu.Unlock()

	p.peers.Touch(fromPeerID)

	p.metrics.MessagesReceived.Inc()

	p.registry.Deliver(m)

	return true
}

// Subscribe registers a handler for the given message type, or Wildcard to
// receive every type. Returns a function that removes the subscription.
func (p *Protocol) Subscribe(msgType string, handler Handler) func() {
	return p.registry.Subscribe(msgType, handler)
}

// GossipRound relays each queued message to a bounded sample of active
// peers via the injected sender.
//
// A no-op while stopped. While running the round counter increments exactly
// once per call, regardless of how many messages or peers are touched. Peers
// already on a message's path are excluded from its sample to reduce
// redundant backtracking.
func (p *Protocol) GossipRound() {
	if !p.running.Load() {
		return
	}

	p.mu.Lock()
	p.gossipRounds++
	pending := p.pending
	p.pending = nil
	selector := p.selector
	p.mu.Unlock()

	p.metrics.Rounds.Inc()

	if len(pending) == 0 {
		return
	}

	active := p.peers.Active()
	for _, m := range pending {
		candidates := make([]Peer, 0, len(active))
		for _, peer := range active {
			if m.OnPath(peer.ID) {
				continue
			}
			candidates = append(candidates, peer)
		}

		for _, peer := range selector(candidates, p.conf.Fanout) {
			p.relay(peer, m)
		}
	}
}

func (p *Protocol) relay(peer Peer, m *Message) {
	if p.sender == nil {
		return
	}
	if err := p.sender.Send(peer, m); err != nil {
		p.metrics.RelayErrors.Inc()
		p.logger.Warn(
			"failed to relay message",
			zap.String("message-id", m.ID),
			zap.String("peer-id", peer.ID),
			zap.Error(err),
		)
		return
	}
	p.metrics.RelaysOutbound.Inc()
}

// SetPeerSelector replaces the default peer sampling policy. A nil selector
// restores the default.
func (p *Protocol) SetPeerSelector(selector PeerSelector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if selector == nil {
		selector = uniformSample
	}
	p.selector = selector
}

// SweepSeen evicts expired entries from the seen-set and returns the number
// evicted. Intended to be driven periodically by the host scheduler;
// lookups also evict lazily.
func (p *Protocol) SweepSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.seen.Sweep(nowMillis())
}

// Stats returns the current protocol counters.
func (p *Protocol) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		PeerCount:         p.peers.Len(),
		MessagesSent:      p.messagesSent,
		DuplicatesIgnored: p.duplicatesIgnored,
		GossipRounds:      p.gossipRounds,
	}
}

// ResetStats zeroes the protocol counters.
func (p *Protocol) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messagesSent = 0
	p.duplicatesIgnored = 0
	p.gossipRounds = 0
}

// Config returns a read-only view of the protocol configuration.
func (p *Protocol) Config() Config {
	return p.conf
}

func (p *Protocol) Metrics() *Metrics {
	return p.metrics
}

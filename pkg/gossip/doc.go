// Package gossip implements an epidemic broadcast protocol for disseminating
// messages between swarm nodes without a central broker.
//
// Each node owns a Protocol instance which tracks known peers, deduplicates
// messages it has already processed, and delivers accepted messages to local
// subscribers. Messages published locally or accepted from peers are queued
// for relay; a caller-driven GossipRound forwards each queued message to a
// bounded random sample of active peers via an injected Sender, so the
// protocol itself never performs network I/O and stays deterministic under
// test.
//
// Delivery is best effort: messages are bounded by a hop budget and a TTL,
// and duplicates from redundant relay paths are discarded, giving
// probabilistic eventual delivery across a connected swarm rather than
// reliable broadcast.
package gossip

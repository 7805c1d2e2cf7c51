// Package antientropy implements a convergent key/value replica layered on
// the gossip protocol.
//
// Local writes are announced to the swarm via gossip and incoming
// announcements are merged last-writer-wins, so replicas converge to the
// same state regardless of delivery order or duplication.
package antientropy

package antientropy

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/swarmnet/swarm/pkg/gossip"
	"github.com/swarmnet/swarm/pkg/log"
)

// Update announces a replica write to the swarm. It is carried as the
// content of a gossip data message.
type Update struct {
	Key      string      `json:"key" codec:"key"`
	Value    interface{} `json:"value" codec:"value"`
	Version  uint64      `json:"version" codec:"version"`
	OriginID string      `json:"origin_id" codec:"origin_id"`
}

// Record is the locally held state for a key.
//
// (Version, OriginID) forms a total order over writes to a key, used for
// conflict resolution.
type Record struct {
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
	Version  uint64      `json:"version"`
	OriginID string      `json:"origin_id"`
}

// Sync replicates a key/value table across the swarm.
//
// Writes via Set are stored locally and announced through the protocol's
// publish; announcements from other nodes arrive through an internal
// subscription and are merged last-writer-wins: an incoming record wins if
// its version strictly exceeds the local version, with ties broken by
// comparing origin IDs. The merge is idempotent and commutative since
// gossip delivery is unordered and may duplicate.
//
// Reads (Get, Keys, Snapshot) are pure local reads and never trigger
// network activity.
type Sync struct {
	nodeID string

	protocol *gossip.Protocol

	records map[string]Record

	// counter stamps the version of local writes.
	counter uint64

	// mu protects the above fields.
	mu sync.Mutex

	unsubscribe func()

	logger log.Logger
}

func New(nodeID string, protocol *gossip.Protocol, logger log.Logger) *Sync {
	s := &Sync{
		nodeID:   nodeID,
		protocol: protocol,
		records:  make(map[string]Record),
		logger:   logger.WithSubsystem("antientropy"),
	}
	s.unsubscribe = protocol.Subscribe(gossip.TypeData, s.onMessage)
	return s
}

// Set writes the given key locally and announces the write to the swarm.
func (s *Sync) Set(key string, value interface{}) {
	s.mu.Lock()
	s.counter++
	record := Record{
		Key:      key,
		Value:    value,
		Version:  s.counter,
		OriginID: s.nodeID,
	}
	s.records[key] = record
	s.mu.Unlock()

	// Publish after releasing the mutex: local delivery re-enters onMessage
	// with our own update, which the merge discards as not newer.
	s.protocol.Publish(Update{
		Key:      record.Key,
		Value:    record.Value,
		Version:  record.Version,
		OriginID: record.OriginID,
	}, gossip.TypeData)
}

// Get returns the local value for the given key.
func (s *Sync) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return record.Value, true
}

// Keys returns the locally held keys in sorted order.
func (s *Sync) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the local key/value table.
func (s *Sync) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]interface{}, len(s.records))
	for key, record := range s.records {
		snapshot[key] = record.Value
	}
	return snapshot
}

// Records returns a copy of the locally held records, sorted by key.
func (s *Sync) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records
}

// Close removes the gossip subscription. The local table remains readable.
func (s *Sync) Close() {
	s.unsubscribe()
}

func (s *Sync) onMessage(m *gossip.Message) {
	update, ok := coerceUpdate(m.Content)
	if !ok {
		// Other subscribers may publish unrelated data messages.
		return
	}
	if s.apply(update) {
		s.logger.Debug(
			"applied update",
			zap.String("key", update.Key),
			zap.Uint64("version", update.Version),
			zap.String("origin-id", update.OriginID),
		)
	}
}

// apply merges the incoming update, returning whether it was accepted.
func (s *Sync) apply(update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, ok := s.records[update.Key]
	if ok && !supersedes(update, local) {
		return false
	}

	s.records[update.Key] = Record{
		Key:      update.Key,
		Value:    update.Value,
		Version:  update.Version,
		OriginID: update.OriginID,
	}
	return true
}

// supersedes returns whether the incoming update wins over the local
// record: a strictly greater version wins, and version ties are broken
// deterministically by origin ID so merging is commutative.
func supersedes(update Update, local Record) bool {
	if update.Version != local.Version {
		return update.Version > local.Version
	}
	return update.OriginID > local.OriginID
}

// coerceUpdate extracts an Update from message content. Locally published
// updates arrive as the Update struct itself; updates decoded off the wire
// arrive as a generic map.
func coerceUpdate(content interface{}) (Update, bool) {
	switch v := content.(type) {
	case Update:
		return v, v.Key != ""
	case *Update:
		return *v, v.Key != ""
	case map[string]interface{}:
		return updateFromMap(v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for key, value := range v {
			ks, ok := key.(string)
			if !ok {
				return Update{}, false
			}
			m[ks] = value
		}
		return updateFromMap(m)
	default:
		return Update{}, false
	}
}

func updateFromMap(m map[string]interface{}) (Update, bool) {
	key, ok := toString(m["key"])
	if !ok || key == "" {
		return Update{}, false
	}
	originID, ok := toString(m["origin_id"])
	if !ok {
		return Update{}, false
	}
	version, ok := toUint64(m["version"])
	if !ok {
		return Update{}, false
	}
	return Update{
		Key:      key,
		Value:    m["value"],
		Version:  version,
		OriginID: originID,
	}, true
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func toUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint:
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

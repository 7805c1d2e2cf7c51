package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerTable_Add(t *testing.T) {
	t.Run("add peer", func(t *testing.T) {
		table := newPeerTable("node-1")

		assert.True(t, table.Add("node-2", "2.2.2.2:2", nil))

		peer, ok := table.Get("node-2")
		require.True(t, ok)
		assert.Equal(t, "node-2", peer.ID)
		assert.Equal(t, "2.2.2.2:2", peer.Addr)
		assert.True(t, peer.Active)
	})

	t.Run("rejects local node", func(t *testing.T) {
		table := newPeerTable("node-1")

		assert.False(t, table.Add("node-1", "1.1.1.1:1", nil))
		assert.Empty(t, table.All())
	})

	t.Run("re-add updates address", func(t *testing.T) {
		table := newPeerTable("node-1")

		assert.True(t, table.Add("node-2", "2.2.2.2:2", nil))
		assert.False(t, table.Add("node-2", "3.3.3.3:3", nil))

		peer, ok := table.Get("node-2")
		require.True(t, ok)
		assert.Equal(t, "3.3.3.3:3", peer.Addr)
		assert.Equal(t, 1, table.Len())
	})
}

func TestPeerTable_Active(t *testing.T) {
	table := newPeerTable("node-1")
	table.Add("node-2", "2.2.2.2:2", nil)
	table.Add("node-3", "3.3.3.3:3", nil)
	table.Add("node-4", "4.4.4.4:4", nil)

	// Deactivate node-3.
	table.mu.Lock()
	table.peers["node-3"].Active = false
	table.mu.Unlock()

	active := table.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "node-2", active[0].ID)
	assert.Equal(t, "node-4", active[1].ID)

	assert.Len(t, table.All(), 3)
}

func TestPeerTable_Touch(t *testing.T) {
	t.Run("reactivates peer", func(t *testing.T) {
		table := newPeerTable("node-1")
		table.Add("node-2", "2.2.2.2:2", nil)

		table.mu.Lock()
		table.peers["node-2"].Active = false
		table.mu.Unlock()

		table.Touch("node-2")

		peer, ok := table.Get("node-2")
		require.True(t, ok)
		assert.True(t, peer.Active)
	})

	t.Run("unknown peer ignored", func(t *testing.T) {
		table := newPeerTable("node-1")
		table.Touch("node-2")
		assert.Empty(t, table.All())
	})
}

func TestPeerTable_MarkStale(t *testing.T) {
	table := newPeerTable("node-1")
	table.Add("node-2", "2.2.2.2:2", nil)
	table.Add("node-3", "3.3.3.3:3", nil)

	// node-2 was last seen over the staleness window ago.
	table.mu.Lock()
	table.peers["node-2"].LastSeen = time.Now().Add(-time.Minute)
	table.mu.Unlock()

	stale := table.MarkStale(time.Second*30, time.Now())
	assert.Equal(t, []string{"node-2"}, stale)

	peer, ok := table.Get("node-2")
	require.True(t, ok)
	assert.False(t, peer.Active)

	// Already-inactive peers are not reported again.
	stale = table.MarkStale(time.Second*30, time.Now())
	assert.Empty(t, stale)
}

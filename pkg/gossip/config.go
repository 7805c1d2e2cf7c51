package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// Fanout is the number of peers each queued message is relayed to per
	// gossip round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// MaxHops is the maximum number of relays a message may traverse before
	// it is discarded.
	MaxHops int `json:"max_hops" yaml:"max_hops"`

	// MaxTTL is the maximum age of a message before it is discarded from
	// further circulation.
	MaxTTL time.Duration `json:"max_ttl" yaml:"max_ttl"`

	// Interval is the rate the host should initiate gossip rounds. The
	// protocol does not own a timer so this is a hint to the scheduler
	// driving GossipRound.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

func DefaultConfig() Config {
	return Config{
		Fanout:   3,
		MaxHops:  10,
		MaxTTL:   time.Second * 30,
		Interval: time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive")
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("max hops must be positive")
	}
	if c.MaxTTL <= 0 {
		return fmt.Errorf("max ttl must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	if prefix != "" {
		prefix = prefix + "."
	}
	prefix = prefix + "gossip."

	fs.IntVar(
		&c.Fanout,
		prefix+"fanout",
		c.Fanout,
		`
The number of peers each message is relayed to per gossip round.

A larger fanout propagates messages faster at the cost of more redundant
traffic.`,
	)

	fs.IntVar(
		&c.MaxHops,
		prefix+"max-hops",
		c.MaxHops,
		`
The maximum number of peer-to-peer relays a message may traverse.

Bounds the flood depth of each message.`,
	)

	fs.DurationVar(
		&c.MaxTTL,
		prefix+"max-ttl",
		c.MaxTTL,
		`
The maximum age of a message before it is discarded.

Also bounds how long message IDs are remembered for deduplication.`,
	)

	fs.DurationVar(
		&c.Interval,
		prefix+"interval",
		c.Interval,
		`
The interval to initiate rounds of gossip.

Each gossip round relays queued messages to a sample of active peers.`,
	)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/swarmnet/swarm/pkg/gossip"
	"github.com/swarmnet/swarm/pkg/log"
	"github.com/swarmnet/swarm/server/transport"
)

type ClusterConfig struct {
	// NodeID is a unique identifier for this node in the swarm.
	NodeID string `json:"node_id" yaml:"node_id"`

	// NodeIDPrefix is a node ID prefix, where Swarm generates the rest of
	// the ID to ensure uniqueness. This can be useful to inspect nodes by
	// name, such as when running in Kubernetes the node prefix may be the
	// node pod name.
	NodeIDPrefix string `json:"node_id_prefix" yaml:"node_id_prefix"`

	// Join contains a list of existing swarm members to seed the peer
	// table, each formatted as '<node id>@<address>'.
	Join []string `json:"join" yaml:"join"`

	// HeartbeatInterval is the rate to announce node liveness to the
	// swarm.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// StaleAfter is the window without any attributed message after which
	// a peer is considered inactive.
	StaleAfter time.Duration `json:"stale_after" yaml:"stale_after"`
}

func (c *ClusterConfig) Validate() error {
	if c.NodeID != "" && c.NodeIDPrefix != "" {
		return fmt.Errorf("cannot set both node id and node id prefix")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("missing heartbeat interval")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("missing stale after")
	}
	for _, member := range c.Join {
		if _, _, ok := strings.Cut(member, "@"); !ok {
			return fmt.Errorf("invalid join member: %s: expected '<id>@<addr>'", member)
		}
	}
	return nil
}

func (c *ClusterConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.NodeID,
		"cluster.node-id",
		c.NodeID,
		`
A unique identifier for the node in the swarm.

By default a random ID will be generated for the node.`,
	)
	fs.StringVar(
		&c.NodeIDPrefix,
		"cluster.node-id-prefix",
		c.NodeIDPrefix,
		`
A prefix for the node ID.

Swarm will generate a unique random identifier for the node and append it to
the given prefix.

Such as you could use the node or pod name as a prefix, then add a unique
identifier to ensure the node ID is unique across restarts.`,
	)
	fs.StringSliceVar(
		&c.Join,
		"cluster.join",
		c.Join,
		`
A list of existing swarm members to seed the peer table, each formatted
as '<node id>@<address>'.

Additional members are discovered through membership announcements once the
node has joined.`,
	)
	fs.DurationVar(
		&c.HeartbeatInterval,
		"cluster.heartbeat-interval",
		c.HeartbeatInterval,
		`
The rate to announce node liveness to the swarm.`,
	)
	fs.DurationVar(
		&c.StaleAfter,
		"cluster.stale-after",
		c.StaleAfter,
		`
The window without any message attributed to a peer after which the peer is
considered inactive and excluded from gossip rounds.`,
	)
}

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP
	// connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *AdminConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"admin.bind-addr",
		c.BindAddr,
		`
The host/port to listen for incoming admin connections.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :7302' will listen on '0.0.0.0:7302'`,
	)
}

type Config struct {
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`

	Gossip gossip.Config `json:"gossip" yaml:"gossip"`

	Transport transport.Config `json:"transport" yaml:"transport"`

	Admin AdminConfig `json:"admin" yaml:"admin"`

	Log log.Config `json:"log" yaml:"log"`

	// GracefulShutdownTimeout is the duration to wait for pending admin
	// requests when shutting down.
	GracefulShutdownTimeout time.Duration `json:"graceful_shutdown_timeout" yaml:"graceful_shutdown_timeout"`
}

func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			HeartbeatInterval: time.Second * 5,
			StaleAfter:        time.Second * 30,
		},
		Gossip: gossip.DefaultConfig(),
		Transport: transport.Config{
			BindAddr:      ":7301",
			MaxPacketSize: 1400,
		},
		Admin: AdminConfig{
			BindAddr: ":7302",
		},
		Log: log.Config{
			Level: "info",
		},
		GracefulShutdownTimeout: time.Second * 15,
	}
}

func (c *Config) Validate() error {
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("missing graceful shutdown timeout")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Cluster.RegisterFlags(fs)
	c.Gossip.RegisterFlags(fs, "")
	c.Transport.RegisterFlags(fs)
	c.Admin.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracefulShutdownTimeout,
		"server.graceful-shutdown-timeout",
		c.GracefulShutdownTimeout,
		`
Maximum duration to wait for pending admin requests when shutting down.`,
	)
}

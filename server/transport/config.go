package transport

import (
	"fmt"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for gossip packets.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// MaxPacketSize is the maximum size of any packet sent.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.MaxPacketSize == 0 {
		return fmt.Errorf("missing max packet size")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"transport.bind-addr",
		c.BindAddr,
		`
The host/port to listen for inter-node gossip packets.

If the host is unspecified it defaults to all listeners, such as
a bind address ':7301' will listen on '0.0.0.0:7301'`,
	)

	fs.StringVar(
		&c.AdvertiseAddr,
		"transport.advertise-addr",
		c.AdvertiseAddr,
		`
Gossip listen address to advertise to other nodes in the swarm. This is the
address other nodes will use to send gossip packets to the node.

Such as if the listen address is ':7301', the advertised address may be
'10.26.104.45:7301' or 'node1.swarm:7301'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':7301') the nodes
private IP will be used, such as a bind address of ':7301' may have an
advertise address of '10.26.104.14:7301'.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		"transport.max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any packet sent.

Depending on your networks MTU you may be able to increase to include more
data in each packet.`,
	)
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/swarmnet/swarm/cli/node"
	"github.com/swarmnet/swarm/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "swarm [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Swarm is a peer-to-peer messaging substrate that lets many
independent agents exchange events with no central broker.

Nodes disseminate messages via gossip: each node periodically relays queued
messages to a random subset of its peers, so messages reach the whole swarm
with high probability even under partial connectivity. A convergent
key/value replica is layered on top, merging concurrent writes
last-writer-wins so all nodes eventually agree.

Start a swarm node with:

  $ swarm node

Join an existing swarm by specifying known members:

  $ swarm node --cluster.join node-1@10.26.104.14:7301

You can also inspect the status of a running node:

  $ swarm status peers
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}

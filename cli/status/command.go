package status

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmnet/swarm/status/client"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each swarm node exposes a status API to inspect the state of the node, this
can be used to answer questions such as:
* What peers does this node know and which are active?
* How many messages has the node published and how many duplicates has it
  discarded?
* What key/value state has the node's replica converged to?

Examples:
  # Inspect the known peers.
  swarm status peers

  # Inspect the protocol counters.
  swarm status stats

  # Inspect the replica of node 10.26.104.56:7302.
  swarm status replica --server 10.26.104.56:7302
`,
	}

	var server string
	cmd.PersistentFlags().StringVar(
		&server,
		"server",
		"http://localhost:7302",
		`
The address of the node admin server to query.`,
	)

	cmd.AddCommand(newPeersCommand(&server))
	cmd.AddCommand(newStatsCommand(&server))
	cmd.AddCommand(newReplicaCommand(&server))

	return cmd
}

func newPeersCommand(server *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect known peers",
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		c, err := newClient(*server)
		if err != nil {
			exitFailure(err)
		}

		peers, err := c.Peers()
		if err != nil {
			exitFailure(err)
		}

		fmt.Printf("%-24s %-24s %-8s %s\n", "id", "addr", "active", "last seen")
		for _, peer := range peers {
			fmt.Printf(
				"%-24s %-24s %-8t %s\n",
				peer.ID,
				peer.Addr,
				peer.Active,
				peer.LastSeen.Format(time.RFC3339),
			)
		}
	}

	return cmd
}

func newStatsCommand(server *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "inspect protocol counters",
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		c, err := newClient(*server)
		if err != nil {
			exitFailure(err)
		}

		stats, err := c.Stats()
		if err != nil {
			exitFailure(err)
		}

		fmt.Println("peers:", stats.PeerCount)
		fmt.Println("messages sent:", stats.MessagesSent)
		fmt.Println("duplicates ignored:", stats.DuplicatesIgnored)
		fmt.Println("gossip rounds:", stats.GossipRounds)
	}

	return cmd
}

func newReplicaCommand(server *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replica",
		Short: "inspect the replica key/value state",
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		c, err := newClient(*server)
		if err != nil {
			exitFailure(err)
		}

		records, err := c.Replica()
		if err != nil {
			exitFailure(err)
		}

		fmt.Printf("%-24s %-12s %-24s %s\n", "key", "version", "origin", "value")
		for _, record := range records {
			fmt.Printf(
				"%-24s %-12d %-24s %v\n",
				record.Key,
				record.Version,
				record.OriginID,
				record.Value,
			)
		}
	}

	return cmd
}

func newClient(server string) (*client.Client, error) {
	url, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	return client.NewClient(url), nil
}

func exitFailure(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

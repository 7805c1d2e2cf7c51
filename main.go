package main

import (
	"fmt"

	"github.com/swarmnet/swarm/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
	}
}

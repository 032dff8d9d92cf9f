// Command raftdemo runs a single node of a leader-election demo group
// over gRPC, exposing a status endpoint and Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/cod-technologies/tender/cmd/raftdemo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

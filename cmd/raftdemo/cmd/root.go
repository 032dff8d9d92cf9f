// Package cmd provides the raftdemo command-line interface.
package cmd

import "github.com/spf13/cobra"

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "raftdemo",
	Short: "Run a single node of a leader-election demo group",
	Long: `raftdemo runs one node of a group leader-election core over gRPC.

Configuration is read from ./raftdemo.yaml (or ./config/raftdemo.yaml,
/etc/raftdemo/raftdemo.yaml), overlaid with RAFTDEMO_-prefixed
environment variables.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
}

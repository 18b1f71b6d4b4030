package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarmlink",
	Short: "Swarm coordination toolkit",
	Long:  "Swarmlink runs the on-board coordination agent and the ground-side command and monitor utilities.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(monitorCmd)
}

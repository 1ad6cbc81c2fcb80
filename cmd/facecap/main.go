package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facecap",
		Short: "Face capture client for a remote recognition server",
		Long: `facecap streams camera frames to a face recognition server over a
websocket, after measuring the round-trip time to it, and exposes a
local HTTP API for the enrollment workflow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading FACECAP_* variables")

	rootCmd.AddCommand(
		runCmd(),
		endpointsCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-timeline/internal/config"
)

var rootCmd = &cobra.Command{
	Use:     "heimdex-timeline",
	Short:   "Local timeline and frame-preview agent for the Heimdex cut-point editor.",
	Version: config.Version,
	// Running without a subcommand starts the agent.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Flags().Changed("headless"))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without the system tray")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

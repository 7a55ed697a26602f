// Package cmd defines and implements the CLI commands for the
// lenscrawl executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lenscrawl",
		Short: "Batch reverse-image search via Google Lens",
		Long: `lenscrawl resolves a batch of image URLs through Google Lens's
reverse-image search. For each (id, URL) pair in the input JSON it
drives a headless browser to the Lens results page, scrapes the top
visual matches, and writes them to a CSV file. Failed tasks are
collected into a JSON file that can be fed back in as input.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	cmd.AddCommand(newRunCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

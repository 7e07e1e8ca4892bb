package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediactl",
		Short: "Operate the media ingestion pipeline",
		Long: `mediactl manages the media bucket and replays ingestion.

Configuration is read from the environment (and a .env file when present),
using the same variables as media-api and the workers.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewLifecycleCommand())
	rootCmd.AddCommand(NewVariantsCommand())
	rootCmd.AddCommand(NewReprocessCommand())
	rootCmd.AddCommand(NewSchemaCommand())

	return rootCmd
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "calendar-sync",
		Short: "Real-time group calendar and chat sync server",
		Long: `calendar-sync keeps users, groups, schedules and group chat in one
authoritative store and pushes every change to the connected members.

Clients speak newline-delimited JSON over TCP, or the same envelopes over
a WebSocket on the HTTP port.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")

	root.AddCommand(
		serveCmd(),
		inspectCmd(),
		versionCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

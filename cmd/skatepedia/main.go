// Skatepedia serves the skatepedia API: community posts, trick logs, pro
// comparisons and live paginated screens over HTTP and SSE.
//
// Configuration is read from an optional YAML file and SKATEPEDIA_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the server with an embedded NATS broker
//	skatepedia serve --embedded-nats
//
//	# Print the trick catalog
//	skatepedia tricks
//
//	# Mint a token with the configured secret
//	skatepedia token --config config.yaml u1
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the YAML configuration file.
	configPath string
	// catalogPath overrides the embedded trick catalog.
	catalogPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skatepedia",
		Short: "Skatepedia API server",
		Long: `skatepedia serves community posts, trick logs and pro comparisons,
with live paginated screens pushed to clients over server-sent events.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "trick catalog TOML file (embedded catalog when empty)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newTricksCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "skatepedia by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

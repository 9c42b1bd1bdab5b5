// Package cli implements the roomchat command line: the server itself and
// small client commands for talking to a running server.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// DefaultServer is the base URL client commands talk to.
const DefaultServer = "http://localhost:8080"

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the server.
func NewRootCommand() *cobra.Command {
	var (
		envFile   string
		serverURL string
	)

	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Room-scoped WebSocket chat server",
		Long:          `roomchat relays JSON chat messages between WebSocket clients that share a room and reports how many messages it has relayed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file %s: %w", envFile, err)
				}
				return nil
			}
			// A missing .env in the working directory is not an error.
			_ = godotenv.Load()
			return nil
		},
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default .env if present)")
	root.PersistentFlags().StringVar(&serverURL, "server", DefaultServer, "server URL for client commands")

	root.AddCommand(serve)
	root.AddCommand(newConnectCmd(&serverURL))
	root.AddCommand(newViewsCmd(&serverURL))

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

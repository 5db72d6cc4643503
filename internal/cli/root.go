package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// NewRootCmd creates the root command for tokend
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tokend",
		Short: "tokend - authentication token lifecycle daemon",
		Long: `tokend maintains authentication tokens for configured endpoints.

Each endpoint gets at most one token. Tokens are fetched once, kept fresh
by background renewal, and torn down together on shutdown. A small HTTP
API reports token status (never credential values).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./configs/tokend.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

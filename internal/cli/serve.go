package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloudbind/tokend/internal/config"
	"github.com/cloudbind/tokend/internal/probe"
	"github.com/cloudbind/tokend/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tokend daemon",
		Long: `Start the tokend daemon.

The daemon will:
  - Register a token for every configured endpoint
  - Keep tokens fresh with background renewal
  - Serve the token status API over HTTP

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (TOKEND_*)
  3. Configuration file`,
		RunE: runServe,
	}

	// One flag per scalar config field
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Determine config file path
	configPath := configFile
	if configPath == "" {
		// Check environment variable
		configPath = os.Getenv("TOKEND_CONFIG")
	}
	if configPath == "" {
		// Default
		configPath = "./configs/tokend.yaml"
	}

	// 2. Load configuration (file + env vars + flags)
	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// 3. Create provider to build all components from config
	provider := config.NewProvider(cfg)

	fetcher, err := provider.Fetcher()
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	// 4. Create the registry and register all configured endpoints
	registry := provider.Registry(fetcher, probe.NewLoggingObserver(nil))
	defer registry.Close()

	directory, err := provider.RegisterEndpoints(ctx, registry)
	if err != nil {
		return fmt.Errorf("failed to register endpoints: %w", err)
	}

	// 5. Create and start the status server
	srv := server.New(server.Config{
		HTTPPort:  cfg.Server.HTTPPort,
		Directory: directory,
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Println("tokend is running")
	fmt.Printf("  Status API: http://localhost:%d/v1/tokens\n", cfg.Server.HTTPPort)
	fmt.Printf("  Endpoints:  %d registered\n", len(directory.Names()))
	fmt.Printf("  Config:     %s\n", configPath)

	// 6. Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")

	// 7. Graceful shutdown: stop the API first, then destroy tokens
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	registry.Close()

	fmt.Println("Shutdown complete")
	return nil
}

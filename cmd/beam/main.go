package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/beamhq/beam/internal/cmd/client"
	serverrun "github.com/beamhq/beam/internal/cmd/server"
	cfgpkg "github.com/beamhq/beam/internal/config"
)

func main() {
	rootCmd := clientcmd.NewRoot(apiURL)
	rootCmd.Short = "Beam realtime event delivery"
	rootCmd.Long = "Beam delivers channel events to subscribers over duplex, streaming, and polling tiers from a single binary."

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the beam server (REST, SSE, websocket)",
		Aliases: []string{"server"},
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{HTTPAddr: httpAddr, Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("http", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().String("config", os.Getenv("BEAM_CONFIG"), "Config file (JSON or YAML)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("BEAM_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

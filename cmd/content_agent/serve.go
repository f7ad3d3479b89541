package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server that streams pipeline runs over SSE and WebSocket and
exposes job inspection, retry, bootstrap and run metrics endpoints.

Bearer auth is enabled when JWT_SECRET is set. Cross-instance event streaming
and shared metrics need REDIS_ADDR.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to the configured port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg, err := config.OptionalJWTConfig()
	if err != nil {
		return fmt.Errorf("invalid JWT configuration: %w", err)
	}

	srv, err := server.New(serverConfig(cmd, a, jwtCfg))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

func serverConfig(cmd *cobra.Command, a *app, jwtCfg *config.JWTConfig) server.Config {
	port := a.cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	cfg := server.Config{
		Port:           port,
		Orchestrator:   a.orch,
		Sink:           a.sink,
		Logger:         a.log,
		JWT:            jwtCfg,
		AllowedOrigins: allowedOrigins(a.cfg.Server.AllowedOrigins),
		EventBuffer:    a.cfg.Server.EventBuffer,
		Retention:      a.cfg.Retention(),
		Warning:        a.warning,
	}
	if a.redis != nil {
		cfg.Broadcaster = server.NewRedisBroadcaster(a.redis, a.log)
	}
	return cfg
}

// allowedOrigins maps a wildcard entry to the server's allow-all default.
func allowedOrigins(origins []string) []string {
	if slices.Contains(origins, "*") {
		return nil
	}
	return origins
}

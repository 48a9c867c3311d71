// cmd/calorie-log/serve.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp-calorie-log/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and MCP server",
	Long: `Starts the HTTP server exposing the meal logging REST API, the /mcp tool
endpoint, /health and /metrics. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host address (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port for HTTP transport (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := server.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv := server.NewCalorieLogServer(cfg, a.tracker, a.metrics, a.log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	a.log.Info().
		Str("storage", a.cfg.Storage.Driver).
		Str("timezone", a.cfg.Ledger.Timezone).
		Bool("gateway", !a.cfg.Gateway.Disabled).
		Msg("calorie log ready")

	select {
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			a.log.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	}

	a.log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("error during shutdown")
		return err
	}
	return nil
}

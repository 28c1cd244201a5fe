package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/agentrelay/internal/config"
	"github.com/HendryAvila/agentrelay/internal/logging"
	"github.com/HendryAvila/agentrelay/internal/metrics"
	relayserver "github.com/HendryAvila/agentrelay/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP server on stdin/stdout. Logs go to stderr so they never
mix with the JSON-RPC stream.

With --metrics-addr (or metrics.addr) an HTTP listener also serves
/metrics, /healthz and /status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for /metrics, /healthz and /status (e.g. :9464)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	// stdout carries the MCP transport.
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := relayserver.New(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		handler := metrics.NewHandler(logger, srv.Status)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, handler, logger); err != nil {
				logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics listener stopped")
			}
		}()
	}

	logger.Info().Str("version", relayserver.Version).Msg("agentrelay serving on stdio")

	stdio := server.NewStdioServer(srv.MCP)
	stdio.SetErrorLogger(log.New(logger, "", 0))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

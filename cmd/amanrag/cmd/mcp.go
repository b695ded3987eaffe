package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the retrieve and answer tools over MCP stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: retrieve, answer, engine_status.
Resource: amanrag://metrics

Stdout carries only protocol messages; logs go to ~/.amanrag/logs/server.log
or logging.file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Server.Watch = watch
			}
			return runMCP(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the engine when artifacts change")

	return cmd
}

func runMCP(ctx context.Context, cfg *config.Config) error {
	cleanup, err := setupLogging(cfg, logStdio)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext(ctx)
	defer stop()

	eng, err := startEngine(ctx, cfg, cfg.Server.Watch)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv, err := mcp.NewServer(eng.holder, newAnswerer(cfg, eng.holder))
	if err != nil {
		return err
	}
	srv.SetMetrics(eng.metrics)

	if err := srv.Serve(ctx, "stdio"); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

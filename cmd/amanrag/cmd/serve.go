package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

type serveOptions struct {
	addr        string
	watch       bool
	telemetryDB string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval and answers over HTTP",
		Long: `Start the HTTP service.

Endpoints:
  GET  /healthz   liveness
  GET  /readyz    engine, dense and generator readiness
  GET  /metrics   telemetry snapshot (JSON)
  POST /retrieve  ranked hits with the gate decision
  POST /answer    cited answer

When server.api_key is set, POST endpoints require the X-API-Key header.
With --watch the engine reloads when the chunk or index artifacts change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from config, :8000)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the engine when artifacts change")
	cmd.Flags().StringVar(&opts.telemetryDB, "telemetry-db", "", "Persist telemetry to this SQLite file")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Server.Watch = opts.watch
	}
	if cmd.Flags().Changed("telemetry-db") {
		cfg.Server.TelemetryDB = opts.telemetryDB
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	cleanup, err := setupLogging(cfg, logToStderr)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext(ctx)
	defer stop()

	slog.Info("server_starting",
		slog.String("version", version.Version),
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("watch", cfg.Server.Watch))

	eng, err := startEngine(ctx, cfg, cfg.Server.Watch)
	if err != nil {
		return err
	}
	defer eng.Close()

	opts := api.Options{
		Holder:  eng.holder,
		Metrics: eng.metrics,
		Config:  cfg,
	}
	if gen := newGenerator(cfg); gen != nil {
		opts.Models = gen
	}
	opts.Answerer = newAnswerer(cfg, eng.holder)

	return api.New(opts).ListenAndServe(ctx, cfg.Server.Addr)
}

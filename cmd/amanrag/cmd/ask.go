package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

type askOptions struct {
	topK       int
	format     string
	noGenerate bool
	noColor    bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with citations",
		Long: `Retrieve evidence and, when the gate accepts it, generate an answer that
cites its sources as [n].

When the evidence is weak the answer is a fixed refusal and the generator is
never called.`,
		Example: `  amanrag ask "why do pods restart?"
  amanrag ask "what does vacuum reclaim?" --no-generate --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of hits to cite (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noGenerate, "no-generate", false, "Skip generation and report the gate decision only")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", opts.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.noGenerate {
		cfg.Generation.Disabled = true
	}
	cleanup, err := setupLogging(cfg, logToFile)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext(ctx)
	defer stop()

	ret, err := search.Load(ctx, cfg)
	if err != nil {
		return err
	}
	defer ret.Close()

	res, err := newAnswerer(cfg, ret).Answer(ctx, question, opts.topK)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	p := ui.NewPrinter(ui.NewConfig(cmd.OutOrStdout(), ui.WithNoColor(opts.noColor)))
	_, err = fmt.Fprint(cmd.OutOrStdout(), p.Answer(res))
	return err
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

type chatOptions struct {
	retrieveOnly bool
	plain        bool
	noColor      bool
}

func newChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Start an interactive session over the loaded corpus. The engine is loaded
once and reused for every question.

On a terminal this runs a full-screen prompt; with piped input it reads one
question per line. Type exit or press Esc to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.retrieveOnly, "retrieve-only", false, "Show ranked hits instead of generated answers")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Force line mode")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, opts chatOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(opts.plain), ui.WithNoColor(opts.noColor))
	p := ui.NewPrinter(uiCfg)
	answerer := newAnswerer(cfg, ret)

	ask := func(ctx context.Context, q string) (string, error) {
		if opts.retrieveOnly {
			res, err := ret.Retrieve(ctx, ret.Config().NewRequest(q))
			if err != nil {
				return p.Error(err), nil
			}
			return p.Retrieval(q, res), nil
		}
		res, err := answerer.Answer(ctx, q, 0)
		if err != nil {
			return p.Error(err), nil
		}
		return p.Answer(res), nil
	}

	return ui.RunChat(ctx, uiCfg, cmd.InOrStdin(), ask)
}

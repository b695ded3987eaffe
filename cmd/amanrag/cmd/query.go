package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

// retrievalFlags are shared by query, ask and chat.
type retrievalFlags struct {
	topK          int
	minScore      float64
	candidatePool int
}

func (f *retrievalFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "Number of hits (default from config)")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "Gate threshold in [0,1] (default from config)")
	cmd.Flags().IntVar(&f.candidatePool, "candidate-pool", 0, "Candidates per index before fusion (default from config)")
}

// overrides returns only the flags the user set.
func (f *retrievalFlags) overrides(cmd *cobra.Command) requestOverrides {
	var o requestOverrides
	if cmd.Flags().Changed("top-k") {
		o.topK = &f.topK
	}
	if cmd.Flags().Changed("min-score") {
		o.minScore = &f.minScore
	}
	if cmd.Flags().Changed("candidate-pool") {
		o.candidatePool = &f.candidatePool
	}
	return o
}

type queryOptions struct {
	retrievalFlags
	format  string
	noColor bool
}

// queryOutput is the JSON form of a retrieval.
type queryOutput struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	search.Result
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve and rank evidence without generating an answer",
		Long: `Run hybrid retrieval and show the ranked hits with the gate decision.

The gate line reports the retrieval mode (hybrid, bm25-only, dense-only or
none), whether the evidence is strong enough to answer, and the reason code.`,
		Example: `  amanrag query "why do pods restart"
  amanrag query "vacuum" -k 10 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, query string, opts queryOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", opts.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg, logToFile)
	if err != nil {
		return err
	}
	defer cleanup()

	ret, err := search.Load(ctx, cfg)
	if err != nil {
		return err
	}
	defer ret.Close()

	req := opts.overrides(cmd).apply(ret.Config(), query)
	res, err := ret.Retrieve(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("query_complete",
		slog.String("mode", string(res.Mode)),
		slog.String("reason", res.Reason),
		slog.Int("hits", len(res.Hits)))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(queryOutput{Query: query, TopK: req.TopK, Result: res})
	}

	p := ui.NewPrinter(ui.NewConfig(cmd.OutOrStdout(), ui.WithNoColor(opts.noColor)))
	_, err = fmt.Fprint(cmd.OutOrStdout(), p.Retrieval(query, res))
	return err
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/internal/validation"
)

type evalOptions struct {
	topK        int
	jsonOutput  bool
	minPassRate float64
	noColor     bool
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval <queries.yaml>",
		Short: "Score retrieval and the gate against a query set",
		Long: `Run a query set against the engine.

Positive queries list chunk or doc ids expected in the top k, and may set
answerable to also check the gate. Negative queries pass when the gate
declines. The command fails when the pass rate is below --min-pass-rate.`,
		Example: `  amanrag eval testdata/queries.yaml
  amanrag eval queries.yaml -k 10 --min-pass-rate 0.9 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Ranking depth (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().Float64Var(&opts.minPassRate, "min-pass-rate", 0, "Fail below this pass rate in [0,1]")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, path string, opts evalOptions) error {
	set, err := validation.LoadQueries(path)
	if err != nil {
		return err
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

	report := validation.NewValidator(ret, opts.topK).RunAll(ctx, set)
	slog.Info("eval_complete",
		slog.Int("passed", report.Passed()),
		slog.Int("total", report.Total()),
		slog.Float64("mrr", report.MRR))

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		styles := ui.GetStyles(opts.noColor || !ui.Colored(ui.NewConfig(cmd.OutOrStdout())))
		printReport(cmd.OutOrStdout(), styles, report)
	}

	if rate := report.PassRate(); rate < opts.minPassRate {
		return fmt.Errorf("pass rate %.2f below %.2f", rate, opts.minPassRate)
	}
	return nil
}

func printReport(out io.Writer, styles ui.Styles, r *validation.Report) {
	mark := func(ok bool) string {
		if ok {
			return styles.Success.Render("✓")
		}
		return styles.Error.Render("✗")
	}

	fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("Positive (top %d)", r.TopK)))
	for _, tr := range r.Positive {
		rank := "-"
		if tr.MatchedAt > 0 {
			rank = fmt.Sprintf("#%d", tr.MatchedAt)
		}
		fmt.Fprintf(out, "  %s %-8s %-4s %-18s %s\n", mark(tr.Passed), tr.Spec.ID, rank, tr.Reason, ui.Snippet(tr.Spec.Query, 60))
		if tr.Error != "" {
			fmt.Fprintf(out, "      %s\n", styles.Error.Render(tr.Error))
		}
	}

	fmt.Fprintln(out, styles.Header.Render("Negative"))
	for _, tr := range r.Negative {
		fmt.Fprintf(out, "  %s %-8s %-18s %s\n", mark(tr.Passed), tr.Spec.ID, tr.Reason, ui.Snippet(tr.Spec.Query, 60))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %d/%d  %s %.3f  %s %d\n",
		styles.Label.Render("passed"), r.Passed(), r.Total(),
		styles.Label.Render("mrr"), r.MRR,
		styles.Label.Render("false declines"), r.FalseDeclines)
}

package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine and artifact status",
		Long: `Load the engine and report the corpus size, which retrieval mode is
available, why hybrid retrieval is off (if it is), and whether the
generation model is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := setupLogging(cfg, logToFile)
			if err != nil {
				return err
			}
			defer cleanup()

			info, err := collectStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || !ui.Colored(ui.NewConfig(cmd.OutOrStdout())))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

// collectStatus loads the engine once and describes it.
func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	ret, err := search.Load(ctx, cfg)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	defer ret.Close()

	dense := ret.Dense()
	info := ui.StatusInfo{
		ChunksPath:           cfg.Paths.Chunks,
		Chunks:               ret.Corpus().Len(),
		RetrievalMode:        string(search.ModeOf(true, dense.Available())),
		HybridDisabledReason: string(dense.Reason),
		LexicalBackend:       ret.LexicalStats().Backend,
	}
	if emb := ret.Embedder(); emb != nil {
		info.Embedder = emb.ModelName()
	}

	info.ChunksSize, info.ModifiedAt = statFile(cfg.Paths.Chunks)
	if size, mod := statFile(cfg.Paths.Index); !mod.IsZero() {
		info.IndexPath, info.IndexSize = cfg.Paths.Index, size
		if mod.After(info.ModifiedAt) {
			info.ModifiedAt = mod
		}
	}
	if size, mod := statFile(cfg.Paths.Meta); !mod.IsZero() {
		info.MetaPath, info.MetaSize = cfg.Paths.Meta, size
	}

	info.GenerationStatus = "disabled"
	if gen := newGenerator(cfg); gen != nil {
		info.GenerationModel = gen.Model()
		info.GenerationStatus = "offline"
		if ready, _ := gen.ModelReady(ctx); ready {
			info.GenerationStatus = "ready"
		}
	}
	return info, nil
}

func statFile(path string) (int64, time.Time) {
	if path == "" {
		return 0, time.Time{}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}
	}
	return fi.Size(), fi.ModTime()
}

// Package cmd provides the CLI commands for amanrag.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Global flags
var (
	projectDir string
	debugMode  bool
	profiles   profiling.Options
	profiler   *profiling.Session
)

// NewRootCmd creates the root command for amanrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Hybrid retrieval with confidence-gated answers",
		Long: `amanrag answers questions over a chunked corpus.

Each query runs a BM25 lookup and a dense (HNSW) lookup in parallel, fuses
the candidates into one ranking, and gates whether the evidence is strong
enough to answer. Weak evidence yields a refusal instead of a guess.

Artifacts and tuning come from .amanrag.yaml in the project directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .amanrag.yaml and .env")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&profiles.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !profiles.Enabled() {
		return nil
	}
	s, err := profiling.Start(profiles)
	if err != nil {
		return err
	}
	profiler = s
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	return err
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the effective configuration for --dir and resolves
// relative artifact paths against it.
func loadConfig() (*config.Config, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	cfg.Resolve(dir)
	return cfg, nil
}

// logTarget selects where a command's logs go.
type logTarget int

const (
	// logToFile keeps the terminal clean for rendered output.
	logToFile logTarget = iota
	// logToStderr is for long-running services.
	logToStderr
	// logStdio reserves stdout and stderr for a protocol stream.
	logStdio
)

// setupLogging installs the JSON logger for a command.
func setupLogging(cfg *config.Config, target logTarget) (func(), error) {
	var lc logging.Config
	switch target {
	case logStdio:
		lc = logging.StdioConfig(cfg.Logging.Level)
		if cfg.Logging.File != "" {
			lc.FilePath = cfg.Logging.File
		}
	default:
		lc = logging.DefaultConfig()
		lc.Level = cfg.Logging.Level
		lc.FilePath = cfg.Logging.File
		lc.WriteToStderr = target == logToStderr
		if target == logToFile && lc.FilePath == "" {
			lc.FilePath = logging.DefaultLogPath()
		}
	}

	_, cleanup, err := logging.Setup(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cleanup, nil
}

// signalContext cancels on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

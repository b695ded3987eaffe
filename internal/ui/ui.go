// Package ui renders retrieval results and answers for the terminal and runs
// the interactive chat.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config configures terminal output.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Width      int
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithWidth sets the wrap width for rendered text.
func WithWidth(width int) ConfigOption {
	return func(c *Config) {
		c.Width = width
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
		Width:  100,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// Interactive reports whether the bubbletea chat should run: a real
// terminal outside CI with plain mode not forced.
func Interactive(cfg Config) bool {
	return !cfg.ForcePlain && IsTTY(cfg.Output) && !DetectCI()
}

// Colored reports whether output should carry ANSI styling.
func Colored(cfg Config) bool {
	return !cfg.NoColor && !DetectNoColor() && IsTTY(cfg.Output)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

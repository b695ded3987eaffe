package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes a loaded retrieval engine.
type StatusInfo struct {
	// Artifacts
	ChunksPath string    `json:"chunks_path"`
	IndexPath  string    `json:"index_path,omitempty"`
	MetaPath   string    `json:"meta_path,omitempty"`
	Chunks     int       `json:"chunks"`
	ModifiedAt time.Time `json:"modified_at"`

	// Storage sizes (in bytes)
	ChunksSize int64 `json:"chunks_size"`
	IndexSize  int64 `json:"index_size"`
	MetaSize   int64 `json:"meta_size"`

	// Component status
	RetrievalMode        string `json:"retrieval_mode"`
	HybridDisabledReason string `json:"hybrid_disabled_reason,omitempty"`
	LexicalBackend       string `json:"lexical_backend"`
	Embedder             string `json:"embedder,omitempty"`
	GenerationModel      string `json:"generation_model,omitempty"`
	GenerationStatus     string `json:"generation_status"` // "ready", "offline", "disabled"
}

// StatusRenderer displays engine status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Engine Status"))

	_, _ = fmt.Fprintf(r.out, "  Chunks:        %d\n", info.Chunks)
	if !info.ModifiedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last modified: %s\n", formatTime(info.ModifiedAt))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Artifacts:")
	_, _ = fmt.Fprintf(r.out, "    Chunks: %s (%s)\n", info.ChunksPath, FormatBytes(info.ChunksSize))
	if info.IndexPath != "" {
		_, _ = fmt.Fprintf(r.out, "    Index:  %s (%s)\n", info.IndexPath, FormatBytes(info.IndexSize))
	}
	if info.MetaPath != "" {
		_, _ = fmt.Fprintf(r.out, "    Meta:   %s (%s)\n", info.MetaPath, FormatBytes(info.MetaSize))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Retrieval:")
	_, _ = fmt.Fprintf(r.out, "    Mode:    %s\n", r.renderMode(info.RetrievalMode))
	if info.HybridDisabledReason != "" {
		_, _ = fmt.Fprintf(r.out, "    Reason:  %s\n", r.styles.Warning.Render(info.HybridDisabledReason))
	}
	_, _ = fmt.Fprintf(r.out, "    Lexical: %s\n", info.LexicalBackend)
	if info.Embedder != "" {
		_, _ = fmt.Fprintf(r.out, "    Embedder: %s\n", info.Embedder)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Generation:")
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.GenerationStatus))
	if info.GenerationModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.GenerationModel)
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderMode(mode string) string {
	if mode == "hybrid" {
		return r.styles.Success.Render(mode)
	}
	return r.styles.Warning.Render(mode)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline", "disabled":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package ui

import (
	"strings"
)

// SparklineChars are the Unicode block characters for rendering sparklines.
// 8 levels of height from empty to full.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders scores in [0,1] as block characters, one per value.
// Values outside the range are clamped.
func Sparkline(values []float64) string {
	var sb strings.Builder
	sb.Grow(len(values) * 3) // UTF-8 chars can be up to 3 bytes
	for _, v := range values {
		sb.WriteRune(SparklineChars[level(v)])
	}
	return sb.String()
}

// ScoreBar renders score in [0,1] as a horizontal bar of width cells.
func ScoreBar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(clamp01(score)*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func level(v float64) int {
	idx := int(clamp01(v) * float64(len(SparklineChars)-1))
	if idx >= len(SparklineChars) {
		idx = len(SparklineChars) - 1
	}
	return idx
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

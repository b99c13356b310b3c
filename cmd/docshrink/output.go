package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/local/docshrink/internal/model"
)

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(r model.JobResult) {
	switch r.Status {
	case model.StatusSuccess:
		pct := 0.0
		if r.InputSize > 0 {
			pct = float64(r.SavedBytes()) / float64(r.InputSize) * 100
		}
		fmt.Printf("✓ %s: %s → %s (saved %.1f%%, %s)\n", r.Input, humanSize(r.InputSize), humanSize(r.OutputSize), pct, r.Diagnostics.Strategy)
	case model.StatusSkipped:
		fmt.Printf("• %s: %s\n", r.Input, r.Message)
	default:
		fmt.Printf("✗ %s: %s\n", r.Input, r.Message)
	}
}

// progressLine renders a single updating progress line on stderr.
func progressLine(name string) func(float64, string) {
	last := -1
	return func(f float64, stage string) {
		pct := int(f * 100)
		if pct == last {
			return
		}
		last = pct
		bar := strings.Repeat("█", pct/5) + strings.Repeat("░", 20-pct/5)
		fmt.Fprintf(os.Stderr, "\r%s %s %3d%% %-11s", name, bar, pct, stage)
		if f >= 1 {
			fmt.Fprintln(os.Stderr)
		}
	}
}

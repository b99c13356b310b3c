package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/history"
)

var (
	statsKind   string
	statsRecent int
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals and recent jobs from the local history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer h.Close()
		totals, err := h.Totals(statsKind)
		if err != nil {
			return err
		}
		recent, err := h.Recent(statsRecent)
		if err != nil {
			return err
		}
		if statsJSON {
			return printJSON(map[string]any{"totals": totals, "recent": recent})
		}
		fmt.Printf("%d jobs: %d shrunk, %d skipped, %d failed, %d cancelled\n",
			totals.Jobs, totals.Succeeded, totals.Skipped, totals.Failed, totals.Cancelled)
		fmt.Printf("saved %s of %s (%.1f%%)\n", humanSize(totals.SavedBytes), humanSize(totals.InputBytes), totals.Ratio*100)
		for _, rec := range recent {
			r := rec.Result()
			fmt.Printf("  %s  %-9s %-8s %s → %s  %s\n", rec.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.Kind,
				humanSize(r.InputSize), humanSize(r.OutputSize), r.Input)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsKind, "kind", "", "Only count jobs of this kind (pdf, jpeg, png, webp)")
	statsCmd.Flags().IntVar(&statsRecent, "recent", 10, "How many recent jobs to list")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(statsCmd)
}

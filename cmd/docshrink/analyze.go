package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/engine"
	"github.com/local/docshrink/internal/model"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Estimate how much a file can shrink without touching it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := engine.New(engine.Options{Config: cfg.Engine})
		var reports []model.PreflightReport
		for _, path := range args {
			rep, err := e.Analyze(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports = append(reports, rep)
		}
		if analyzeJSON {
			return printJSON(reports)
		}
		for _, rep := range reports {
			printReport(rep)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print reports as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func printReport(rep model.PreflightReport) {
	fmt.Printf("%s (%s, %s)\n", rep.Path, rep.Kind, humanSize(rep.Size))
	if rep.PageCount > 0 {
		fmt.Printf("  pages:            %d (%.0f bytes/page)\n", rep.PageCount, rep.BytesPerPage)
	}
	if rep.PixelWidth > 0 {
		fmt.Printf("  pixels:           %dx%d (%.2f bytes/pixel)\n", rep.PixelWidth, rep.PixelHeight, rep.BytesPerPixel)
	}
	if rep.MetadataBytes > 0 {
		fmt.Printf("  metadata:         %s (exif=%t gps=%t icc=%t wide-gamut=%t)\n",
			humanSize(rep.MetadataBytes), rep.HasEXIF, rep.HasGPS, rep.HasICCProfile, rep.WideGamut)
	}
	if rep.IncrementalUpdates > 0 {
		fmt.Printf("  updates:          %d (hidden garbage: %t)\n", rep.IncrementalUpdates, rep.HasInvisibleGarbage)
	}
	fmt.Printf("  potential:        %.0f%%\n", rep.Potential*100)
	if rep.SuggestedMode != "" {
		fmt.Printf("  suggested mode:   %s\n", rep.SuggestedMode)
	}
	fmt.Printf("  suggested profile: %s\n", rep.SuggestedProfile)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/engine"
	"github.com/local/docshrink/internal/model"
)

var (
	batchOutDir  string
	batchProfile string
	batchJSON    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Shrink many files; documents run one at a time, images a few at once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.close()

		if batchOutDir != "" {
			if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
				return err
			}
			engine.CleanupTemps(batchOutDir, staleTempAge)
		}
		reqs := make([]engine.Request, len(args))
		for i, in := range args {
			out := in
			if batchOutDir != "" {
				out = filepath.Join(batchOutDir, filepath.Base(in))
			}
			reqs[i] = engine.Request{Input: in, Output: out, Profile: batchProfile}
		}

		results := svc.engine().OptimizeBatch(cmd.Context(), reqs)
		if batchJSON {
			if err := printJSON(results); err != nil {
				return err
			}
		}
		var stats model.CompressionStatistics
		for _, r := range results {
			stats.Add(r)
			if !batchJSON {
				printResult(r)
			}
		}
		if !batchJSON {
			fmt.Printf("%d files: %d shrunk, %d skipped, %d failed, saved %s\n",
				stats.Jobs, stats.Succeeded, stats.Skipped, stats.Failed, humanSize(stats.SavedBytes))
		}
		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", stats.Failed, stats.Jobs)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutDir, "out-dir", "d", "", "Write outputs here (default: in-place)")
	batchCmd.Flags().StringVarP(&batchProfile, "profile", "p", "", "Profile: balanced, strong or extreme")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(batchCmd)
}

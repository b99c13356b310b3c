package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/engine"
	"github.com/local/docshrink/internal/model"
)

// staleTempAge is how old an in-progress output must be before it counts
// as left behind by a crashed run.
const staleTempAge = time.Hour

var (
	optimizeOutput  string
	optimizeProfile string
	optimizeMode    string
	optimizeJobID   string
	optimizeStrict  bool
	optimizeJSON    bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <file>",
	Short: "Shrink one PDF or image",
	Long: `Shrinks a PDF or a JPEG, PNG or WebP image.
Without -o, the file is replaced in place after the original is backed up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := model.ParseRebuildMode(optimizeMode)
		if err != nil {
			return err
		}
		svc, err := openServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.close()

		out := optimizeOutput
		if out == "" {
			out = args[0]
		}
		engine.CleanupTemps(filepath.Dir(out), staleTempAge)

		req := engine.Request{
			Input:   args[0],
			Output:  out,
			Profile: optimizeProfile,
			Mode:    mode,
			Strict:  optimizeStrict,
			JobID:   optimizeJobID,
		}
		if !optimizeJSON {
			req.Progress = progressLine(filepath.Base(args[0]))
		}
		res := svc.engine().Optimize(cmd.Context(), req)
		if optimizeJSON {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			printResult(res)
		}
		if res.Status == model.StatusFailed {
			return fmt.Errorf("%s: %w", args[0], res.Err)
		}
		return nil
	},
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "Output file (default: in-place)")
	optimizeCmd.Flags().StringVarP(&optimizeProfile, "profile", "p", "", "Profile: balanced, strong or extreme")
	optimizeCmd.Flags().StringVarP(&optimizeMode, "mode", "m", "", "PDF rebuild mode: auto, hybrid, safe, smart or ultra")
	optimizeCmd.Flags().StringVar(&optimizeJobID, "job-id", "", "Job ID used for status and cancellation")
	optimizeCmd.Flags().BoolVar(&optimizeStrict, "strict", false, "Fail instead of keeping pages that cannot be rewritten")
	optimizeCmd.Flags().BoolVar(&optimizeJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(optimizeCmd)
}

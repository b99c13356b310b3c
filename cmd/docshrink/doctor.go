package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/statuscheck"
	"github.com/local/docshrink/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check MuPDF, temp space, history, Redis and S3",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := statuscheck.Options{
			Backup:      cfg.Backup,
			HistoryPath: cfg.History.Path,
			TempDir:     cfg.Engine.TempDir,
		}
		var redisErr error
		if cfg.Status.RedisURL != "" {
			rs, err := store.NewRedisStatus(cfg.Status.RedisURL, cfg.Status.Namespace)
			if err != nil {
				redisErr = err
			} else {
				defer rs.Close()
				opts.Redis = rs
			}
		}
		sum := statuscheck.New(opts).Summary(cmd.Context())
		if redisErr != nil {
			sum.Redis = statuscheck.Status{Configured: true, Message: redisErr.Error()}
		}
		if err := printJSON(sum); err != nil {
			return err
		}
		if !sum.Healthy() {
			return errors.New("some checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/store"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Ask a running job to stop (needs REDIS_URL)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Status.RedisURL == "" {
			return errors.New("cancel needs REDIS_URL to reach running jobs")
		}
		rs, err := store.NewRedisStatus(cfg.Status.RedisURL, cfg.Status.Namespace)
		if err != nil {
			return err
		}
		defer rs.Close()
		if err := rs.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		st, ok, err := rs.Get(cmd.Context(), args[0])
		if err == nil && ok {
			fmt.Printf("cancel requested for %s (currently %s, %.0f%%)\n", args[0], st.Status, st.Progress*100)
		} else {
			fmt.Printf("cancel requested for %s\n", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/docshrink/internal/model"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range model.ProfileNames() {
			p, err := model.Profile(name)
			if err != nil {
				return err
			}
			def := ""
			if name == model.DefaultProfile {
				def = " (default)"
			}
			fmt.Printf("%s%s\n  quality %d (floor %d), %g dpi, max %d px, mrc=%t, keep vector=%t\n",
				name, def, p.Quality, p.QualityFloor, p.TargetDPI, p.MaxPixelDim, p.MRC, p.PreserveVector)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

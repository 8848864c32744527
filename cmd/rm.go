package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nax-project/evfs"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path> <key>",
	Short: "Hard-delete a named entry, freeing its clusters once unreferenced",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initLogging(c); err != nil {
			return err
		}

		f, err := evfs.Open(args[0], c.Cache.ClusterCount)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := f.EraseByName(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", args[1])
		return nil
	},
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nax-project/evfs"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a volume, reconstructing its entry table, and list entries",
	Args:  cobra.ExactArgs(1),
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

		out := cmd.OutOrStdout()
		it := f.IterateEntries()
		defer f.ReleaseIterator(it)
		for {
			s, ok, err := it.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			fmt.Fprintf(out, "%-32s %d bytes\n", s.Name, s.Size)
		}
		return nil
	},
}

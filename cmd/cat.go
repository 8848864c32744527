package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nax-project/evfs"
)

var catCmd = &cobra.Command{
	Use:   "cat <path> <key>",
	Short: "Write a named entry's full contents to stdout",
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

		h, err := f.OpenEntryByKey(args[1])
		if err != nil {
			return err
		}
		defer f.CloseEntry(h)

		out := cmd.OutOrStdout()
		buf := make([]byte, c.Volume.ClusterSize)
		for {
			n, err := f.ReadEntry(h, buf)
			if n > 0 {
				if _, werr := out.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
		}
	},
}

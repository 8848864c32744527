package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nax-project/evfs"
	"github.com/nax-project/evfs/internal/evfs/cluster"
)

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Lay out a new EVFS volume file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initLogging(c); err != nil {
			return err
		}

		vol, err := cluster.Create(args[0], c.Volume.ClusterSize, c.Volume.ClusterCount, c.Volume.ExpandClusterCount)
		if err != nil {
			return err
		}
		if err := vol.Close(); err != nil {
			return err
		}
		f, err := evfs.Open(args[0], c.Cache.ClusterCount)
		if err != nil {
			return err
		}
		defer f.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d clusters of %d bytes (expand by %d)\n",
			args[0], c.Volume.ClusterCount, c.Volume.ClusterSize, c.Volume.ExpandClusterCount)
		return nil
	},
}

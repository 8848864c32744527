package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nax-project/evfs"
)

var statVerbose bool

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Report a volume's cluster, entry, and cache population",
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

		s := f.QueryStat()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "clusters:  %d x %d bytes\n", s.ClusterCount, s.ClusterSize)
		fmt.Fprintf(out, "views:     idle=%d busy=%d\n", s.Idle, s.Busy)
		fmt.Fprintf(out, "entries:   %d\n", s.Entries)
		fmt.Fprintf(out, "hit rate:  %.2f%%\n", s.CacheHitRate*100)
		fmt.Fprintf(out, "created:   %s\n", time.Unix(int64(s.CreatedUnixSeconds), 0).UTC().Format(time.RFC3339))
		fmt.Fprintf(out, "format:    revision %d\n", s.FormatRevision)

		if statVerbose {
			hs := f.CacheHardState()
			fmt.Fprintf(out, "cache:     idle=%d busy=%d dirty=%d hits=%d misses=%d\n",
				hs.Idle, hs.Busy, hs.Dirty, hs.Hits, hs.Misses)
		}
		return nil
	},
}

func init() {
	statCmd.Flags().BoolVar(&statVerbose, "verbose", false, "Also report the block cache's internal hard_state.")
}

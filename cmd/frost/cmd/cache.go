package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the metadata cache",
	}
	cacheCmd.AddCommand(newCacheStatsCmd(), newCachePruneCmd())
	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number of cached entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			cache, err := c.MetadataCache()
			if err != nil {
				return err
			}
			if cache == nil {
				cmd.Println("Metadata cache is disabled")
				return nil
			}
			n, err := cache.Len()
			if err != nil {
				return err
			}
			cmd.Printf("Directory: %s\n", c.Config().Cache.Dir)
			cmd.Printf("Entries:   %d\n", n)
			return nil
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old cache entries",
		Long: `Remove entries older than --max-age and then the oldest entries beyond
--keep. Both default to the configured cache limits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			cache, err := c.MetadataCache()
			if err != nil {
				return err
			}
			if cache == nil {
				return errors.New("metadata cache is disabled")
			}

			maxAge := c.Config().Cache.MaxAge
			if cmd.Flags().Changed("max-age") {
				maxAge, _ = cmd.Flags().GetDuration("max-age")
			}
			keep := c.Config().Cache.MaxEntries
			if cmd.Flags().Changed("keep") {
				keep, _ = cmd.Flags().GetInt("keep")
			}

			var cutoff time.Time
			if maxAge > 0 {
				cutoff = time.Now().Add(-maxAge)
			}
			removed, err := cache.Prune(cutoff, keep)
			if err != nil {
				return err
			}
			cmd.Printf("Removed %d entries\n", removed)
			return nil
		},
	}
	pruneCmd.Flags().Duration("max-age", 0, "Remove entries older than this")
	pruneCmd.Flags().Int("keep", 0, "Keep at most this many entries")
	return pruneCmd
}

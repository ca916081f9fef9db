package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tssv/internal/config"
	"tssv/internal/imaging"
	"tssv/internal/preview"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the preview disk cache",
	}
	cacheCmd.PersistentFlags().StringVar(&dir, "dir", "", "Cache directory (defaults to [scan] png_dir, then [preview] cache_dir)")

	open := func() (*preview.DiskCache, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		return openDiskCache(cfg, dir, ctx)
	}

	cacheCmd.AddCommand(newCacheStatsCommand(open))
	cacheCmd.AddCommand(newCacheClearCommand(open))
	cacheCmd.AddCommand(newCachePruneCommand(open))
	return cacheCmd
}

func openDiskCache(cfg *config.Config, dir string, ctx *commandContext) (*preview.DiskCache, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		root = cfg.Scan.PNGDir
	}
	if root == "" {
		root = cfg.Preview.CacheDir
	}
	if root == "" {
		return nil, fmt.Errorf("no cache directory configured (use --dir)")
	}
	root, err := config.ExpandPath(root)
	if err != nil {
		return nil, err
	}
	encoder, err := imaging.NewEncoder(cfg.Preview.Format)
	if err != nil {
		return nil, err
	}
	return preview.NewDiskCache(root, encoder.Ext(), cfg.Preview.MinFreeRatio, ctx.cliLogger()), nil
}

func newCacheStatsCommand(open func() (*preview.DiskCache, error)) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached previews per series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := open()
			if err != nil {
				return err
			}
			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache root: %s\n", stats.Root)
			fmt.Fprintf(out, "Series: %d  Files: %d  Size: %s  Free: %.1f%%\n",
				stats.Series, stats.Files, formatBytes(stats.TotalBytes), stats.FreeRatio*100)
			if len(stats.Entries) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(stats.Entries))
			for _, entry := range stats.Entries {
				rows = append(rows, []string{
					entry.SeriesID,
					strconv.Itoa(entry.Files),
					formatBytes(entry.SizeBytes),
					entry.ModifiedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Series", "Files", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit stats as JSON")
	return cmd
}

func newCacheClearCommand(open func() (*preview.DiskCache, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := open()
			if err != nil {
				return err
			}
			removed, err := cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d series from %s\n", removed, cache.Root())
			return nil
		},
	}
}

func newCachePruneCommand(open func() (*preview.DiskCache, error)) *cobra.Command {
	var maxMiB int64
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove the oldest series until the cache fits the size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxMiB < 0 {
				return fmt.Errorf("--max-mib must be non-negative")
			}
			cache, err := open()
			if err != nil {
				return err
			}
			removed, err := cache.Prune(cmd.Context(), maxMiB<<20)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d series; cache limit %d MiB\n", removed, maxMiB)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxMiB, "max-mib", 1024, "Size limit in MiB")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

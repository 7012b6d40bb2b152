package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"clipforge/internal/acquire"
	"clipforge/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the clip acquisition cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheEvictCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and total size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var count int
			var total int64
			entries, err := os.ReadDir(cfg.Paths.CacheDir)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("read cache dir: %w", err)
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				count++
				total += info.Size()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache directory: %s\n", filepath.Clean(cfg.Paths.CacheDir))
			fmt.Fprintf(out, "Entries:         %d\n", count)
			fmt.Fprintf(out, "Total size:      %s\n", formatBytes(total))
			fmt.Fprintf(out, "TTL:             %dh\n", cfg.Acquire.CacheTTLHours)
			return nil
		},
	}
}

func newCacheEvictCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Evict cache entries older than the configured TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache := acquire.NewCache(cfg, logging.NewNop())
			if cache == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is not configured.")
				return nil
			}
			removed, err := cache.EvictExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d entr%s\n", removed, pluralY(removed))
			return nil
		},
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

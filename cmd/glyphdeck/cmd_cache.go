package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glyphdeck/internal/cache"
	"glyphdeck/internal/usage"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the content cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and size",
	Args:  cobra.NoArgs,
	RunE:  cacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	Args:  cobra.NoArgs,
	RunE:  cacheClear,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded token usage",
	Args:  cobra.NoArgs,
	RunE:  showUsage,
}

func registerCacheCommands() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.Cache, error) {
	c, err := cache.Open(cfg.Cache.Dir, cache.Options{SizeMB: cfg.Cache.SizeMB})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return c, nil
}

func cacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Stats(context.Background())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path:    %s\n", c.Path())
	fmt.Fprintf(out, "Entries: %d\n", st.Entries)
	fmt.Fprintf(out, "Size:    %d / %d bytes\n", st.Bytes, st.MaxBytes)
	return nil
}

func cacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Clear(context.Background()); err != nil {
		return err
	}
	logger.Info("Cache cleared", zap.String("path", c.Path()))
	fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
	return nil
}

func showUsage(cmd *cobra.Command, args []string) error {
	t, err := usage.NewTracker(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	st := t.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Requests: %d\n", st.Requests)
	fmt.Fprintf(out, "Tokens:   %d in / %d out / %d total\n", st.Total.Input, st.Total.Output, st.Total.Total)
	for _, group := range []struct {
		name   string
		counts map[string]usage.TokenCounts
	}{
		{"provider", st.ByProvider},
		{"model", st.ByModel},
		{"job", st.ByJob},
	} {
		for key, tc := range group.counts {
			fmt.Fprintf(out, "  %-8s %-24s %d\n", group.name, key, tc.Total)
		}
	}
	return nil
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/app"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/pkg/logger"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	var cachePath string

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the fingerprint cache",
	}
	cacheCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Fingerprint cache file (overrides fingerprint_cache_path)")

	cacheCmd.AddCommand(newCacheUpdateCommand(ctx, &cachePath))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx, &cachePath))
	return cacheCmd
}

// cacheConfig returns the configuration with the --cache override applied.
// Cache commands need a file; an in-memory cache would be discarded.
func cacheConfig(cmd *cobra.Command, ctx *commandContext, cachePath string) (*config.Config, error) {
	cfg, err := ctx.ensureConfig(cmd)
	if err != nil {
		return nil, err
	}
	local := *cfg
	if cachePath != "" {
		local.FingerprintCachePath = cachePath
	}
	if local.FingerprintCachePath == "" {
		return nil, fmt.Errorf("no cache file: pass --cache or set fingerprint_cache_path")
	}
	return &local, nil
}

func newCacheUpdateCommand(ctx *commandContext, cachePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <shard>...",
		Short: "Fingerprint shards and add them to the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cacheConfig(cmd, ctx, *cachePath)
			if err != nil {
				return err
			}
			p, err := app.NewPipeline(cfg, logger.Get())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(args))
			for _, src := range args {
				res, err := p.Enroll(cmd.Context(), src)
				if err != nil {
					return fmt.Errorf("%s: %w", src, err)
				}
				rows = append(rows, []string{
					src,
					strconv.Itoa(res.Video),
					strconv.Itoa(res.Controls),
					strconv.Itoa(res.Added),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Shard", "Video", "Controls", "Added"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newCacheStatsCommand(ctx *commandContext, cachePath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many fingerprints the cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := cacheConfig(cmd, ctx, *cachePath)
			if err != nil {
				return err
			}
			snap, err := app.NewCache(cfg, logger.Get()).Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if format != formatText {
				return writeStructured(cmd, format, map[string]any{
					"path":     cfg.FingerprintCachePath,
					"video":    len(snap.Video),
					"controls": len(snap.Controls),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", cfg.FingerprintCachePath)
			fmt.Fprintln(out, renderTable(
				[]string{"Kind", "Fingerprints"},
				[][]string{
					{"video", strconv.Itoa(len(snap.Video))},
					{"controls", strconv.Itoa(len(snap.Controls))},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}

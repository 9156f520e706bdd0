package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/app"
	"github.com/ShagaDAO/gap/internal/domain/archive"
	"github.com/ShagaDAO/gap/pkg/logger"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive> <dest>",
		Short: "Safely unpack a shard archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			src, dest := args[0], args[1]

			created := false
			if _, err := os.Stat(dest); os.IsNotExist(err) {
				if err := os.MkdirAll(dest, 0o755); err != nil {
					return err
				}
				created = true
			}

			res, err := app.NewExtractor(cfg, logger.Get()).Extract(cmd.Context(), src, dest)
			if err != nil {
				if created {
					_ = os.RemoveAll(dest)
				}
				return fmt.Errorf("archive rejected (%s): %w", archive.Reason(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s: %d files, %d directories, %s into %s\n",
				res.Format, res.Files, res.Dirs, humanBytes(res.Bytes), dest)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/ShagaDAO/gap/internal/synth"
)

func newSynthCommand() *cobra.Command {
	var (
		seed     int64
		duration int
		rate     int
		parquet  bool
	)

	cmd := &cobra.Command{
		Use:   "synth <dir>",
		Short: "Write a synthetic, rights-free shard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := synth.Options{Seed: seed, DurationSec: duration, RateHz: rate}
			if parquet {
				opts.Controls = shard.FormatParquet
			}
			res, err := synth.Generate(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote session %s to %s (%d control events, files: %v)\n",
				res.SessionID, res.Dir, res.Events, res.Files)
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed; equal seeds give identical shards")
	cmd.Flags().IntVar(&duration, "duration", 10, "Session length in seconds")
	cmd.Flags().IntVar(&rate, "rate", 60, "Control sample rate in Hz")
	cmd.Flags().BoolVar(&parquet, "parquet", false, "Write controls.parquet instead of controls.jsonl")
	return cmd
}

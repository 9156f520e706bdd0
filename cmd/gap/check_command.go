package main

import (
	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/internal/domain/model"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		profileName string
		cachePath   string
		format      string
		strict      bool
		verbose     bool
		updateCache bool
	)

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a shard, check it for duplicates and estimate acceptance",
		Long: "Runs the full admission locally. Exits 0 only when the shard is " +
			"likely or moderately likely to be accepted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			req := model.AdmissionRequest{
				Source:      args[0],
				Profile:     cfg.DefaultProfile,
				Strict:      cfg.Strict,
				UpdateCache: cfg.UpdateCache,
			}
			if cmd.Flags().Changed("profile") {
				req.Profile = profileName
			}
			if cmd.Flags().Changed("strict") {
				req.Strict = strict
			}
			if cmd.Flags().Changed("update-cache") {
				req.UpdateCache = updateCache
			}

			p, err := ctx.pipeline(cmd, func(c *config.Config) {
				if cachePath != "" {
					c.FingerprintCachePath = cachePath
				}
			})
			if err != nil {
				return err
			}
			rep, err := p.Admit(cmd.Context(), req)
			if err != nil {
				return err
			}

			if format == formatText {
				out := cmd.OutOrStdout()
				printAdmission(out, rep, verbose, shouldColorize(out))
			} else if err := writeStructured(cmd, format, rep); err != nil {
				return err
			}
			if rep.Acceptance == nil || !rep.Acceptance.ShouldSend {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Capture profile to check against")
	cmd.Flags().StringVar(&cachePath, "cache", "", "Fingerprint cache file (overrides fingerprint_cache_path)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Enforce recommended settings such as the profile bitrate")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show computed fingerprints")
	cmd.Flags().BoolVar(&updateCache, "update-cache", false, "Learn the fingerprints of an admitted shard")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}
